package services

import (
	"fmt"
	"sort"

	"github.com/aksi-cleaners/pricing-api/internal/domain"
)

// DiscountEngine applies the order-level discount to an item amount. Discount
// rates and category exclusions come from configuration; the Custom kind takes
// its rate from the request instead.
type DiscountEngine struct {
	percentages map[domain.DiscountKind]domain.Percent
	excluded    map[string]struct{}
}

type DiscountEngineDeps struct {
	// Percentages maps each named discount programme to its rate.
	Percentages map[domain.DiscountKind]domain.Percent
	// ExcludedCategories lists category codes that never receive a discount.
	ExcludedCategories []string
}

func NewDiscountEngine(deps DiscountEngineDeps) (*DiscountEngine, error) {
	excluded := make(map[string]struct{}, len(deps.ExcludedCategories))
	for _, code := range deps.ExcludedCategories {
		excluded[code] = struct{}{}
	}
	percentages := make(map[domain.DiscountKind]domain.Percent, len(deps.Percentages))
	for kind, pct := range deps.Percentages {
		percentages[kind] = pct
	}
	return &DiscountEngine{percentages: percentages, excluded: excluded}, nil
}

// Percent resolves the rate for a discount spec. Custom requires an explicit
// percentage between 0 and 100; named kinds use the configured table.
func (e *DiscountEngine) Percent(spec domain.DiscountSpec) (domain.Percent, error) {
	switch spec.Kind {
	case domain.DiscountNone:
		return 0, nil
	case domain.DiscountCustom:
		if spec.Percent == nil {
			return 0, newValidationError("discount.percent", "custom discount requires a percentage")
		}
		if *spec.Percent < 0 || *spec.Percent > domain.PercentFromInt(100) {
			return 0, newValidationError("discount.percent", "custom discount percentage %s must be between 0 and 100", spec.Percent)
		}
		return *spec.Percent, nil
	}
	pct, ok := e.percentages[spec.Kind]
	if !ok {
		return 0, newValidationError("discount.kind", "unknown discount kind %q", spec.Kind)
	}
	return pct, nil
}

// Eligible reports whether the category may receive a discount, considering
// both the configured exclusions and any request-level ones.
func (e *DiscountEngine) Eligible(categoryCode string, spec domain.DiscountSpec) bool {
	if _, blocked := e.excluded[categoryCode]; blocked {
		return false
	}
	for _, code := range spec.ExcludedCategories {
		if code == categoryCode {
			return false
		}
	}
	return true
}

// Apply subtracts the discount from the item amount. Ineligible categories and
// zero rates pass through unchanged with no step.
func (e *DiscountEngine) Apply(item domain.CatalogItem, spec domain.DiscountSpec, amount domain.Money) (domain.Money, *domain.CalculationStep, error) {
	if spec.Kind == domain.DiscountNone {
		return amount, nil, nil
	}
	percent, err := e.Percent(spec)
	if err != nil {
		return 0, nil, err
	}
	if percent == 0 || !e.Eligible(item.CategoryCode, spec) {
		return amount, nil, nil
	}

	delta := amount.ApplyPercent(percent)
	step := &domain.CalculationStep{
		Label:       fmt.Sprintf("Discount %s (-%s%%)", spec.Kind, percent),
		Kind:        domain.StepDiscount,
		PriceBefore: amount,
		PriceAfter:  amount - delta,
		Delta:       -delta,
	}
	return amount - delta, step, nil
}

// DiscountListing describes one configured discount programme for the
// read-only listing endpoint.
type DiscountListing struct {
	Kind               domain.DiscountKind
	Percent            domain.Percent
	ExcludedCategories []string
}

// List returns the configured named discounts in a stable order.
func (e *DiscountEngine) List() []DiscountListing {
	excluded := make([]string, 0, len(e.excluded))
	for code := range e.excluded {
		excluded = append(excluded, code)
	}
	sort.Strings(excluded)

	listings := make([]DiscountListing, 0, len(e.percentages))
	for kind, pct := range e.percentages {
		listings = append(listings, DiscountListing{Kind: kind, Percent: pct, ExcludedCategories: excluded})
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].Kind < listings[j].Kind })
	return listings
}
