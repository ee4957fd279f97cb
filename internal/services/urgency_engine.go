package services

import (
	"fmt"

	"github.com/aksi-cleaners/pricing-api/internal/domain"
)

// UrgencyEngine applies the expedited-service surcharge. Surcharge rates come
// from configuration; tiers without a configured rate behave like Normal.
type UrgencyEngine struct {
	surcharges     map[domain.UrgencyTier]domain.Percent
	nonExpeditable map[string]struct{}
}

type UrgencyEngineDeps struct {
	// Surcharges maps each expedited tier to its percentage surcharge.
	Surcharges map[domain.UrgencyTier]domain.Percent
	// NonExpeditableCategories lists category codes that never take a surcharge.
	NonExpeditableCategories []string
}

func NewUrgencyEngine(deps UrgencyEngineDeps) (*UrgencyEngine, error) {
	nonExpeditable := make(map[string]struct{}, len(deps.NonExpeditableCategories))
	for _, code := range deps.NonExpeditableCategories {
		nonExpeditable[code] = struct{}{}
	}
	surcharges := make(map[domain.UrgencyTier]domain.Percent, len(deps.Surcharges))
	for tier, pct := range deps.Surcharges {
		surcharges[tier] = pct
	}
	return &UrgencyEngine{surcharges: surcharges, nonExpeditable: nonExpeditable}, nil
}

// SurchargePercent returns the configured surcharge for a tier, zero for
// Normal or unknown tiers.
func (e *UrgencyEngine) SurchargePercent(tier domain.UrgencyTier) domain.Percent {
	if tier == domain.UrgencyNormal {
		return 0
	}
	return e.surcharges[tier]
}

// Expeditable reports whether the item's category admits expedited service.
func (e *UrgencyEngine) Expeditable(item domain.CatalogItem) bool {
	if item.ExpressUnavailable {
		return false
	}
	_, blocked := e.nonExpeditable[item.CategoryCode]
	return !blocked
}

// Apply adds the urgency surcharge step. For Normal urgency, non-expeditable
// items, or a zero-rate tier it returns the amount unchanged with no step and
// a warning when the client asked for an unavailable expedited tier.
func (e *UrgencyEngine) Apply(item domain.CatalogItem, tier domain.UrgencyTier, amount domain.Money) (domain.Money, *domain.CalculationStep, []string) {
	if tier == domain.UrgencyNormal {
		return amount, nil, nil
	}
	if !e.Expeditable(item) {
		warning := fmt.Sprintf("expedited service is not available for %s; urgency %s ignored", item.Name, tier)
		return amount, nil, []string{warning}
	}
	percent := e.surcharges[tier]
	if percent == 0 {
		return amount, nil, nil
	}

	delta := amount.ApplyPercent(percent)
	step := &domain.CalculationStep{
		Label:       fmt.Sprintf("Urgency %s (+%s%%)", tier, percent),
		Kind:        domain.StepUrgency,
		PriceBefore: amount,
		PriceAfter:  amount + delta,
		Delta:       delta,
	}
	return amount + delta, step, nil
}
