package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/aksi-cleaners/pricing-api/internal/domain"
	"github.com/aksi-cleaners/pricing-api/internal/repositories"
)

const maxCalculationItems = 100

// PricingServiceDeps bundles constructor inputs for the pricing service.
type PricingServiceDeps struct {
	Catalog     repositories.CatalogRepository
	Modifiers   repositories.PriceModifierRepository
	Calculator  *PriceCalculator
	Discounts   *DiscountEngine
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type pricingService struct {
	catalog    repositories.CatalogRepository
	modifiers  repositories.PriceModifierRepository
	calculator *PriceCalculator
	discounts  *DiscountEngine
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewPricingService constructs the pricing service with the supplied dependencies.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Catalog == nil {
		return nil, ErrCatalogRepositoryMissing
	}
	if deps.Modifiers == nil {
		return nil, ErrModifierRepositoryMissing
	}
	if deps.Calculator == nil {
		return nil, errors.New("pricing service: price calculator is required")
	}
	if deps.Discounts == nil {
		return nil, errors.New("pricing service: discount engine is required")
	}

	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &pricingService{
		catalog:    deps.Catalog,
		modifiers:  deps.Modifiers,
		calculator: deps.Calculator,
		discounts:  deps.Discounts,
		newID:      newID,
		logger:     logger,
	}, nil
}

func (s *pricingService) CalculatePrice(ctx context.Context, req PriceCalculationRequest) (PriceCalculationResponse, error) {
	if len(req.Items) == 0 {
		return PriceCalculationResponse{}, newValidationError("items", "at least one item is required")
	}
	if len(req.Items) > maxCalculationItems {
		return PriceCalculationResponse{}, newValidationError("items", "at most %d items per calculation", maxCalculationItems)
	}

	response := PriceCalculationResponse{
		CalculationID: s.newID(),
		Items:         make([]CalculationItemResult, 0, len(req.Items)),
	}

	for idx, item := range req.Items {
		result, err := s.calculateItem(ctx, item, req)
		if err != nil {
			return PriceCalculationResponse{}, fmt.Errorf("item %d (%s): %w", idx, item.ItemName, err)
		}
		response.Items = append(response.Items, CalculationItemResult{
			CategoryCode: item.CategoryCode,
			ItemName:     item.ItemName,
			Color:        item.Color,
			Result:       *result,
		})
		response.Warnings = append(response.Warnings, result.Warnings...)
		accumulateTotals(&response.Totals, result)
	}

	s.logger(ctx, "pricing.calculated", map[string]any{
		"calculation_id": response.CalculationID,
		"items":          len(response.Items),
		"total_minor":    response.Totals.Total.Minor(),
	})
	return response, nil
}

func (s *pricingService) calculateItem(ctx context.Context, item CalculationItemRequest, req PriceCalculationRequest) (*domain.CalculationResult, error) {
	categoryCode := strings.TrimSpace(item.CategoryCode)
	itemName := strings.TrimSpace(item.ItemName)
	if categoryCode == "" {
		return nil, newValidationError("categoryCode", "category code is required")
	}
	if itemName == "" {
		return nil, newValidationError("itemName", "item name is required")
	}

	catalogItem, err := s.catalog.FindItem(ctx, categoryCode, itemName)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrPriceListItemNotFound, categoryCode, itemName)
		}
		return nil, err
	}

	selections, err := s.resolveSelections(ctx, item.Modifiers)
	if err != nil {
		return nil, err
	}

	return s.calculator.Calculate(ctx, CalculationInput{
		Item:       catalogItem,
		Color:      item.Color,
		Quantity:   item.Quantity,
		Selections: selections,
		Urgency:    req.Urgency,
		Discount:   req.Discount,
	})
}

func (s *pricingService) resolveSelections(ctx context.Context, chosen []ModifierSelection) ([]SelectedModifier, error) {
	if len(chosen) == 0 {
		return nil, nil
	}

	codes := make([]string, len(chosen))
	for i, sel := range chosen {
		code := strings.TrimSpace(sel.Code)
		if code == "" {
			return nil, newValidationError("modifiers", "modifier code is required")
		}
		codes[i] = code
	}

	definitions, err := s.modifiers.FindByCodes(ctx, codes)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrModifierNotFound, strings.Join(codes, ","))
		}
		return nil, err
	}
	if len(definitions) != len(chosen) {
		return nil, fmt.Errorf("%w: resolved %d of %d codes", ErrModifierNotFound, len(definitions), len(chosen))
	}

	selections := make([]SelectedModifier, len(chosen))
	for i, def := range definitions {
		selections[i] = SelectedModifier{Modifier: def, RangeValue: chosen[i].Value}
	}
	return selections, nil
}

func (s *pricingService) ListModifiers(ctx context.Context, categoryCode string) ([]domain.Modifier, error) {
	return s.modifiers.ListByCategory(ctx, strings.TrimSpace(categoryCode))
}

func (s *pricingService) ListDiscounts(ctx context.Context) ([]DiscountListing, error) {
	return s.discounts.List(), nil
}

func (s *pricingService) ListCategories(ctx context.Context) ([]string, error) {
	return s.catalog.ListCategories(ctx)
}

// accumulateTotals folds one item result into the request totals using the
// audit steps, so the totals always agree with the breakdown shown to the user.
func accumulateTotals(totals *CalculationTotals, result *domain.CalculationResult) {
	afterModifiers := result.AmountAfterQuantity
	var urgencyDelta, discountDelta domain.Money
	var preDiscount domain.Money
	discounted := false

	for _, step := range result.Steps {
		switch step.Kind {
		case domain.StepModifier:
			afterModifiers = step.PriceAfter
		case domain.StepUrgency:
			urgencyDelta += step.Delta
		case domain.StepDiscount:
			discountDelta += step.Delta
			preDiscount = step.PriceBefore
			discounted = true
		}
	}

	totals.ItemsSubtotal += afterModifiers
	totals.UrgencyAmount += urgencyDelta
	if discounted {
		totals.DiscountApplicableAmount += preDiscount
		totals.DiscountAmount += -discountDelta
	}
	totals.Total += result.FinalPrice
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
