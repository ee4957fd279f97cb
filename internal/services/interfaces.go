package services

import (
	"context"

	"github.com/aksi-cleaners/pricing-api/internal/domain"
)

// ModifierSelection is one modifier chosen for an item, with the optional
// client-supplied value for range modifiers.
type ModifierSelection struct {
	Code  string
	Value *domain.Percent
}

// CalculationItemRequest describes one order line to price.
type CalculationItemRequest struct {
	CategoryCode string
	ItemName     string
	Color        string
	Quantity     domain.Quantity
	Modifiers    []ModifierSelection
}

// PriceCalculationRequest prices a set of items under a shared urgency tier
// and discount.
type PriceCalculationRequest struct {
	Items    []CalculationItemRequest
	Urgency  domain.UrgencyTier
	Discount domain.DiscountSpec
}

// CalculationItemResult pairs a priced item with its audit breakdown.
type CalculationItemResult struct {
	CategoryCode string
	ItemName     string
	Color        string
	Result       domain.CalculationResult
}

// CalculationTotals aggregates the per-item results for the whole request.
type CalculationTotals struct {
	// ItemsSubtotal is the sum of item amounts after modifiers, before
	// urgency and discount.
	ItemsSubtotal domain.Money
	// UrgencyAmount is the total expedited-service surcharge.
	UrgencyAmount domain.Money
	// DiscountApplicableAmount is the pre-discount sum over discount-eligible items.
	DiscountApplicableAmount domain.Money
	// DiscountAmount is the total amount subtracted by the discount.
	DiscountAmount domain.Money
	// Total is the sum of final item prices.
	Total domain.Money
}

// PriceCalculationResponse is the full outcome of one calculation request.
type PriceCalculationResponse struct {
	CalculationID string
	Items         []CalculationItemResult
	Totals        CalculationTotals
	Warnings      []string
}

// PricingService is the application-facing pricing API.
type PricingService interface {
	// CalculatePrice prices every item in the request and aggregates totals.
	CalculatePrice(ctx context.Context, req PriceCalculationRequest) (PriceCalculationResponse, error)
	// ListModifiers returns the active modifiers available for a category;
	// an empty category returns the generally applicable ones.
	ListModifiers(ctx context.Context, categoryCode string) ([]domain.Modifier, error)
	// ListDiscounts returns the configured discount programmes.
	ListDiscounts(ctx context.Context) ([]DiscountListing, error)
	// ListCategories returns the category codes present in the price list.
	ListCategories(ctx context.Context) ([]string, error)
}
