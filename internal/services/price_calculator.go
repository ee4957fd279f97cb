package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aksi-cleaners/pricing-api/internal/domain"
)

// CalculationInput is one item to price, fully resolved: the catalog entry is
// already loaded and modifier selections already matched to their definitions.
type CalculationInput struct {
	Item       domain.CatalogItem
	Color      string
	Quantity   domain.Quantity
	Selections []SelectedModifier
	Urgency    domain.UrgencyTier
	Discount   domain.DiscountSpec
}

// PriceCalculator runs the pricing pipeline for a single item: base price by
// color, quantity, modifiers, urgency surcharge, discount, minimum-price
// floor. Every stage that changes the amount leaves an audit step.
type PriceCalculator struct {
	modifiers *ModifierEngine
	urgency   *UrgencyEngine
	discount  *DiscountEngine
	floor     domain.Money
}

type PriceCalculatorDeps struct {
	Modifiers *ModifierEngine
	Urgency   *UrgencyEngine
	Discount  *DiscountEngine
	// Floor is the minimum final price per item. Zero falls back to
	// domain.MinimumPrice.
	Floor domain.Money
}

func NewPriceCalculator(deps PriceCalculatorDeps) (*PriceCalculator, error) {
	if deps.Modifiers == nil {
		return nil, errors.New("price calculator: modifier engine is required")
	}
	if deps.Urgency == nil {
		return nil, errors.New("price calculator: urgency engine is required")
	}
	if deps.Discount == nil {
		return nil, errors.New("price calculator: discount engine is required")
	}
	floor := deps.Floor
	if floor <= 0 {
		floor = domain.MinimumPrice
	}
	return &PriceCalculator{
		modifiers: deps.Modifiers,
		urgency:   deps.Urgency,
		discount:  deps.Discount,
		floor:     floor,
	}, nil
}

// Calculate prices one item. Invalid input returns *ValidationError before any
// step is produced; formula failures abort with *FormulaSyntaxError or
// *FormulaEvaluationError depending on where the formula broke.
func (c *PriceCalculator) Calculate(ctx context.Context, in CalculationInput) (*domain.CalculationResult, error) {
	if !in.Quantity.IsPositive() {
		return nil, newValidationError("quantity", "quantity must be greater than zero")
	}
	if in.Item.BasePrice <= 0 {
		return nil, newValidationError("item", "catalog item %s has no positive base price", in.Item.Name)
	}

	unitPrice := in.Item.PriceForColor(in.Color)
	result := &domain.CalculationResult{
		BasePrice: unitPrice,
		Quantity:  in.Quantity,
	}

	result.Steps = append(result.Steps, domain.CalculationStep{
		Label:       baseStepLabel(in),
		Kind:        domain.StepBasePrice,
		PriceBefore: 0,
		PriceAfter:  unitPrice,
		Delta:       unitPrice,
	})

	amount := unitPrice.MulQuantity(in.Quantity)
	result.AmountAfterQuantity = amount
	result.Steps = append(result.Steps, domain.CalculationStep{
		Label:       fmt.Sprintf("Quantity x %s", in.Quantity),
		Kind:        domain.StepQuantity,
		PriceBefore: unitPrice,
		PriceAfter:  amount,
		Delta:       amount - unitPrice,
	})

	applied, err := c.modifiers.Apply(ctx, ModifierInput{
		Item:       in.Item,
		Start:      amount,
		Quantity:   in.Quantity,
		Color:      in.Color,
		Selections: in.Selections,
		ExtraVars:  c.urgencyVars(in),
	})
	if err != nil {
		return nil, err
	}
	result.Steps = append(result.Steps, applied.Steps...)
	result.Warnings = append(result.Warnings, applied.Warnings...)
	amount = applied.Total

	amount, urgencyStep, urgencyWarnings := c.urgency.Apply(in.Item, in.Urgency, amount)
	if urgencyStep != nil {
		result.Steps = append(result.Steps, *urgencyStep)
	}
	result.Warnings = append(result.Warnings, urgencyWarnings...)

	amount, discountStep, err := c.discount.Apply(in.Item, in.Discount, amount)
	if err != nil {
		return nil, err
	}
	if discountStep != nil {
		result.Steps = append(result.Steps, *discountStep)
	}

	if clamped := amount.Clamp(c.floor); clamped != amount {
		result.Steps = append(result.Steps, domain.CalculationStep{
			Label:       "Minimum price",
			Kind:        domain.StepFloor,
			PriceBefore: amount,
			PriceAfter:  clamped,
			Delta:       clamped - amount,
		})
		amount = clamped
	}

	result.FinalPrice = amount
	return result, nil
}

// urgencyVars exposes the requested urgency to formula modifiers. Normal
// urgency leaves the variables unbound so formulas that reference them fail
// loudly instead of silently pricing the normal tier.
func (c *PriceCalculator) urgencyVars(in CalculationInput) FormulaVars {
	if in.Urgency == domain.UrgencyNormal {
		return nil
	}
	percent := c.urgency.SurchargePercent(in.Urgency)
	return FormulaVars{
		"urgency":           string(in.Urgency),
		"urgencyMultiplier": 1 + percent.Float()/100,
	}
}

func baseStepLabel(in CalculationInput) string {
	if in.Color != "" {
		return fmt.Sprintf("Base price (%s)", in.Color)
	}
	return "Base price"
}
