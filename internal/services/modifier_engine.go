package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aksi-cleaners/pricing-api/internal/domain"
)

// SelectedModifier pairs a catalog modifier with the client-chosen value for
// range modifiers. RangeValue is required for RANGE_PERCENTAGE and ignored for
// every other kind.
type SelectedModifier struct {
	Modifier   domain.Modifier
	RangeValue *domain.Percent
}

// ModifierInput carries everything the engine needs to price one item's
// modifier stage. Start is the amount after the quantity multiplication.
type ModifierInput struct {
	Item       domain.CatalogItem
	Start      domain.Money
	Quantity   domain.Quantity
	Color      string
	Selections []SelectedModifier
	ExtraVars  FormulaVars
}

// ModifierApplication is the outcome of the modifier stage: one audit step per
// applied modifier, the resulting amount, and any skip warnings.
type ModifierApplication struct {
	Steps    []domain.CalculationStep
	Total    domain.Money
	Warnings []string
}

// ModifierEngine applies a set of selected modifiers to an item amount.
// Percentage and range modifiers accumulate linearly against the stage's
// starting amount, so two +20% modifiers add 40% of the base rather than
// compounding. Formula modifiers evaluate eagerly against the running amount
// as adjusted by earlier formulas.
type ModifierEngine struct {
	formulas *FormulaCache
	logger   func(context.Context, string, map[string]any)
}

type ModifierEngineDeps struct {
	Formulas *FormulaCache
	Logger   func(context.Context, string, map[string]any)
}

func NewModifierEngine(deps ModifierEngineDeps) (*ModifierEngine, error) {
	formulas := deps.Formulas
	if formulas == nil {
		formulas = NewFormulaCache(0)
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ModifierEngine{formulas: formulas, logger: logger}, nil
}

// Apply runs the modifier stage. Selections are processed in priority order
// (stable on ties), so the audit trail ordering is deterministic for a given
// request. Validation failures return *ValidationError; a formula that fails
// to compile returns *FormulaSyntaxError, a formula that fails at runtime
// *FormulaEvaluationError.
func (e *ModifierEngine) Apply(ctx context.Context, in ModifierInput) (*ModifierApplication, error) {
	out := &ModifierApplication{Total: in.Start}
	if len(in.Selections) == 0 {
		return out, nil
	}

	selections := make([]SelectedModifier, len(in.Selections))
	copy(selections, in.Selections)
	sort.SliceStable(selections, func(i, j int) bool {
		return selections[i].Modifier.Priority < selections[j].Modifier.Priority
	})

	type pendingStep struct {
		modifier domain.Modifier
		delta    domain.Money
		// percentIdx points into the percentage allocation when >= 0.
		percentIdx int
	}

	var (
		pending        []pendingStep
		percentWeights []int64
		totalPercent   domain.Percent
		formulaRunning = in.Start
	)

	for _, sel := range selections {
		mod := sel.Modifier
		if !mod.Active {
			out.Warnings = append(out.Warnings, fmt.Sprintf("modifier %s is inactive and was skipped", mod.Code))
			e.logger(ctx, "pricing.modifier.skipped", map[string]any{"code": mod.Code, "reason": "inactive"})
			continue
		}
		if !mod.AppliesTo(in.Item.CategoryCode) {
			out.Warnings = append(out.Warnings, fmt.Sprintf("modifier %s does not apply to category %s and was skipped", mod.Code, in.Item.CategoryCode))
			e.logger(ctx, "pricing.modifier.skipped", map[string]any{"code": mod.Code, "reason": "category"})
			continue
		}

		switch mod.Kind {
		case domain.ModifierPercentage:
			if mod.Percent == nil {
				out.Warnings = append(out.Warnings, fmt.Sprintf("modifier %s has no percentage value and was skipped", mod.Code))
				e.logger(ctx, "pricing.modifier.skipped", map[string]any{"code": mod.Code, "reason": "missing_value"})
				continue
			}
			totalPercent += *mod.Percent
			pending = append(pending, pendingStep{modifier: mod, percentIdx: len(percentWeights)})
			percentWeights = append(percentWeights, mod.Percent.BasisPoints())

		case domain.ModifierRangePercentage:
			percent, err := rangePercent(mod, sel.RangeValue)
			if err != nil {
				return nil, err
			}
			totalPercent += percent
			pending = append(pending, pendingStep{modifier: mod, percentIdx: len(percentWeights)})
			percentWeights = append(percentWeights, percent.BasisPoints())

		case domain.ModifierFixedAmount:
			if mod.Amount == nil {
				out.Warnings = append(out.Warnings, fmt.Sprintf("modifier %s has no amount value and was skipped", mod.Code))
				e.logger(ctx, "pricing.modifier.skipped", map[string]any{"code": mod.Code, "reason": "missing_value"})
				continue
			}
			pending = append(pending, pendingStep{modifier: mod, delta: *mod.Amount, percentIdx: -1})

		case domain.ModifierFormula:
			delta, err := e.evalFormulaDelta(mod, sel, in, formulaRunning)
			if err != nil {
				return nil, err
			}
			formulaRunning += delta
			pending = append(pending, pendingStep{modifier: mod, delta: delta, percentIdx: -1})

		default:
			return nil, newValidationError("modifiers", "modifier %s has unsupported kind %q", mod.Code, mod.Kind)
		}
	}

	// The aggregate percentage amount is rounded once, then split across the
	// contributing modifiers so the step deltas sum exactly to it.
	aggregate := in.Start.ApplyPercent(totalPercent)
	percentDeltas := allocatePercentDeltas(in.Start, aggregate, percentWeights)

	running := in.Start
	for _, step := range pending {
		delta := step.delta
		if step.percentIdx >= 0 {
			delta = percentDeltas[step.percentIdx]
		}
		out.Steps = append(out.Steps, domain.CalculationStep{
			Label:        step.modifier.Name,
			Kind:         domain.StepModifier,
			ModifierCode: step.modifier.Code,
			PriceBefore:  running,
			PriceAfter:   running + delta,
			Delta:        delta,
		})
		running += delta
	}
	out.Total = running
	return out, nil
}

func rangePercent(mod domain.Modifier, value *domain.Percent) (domain.Percent, error) {
	if mod.MinPercent == nil || mod.MaxPercent == nil {
		return 0, newValidationError("modifiers", "modifier %s is missing its percentage range", mod.Code)
	}
	if value == nil {
		return 0, newValidationError("modifiers", "modifier %s requires a percentage value between %s and %s", mod.Code, mod.MinPercent, mod.MaxPercent)
	}
	if *value < *mod.MinPercent || *value > *mod.MaxPercent {
		return 0, newValidationError("modifiers", "modifier %s value %s is outside the allowed range %s..%s", mod.Code, value, mod.MinPercent, mod.MaxPercent)
	}
	return *value, nil
}

// evalFormulaDelta evaluates a formula modifier. The formula yields the new
// item amount; the delta is taken against the running amount the formula saw.
func (e *ModifierEngine) evalFormulaDelta(mod domain.Modifier, sel SelectedModifier, in ModifierInput, running domain.Money) (domain.Money, error) {
	compiled, err := e.formulas.Get(mod.Formula)
	if err != nil {
		// Compile failure is a modifier catalog defect; it keeps its
		// *FormulaSyntaxError type rather than masquerading as a runtime one.
		return 0, err
	}

	vars := e.formulaVars(in, running)
	switch {
	case sel.RangeValue != nil:
		vars["modifierValue"] = sel.RangeValue.Float()
	case mod.Percent != nil:
		vars["modifierValue"] = mod.Percent.Float()
	default:
		vars["modifierValue"] = float64(0)
	}

	result, err := compiled.Evaluate(vars)
	if err != nil {
		return 0, &FormulaEvaluationError{ModifierCode: mod.Code, Formula: mod.Formula, Err: err}
	}
	return domain.MoneyFromFloat(result) - running, nil
}

func (e *ModifierEngine) formulaVars(in ModifierInput, running domain.Money) FormulaVars {
	item := in.Item
	blackPrice := item.BasePrice
	if p, ok := item.ColorPrices["black"]; ok {
		blackPrice = p
	}
	colorPrice := item.BasePrice
	if p, ok := item.ColorPrices["color"]; ok {
		colorPrice = p
	}

	vars := FormulaVars{
		"price":         running.Float(),
		"basePrice":     item.PriceForColor(in.Color).Float(),
		"quantity":      in.Quantity.Float(),
		"color":         strings.ToLower(strings.TrimSpace(in.Color)),
		"itemName":      item.Name,
		"categoryCode":  item.CategoryCode,
		"unitOfMeasure": item.UnitOfMeasure,
		"blackPrice":    blackPrice.Float(),
		"colorPrice":    colorPrice.Float(),
		"HUNDRED":       float64(100),
	}
	for name, value := range in.ExtraVars {
		vars[name] = value
	}
	return vars
}

// allocatePercentDeltas splits the aggregate percentage amount across the
// contributing modifiers in proportion to their basis points, assigning
// leftover minor units by largest remainder so the parts sum to the whole.
func allocatePercentDeltas(start domain.Money, aggregate domain.Money, weightsBps []int64) []domain.Money {
	if len(weightsBps) == 0 {
		return nil
	}
	deltas := make([]domain.Money, len(weightsBps))
	if aggregate == 0 && start == 0 {
		return deltas
	}

	type remainderPair struct {
		idx       int
		remainder int64
	}

	const denom = int64(10_000)
	pairs := make([]remainderPair, len(weightsBps))
	distributed := domain.Money(0)
	for i, bps := range weightsBps {
		num := start.Minor() * bps
		share := floorDiv(num, denom)
		deltas[i] = domain.Money(share)
		distributed += domain.Money(share)
		pairs[i] = remainderPair{idx: i, remainder: num - share*denom}
	}

	leftover := int64(aggregate - distributed)
	if leftover == 0 {
		return deltas
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].remainder == pairs[j].remainder {
			return pairs[i].idx < pairs[j].idx
		}
		return pairs[i].remainder > pairs[j].remainder
	})
	for _, pair := range pairs {
		if leftover == 0 {
			break
		}
		deltas[pair.idx]++
		leftover--
	}
	// A negative leftover can only appear with negative weights; pull the
	// excess back from the smallest remainders.
	for i := len(pairs) - 1; i >= 0 && leftover < 0; i-- {
		deltas[pairs[i].idx]--
		leftover++
	}
	return deltas
}

func floorDiv(num, den int64) int64 {
	q := num / den
	if num%den != 0 && (num < 0) != (den < 0) {
		q--
	}
	return q
}
