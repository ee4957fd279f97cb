package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aksi-cleaners/pricing-api/internal/domain"
)

func mustPercent(t *testing.T, value string) domain.Percent {
	t.Helper()
	p, err := domain.ParsePercent(value)
	if err != nil {
		t.Fatalf("ParsePercent(%q): %v", value, err)
	}
	return p
}

func percentPtr(p domain.Percent) *domain.Percent { return &p }
func moneyPtr(m domain.Money) *domain.Money       { return &m }

func newTestModifierEngine(t *testing.T) *ModifierEngine {
	t.Helper()
	engine, err := NewModifierEngine(ModifierEngineDeps{})
	if err != nil {
		t.Fatalf("NewModifierEngine: %v", err)
	}
	return engine
}

func testItem() domain.CatalogItem {
	return domain.CatalogItem{
		CategoryCode:  "CLOTHING",
		Name:          "Coat",
		UnitOfMeasure: "PIECE",
		BasePrice:     10000,
		ColorPrices: map[string]domain.Money{
			"black": 12000,
			"color": 11000,
		},
	}
}

func TestModifierEnginePercentagesAccumulateAgainstStart(t *testing.T) {
	engine := newTestModifierEngine(t)

	// Two percentage modifiers on 200.00: +20% and +10% must add 60.00 in
	// total, not compound to 64.00.
	out, err := engine.Apply(context.Background(), ModifierInput{
		Item:     testItem(),
		Start:    20000,
		Quantity: domain.QuantityFromInt(2),
		Selections: []SelectedModifier{
			{Modifier: domain.Modifier{Code: "hand_wash", Name: "Hand wash", Kind: domain.ModifierPercentage, Percent: percentPtr(mustPercent(t, "20")), Priority: 1, Active: true}},
			{Modifier: domain.Modifier{Code: "stain_removal", Name: "Stain removal", Kind: domain.ModifierPercentage, Percent: percentPtr(mustPercent(t, "10")), Priority: 2, Active: true}},
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Total != 26000 {
		t.Fatalf("want total 260.00, got %s", out.Total)
	}
	if len(out.Steps) != 2 {
		t.Fatalf("want 2 steps, got %d", len(out.Steps))
	}
	if out.Steps[0].Delta != 4000 || out.Steps[1].Delta != 2000 {
		t.Fatalf("unexpected step deltas: %d, %d", out.Steps[0].Delta, out.Steps[1].Delta)
	}
	if out.Steps[0].PriceBefore != 20000 || out.Steps[1].PriceAfter != 26000 {
		t.Fatalf("steps do not chain: %+v", out.Steps)
	}
}

func TestModifierEnginePercentStepsSumToAggregate(t *testing.T) {
	engine := newTestModifierEngine(t)

	// 0.99 with three +11% modifiers: aggregate is 0.99 * 33% = 0.33 after a
	// single rounding. The three step deltas must sum to exactly that.
	out, err := engine.Apply(context.Background(), ModifierInput{
		Item:     testItem(),
		Start:    99,
		Quantity: domain.QuantityFromInt(1),
		Selections: []SelectedModifier{
			{Modifier: domain.Modifier{Code: "m1", Name: "M1", Kind: domain.ModifierPercentage, Percent: percentPtr(mustPercent(t, "11")), Priority: 1, Active: true}},
			{Modifier: domain.Modifier{Code: "m2", Name: "M2", Kind: domain.ModifierPercentage, Percent: percentPtr(mustPercent(t, "11")), Priority: 2, Active: true}},
			{Modifier: domain.Modifier{Code: "m3", Name: "M3", Kind: domain.ModifierPercentage, Percent: percentPtr(mustPercent(t, "11")), Priority: 3, Active: true}},
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := domain.Money(99).ApplyPercent(mustPercent(t, "33"))
	var sum domain.Money
	for _, step := range out.Steps {
		sum += step.Delta
	}
	if sum != want {
		t.Fatalf("step deltas sum to %d, aggregate is %d", sum, want)
	}
	if out.Total != 99+want {
		t.Fatalf("want total %d, got %d", 99+want, out.Total)
	}
}

func TestModifierEngineFixedAmountAndPriorityOrder(t *testing.T) {
	engine := newTestModifierEngine(t)

	out, err := engine.Apply(context.Background(), ModifierInput{
		Item:     testItem(),
		Start:    20000,
		Quantity: domain.QuantityFromInt(2),
		Selections: []SelectedModifier{
			{Modifier: domain.Modifier{Code: "button_repair", Name: "Button repair", Kind: domain.ModifierFixedAmount, Amount: moneyPtr(1000), Priority: 5, Active: true}},
			{Modifier: domain.Modifier{Code: "hand_wash", Name: "Hand wash", Kind: domain.ModifierPercentage, Percent: percentPtr(mustPercent(t, "20")), Priority: 1, Active: true}},
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Total != 25000 {
		t.Fatalf("want total 250.00, got %s", out.Total)
	}
	if out.Steps[0].ModifierCode != "hand_wash" || out.Steps[1].ModifierCode != "button_repair" {
		t.Fatalf("steps not in priority order: %+v", out.Steps)
	}
}

func TestModifierEngineRangePercentage(t *testing.T) {
	engine := newTestModifierEngine(t)
	rangeMod := domain.Modifier{
		Code:       "wear_level",
		Name:       "Wear level",
		Kind:       domain.ModifierRangePercentage,
		MinPercent: percentPtr(mustPercent(t, "20")),
		MaxPercent: percentPtr(mustPercent(t, "100")),
		Priority:   1,
		Active:     true,
	}

	out, err := engine.Apply(context.Background(), ModifierInput{
		Item:       testItem(),
		Start:      20000,
		Quantity:   domain.QuantityFromInt(2),
		Selections: []SelectedModifier{{Modifier: rangeMod, RangeValue: percentPtr(mustPercent(t, "50"))}},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Total != 30000 {
		t.Fatalf("range at 50%% of 200.00 should give 300.00, got %s", out.Total)
	}

	// Missing value is a validation error, not a silent default.
	_, err = engine.Apply(context.Background(), ModifierInput{
		Item:       testItem(),
		Start:      20000,
		Quantity:   domain.QuantityFromInt(2),
		Selections: []SelectedModifier{{Modifier: rangeMod}},
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for missing range value, got %v", err)
	}

	// Out-of-range value is rejected.
	_, err = engine.Apply(context.Background(), ModifierInput{
		Item:       testItem(),
		Start:      20000,
		Quantity:   domain.QuantityFromInt(2),
		Selections: []SelectedModifier{{Modifier: rangeMod, RangeValue: percentPtr(mustPercent(t, "150"))}},
	})
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for out-of-range value, got %v", err)
	}
}

func TestModifierEngineFormula(t *testing.T) {
	engine := newTestModifierEngine(t)

	// The formula yields the new amount; here +15% of the black base price on
	// top of the running amount.
	out, err := engine.Apply(context.Background(), ModifierInput{
		Item:     testItem(),
		Start:    20000,
		Quantity: domain.QuantityFromInt(2),
		Color:    "black",
		Selections: []SelectedModifier{
			{Modifier: domain.Modifier{
				Code:     "dark_color",
				Name:     "Dark color treatment",
				Kind:     domain.ModifierFormula,
				Formula:  "price + blackPrice * 15 / HUNDRED",
				Priority: 1,
				Active:   true,
			}},
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// 200.00 + 120.00 * 0.15 = 218.00
	if out.Total != 21800 {
		t.Fatalf("want 218.00, got %s", out.Total)
	}
	if out.Steps[0].Delta != 1800 {
		t.Fatalf("want delta 18.00, got %s", out.Steps[0].Delta)
	}
}

func TestModifierEngineFormulaSeesPriorFormulaDeltasOnly(t *testing.T) {
	engine := newTestModifierEngine(t)

	out, err := engine.Apply(context.Background(), ModifierInput{
		Item:     testItem(),
		Start:    10000,
		Quantity: domain.QuantityFromInt(1),
		Selections: []SelectedModifier{
			// Percentage runs in the same stage but must not leak into the
			// formula's price variable.
			{Modifier: domain.Modifier{Code: "pct", Name: "Pct", Kind: domain.ModifierPercentage, Percent: percentPtr(mustPercent(t, "50")), Priority: 1, Active: true}},
			{Modifier: domain.Modifier{Code: "f1", Name: "F1", Kind: domain.ModifierFormula, Formula: "price + 10", Priority: 2, Active: true}},
			{Modifier: domain.Modifier{Code: "f2", Name: "F2", Kind: domain.ModifierFormula, Formula: "price * 2", Priority: 3, Active: true}},
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// f1 sees 100.00 -> 110.00 (delta 10.00); f2 sees 110.00 -> 220.00
	// (delta 110.00); percentage adds 50.00 against the start.
	if out.Steps[1].Delta != 1000 {
		t.Fatalf("f1 delta: want 10.00, got %s", out.Steps[1].Delta)
	}
	if out.Steps[2].Delta != 11000 {
		t.Fatalf("f2 delta: want 110.00, got %s", out.Steps[2].Delta)
	}
	if out.Total != 10000+5000+1000+11000 {
		t.Fatalf("want 270.00, got %s", out.Total)
	}
}

func TestModifierEngineFormulaEvaluationFailure(t *testing.T) {
	engine := newTestModifierEngine(t)

	_, err := engine.Apply(context.Background(), ModifierInput{
		Item:     testItem(),
		Start:    10000,
		Quantity: domain.QuantityFromInt(1),
		Selections: []SelectedModifier{
			{Modifier: domain.Modifier{Code: "bad", Name: "Bad", Kind: domain.ModifierFormula, Formula: "price / modifierValue", Priority: 1, Active: true}},
		},
	})
	var fErr *FormulaEvaluationError
	if !errors.As(err, &fErr) {
		t.Fatalf("expected FormulaEvaluationError, got %v", err)
	}
	if fErr.ModifierCode != "bad" {
		t.Fatalf("error should carry the modifier code, got %q", fErr.ModifierCode)
	}
}

func TestModifierEngineFormulaSyntaxFailure(t *testing.T) {
	engine := newTestModifierEngine(t)

	_, err := engine.Apply(context.Background(), ModifierInput{
		Item:     testItem(),
		Start:    10000,
		Quantity: domain.QuantityFromInt(1),
		Selections: []SelectedModifier{
			{Modifier: domain.Modifier{Code: "broken", Name: "Broken", Kind: domain.ModifierFormula, Formula: "price +* 2", Priority: 1, Active: true}},
		},
	})
	var sErr *FormulaSyntaxError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected FormulaSyntaxError, got %v", err)
	}
	var fErr *FormulaEvaluationError
	if errors.As(err, &fErr) {
		t.Fatalf("a formula that fails to compile must not surface as an evaluation error: %v", err)
	}
}

func TestModifierEngineSkipsWithWarnings(t *testing.T) {
	engine := newTestModifierEngine(t)

	out, err := engine.Apply(context.Background(), ModifierInput{
		Item:     testItem(),
		Start:    10000,
		Quantity: domain.QuantityFromInt(1),
		Selections: []SelectedModifier{
			{Modifier: domain.Modifier{Code: "inactive", Name: "Inactive", Kind: domain.ModifierPercentage, Percent: percentPtr(mustPercent(t, "10")), Priority: 1, Active: false}},
			{Modifier: domain.Modifier{Code: "laundry_only", Name: "Laundry only", Kind: domain.ModifierPercentage, Percent: percentPtr(mustPercent(t, "10")), Priority: 2, Categories: []string{"LAUNDRY"}, Active: true}},
			{Modifier: domain.Modifier{Code: "no_value", Name: "No value", Kind: domain.ModifierPercentage, Priority: 3, Active: true}},
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Total != 10000 {
		t.Fatalf("skipped modifiers must not change the amount, got %s", out.Total)
	}
	if len(out.Steps) != 0 {
		t.Fatalf("skipped modifiers must not produce steps: %+v", out.Steps)
	}
	if len(out.Warnings) != 3 {
		t.Fatalf("want 3 warnings, got %v", out.Warnings)
	}
	for i, fragment := range []string{"inactive", "category", "percentage value"} {
		if !strings.Contains(out.Warnings[i], fragment) {
			t.Fatalf("warning %d should mention %q: %q", i, fragment, out.Warnings[i])
		}
	}
}

func TestModifierEngineNegativePercentage(t *testing.T) {
	engine := newTestModifierEngine(t)

	out, err := engine.Apply(context.Background(), ModifierInput{
		Item:     testItem(),
		Start:    20000,
		Quantity: domain.QuantityFromInt(2),
		Selections: []SelectedModifier{
			{Modifier: domain.Modifier{Code: "simple_finish", Name: "Simple finish", Kind: domain.ModifierPercentage, Percent: percentPtr(mustPercent(t, "-30")), Priority: 1, Active: true}},
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Total != 14000 {
		t.Fatalf("-30%% of 200.00 should give 140.00, got %s", out.Total)
	}
}
