package services

import (
	"errors"
	"testing"

	"github.com/aksi-cleaners/pricing-api/internal/domain"
)

func newTestDiscountEngine(t *testing.T) *DiscountEngine {
	t.Helper()
	engine, err := NewDiscountEngine(DiscountEngineDeps{
		Percentages: map[domain.DiscountKind]domain.Percent{
			domain.DiscountEvercard:    domain.PercentFromInt(10),
			domain.DiscountMilitary:    domain.PercentFromInt(10),
			domain.DiscountSocialMedia: domain.PercentFromInt(5),
		},
		ExcludedCategories: []string{"LAUNDRY", "IRONING", "DYEING"},
	})
	if err != nil {
		t.Fatalf("NewDiscountEngine: %v", err)
	}
	return engine
}

func TestDiscountEngineApply(t *testing.T) {
	engine := newTestDiscountEngine(t)

	got, step, err := engine.Apply(testItem(), domain.DiscountSpec{Kind: domain.DiscountEvercard}, 37500)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != 33750 {
		t.Fatalf("10%% off 375.00: want 337.50, got %s", got)
	}
	if step == nil || step.Kind != domain.StepDiscount || step.Delta != -3750 {
		t.Fatalf("unexpected step: %+v", step)
	}
}

func TestDiscountEngineNoneIsNoOp(t *testing.T) {
	engine := newTestDiscountEngine(t)
	got, step, err := engine.Apply(testItem(), domain.DiscountSpec{Kind: domain.DiscountNone}, 37500)
	if err != nil || got != 37500 || step != nil {
		t.Fatalf("none discount must pass through: %s %+v %v", got, step, err)
	}
}

func TestDiscountEngineExcludedCategories(t *testing.T) {
	engine := newTestDiscountEngine(t)

	laundry := testItem()
	laundry.CategoryCode = "LAUNDRY"
	got, step, err := engine.Apply(laundry, domain.DiscountSpec{Kind: domain.DiscountEvercard}, 37500)
	if err != nil || got != 37500 || step != nil {
		t.Fatalf("configured exclusion must pass through: %s %+v %v", got, step, err)
	}

	got, step, err = engine.Apply(testItem(), domain.DiscountSpec{
		Kind:               domain.DiscountEvercard,
		ExcludedCategories: []string{"CLOTHING"},
	}, 37500)
	if err != nil || got != 37500 || step != nil {
		t.Fatalf("request-level exclusion must pass through: %s %+v %v", got, step, err)
	}
}

func TestDiscountEngineCustomPercent(t *testing.T) {
	engine := newTestDiscountEngine(t)

	pct := domain.PercentFromInt(25)
	got, _, err := engine.Apply(testItem(), domain.DiscountSpec{Kind: domain.DiscountCustom, Percent: &pct}, 10000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != 7500 {
		t.Fatalf("25%% off 100.00: want 75.00, got %s", got)
	}

	var vErr *ValidationError
	if _, _, err := engine.Apply(testItem(), domain.DiscountSpec{Kind: domain.DiscountCustom}, 10000); !errors.As(err, &vErr) {
		t.Fatalf("missing custom percent should be a validation error, got %v", err)
	}

	over := domain.PercentFromInt(120)
	if _, _, err := engine.Apply(testItem(), domain.DiscountSpec{Kind: domain.DiscountCustom, Percent: &over}, 10000); !errors.As(err, &vErr) {
		t.Fatalf("custom percent above 100 should be a validation error, got %v", err)
	}
}

func TestDiscountEngineUnknownKind(t *testing.T) {
	engine := newTestDiscountEngine(t)
	var vErr *ValidationError
	if _, _, err := engine.Apply(testItem(), domain.DiscountSpec{Kind: domain.DiscountKind("LOYALTY")}, 10000); !errors.As(err, &vErr) {
		t.Fatalf("unknown discount kind should be a validation error, got %v", err)
	}
}

func TestDiscountEngineList(t *testing.T) {
	engine := newTestDiscountEngine(t)
	listings := engine.List()
	if len(listings) != 3 {
		t.Fatalf("want 3 listings, got %d", len(listings))
	}
	if listings[0].Kind != domain.DiscountEvercard {
		t.Fatalf("listings should be sorted by kind, got %v first", listings[0].Kind)
	}
	for _, l := range listings {
		if len(l.ExcludedCategories) != 3 {
			t.Fatalf("listing %s should carry the exclusions, got %v", l.Kind, l.ExcludedCategories)
		}
	}
}
