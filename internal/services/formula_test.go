package services

import (
	"errors"
	"strings"
	"testing"
)

func baseVars() FormulaVars {
	return FormulaVars{
		"price":         float64(250),
		"basePrice":     float64(100),
		"quantity":      float64(2),
		"color":         "black",
		"modifierValue": float64(0),
		"itemName":      "Coat",
		"categoryCode":  "CLOTHING",
		"unitOfMeasure": "PIECE",
		"blackPrice":    float64(120),
		"colorPrice":    float64(110),
		"HUNDRED":       float64(100),
	}
}

func TestFormulaEvaluate(t *testing.T) {
	cases := []struct {
		name    string
		formula string
		want    float64
	}{
		{name: "arithmetic", formula: "basePrice * 20 / HUNDRED", want: 20},
		{name: "precedence", formula: "2 + 3 * 4", want: 14},
		{name: "parentheses", formula: "(2 + 3) * 4", want: 20},
		{name: "unary minus", formula: "-basePrice / 10", want: -10},
		{name: "quantity scaled", formula: "quantity * 5.5", want: 11},
		{name: "ternary true branch", formula: "color == 'black' ? blackPrice - basePrice : 0", want: 20},
		{name: "ternary false branch", formula: "color == 'red' ? 99 : colorPrice - basePrice", want: 10},
		{name: "comparison chain", formula: "price > 200 && quantity >= 2 ? 15 : 5", want: 15},
		{name: "string inequality", formula: "unitOfMeasure != 'KILOGRAM' ? 1 : 2", want: 1},
		{name: "rounding half up", formula: "10 / 3", want: 3.33},
		{name: "nested ternary", formula: "quantity > 5 ? 30 : quantity > 1 ? 20 : 10", want: 20},
		{name: "negation", formula: "!(price < 100) ? 7 : 0", want: 7},
	}

	cache := NewFormulaCache(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			compiled, err := cache.Get(tc.formula)
			if err != nil {
				t.Fatalf("compile %q: %v", tc.formula, err)
			}
			got, err := compiled.Evaluate(baseVars())
			if err != nil {
				t.Fatalf("evaluate %q: %v", tc.formula, err)
			}
			if got != tc.want {
				t.Fatalf("evaluate %q: want %v, got %v", tc.formula, tc.want, got)
			}
		})
	}
}

func TestFormulaCompileRejectsUnknownVariable(t *testing.T) {
	_, err := CompileFormula("basePrice * unknownRate")
	var syntaxErr *FormulaSyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected FormulaSyntaxError, got %v", err)
	}
	if !strings.Contains(syntaxErr.Message, "unknownRate") {
		t.Fatalf("error should name the variable, got %q", syntaxErr.Message)
	}
}

func TestFormulaCompileSyntaxErrors(t *testing.T) {
	cases := []string{
		"",
		"basePrice +",
		"(basePrice * 2",
		"price ? 1",
		"1..2",
		"'unterminated",
		"price @ 2",
		"basePrice 5",
	}
	for _, formula := range cases {
		if _, err := CompileFormula(formula); err == nil {
			t.Fatalf("compile %q: expected error", formula)
		}
	}
}

func TestFormulaEvaluateErrors(t *testing.T) {
	cases := []struct {
		name    string
		formula string
		vars    FormulaVars
	}{
		{name: "division by zero", formula: "basePrice / modifierValue", vars: baseVars()},
		{name: "unbound optional variable", formula: "material == 'silk' ? 20 : 0", vars: baseVars()},
		{name: "string arithmetic", formula: "color + 5", vars: baseVars()},
		{name: "non-numeric result", formula: "color == 'black' ? 'yes' : 'no'", vars: baseVars()},
		{name: "boolean condition required", formula: "price ? 1 : 2", vars: baseVars()},
		{name: "mixed equality", formula: "color == 5 ? 1 : 2", vars: baseVars()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			compiled, err := CompileFormula(tc.formula)
			if err != nil {
				t.Fatalf("compile %q: %v", tc.formula, err)
			}
			if _, err := compiled.Evaluate(tc.vars); err == nil {
				t.Fatalf("evaluate %q: expected error", tc.formula)
			}
		})
	}
}

func TestFormulaOptionalVariablesWhenBound(t *testing.T) {
	vars := baseVars()
	vars["material"] = "leather"
	vars["urgency"] = "EXPRESS_48H"
	vars["urgencyMultiplier"] = 1.5

	compiled, err := CompileFormula("material == 'leather' ? basePrice * urgencyMultiplier : 0")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	got, err := compiled.Evaluate(vars)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got != 150 {
		t.Fatalf("want 150, got %v", got)
	}
}

func TestFormulaCacheReusesCompiledEntries(t *testing.T) {
	cache := NewFormulaCache(4)

	first, err := cache.Get("basePrice * 2")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	second, err := cache.Get("  basePrice * 2  ")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if first != second {
		t.Fatal("expected the same compiled instance for equivalent sources")
	}
	if cache.Len() != 1 {
		t.Fatalf("expected a single cache entry, got %d", cache.Len())
	}
}

func TestFormulaCacheEvictsAtLimit(t *testing.T) {
	cache := NewFormulaCache(2)
	sources := []string{"1 + 1", "2 + 2", "3 + 3"}
	for _, src := range sources {
		if _, err := cache.Get(src); err != nil {
			t.Fatalf("get %q: %v", src, err)
		}
	}
	if cache.Len() > 2 {
		t.Fatalf("cache exceeded its limit: %d entries", cache.Len())
	}
}
