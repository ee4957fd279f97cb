package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Money is a monetary amount in integer minor units (kopiykas). All arithmetic
// stays in integers; decimal strings appear only at the serialization boundary.
type Money int64

// MinimumPrice is the floor enforced at the end of every calculation.
const MinimumPrice Money = 1

var errInvalidMoney = errors.New("money: invalid decimal amount")

// ParseMoney converts a decimal string with at most two fractional digits into
// minor units. "100", "100.5" and "100.50" are all accepted.
func ParseMoney(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errInvalidMoney
	}

	negative := false
	switch trimmed[0] {
	case '-':
		negative = true
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}

	whole, frac := trimmed, ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole, frac = trimmed[:idx], trimmed[idx+1:]
	}
	if whole == "" && frac == "" {
		return 0, errInvalidMoney
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: more than two fractional digits in %q", errInvalidMoney, value)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidMoney, value)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidMoney, value)
	}

	total := units*100 + cents
	if negative {
		total = -total
	}
	return Money(total), nil
}

// MoneyFromFloat rounds a currency-unit float to minor units, half away from zero.
// It is used only where formula evaluation crosses back into exact arithmetic.
func MoneyFromFloat(value float64) Money {
	if value >= 0 {
		return Money(int64(value*100 + 0.5))
	}
	return Money(-int64(-value*100 + 0.5))
}

// String renders the amount as a decimal string with exactly two fractional digits.
func (m Money) String() string {
	units := int64(m)
	sign := ""
	if units < 0 {
		sign = "-"
		units = -units
	}
	return fmt.Sprintf("%s%d.%02d", sign, units/100, units%100)
}

// Float converts to currency units for formula variable bindings.
func (m Money) Float() float64 {
	return float64(m) / 100
}

// Minor exposes the raw minor-unit value for serialization.
func (m Money) Minor() int64 {
	return int64(m)
}

// ApplyPercent computes m scaled by the given percentage, rounded half-up.
// Basis points keep the division exact to four decimal places of the rate
// before the single final rounding.
func (m Money) ApplyPercent(p Percent) Money {
	return Money(divHalfUp(int64(m)*int64(p), basisPointsPerUnit))
}

// MulQuantity multiplies by a decimal quantity, rounded half-up.
func (m Money) MulQuantity(q Quantity) Money {
	return Money(divHalfUp(int64(m)*int64(q), quantityScale))
}

// Clamp lifts the amount to the given floor when it falls below it.
func (m Money) Clamp(floor Money) Money {
	if m < floor {
		return floor
	}
	return m
}

// Quantity is a decimal quantity carried in thousandths so that fractional
// units of measure (e.g. 1.5 kg) multiply exactly against minor-unit prices.
type Quantity int64

const quantityScale = 1000

var errInvalidQuantity = errors.New("quantity: invalid decimal value")

// QuantityFromInt converts a whole-number quantity.
func QuantityFromInt(n int64) Quantity {
	return Quantity(n * quantityScale)
}

// ParseQuantity converts a decimal string with at most three fractional digits.
func ParseQuantity(value string) (Quantity, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errInvalidQuantity
	}

	whole, frac := trimmed, ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole, frac = trimmed[:idx], trimmed[idx+1:]
	}
	if len(frac) > 3 {
		return 0, fmt.Errorf("%w: more than three fractional digits in %q", errInvalidQuantity, value)
	}
	for len(frac) < 3 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidQuantity, value)
	}
	milli, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidQuantity, value)
	}
	return Quantity(units*quantityScale + milli), nil
}

// String renders the quantity without trailing fractional zeros.
func (q Quantity) String() string {
	units := int64(q)
	whole := units / quantityScale
	frac := units % quantityScale
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	s := fmt.Sprintf("%d.%03d", whole, frac)
	return strings.TrimRight(s, "0")
}

// Float converts to a plain decimal for formula variable bindings.
func (q Quantity) Float() float64 {
	return float64(q) / quantityScale
}

// IsPositive reports whether the quantity is greater than zero.
func (q Quantity) IsPositive() bool {
	return q > 0
}

// Percent is a percentage carried in basis points (1550 = 15.5%).
type Percent int64

const basisPointsPerUnit = 10_000

var errInvalidPercent = errors.New("percent: invalid decimal value")

// PercentFromInt converts a whole-number percentage.
func PercentFromInt(n int64) Percent {
	return Percent(n * 100)
}

// ParsePercent converts a decimal string with at most two fractional digits
// into basis points.
func ParsePercent(value string) (Percent, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errInvalidPercent
	}

	negative := false
	switch trimmed[0] {
	case '-':
		negative = true
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}

	whole, frac := trimmed, ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole, frac = trimmed[:idx], trimmed[idx+1:]
	}
	if whole == "" && frac == "" {
		return 0, errInvalidPercent
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: more than two fractional digits in %q", errInvalidPercent, value)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidPercent, value)
	}
	bps, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidPercent, value)
	}

	total := units*100 + bps
	if negative {
		total = -total
	}
	return Percent(total), nil
}

// String renders the percentage as a decimal, trimming trailing zeros ("15.5", "20").
func (p Percent) String() string {
	bps := int64(p)
	sign := ""
	if bps < 0 {
		sign = "-"
		bps = -bps
	}
	if bps%100 == 0 {
		return fmt.Sprintf("%s%d", sign, bps/100)
	}
	s := fmt.Sprintf("%s%d.%02d", sign, bps/100, bps%100)
	return strings.TrimRight(s, "0")
}

// Float converts to a plain percentage value (1550 -> 15.5).
func (p Percent) Float() float64 {
	return float64(p) / 100
}

// BasisPoints exposes the raw value for serialization.
func (p Percent) BasisPoints() int64 {
	return int64(p)
}

// divHalfUp divides rounding half away from zero. The denominator must be positive.
func divHalfUp(num, den int64) int64 {
	if num >= 0 {
		return (num + den/2) / den
	}
	return -((-num + den/2) / den)
}
