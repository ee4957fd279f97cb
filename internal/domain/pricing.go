package domain

import "strings"

// CatalogItem is a price-list entry resolved from the catalog. Immutable for
// the duration of a calculation.
type CatalogItem struct {
	CategoryCode       string
	Name               string
	UnitOfMeasure      string
	BasePrice          Money
	ColorPrices        map[string]Money
	ExpressUnavailable bool
}

// PriceForColor returns the color-specific price when an override exists for
// the given color token, falling back to the base price otherwise.
func (i CatalogItem) PriceForColor(color string) Money {
	token := strings.ToLower(strings.TrimSpace(color))
	if token == "" {
		return i.BasePrice
	}
	if price, ok := i.ColorPrices[token]; ok {
		return price
	}
	return i.BasePrice
}

// ModifierKind discriminates the closed set of price modifier behaviours.
type ModifierKind string

const (
	ModifierPercentage      ModifierKind = "PERCENTAGE"
	ModifierFixedAmount     ModifierKind = "FIXED_AMOUNT"
	ModifierRangePercentage ModifierKind = "RANGE_PERCENTAGE"
	ModifierFormula         ModifierKind = "FORMULA"
)

// Modifier is a price adjustment rule loaded from the modifier catalog.
// Exactly one of the kind-specific value fields is meaningful:
// Percent for PERCENTAGE, Amount for FIXED_AMOUNT, MinPercent/MaxPercent for
// RANGE_PERCENTAGE, Formula for FORMULA.
type Modifier struct {
	Code       string
	Name       string
	Kind       ModifierKind
	Percent    *Percent
	Amount     *Money
	MinPercent *Percent
	MaxPercent *Percent
	Formula    string
	Priority   int
	Categories []string
	Active     bool
}

// AppliesTo reports whether the modifier may be used for the category. An
// empty category list means the modifier applies everywhere.
func (m Modifier) AppliesTo(categoryCode string) bool {
	if len(m.Categories) == 0 {
		return true
	}
	for _, code := range m.Categories {
		if code == categoryCode {
			return true
		}
	}
	return false
}

// UrgencyTier selects the expedited-service level for a calculation.
type UrgencyTier string

const (
	UrgencyNormal     UrgencyTier = "NORMAL"
	UrgencyExpress48h UrgencyTier = "EXPRESS_48H"
	UrgencyExpress24h UrgencyTier = "EXPRESS_24H"
)

// ParseUrgencyTier normalises a wire token into a tier. Empty input means Normal.
func ParseUrgencyTier(value string) (UrgencyTier, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", string(UrgencyNormal):
		return UrgencyNormal, true
	case string(UrgencyExpress48h):
		return UrgencyExpress48h, true
	case string(UrgencyExpress24h):
		return UrgencyExpress24h, true
	}
	return UrgencyNormal, false
}

// DiscountKind identifies the discount programme requested for an order.
type DiscountKind string

const (
	DiscountNone        DiscountKind = "NONE"
	DiscountEvercard    DiscountKind = "EVERCARD"
	DiscountMilitary    DiscountKind = "MILITARY"
	DiscountSocialMedia DiscountKind = "SOCIAL_MEDIA"
	DiscountCustom      DiscountKind = "CUSTOM"
)

// ParseDiscountKind normalises a wire token into a kind. Empty input means None.
func ParseDiscountKind(value string) (DiscountKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", string(DiscountNone):
		return DiscountNone, true
	case string(DiscountEvercard):
		return DiscountEvercard, true
	case string(DiscountMilitary):
		return DiscountMilitary, true
	case string(DiscountSocialMedia):
		return DiscountSocialMedia, true
	case string(DiscountCustom):
		return DiscountCustom, true
	}
	return DiscountNone, false
}

// DiscountSpec describes the discount requested for a calculation. Percent is
// required for the Custom kind and ignored otherwise; ExcludedCategories adds
// request-level exclusions on top of the engine's configured ones.
type DiscountSpec struct {
	Kind               DiscountKind
	Percent            *Percent
	ExcludedCategories []string
}

// StepKind labels the pipeline stage a calculation step belongs to.
type StepKind string

const (
	StepBasePrice StepKind = "BASE_PRICE"
	StepQuantity  StepKind = "QUANTITY"
	StepModifier  StepKind = "MODIFIER"
	StepUrgency   StepKind = "URGENCY"
	StepDiscount  StepKind = "DISCOUNT"
	StepFloor     StepKind = "FLOOR"
)

// CalculationStep is one entry of the audit trail: the amount before and after
// a single adjustment, plus its delta.
type CalculationStep struct {
	Label        string
	Kind         StepKind
	ModifierCode string
	PriceBefore  Money
	PriceAfter   Money
	Delta        Money
}

// CalculationResult is the full outcome of pricing one item. Steps form an
// unbroken chain: each step's PriceAfter equals the next step's PriceBefore,
// and the last step's PriceAfter equals FinalPrice. The BASE_PRICE and
// QUANTITY steps restate how AmountAfterQuantity was reached, so FinalPrice
// equals AmountAfterQuantity plus the deltas of the adjustment steps only
// (MODIFIER, URGENCY, DISCOUNT and FLOOR).
type CalculationResult struct {
	BasePrice           Money
	Quantity            Quantity
	AmountAfterQuantity Money
	Steps               []CalculationStep
	FinalPrice          Money
	Warnings            []string
}
