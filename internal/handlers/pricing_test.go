package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aksi-cleaners/pricing-api/internal/domain"
	"github.com/aksi-cleaners/pricing-api/internal/services"
)

type stubPricingService struct {
	calcResp   services.PriceCalculationResponse
	calcErr    error
	lastReq    services.PriceCalculationRequest
	modifiers  []domain.Modifier
	discounts  []services.DiscountListing
	categories []string
}

func (s *stubPricingService) CalculatePrice(_ context.Context, req services.PriceCalculationRequest) (services.PriceCalculationResponse, error) {
	s.lastReq = req
	return s.calcResp, s.calcErr
}

func (s *stubPricingService) ListModifiers(context.Context, string) ([]domain.Modifier, error) {
	return s.modifiers, nil
}

func (s *stubPricingService) ListDiscounts(context.Context) ([]services.DiscountListing, error) {
	return s.discounts, nil
}

func (s *stubPricingService) ListCategories(context.Context) ([]string, error) {
	return s.categories, nil
}

func newPricingRouter(svc services.PricingService) http.Handler {
	return NewRouter(WithPricingRoutes(NewPricingHandlers(svc).Routes))
}

func TestPricingCalculateEndpoint(t *testing.T) {
	stub := &stubPricingService{
		calcResp: services.PriceCalculationResponse{
			CalculationID: "01TESTCALCULATION",
			Items: []services.CalculationItemResult{
				{
					CategoryCode: "CLOTHING",
					ItemName:     "Coat",
					Result: domain.CalculationResult{
						BasePrice:           10000,
						Quantity:            domain.QuantityFromInt(2),
						AmountAfterQuantity: 20000,
						Steps: []domain.CalculationStep{
							{Label: "Base price", Kind: domain.StepBasePrice, PriceAfter: 10000, Delta: 10000},
							{Label: "Quantity x 2", Kind: domain.StepQuantity, PriceBefore: 10000, PriceAfter: 20000, Delta: 10000},
						},
						FinalPrice: 33750,
					},
				},
			},
			Totals: services.CalculationTotals{Total: 33750},
		},
	}
	router := newPricingRouter(stub)

	body := `{
		"items": [{
			"categoryCode": "CLOTHING",
			"itemName": "Coat",
			"quantity": "2",
			"modifiers": [{"code": "hand_wash"}, {"code": "wear_level", "value": "50"}]
		}],
		"urgency": "EXPRESS_48H",
		"discount": {"type": "EVERCARD"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing/calculations", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp calculationResponsePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CalculationID != "01TESTCALCULATION" {
		t.Fatalf("unexpected calculation id %q", resp.CalculationID)
	}
	if resp.Totals.Total != "337.50" {
		t.Fatalf("want total 337.50, got %q", resp.Totals.Total)
	}
	if resp.Items[0].FinalPrice != "337.50" {
		t.Fatalf("want item final 337.50, got %q", resp.Items[0].FinalPrice)
	}

	// The decoded service request must carry the parsed wire values.
	if stub.lastReq.Urgency != domain.UrgencyExpress48h {
		t.Fatalf("urgency not parsed: %v", stub.lastReq.Urgency)
	}
	if stub.lastReq.Discount.Kind != domain.DiscountEvercard {
		t.Fatalf("discount not parsed: %v", stub.lastReq.Discount.Kind)
	}
	item := stub.lastReq.Items[0]
	if item.Quantity != domain.QuantityFromInt(2) {
		t.Fatalf("quantity not parsed: %v", item.Quantity)
	}
	if item.Modifiers[1].Value == nil || *item.Modifiers[1].Value != domain.PercentFromInt(50) {
		t.Fatalf("range value not parsed: %+v", item.Modifiers[1])
	}
}

func TestPricingCalculateValidationFailures(t *testing.T) {
	router := newPricingRouter(&stubPricingService{})

	cases := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "invalid json", body: "{"},
		{name: "bad quantity", body: `{"items":[{"categoryCode":"C","itemName":"I","quantity":"abc"}]}`},
		{name: "bad urgency", body: `{"items":[{"categoryCode":"C","itemName":"I","quantity":"1"}],"urgency":"YESTERDAY"}`},
		{name: "bad discount type", body: `{"items":[{"categoryCode":"C","itemName":"I","quantity":"1"}],"discount":{"type":"MAGIC"}}`},
		{name: "bad modifier value", body: `{"items":[{"categoryCode":"C","itemName":"I","quantity":"1","modifiers":[{"code":"m","value":"x"}]}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing/calculations", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestPricingCalculateErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "item not found", err: services.ErrPriceListItemNotFound, status: http.StatusNotFound, code: "item_not_found"},
		{name: "modifier not found", err: services.ErrModifierNotFound, status: http.StatusNotFound, code: "modifier_not_found"},
		{name: "validation", err: &services.ValidationError{Field: "quantity", Reason: "must be positive"}, status: http.StatusBadRequest, code: "validation_failed"},
		{name: "formula syntax", err: &services.FormulaSyntaxError{Formula: "price +* 2", Position: 7, Message: "unexpected token"}, status: http.StatusInternalServerError, code: "formula_invalid"},
		{name: "formula evaluation", err: &services.FormulaEvaluationError{ModifierCode: "bad"}, status: http.StatusUnprocessableEntity, code: "formula_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newPricingRouter(&stubPricingService{calcErr: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing/calculations",
				strings.NewReader(`{"items":[{"categoryCode":"C","itemName":"I","quantity":"1"}]}`))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tc.code) {
				t.Fatalf("expected error code %q in body: %s", tc.code, rr.Body.String())
			}
		})
	}
}

func TestPricingListEndpoints(t *testing.T) {
	pct := domain.PercentFromInt(20)
	stub := &stubPricingService{
		modifiers: []domain.Modifier{
			{Code: "hand_wash", Name: "Hand wash", Kind: domain.ModifierPercentage, Percent: &pct, Priority: 1, Active: true},
		},
		discounts: []services.DiscountListing{
			{Kind: domain.DiscountEvercard, Percent: domain.PercentFromInt(10), ExcludedCategories: []string{"LAUNDRY"}},
		},
		categories: []string{"CLOTHING", "LAUNDRY"},
	}
	router := newPricingRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pricing/modifiers?category=CLOTHING", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("modifiers: expected 200, got %d", rr.Code)
	}
	var modifiersResp struct {
		Modifiers []modifierListingPayload `json:"modifiers"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &modifiersResp); err != nil {
		t.Fatalf("decode modifiers: %v", err)
	}
	if len(modifiersResp.Modifiers) != 1 || modifiersResp.Modifiers[0].Percent != "20" {
		t.Fatalf("unexpected modifiers payload: %+v", modifiersResp.Modifiers)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/pricing/discounts", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("discounts: expected 200, got %d", rr.Code)
	}
	var discountsResp struct {
		Discounts []discountListingPayload `json:"discounts"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &discountsResp); err != nil {
		t.Fatalf("decode discounts: %v", err)
	}
	if len(discountsResp.Discounts) != 1 || discountsResp.Discounts[0].Percent != "10" {
		t.Fatalf("unexpected discounts payload: %+v", discountsResp.Discounts)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/pricing/categories", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("categories: expected 200, got %d", rr.Code)
	}
}
