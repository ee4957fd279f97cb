package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aksi-cleaners/pricing-api/internal/domain"
	"github.com/aksi-cleaners/pricing-api/internal/platform/httpx"
	"github.com/aksi-cleaners/pricing-api/internal/repositories"
	"github.com/aksi-cleaners/pricing-api/internal/services"
)

const maxPricingRequestBody = 64 * 1024

// PricingHandlers exposes the calculation and listing endpoints.
type PricingHandlers struct {
	pricing services.PricingService
}

// NewPricingHandlers constructs a pricing handler set.
func NewPricingHandlers(svc services.PricingService) *PricingHandlers {
	return &PricingHandlers{pricing: svc}
}

// Routes registers the pricing endpoints beneath /pricing.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/calculations", h.calculate)
	r.Get("/modifiers", h.listModifiers)
	r.Get("/discounts", h.listDiscounts)
	r.Get("/categories", h.listCategories)
}

type calculationRequestPayload struct {
	Items    []calculationItemPayload `json:"items"`
	Urgency  string                   `json:"urgency,omitempty"`
	Discount *discountRequestPayload  `json:"discount,omitempty"`
}

type calculationItemPayload struct {
	CategoryCode string                     `json:"categoryCode"`
	ItemName     string                     `json:"itemName"`
	Color        string                     `json:"color,omitempty"`
	Quantity     string                     `json:"quantity"`
	Modifiers    []modifierSelectionPayload `json:"modifiers,omitempty"`
}

type modifierSelectionPayload struct {
	Code  string `json:"code"`
	Value string `json:"value,omitempty"`
}

type discountRequestPayload struct {
	Type               string   `json:"type"`
	Percent            string   `json:"percent,omitempty"`
	ExcludedCategories []string `json:"excludedCategories,omitempty"`
}

type calculationResponsePayload struct {
	CalculationID string                   `json:"calculationId"`
	Items         []calculationItemResult  `json:"items"`
	Totals        calculationTotalsPayload `json:"totals"`
	Warnings      []string                 `json:"warnings,omitempty"`
}

type calculationItemResult struct {
	CategoryCode        string                   `json:"categoryCode"`
	ItemName            string                   `json:"itemName"`
	Color               string                   `json:"color,omitempty"`
	Quantity            string                   `json:"quantity"`
	BasePrice           string                   `json:"basePrice"`
	AmountAfterQuantity string                   `json:"amountAfterQuantity"`
	Steps               []calculationStepPayload `json:"steps"`
	FinalPrice          string                   `json:"finalPrice"`
	Warnings            []string                 `json:"warnings,omitempty"`
}

type calculationStepPayload struct {
	Label        string `json:"label"`
	Kind         string `json:"kind"`
	ModifierCode string `json:"modifierCode,omitempty"`
	PriceBefore  string `json:"priceBefore"`
	PriceAfter   string `json:"priceAfter"`
	Delta        string `json:"delta"`
}

type calculationTotalsPayload struct {
	ItemsSubtotal            string `json:"itemsSubtotal"`
	UrgencyAmount            string `json:"urgencyAmount"`
	DiscountApplicableAmount string `json:"discountApplicableAmount"`
	DiscountAmount           string `json:"discountAmount"`
	Total                    string `json:"total"`
}

func (h *PricingHandlers) calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "pricing service not available", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxPricingRequestBody)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var payload calculationRequestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	req, err := buildCalculationRequest(payload)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}

	resp, err := h.pricing.CalculatePrice(ctx, req)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCalculationResponse(resp))
}

func buildCalculationRequest(payload calculationRequestPayload) (services.PriceCalculationRequest, error) {
	var req services.PriceCalculationRequest

	urgency, ok := domain.ParseUrgencyTier(payload.Urgency)
	if !ok {
		return req, httpValidationError("urgency", "unknown urgency tier %q", payload.Urgency)
	}
	req.Urgency = urgency

	if payload.Discount != nil {
		kind, ok := domain.ParseDiscountKind(payload.Discount.Type)
		if !ok {
			return req, httpValidationError("discount.type", "unknown discount type %q", payload.Discount.Type)
		}
		spec := domain.DiscountSpec{Kind: kind, ExcludedCategories: payload.Discount.ExcludedCategories}
		if value := strings.TrimSpace(payload.Discount.Percent); value != "" {
			pct, err := domain.ParsePercent(value)
			if err != nil {
				return req, httpValidationError("discount.percent", "invalid percentage %q", value)
			}
			spec.Percent = &pct
		}
		req.Discount = spec
	}

	req.Items = make([]services.CalculationItemRequest, 0, len(payload.Items))
	for _, item := range payload.Items {
		quantity, err := domain.ParseQuantity(item.Quantity)
		if err != nil {
			return req, httpValidationError("quantity", "invalid quantity %q", item.Quantity)
		}

		selections := make([]services.ModifierSelection, 0, len(item.Modifiers))
		for _, sel := range item.Modifiers {
			selection := services.ModifierSelection{Code: sel.Code}
			if value := strings.TrimSpace(sel.Value); value != "" {
				pct, err := domain.ParsePercent(value)
				if err != nil {
					return req, httpValidationError("modifiers", "invalid modifier value %q", value)
				}
				selection.Value = &pct
			}
			selections = append(selections, selection)
		}

		req.Items = append(req.Items, services.CalculationItemRequest{
			CategoryCode: item.CategoryCode,
			ItemName:     item.ItemName,
			Color:        item.Color,
			Quantity:     quantity,
			Modifiers:    selections,
		})
	}
	return req, nil
}

func buildCalculationResponse(resp services.PriceCalculationResponse) calculationResponsePayload {
	payload := calculationResponsePayload{
		CalculationID: resp.CalculationID,
		Items:         make([]calculationItemResult, 0, len(resp.Items)),
		Totals: calculationTotalsPayload{
			ItemsSubtotal:            resp.Totals.ItemsSubtotal.String(),
			UrgencyAmount:            resp.Totals.UrgencyAmount.String(),
			DiscountApplicableAmount: resp.Totals.DiscountApplicableAmount.String(),
			DiscountAmount:           resp.Totals.DiscountAmount.String(),
			Total:                    resp.Totals.Total.String(),
		},
		Warnings: resp.Warnings,
	}

	for _, item := range resp.Items {
		steps := make([]calculationStepPayload, 0, len(item.Result.Steps))
		for _, step := range item.Result.Steps {
			steps = append(steps, calculationStepPayload{
				Label:        step.Label,
				Kind:         string(step.Kind),
				ModifierCode: step.ModifierCode,
				PriceBefore:  step.PriceBefore.String(),
				PriceAfter:   step.PriceAfter.String(),
				Delta:        step.Delta.String(),
			})
		}
		payload.Items = append(payload.Items, calculationItemResult{
			CategoryCode:        item.CategoryCode,
			ItemName:            item.ItemName,
			Color:               item.Color,
			Quantity:            item.Result.Quantity.String(),
			BasePrice:           item.Result.BasePrice.String(),
			AmountAfterQuantity: item.Result.AmountAfterQuantity.String(),
			Steps:               steps,
			FinalPrice:          item.Result.FinalPrice.String(),
			Warnings:            item.Result.Warnings,
		})
	}
	return payload
}

type modifierListingPayload struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Percent    string   `json:"percent,omitempty"`
	Amount     string   `json:"amount,omitempty"`
	MinPercent string   `json:"minPercent,omitempty"`
	MaxPercent string   `json:"maxPercent,omitempty"`
	Priority   int      `json:"priority"`
	Categories []string `json:"categories,omitempty"`
}

func (h *PricingHandlers) listModifiers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "pricing service not available", http.StatusServiceUnavailable))
		return
	}

	category := strings.TrimSpace(r.URL.Query().Get("category"))
	modifiers, err := h.pricing.ListModifiers(ctx, category)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}

	payload := make([]modifierListingPayload, 0, len(modifiers))
	for _, mod := range modifiers {
		entry := modifierListingPayload{
			Code:       mod.Code,
			Name:       mod.Name,
			Kind:       string(mod.Kind),
			Priority:   mod.Priority,
			Categories: mod.Categories,
		}
		if mod.Percent != nil {
			entry.Percent = mod.Percent.String()
		}
		if mod.Amount != nil {
			entry.Amount = mod.Amount.String()
		}
		if mod.MinPercent != nil {
			entry.MinPercent = mod.MinPercent.String()
		}
		if mod.MaxPercent != nil {
			entry.MaxPercent = mod.MaxPercent.String()
		}
		payload = append(payload, entry)
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"modifiers": payload})
}

type discountListingPayload struct {
	Type               string   `json:"type"`
	Percent            string   `json:"percent"`
	ExcludedCategories []string `json:"excludedCategories,omitempty"`
}

func (h *PricingHandlers) listDiscounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "pricing service not available", http.StatusServiceUnavailable))
		return
	}

	discounts, err := h.pricing.ListDiscounts(ctx)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}

	payload := make([]discountListingPayload, 0, len(discounts))
	for _, d := range discounts {
		payload = append(payload, discountListingPayload{
			Type:               string(d.Kind),
			Percent:            d.Percent.String(),
			ExcludedCategories: d.ExcludedCategories,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"discounts": payload})
}

func (h *PricingHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "pricing service not available", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.pricing.ListCategories(ctx)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"categories": categories})
}

func httpValidationError(field, format string, args ...any) error {
	return &services.ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// writePricingError maps service errors onto the JSON error envelope.
func writePricingError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		vErr    *services.ValidationError
		sErr    *services.FormulaSyntaxError
		fErr    *services.FormulaEvaluationError
		repoErr repositories.RepositoryError
	)
	switch {
	case errors.As(err, &vErr):
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", vErr.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"field": vErr.Field}))
	case errors.Is(err, services.ErrPriceListItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("item_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrModifierNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("modifier_not_found", err.Error(), http.StatusNotFound))
	case errors.As(err, &sErr):
		// A formula that does not compile is broken catalog data, not a bad request.
		httpx.WriteError(ctx, w, httpx.NewError("formula_invalid", "price modifier formula is invalid", http.StatusInternalServerError).
			WithDetails(map[string]any{"position": sErr.Position}))
	case errors.As(err, &fErr):
		httpx.WriteError(ctx, w, httpx.NewError("formula_error", fErr.Error(), http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"modifier": fErr.ModifierCode}))
	case errors.As(err, &repoErr) && repoErr.IsUnavailable():
		httpx.WriteError(ctx, w, httpx.NewError("dependency_unavailable", "pricing backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process pricing request", http.StatusInternalServerError))
	}
}
