package di

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aksi-cleaners/pricing-api/internal/domain"
	"github.com/aksi-cleaners/pricing-api/internal/platform/config"
	"github.com/aksi-cleaners/pricing-api/internal/platform/requestctx"
	"github.com/aksi-cleaners/pricing-api/internal/repositories"
	"github.com/aksi-cleaners/pricing-api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete
// implementations are assembled via dependency injection in NewContainer.
type Services struct {
	Pricing services.PricingService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(cfg config.Config, reg repositories.Registry) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, cfg)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config) (Services, error) {
	surcharges, err := parseUrgencySurcharges(cfg.Pricing.UrgencySurcharges)
	if err != nil {
		return Services{}, err
	}
	discounts, err := parseDiscountPercents(cfg.Pricing.DiscountPercents)
	if err != nil {
		return Services{}, err
	}
	floor, err := domain.ParseMoney(cfg.Pricing.MinimumPrice)
	if err != nil {
		return Services{}, fmt.Errorf("parse minimum price %q: %w", cfg.Pricing.MinimumPrice, err)
	}

	modifierEngine, err := services.NewModifierEngine(services.ModifierEngineDeps{
		Formulas: services.NewFormulaCache(cfg.Pricing.FormulaCacheLimit),
		Logger:   contextLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build modifier engine: %w", err)
	}

	urgencyEngine, err := services.NewUrgencyEngine(services.UrgencyEngineDeps{
		Surcharges:               surcharges,
		NonExpeditableCategories: cfg.Pricing.NonExpeditableCategories,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build urgency engine: %w", err)
	}

	discountEngine, err := services.NewDiscountEngine(services.DiscountEngineDeps{
		Percentages:        discounts,
		ExcludedCategories: cfg.Pricing.DiscountExcludedCategories,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build discount engine: %w", err)
	}

	calculator, err := services.NewPriceCalculator(services.PriceCalculatorDeps{
		Modifiers: modifierEngine,
		Urgency:   urgencyEngine,
		Discount:  discountEngine,
		Floor:     floor,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build price calculator: %w", err)
	}

	pricingSvc, err := services.NewPricingService(services.PricingServiceDeps{
		Catalog:    reg.Catalog(),
		Modifiers:  reg.Modifiers(),
		Calculator: calculator,
		Discounts:  discountEngine,
		Logger:     contextLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing service: %w", err)
	}

	return Services{Pricing: pricingSvc}, nil
}

// parseUrgencySurcharges converts the configured tier tokens into typed rates.
// Unknown tiers fail loudly so misconfiguration never silently drops a surcharge.
func parseUrgencySurcharges(raw map[string]string) (map[domain.UrgencyTier]domain.Percent, error) {
	surcharges := make(map[domain.UrgencyTier]domain.Percent, len(raw))
	for token, value := range raw {
		tier, ok := domain.ParseUrgencyTier(token)
		if !ok || tier == domain.UrgencyNormal {
			return nil, fmt.Errorf("config: unknown urgency tier %q", token)
		}
		percent, err := domain.ParsePercent(value)
		if err != nil {
			return nil, fmt.Errorf("config: urgency surcharge for %s: %w", tier, err)
		}
		surcharges[tier] = percent
	}
	return surcharges, nil
}

func parseDiscountPercents(raw map[string]string) (map[domain.DiscountKind]domain.Percent, error) {
	percents := make(map[domain.DiscountKind]domain.Percent, len(raw))
	for token, value := range raw {
		kind, ok := domain.ParseDiscountKind(token)
		if !ok || kind == domain.DiscountNone || kind == domain.DiscountCustom {
			return nil, fmt.Errorf("config: unknown discount programme %q", token)
		}
		percent, err := domain.ParsePercent(value)
		if err != nil {
			return nil, fmt.Errorf("config: discount rate for %s: %w", kind, err)
		}
		percents[kind] = percent
	}
	return percents, nil
}

// contextLogger forwards service-level events to the request-scoped zap logger.
func contextLogger(ctx context.Context, msg string, fields map[string]any) {
	logger := requestctx.Logger(ctx)
	if logger == nil {
		return
	}
	zapFields := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		zapFields = append(zapFields, zap.Any(key, value))
	}
	logger.Info(msg, zapFields...)
}
