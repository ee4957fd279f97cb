package repositories

import (
	"context"

	"github.com/aksi-cleaners/pricing-api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Modifiers() PriceModifierRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository resolves price-list entries.
type CatalogRepository interface {
	// FindItem returns the catalog entry for a category code and item name.
	FindItem(ctx context.Context, categoryCode, name string) (domain.CatalogItem, error)
	// ListCategories returns the distinct category codes present in the price list.
	ListCategories(ctx context.Context) ([]string, error)
}

// PriceModifierRepository loads price modifier definitions.
type PriceModifierRepository interface {
	// FindByCodes resolves the given modifier codes, preserving request order.
	// A missing code surfaces as an error rather than a silent omission.
	FindByCodes(ctx context.Context, codes []string) ([]domain.Modifier, error)
	// ListByCategory returns active modifiers usable for a category. An empty
	// category returns only modifiers with no category restriction.
	ListByCategory(ctx context.Context, categoryCode string) ([]domain.Modifier, error)
}

// HealthRepository aggregates dependency probes for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
