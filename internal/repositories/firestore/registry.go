package firestore

import (
	"context"
	"errors"
	"time"

	"google.golang.org/api/iterator"

	pfirestore "github.com/aksi-cleaners/pricing-api/internal/platform/firestore"
	"github.com/aksi-cleaners/pricing-api/internal/repositories"
)

const healthCheckTimeout = 2 * time.Second

// Registry wires the Firestore-backed repositories behind the repositories.Registry contract.
type Registry struct {
	provider  *pfirestore.Provider
	catalog   *PriceListRepository
	modifiers *PriceModifierRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the repository set backed by the shared Firestore provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	catalog, err := NewPriceListRepository(provider)
	if err != nil {
		return nil, err
	}
	modifiers, err := NewPriceModifierRepository(provider)
	if err != nil {
		return nil, err
	}

	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: healthCheckTimeout,
			Check: func(ctx context.Context) error {
				return pingFirestore(ctx, provider)
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		catalog:   catalog,
		modifiers: modifiers,
		health:    health,
	}, nil
}

// Catalog returns the price list repository.
func (r *Registry) Catalog() repositories.CatalogRepository {
	return r.catalog
}

// Modifiers returns the price modifier repository.
func (r *Registry) Modifiers() repositories.PriceModifierRepository {
	return r.modifiers
}

// Health returns the readiness probe repository.
func (r *Registry) Health() repositories.HealthRepository {
	return r.health
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func pingFirestore(ctx context.Context, provider *pfirestore.Provider) error {
	client, err := provider.Client(ctx)
	if err != nil {
		return err
	}

	iter := client.Collections(ctx)
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return pfirestore.WrapError("health.ping", err)
	}
	return nil
}
