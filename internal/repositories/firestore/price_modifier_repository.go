package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aksi-cleaners/pricing-api/internal/domain"
	pfirestore "github.com/aksi-cleaners/pricing-api/internal/platform/firestore"
	"github.com/aksi-cleaners/pricing-api/internal/repositories"
)

const priceModifiersCollection = "priceModifiers"

// PriceModifierRepository loads modifier definitions. Documents are keyed by
// modifier code.
type PriceModifierRepository struct {
	base *pfirestore.BaseRepository[domain.Modifier]
}

var _ repositories.PriceModifierRepository = (*PriceModifierRepository)(nil)

// NewPriceModifierRepository constructs a Firestore-backed modifier repository.
func NewPriceModifierRepository(provider *pfirestore.Provider) (*PriceModifierRepository, error) {
	if provider == nil {
		return nil, errors.New("price modifier repository: firestore provider is required")
	}

	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.Modifier, error) {
		var doc priceModifierDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Modifier{}, err
		}
		doc.Code = snap.Ref.ID
		return decodePriceModifierDocument(doc), nil
	}

	base := pfirestore.NewBaseRepository[domain.Modifier](provider, priceModifiersCollection, decoder)
	return &PriceModifierRepository{base: base}, nil
}

// FindByCodes resolves modifier codes in request order. Unknown codes fail the
// whole lookup so a calculation never silently drops a selected modifier.
func (r *PriceModifierRepository) FindByCodes(ctx context.Context, modifierCodes []string) ([]domain.Modifier, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("price modifier repository not initialised")
	}
	if len(modifierCodes) == 0 {
		return nil, nil
	}

	modifiers := make([]domain.Modifier, 0, len(modifierCodes))
	for _, code := range modifierCodes {
		code = strings.TrimSpace(code)
		if code == "" {
			return nil, pfirestore.WrapError("price_modifiers.find_by_codes", status.Error(codes.InvalidArgument, "modifier code is empty"))
		}
		doc, err := r.base.Get(ctx, code)
		if err != nil {
			return nil, pfirestore.WrapError("price_modifiers.find_by_codes", err)
		}
		modifiers = append(modifiers, doc.Data)
	}
	return modifiers, nil
}

// ListByCategory returns active modifiers applicable to a category, generally
// applicable ones first, then by priority. Category restrictions cannot be
// expressed as a single Firestore predicate, so filtering happens in memory
// over the active set.
func (r *PriceModifierRepository) ListByCategory(ctx context.Context, categoryCode string) ([]domain.Modifier, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("price modifier repository not initialised")
	}
	categoryCode = strings.TrimSpace(categoryCode)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true)
	})
	if err != nil {
		return nil, pfirestore.WrapError("price_modifiers.list_by_category", err)
	}

	modifiers := make([]domain.Modifier, 0, len(docs))
	for _, doc := range docs {
		mod := doc.Data
		if categoryCode == "" {
			if len(mod.Categories) != 0 {
				continue
			}
		} else if !mod.AppliesTo(categoryCode) {
			continue
		}
		modifiers = append(modifiers, mod)
	}
	sort.SliceStable(modifiers, func(i, j int) bool {
		gi, gj := len(modifiers[i].Categories) == 0, len(modifiers[j].Categories) == 0
		if gi != gj {
			return gi
		}
		if modifiers[i].Priority != modifiers[j].Priority {
			return modifiers[i].Priority < modifiers[j].Priority
		}
		return modifiers[i].Code < modifiers[j].Code
	})
	return modifiers, nil
}

type priceModifierDocument struct {
	Code       string   `firestore:"-"`
	Name       string   `firestore:"name"`
	Kind       string   `firestore:"kind"`
	Percent    *int64   `firestore:"percentBps,omitempty"`
	Amount     *int64   `firestore:"amountMinor,omitempty"`
	MinPercent *int64   `firestore:"minPercentBps,omitempty"`
	MaxPercent *int64   `firestore:"maxPercentBps,omitempty"`
	Formula    string   `firestore:"formula,omitempty"`
	Priority   int      `firestore:"priority"`
	Categories []string `firestore:"categories,omitempty"`
	Active     bool     `firestore:"active"`
}

func decodePriceModifierDocument(doc priceModifierDocument) domain.Modifier {
	mod := domain.Modifier{
		Code:       doc.Code,
		Name:       doc.Name,
		Kind:       domain.ModifierKind(doc.Kind),
		Formula:    doc.Formula,
		Priority:   doc.Priority,
		Categories: doc.Categories,
		Active:     doc.Active,
	}
	if doc.Percent != nil {
		pct := domain.Percent(*doc.Percent)
		mod.Percent = &pct
	}
	if doc.Amount != nil {
		amount := domain.Money(*doc.Amount)
		mod.Amount = &amount
	}
	if doc.MinPercent != nil {
		pct := domain.Percent(*doc.MinPercent)
		mod.MinPercent = &pct
	}
	if doc.MaxPercent != nil {
		pct := domain.Percent(*doc.MaxPercent)
		mod.MaxPercent = &pct
	}
	return mod
}
