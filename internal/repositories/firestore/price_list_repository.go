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

const priceListCollection = "priceListItems"

// PriceListRepository resolves catalog entries from the price list collection.
type PriceListRepository struct {
	base *pfirestore.BaseRepository[domain.CatalogItem]
}

var _ repositories.CatalogRepository = (*PriceListRepository)(nil)

// NewPriceListRepository constructs a Firestore-backed catalog repository.
func NewPriceListRepository(provider *pfirestore.Provider) (*PriceListRepository, error) {
	if provider == nil {
		return nil, errors.New("price list repository: firestore provider is required")
	}

	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.CatalogItem, error) {
		var doc priceListDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CatalogItem{}, err
		}
		return decodePriceListDocument(doc), nil
	}

	base := pfirestore.NewBaseRepository[domain.CatalogItem](provider, priceListCollection, decoder)
	return &PriceListRepository{base: base}, nil
}

// FindItem returns the entry for a category code and item name.
func (r *PriceListRepository) FindItem(ctx context.Context, categoryCode, name string) (domain.CatalogItem, error) {
	if r == nil || r.base == nil {
		return domain.CatalogItem{}, errors.New("price list repository not initialised")
	}
	categoryCode = strings.TrimSpace(categoryCode)
	name = strings.TrimSpace(name)
	if categoryCode == "" || name == "" {
		return domain.CatalogItem{}, errors.New("price list repository: category code and name are required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("categoryCode", "==", categoryCode).Where("name", "==", name).Limit(1)
	})
	if err != nil {
		return domain.CatalogItem{}, pfirestore.WrapError("price_list.find_item", err)
	}
	if len(docs) == 0 {
		return domain.CatalogItem{}, pfirestore.WrapError("price_list.find_item", status.Error(codes.NotFound, "price list item not found"))
	}
	return docs[0].Data, nil
}

// ListCategories returns the distinct category codes present in the price list.
func (r *PriceListRepository) ListCategories(ctx context.Context) ([]string, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("price list repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q
	})
	if err != nil {
		return nil, pfirestore.WrapError("price_list.list_categories", err)
	}

	seen := make(map[string]struct{}, len(docs))
	codes := make([]string, 0, len(docs))
	for _, doc := range docs {
		code := doc.Data.CategoryCode
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

type priceListDocument struct {
	CategoryCode       string           `firestore:"categoryCode"`
	Name               string           `firestore:"name"`
	UnitOfMeasure      string           `firestore:"unitOfMeasure"`
	BasePrice          int64            `firestore:"basePrice"`
	ColorPrices        map[string]int64 `firestore:"colorPrices"`
	ExpressUnavailable bool             `firestore:"expressUnavailable"`
}

func decodePriceListDocument(doc priceListDocument) domain.CatalogItem {
	item := domain.CatalogItem{
		CategoryCode:       doc.CategoryCode,
		Name:               doc.Name,
		UnitOfMeasure:      doc.UnitOfMeasure,
		BasePrice:          domain.Money(doc.BasePrice),
		ExpressUnavailable: doc.ExpressUnavailable,
	}
	if len(doc.ColorPrices) > 0 {
		item.ColorPrices = make(map[string]domain.Money, len(doc.ColorPrices))
		for color, price := range doc.ColorPrices {
			item.ColorPrices[strings.ToLower(color)] = domain.Money(price)
		}
	}
	return item
}
