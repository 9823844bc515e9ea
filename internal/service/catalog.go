package service

import (
	"context"
	"time"

	"marketplace-checkout/internal/models"
	"marketplace-checkout/internal/util"

	"go.uber.org/zap"
)

// CatalogStore is the read surface for catalog browsing.
type CatalogStore interface {
	ListActiveProducts(ctx context.Context) ([]models.Product, error)
	GetStoresByIDs(ctx context.Context, ids []int64) ([]models.Store, error)
	GetCustomerCityID(ctx context.Context, customerID int64) (int64, error)
}

// CatalogService lists products through the visibility resolver. Anonymous
// callers see everything; authenticated callers with a resolvable city see
// LOCAL products only for their own city.
type CatalogService struct {
	store        CatalogStore
	cities       CityCache
	cityCacheTTL time.Duration
	logger       *zap.Logger
}

// NewCatalogService creates a new catalog service. cities may be nil.
func NewCatalogService(store CatalogStore, cities CityCache, cityCacheTTL time.Duration) *CatalogService {
	return &CatalogService{
		store:        store,
		cities:       cities,
		cityCacheTTL: cityCacheTTL,
		logger:       util.GetLogger(),
	}
}

// ListVisibleProducts returns the active products visible to the caller.
// customerID is 0 for anonymous browsing.
func (s *CatalogService) ListVisibleProducts(ctx context.Context, customerID int64, authenticated bool) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListVisibleProducts")
	defer span.End()

	products, err := s.store.ListActiveProducts(ctx)
	if err != nil {
		return nil, err
	}

	var cityID int64
	if authenticated {
		cityID, err = s.resolveCity(ctx, customerID)
		if err != nil {
			return nil, err
		}
	}

	storeIDs := make([]int64, 0, len(products))
	seen := make(map[int64]bool, len(products))
	for _, p := range products {
		if !seen[p.StoreID] {
			seen[p.StoreID] = true
			storeIDs = append(storeIDs, p.StoreID)
		}
	}

	stores, err := s.store.GetStoresByIDs(ctx, storeIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.Store, len(stores))
	for i := range stores {
		byID[stores[i].ID] = &stores[i]
	}

	return FilterVisible(products, byID, cityID, authenticated), nil
}

func (s *CatalogService) resolveCity(ctx context.Context, customerID int64) (int64, error) {
	if s.cities != nil {
		cityID, hit, err := s.cities.GetCustomerCity(ctx, customerID)
		if err != nil {
			s.logger.Warn("City cache read failed, falling back to storage",
				zap.Int64("customer_id", customerID),
				zap.Error(err))
		} else if hit {
			return cityID, nil
		}
	}

	cityID, err := s.store.GetCustomerCityID(ctx, customerID)
	if err != nil {
		return 0, err
	}

	if s.cities != nil {
		if err := s.cities.SetCustomerCity(ctx, customerID, cityID, s.cityCacheTTL); err != nil {
			s.logger.Warn("City cache write failed",
				zap.Int64("customer_id", customerID),
				zap.Error(err))
		}
	}
	return cityID, nil
}
