package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace-checkout/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCatalog(store *memStore) {
	store.addStore(models.Store{ID: 1, CityID: int64p(10)})
	store.addStore(models.Store{ID: 2, CityID: int64p(20)})

	store.addProduct(models.Product{ID: 1, StoreID: 1, Name: "Global", VisibilityScope: models.VisibilityGlobal})
	store.addProduct(models.Product{ID: 2, StoreID: 1, Name: "Local city 10", VisibilityScope: models.VisibilityLocal})
	store.addProduct(models.Product{ID: 3, StoreID: 2, Name: "Local city 30", VisibilityScope: models.VisibilityLocal, CityID: int64p(30)})
	store.addProduct(models.Product{ID: 4, StoreID: 2, Name: "Inactive", Status: models.ProductStatusInactive})
}

func productIDs(products []models.Product) []int64 {
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestListVisibleProductsAnonymous(t *testing.T) {
	store := newMemStore()
	seedCatalog(store)
	svc := NewCatalogService(store, nil, 0)

	products, err := svc.ListVisibleProducts(context.Background(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, productIDs(products))
}

func TestListVisibleProductsByCity(t *testing.T) {
	store := newMemStore()
	seedCatalog(store)
	store.addAddress(models.Address{CustomerID: 100, CityID: int64p(10), IsDefault: true})
	store.addAddress(models.Address{CustomerID: 200, CityID: int64p(30), IsDefault: true})
	svc := NewCatalogService(store, nil, 0)

	products, err := svc.ListVisibleProducts(context.Background(), 100, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, productIDs(products))

	products, err = svc.ListVisibleProducts(context.Background(), 200, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, productIDs(products))
}

func TestListVisibleProductsNoCityFailsOpen(t *testing.T) {
	store := newMemStore()
	seedCatalog(store)
	svc := NewCatalogService(store, nil, 0)

	// Authenticated but no default address: everything active is visible.
	products, err := svc.ListVisibleProducts(context.Background(), 300, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, productIDs(products))
}

// fakeCityCache scripts cache behavior and counts traffic.
type fakeCityCache struct {
	cityID   int64
	hit      bool
	readErr  error
	reads    int
	writes   int
	writeTTL time.Duration
}

func (c *fakeCityCache) GetCustomerCity(ctx context.Context, customerID int64) (int64, bool, error) {
	c.reads++
	return c.cityID, c.hit, c.readErr
}

func (c *fakeCityCache) SetCustomerCity(ctx context.Context, customerID, cityID int64, ttl time.Duration) error {
	c.writes++
	c.writeTTL = ttl
	c.cityID = cityID
	return nil
}

func TestCatalogUsesCityCache(t *testing.T) {
	store := newMemStore()
	seedCatalog(store)
	// Storage says city 30; the cache says city 10 and must win on a hit.
	store.addAddress(models.Address{CustomerID: 100, CityID: int64p(30), IsDefault: true})

	cache := &fakeCityCache{cityID: 10, hit: true}
	svc := NewCatalogService(store, cache, 5*time.Minute)

	products, err := svc.ListVisibleProducts(context.Background(), 100, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, productIDs(products))
	assert.Equal(t, 1, cache.reads)
	assert.Equal(t, 0, cache.writes)
}

func TestCatalogCacheMissRefills(t *testing.T) {
	store := newMemStore()
	seedCatalog(store)
	store.addAddress(models.Address{CustomerID: 100, CityID: int64p(10), IsDefault: true})

	cache := &fakeCityCache{}
	svc := NewCatalogService(store, cache, 5*time.Minute)

	_, err := svc.ListVisibleProducts(context.Background(), 100, true)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.writes)
	assert.Equal(t, int64(10), cache.cityID)
	assert.Equal(t, 5*time.Minute, cache.writeTTL)
}

func TestCatalogCacheErrorFallsBackToStorage(t *testing.T) {
	store := newMemStore()
	seedCatalog(store)
	store.addAddress(models.Address{CustomerID: 100, CityID: int64p(10), IsDefault: true})

	cache := &fakeCityCache{readErr: errors.New("redis down")}
	svc := NewCatalogService(store, cache, 5*time.Minute)

	products, err := svc.ListVisibleProducts(context.Background(), 100, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, productIDs(products))
}
