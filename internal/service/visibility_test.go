package service

import (
	"testing"

	"marketplace-checkout/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsVisibleGlobalScope(t *testing.T) {
	product := &models.Product{VisibilityScope: models.VisibilityGlobal, CityID: int64p(42)}
	store := &models.Store{CityID: int64p(99)}

	assert.True(t, IsVisible(product, store, 1, true))
	assert.True(t, IsVisible(product, store, 0, true))
	assert.True(t, IsVisible(product, store, 1, false))
	assert.True(t, IsVisible(product, nil, 7, true))
}

func TestIsVisibleUnauthenticated(t *testing.T) {
	product := &models.Product{VisibilityScope: models.VisibilityLocal, CityID: int64p(42)}
	store := &models.Store{CityID: int64p(42)}

	// Anonymous browsing is never filtered, whatever city is passed in.
	assert.True(t, IsVisible(product, store, 7, false))
	assert.True(t, IsVisible(product, store, 0, false))
}

func TestIsVisibleNoResolvedCity(t *testing.T) {
	product := &models.Product{VisibilityScope: models.VisibilityLocal, CityID: int64p(42)}

	assert.True(t, IsVisible(product, nil, 0, true))
}

func TestIsVisibleLocalProductCity(t *testing.T) {
	product := &models.Product{VisibilityScope: models.VisibilityLocal, CityID: int64p(42)}
	store := &models.Store{CityID: int64p(99)}

	assert.True(t, IsVisible(product, store, 42, true))
	// A match on either the product's or the store's city suffices.
	assert.True(t, IsVisible(product, store, 99, true))
	assert.False(t, IsVisible(product, store, 7, true))
}

func TestIsVisibleLocalStoreCityFallback(t *testing.T) {
	product := &models.Product{VisibilityScope: models.VisibilityLocal}
	store := &models.Store{CityID: int64p(99)}

	assert.True(t, IsVisible(product, store, 99, true))
	assert.False(t, IsVisible(product, store, 42, true))
	assert.False(t, IsVisible(product, nil, 42, true))
}

func TestFilterVisibleMatchesPredicate(t *testing.T) {
	stores := map[int64]*models.Store{
		1: {ID: 1, CityID: int64p(10)},
		2: {ID: 2, CityID: int64p(20)},
		3: {ID: 3},
	}
	products := []models.Product{
		{ID: 1, StoreID: 1, VisibilityScope: models.VisibilityGlobal},
		{ID: 2, StoreID: 1, VisibilityScope: models.VisibilityLocal},
		{ID: 3, StoreID: 2, VisibilityScope: models.VisibilityLocal, CityID: int64p(10)},
		{ID: 4, StoreID: 2, VisibilityScope: models.VisibilityLocal},
		{ID: 5, StoreID: 3, VisibilityScope: models.VisibilityLocal},
		{ID: 6, StoreID: 9, VisibilityScope: models.VisibilityLocal, CityID: int64p(30)},
	}

	for _, cityID := range []int64{0, 10, 20, 30} {
		for _, authed := range []bool{true, false} {
			got := FilterVisible(products, stores, cityID, authed)

			want := make([]models.Product, 0, len(products))
			for i := range products {
				if IsVisible(&products[i], stores[products[i].StoreID], cityID, authed) {
					want = append(want, products[i])
				}
			}
			assert.Equal(t, want, got, "city=%d authed=%v", cityID, authed)
		}
	}
}

func TestFilterVisibleKeepsInputOrder(t *testing.T) {
	stores := map[int64]*models.Store{1: {ID: 1, CityID: int64p(10)}}
	products := []models.Product{
		{ID: 3, StoreID: 1, VisibilityScope: models.VisibilityGlobal},
		{ID: 1, StoreID: 1, VisibilityScope: models.VisibilityLocal},
		{ID: 2, StoreID: 1, VisibilityScope: models.VisibilityGlobal},
	}

	got := FilterVisible(products, stores, 20, true)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
}

func TestResolvedLocationPrefersProduct(t *testing.T) {
	product := &models.Product{
		ProvinceID: int64p(1),
		CityID:     int64p(2),
		DistrictID: int64p(3),
	}
	store := &models.Store{ProvinceID: int64p(8), CityID: int64p(9)}

	loc := ResolvedLocation(product, store)
	require.NotNil(t, loc.CityID)
	assert.Equal(t, int64(2), *loc.CityID)
	assert.Equal(t, int64(1), *loc.ProvinceID)
	assert.Equal(t, int64(3), *loc.DistrictID)
}

func TestResolvedLocationFallsBackToStore(t *testing.T) {
	// A province without a city is not "a location"; the store still wins.
	product := &models.Product{ProvinceID: int64p(1)}
	store := &models.Store{ProvinceID: int64p(8), CityID: int64p(9)}

	loc := ResolvedLocation(product, store)
	require.NotNil(t, loc.CityID)
	assert.Equal(t, int64(9), *loc.CityID)
	assert.Equal(t, int64(8), *loc.ProvinceID)
	assert.Nil(t, loc.DistrictID)

	assert.Equal(t, Location{}, ResolvedLocation(product, nil))
}

func TestStoreBadge(t *testing.T) {
	badge := StoreBadge(&models.Store{Verified: true})
	require.NotNil(t, badge)
	assert.Equal(t, "Official Store", *badge)

	assert.Nil(t, StoreBadge(&models.Store{}))
	assert.Nil(t, StoreBadge(nil))
}
