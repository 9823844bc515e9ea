package service

import "marketplace-checkout/internal/models"

// IsVisible decides whether a product may be shown and sold to a customer.
// The rules are ordered and fail open: hiding a purchasable product is worse
// than showing one outside its area.
//
//  1. GLOBAL scope is visible to everyone.
//  2. Anonymous browsing is never filtered.
//  3. An authenticated customer with no resolvable city sees everything.
//  4. LOCAL scope with a known city matches the product's own city or, when
//     the product carries none, its store's city.
func IsVisible(product *models.Product, store *models.Store, customerCityID int64, authenticated bool) bool {
	if product.VisibilityScope == models.VisibilityGlobal {
		return true
	}
	if !authenticated {
		return true
	}
	if customerCityID == 0 {
		return true
	}

	if product.CityID != nil && *product.CityID == customerCityID {
		return true
	}
	if store != nil && store.CityID != nil && *store.CityID == customerCityID {
		return true
	}
	return false
}

// FilterVisible keeps the products IsVisible accepts, in input order. It is
// definitionally the per-item predicate applied to each element; the
// equivalence is pinned by a test.
func FilterVisible(products []models.Product, stores map[int64]*models.Store, customerCityID int64, authenticated bool) []models.Product {
	visible := make([]models.Product, 0, len(products))
	for i := range products {
		if IsVisible(&products[i], stores[products[i].StoreID], customerCityID, authenticated) {
			visible = append(visible, products[i])
		}
	}
	return visible
}

// Location is a province/city/district triple.
type Location struct {
	ProvinceID *int64
	CityID     *int64
	DistrictID *int64
}

// ResolvedLocation is the product's location with its store's as fallback.
// A product "has" a location when its city is set.
func ResolvedLocation(product *models.Product, store *models.Store) Location {
	if product.CityID != nil {
		return Location{
			ProvinceID: product.ProvinceID,
			CityID:     product.CityID,
			DistrictID: product.DistrictID,
		}
	}
	if store != nil {
		return Location{
			ProvinceID: store.ProvinceID,
			CityID:     store.CityID,
		}
	}
	return Location{}
}

// StoreBadge derives the badge shown next to a store's name, nil when the
// store has none.
func StoreBadge(store *models.Store) *string {
	if store == nil || !store.Verified {
		return nil
	}
	badge := "Official Store"
	return &badge
}
