package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-checkout/internal/models"
	"marketplace-checkout/internal/util"

	"go.uber.org/zap"
)

// CartStore is the persistence surface the cart aggregate needs.
type CartStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetStoreByID(ctx context.Context, id int64) (*models.Store, error)
	GetCustomerCityID(ctx context.Context, customerID int64) (int64, error)
	FindOpenCart(ctx context.Context, customerID int64) (*models.Cart, error)
	CreateCart(ctx context.Context, cart *models.Cart) error
	GetCartByID(ctx context.Context, id int64) (*models.Cart, error)
	GetCartItemByID(ctx context.Context, id int64) (*models.CartItem, error)
	FindCartItemByProduct(ctx context.Context, cartID, productID int64) (*models.CartItem, error)
	ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error)
	CreateCartItem(ctx context.Context, item *models.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int, subtotal int64) error
	DeleteCartItem(ctx context.Context, itemID int64) error
}

// CityCache caches resolved customer cities so cart and catalog reads do not
// hit the addresses table on every call.
type CityCache interface {
	GetCustomerCity(ctx context.Context, customerID int64) (int64, bool, error)
	SetCustomerCity(ctx context.Context, customerID, cityID int64, ttl time.Duration) error
}

// CartService is the cart aggregate: one open mutable collection per
// customer. It never mutates stock; stock is committed only at checkout.
type CartService struct {
	store        CartStore
	cities       CityCache
	cityCacheTTL time.Duration
	logger       *zap.Logger
}

// NewCartService creates a new cart service. cities may be nil, in which
// case every call resolves the city from storage.
func NewCartService(store CartStore, cities CityCache, cityCacheTTL time.Duration) *CartService {
	return &CartService{
		store:        store,
		cities:       cities,
		cityCacheTTL: cityCacheTTL,
		logger:       util.GetLogger(),
	}
}

// resolveCity returns the customer's city, 0 when unknown. Cache misses fall
// through to storage and refill the cache; cache errors degrade to storage.
func (s *CartService) resolveCity(ctx context.Context, customerID int64) (int64, error) {
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
		return 0, fmt.Errorf("resolve customer city: %w", err)
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

// AddItem adds a product to the customer's open cart, creating the cart
// lazily. The quantity is raised to the product's minimum order and clamped
// down to available stock; the bool return reports whether clamping
// happened. An existing line for the same product is merged from a freshly
// read quantity, keeping its original price snapshot.
func (s *CartService) AddItem(ctx context.Context, customerID, productID int64, quantity int, note string) (*models.CartItem, bool, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, false, err
	}
	if product.Status != models.ProductStatusActive {
		return nil, false, ErrProductUnavailable
	}

	merchant, err := s.store.GetStoreByID(ctx, product.StoreID)
	if err != nil {
		return nil, false, err
	}

	cityID, err := s.resolveCity(ctx, customerID)
	if err != nil {
		return nil, false, err
	}
	if !IsVisible(product, merchant, cityID, true) {
		return nil, false, ErrNotVisible
	}

	if product.Stock != nil && *product.Stock <= 0 {
		return nil, false, ErrOutOfStock
	}

	minOrder := product.MinOrderQty
	if minOrder < 1 {
		minOrder = 1
	}
	if quantity < minOrder {
		quantity = minOrder
	}

	cart, err := s.store.FindOpenCart(ctx, customerID)
	if err != nil {
		return nil, false, err
	}
	if cart == nil {
		cart = &models.Cart{CustomerID: customerID, Status: models.CartStatusOpen}
		if err := s.store.CreateCart(ctx, cart); err != nil {
			return nil, false, fmt.Errorf("create cart: %w", err)
		}
	}

	existing, err := s.store.FindCartItemByProduct(ctx, cart.ID, productID)
	if err != nil {
		return nil, false, err
	}

	clamped := false
	if existing != nil {
		want := existing.Quantity + quantity
		if product.Stock != nil && want > *product.Stock {
			want = *product.Stock
			clamped = true
			util.CartItemsClampedTotal.Inc()
		}

		if err := s.store.UpdateCartItemQuantity(ctx, existing.ID, want, existing.UnitPrice*int64(want)); err != nil {
			return nil, false, fmt.Errorf("merge cart item: %w", err)
		}
		existing.Quantity = want
		existing.Subtotal = existing.UnitPrice * int64(want)

		util.CartItemsAddedTotal.Inc()
		return existing, clamped, nil
	}

	if product.Stock != nil && quantity > *product.Stock {
		quantity = *product.Stock
		clamped = true
		util.CartItemsClampedTotal.Inc()
	}

	unitPrice := product.EffectivePrice()
	item := &models.CartItem{
		CartID:    cart.ID,
		ProductID: product.ID,
		StoreID:   product.StoreID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Subtotal:  unitPrice * int64(quantity),
		Note:      note,
	}
	if err := s.store.CreateCartItem(ctx, item); err != nil {
		return nil, false, fmt.Errorf("create cart item: %w", err)
	}

	util.CartItemsAddedTotal.Inc()
	s.logger.Info("Cart item added",
		zap.Int64("customer_id", customerID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity))
	return item, clamped, nil
}

// authorizedItem loads a cart item and verifies it sits in the caller's OPEN
// cart. Everything else, including other customers' items, is ErrNotFound.
func (s *CartService) authorizedItem(ctx context.Context, customerID, itemID int64) (*models.CartItem, error) {
	item, err := s.store.GetCartItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}

	cart, err := s.store.GetCartByID(ctx, item.CartID)
	if err != nil {
		return nil, err
	}
	if cart == nil || cart.CustomerID != customerID || cart.Status != models.CartStatusOpen {
		return nil, ErrNotFound
	}
	return item, nil
}

// UpdateItem sets a new quantity on the caller's cart item, clamped to
// [min order, available stock]. The price snapshot is untouched.
func (s *CartService) UpdateItem(ctx context.Context, customerID, itemID int64, quantity int) (*models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	item, err := s.authorizedItem(ctx, customerID, itemID)
	if err != nil {
		return nil, err
	}

	product, err := s.store.GetProductByID(ctx, item.ProductID)
	if err != nil {
		return nil, fmt.Errorf("cart item %d references unloadable product %d: %w", item.ID, item.ProductID, err)
	}

	minOrder := product.MinOrderQty
	if minOrder < 1 {
		minOrder = 1
	}
	if quantity < minOrder {
		quantity = minOrder
	}
	if product.Stock != nil && quantity > *product.Stock {
		quantity = *product.Stock
		util.CartItemsClampedTotal.Inc()
	}
	if quantity <= 0 {
		return nil, ErrOutOfStock
	}

	if err := s.store.UpdateCartItemQuantity(ctx, item.ID, quantity, item.UnitPrice*int64(quantity)); err != nil {
		return nil, fmt.Errorf("update cart item: %w", err)
	}
	item.Quantity = quantity
	item.Subtotal = item.UnitPrice * int64(quantity)
	return item, nil
}

// RemoveItem deletes the caller's cart item. Deletion is unconditional once
// ownership is established.
func (s *CartService) RemoveItem(ctx context.Context, customerID, itemID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	item, err := s.authorizedItem(ctx, customerID, itemID)
	if err != nil {
		return err
	}
	return s.store.DeleteCartItem(ctx, item.ID)
}

// GetCart returns the customer's open cart with its items, or (nil, nil,
// nil) when no open cart exists.
func (s *CartService) GetCart(ctx context.Context, customerID int64) (*models.Cart, []models.CartItem, error) {
	cart, err := s.store.FindOpenCart(ctx, customerID)
	if err != nil {
		return nil, nil, err
	}
	if cart == nil {
		return nil, nil, nil
	}

	items, err := s.store.ListCartItems(ctx, cart.ID)
	if err != nil {
		return nil, nil, err
	}
	return cart, items, nil
}
