package storage

import (
	"context"
	"database/sql"
	"time"

	"marketplace-checkout/internal/models"

	"github.com/jmoiron/sqlx"
)

// FindOpenCart returns the customer's OPEN cart, or nil when none exists.
func (s *Storage) FindOpenCart(ctx context.Context, customerID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart,
		"SELECT * FROM carts WHERE customer_id = $1 AND status = $2",
		customerID, models.CartStatusOpen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// CreateCart creates an OPEN cart for a customer. The partial unique index on
// (customer_id) WHERE status = 'OPEN' enforces the one-open-cart invariant.
func (s *Storage) CreateCart(ctx context.Context, cart *models.Cart) error {
	query := `
		INSERT INTO carts (customer_id, status)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, cart, query, cart.CustomerID, models.CartStatusOpen)
}

// GetCartItemByID retrieves a cart item by ID, nil when absent.
func (s *Storage) GetCartItemByID(ctx context.Context, id int64) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item, "SELECT * FROM cart_items WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetCartByID retrieves a cart by ID, nil when absent.
func (s *Storage) GetCartByID(ctx context.Context, id int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindCartItemByProduct returns the cart's line for a product, nil when the
// product is not in the cart yet. Read fresh on every add so the merge path
// never sums against a stale quantity.
func (s *Storage) FindCartItemByProduct(ctx context.Context, cartID, productID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item,
		"SELECT * FROM cart_items WHERE cart_id = $1 AND product_id = $2",
		cartID, productID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListCartItems retrieves all items of a cart ordered by insertion.
func (s *Storage) ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id", cartID)
	return items, err
}

// GetCartItemsByIDs retrieves the given items restricted to one cart.
func (s *Storage) GetCartItemsByIDs(ctx context.Context, cartID int64, ids []int64) ([]models.CartItem, error) {
	if len(ids) == 0 {
		return []models.CartItem{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT * FROM cart_items WHERE cart_id = ? AND id IN (?) ORDER BY id", cartID, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var items []models.CartItem
	err = s.db.SelectContext(ctx, &items, query, args...)
	return items, err
}

// CreateCartItem inserts a new cart line with its price snapshot.
func (s *Storage) CreateCartItem(ctx context.Context, item *models.CartItem) error {
	query := `
		INSERT INTO cart_items (cart_id, product_id, store_id, quantity, unit_price, subtotal, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, item, query,
		item.CartID, item.ProductID, item.StoreID, item.Quantity,
		item.UnitPrice, item.Subtotal, item.Note)
}

// UpdateCartItemQuantity rewrites quantity and subtotal on a single row.
// Last writer wins across concurrent tabs of the same customer.
func (s *Storage) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int, subtotal int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1, subtotal = $2, updated_at = NOW() WHERE id = $3",
		quantity, subtotal, itemID)
	return err
}

// DeleteCartItem removes a single cart line.
func (s *Storage) DeleteCartItem(ctx context.Context, itemID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1", itemID)
	return err
}

// TouchCart bumps the cart's updated_at.
func (s *Storage) TouchCart(ctx context.Context, cartID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE carts SET updated_at = $1 WHERE id = $2", at, cartID)
	return err
}
