package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace-checkout/internal/models"

	"github.com/jmoiron/sqlx"
)

// TxOps is the write set available inside a checkout transaction. It exists
// as an interface so the fan-out engine can be exercised against an
// in-memory implementation.
type TxOps interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	RedeemPromo(ctx context.Context, promoID int64) error
	DeleteCartItems(ctx context.Context, ids []int64) error
	CountCartItems(ctx context.Context, cartID int64) (int, error)
	ConvertCart(ctx context.Context, cartID int64, at time.Time) error
}

// WithinTx runs fn inside one database transaction. Any error rolls the
// whole unit back; this is the atomicity boundary of checkout.
func (s *Storage) WithinTx(ctx context.Context, fn func(tx TxOps) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

// Tx wraps a live sqlx transaction with the checkout write set.
type Tx struct {
	tx *sqlx.Tx
}

// CreateOrder inserts an order row.
func (t *Tx) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (customer_id, store_id, address_id, payment_method_id, order_number,
			status, payment_status, subtotal, discount_total, shipping_cost, weight_total,
			grand_total, ordered_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`

	return t.tx.GetContext(ctx, order, query,
		order.CustomerID, order.StoreID, order.AddressID, order.PaymentMethodID,
		order.OrderNumber, order.Status, order.PaymentStatus, order.Subtotal,
		order.DiscountTotal, order.ShippingCost, order.WeightTotal, order.GrandTotal,
		order.OrderedAt, order.ExpiresAt)
}

// CreateOrderItem inserts an order item row.
func (t *Tx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, subtotal, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return t.tx.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.ProductName, item.Quantity,
		item.UnitPrice, item.Subtotal, item.Note)
}

// DecrementStock is the conditional atomic decrement. A NULL stock means
// unlimited and always passes. Zero affected rows means live stock was
// insufficient and the caller must abort the transaction.
func (t *Tx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = CASE WHEN stock IS NULL THEN NULL ELSE stock - $1 END,
			updated_at = NOW()
		WHERE id = $2 AND (stock IS NULL OR stock >= $1)`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// RedeemPromo advances the used counter under its quota guard. Zero affected
// rows means a concurrent checkout consumed the last slot.
func (t *Tx) RedeemPromo(ctx context.Context, promoID int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE promo_codes
		SET used = used + 1
		WHERE id = $1 AND active AND (quota IS NULL OR used < quota)`,
		promoID)
	if err != nil {
		return fmt.Errorf("redeem promo: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPromoExhausted
	}
	return nil
}

// DeleteCartItems retires consumed cart lines.
func (t *Tx) DeleteCartItems(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In("DELETE FROM cart_items WHERE id IN (?)", ids)
	if err != nil {
		return err
	}
	query = t.tx.Rebind(query)

	_, err = t.tx.ExecContext(ctx, query, args...)
	return err
}

// CountCartItems counts remaining lines in a cart.
func (t *Tx) CountCartItems(ctx context.Context, cartID int64) (int, error) {
	var count int
	err := t.tx.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM cart_items WHERE cart_id = $1", cartID)
	return count, err
}

// ConvertCart marks a fully consumed cart CONVERTED.
func (t *Tx) ConvertCart(ctx context.Context, cartID int64, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE carts SET status = $1, checked_out_at = $2, updated_at = $2 WHERE id = $3",
		models.CartStatusConverted, at, cartID)
	return err
}

// GetPromoByCode retrieves a promo by its case-sensitive code, nil when
// absent.
func (s *Storage) GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := s.db.GetContext(ctx, &promo, "SELECT * FROM promo_codes WHERE code = $1", code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// GetOrderByID retrieves an order by ID
func (s *Storage) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Storage) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// GetOrdersByCustomerID retrieves a customer's orders, newest first.
func (s *Storage) GetOrdersByCustomerID(ctx context.Context, customerID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
	return orders, err
}

// UpdateOrderPaymentStatus transitions payment_status and, when the payment
// succeeded, moves the order into fulfilment.
func (s *Storage) UpdateOrderPaymentStatus(ctx context.Context, orderID int64, paymentStatus, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, status = $2, updated_at = NOW() WHERE id = $3",
		paymentStatus, status, orderID)
	return err
}

// ExpireOverdueOrders cancels unpaid orders past their payment deadline and
// restores their stock, one self-contained transaction per sweep.
func (s *Storage) ExpireOverdueOrders(ctx context.Context, now time.Time) ([]models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var overdue []models.Order
	err = tx.SelectContext(ctx, &overdue, `
		SELECT * FROM orders
		WHERE payment_status = $1 AND status = $2 AND expires_at < $3
		FOR UPDATE SKIP LOCKED`,
		models.PaymentStatusUnpaid, models.OrderStatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("lock overdue orders: %w", err)
	}

	for _, order := range overdue {
		var items []models.OrderItem
		if err := tx.SelectContext(ctx, &items,
			"SELECT * FROM order_items WHERE order_id = $1", order.ID); err != nil {
			return nil, err
		}

		for _, item := range items {
			if _, err := tx.ExecContext(ctx, `
				UPDATE products
				SET stock = CASE WHEN stock IS NULL THEN NULL ELSE stock + $1 END,
					updated_at = NOW()
				WHERE id = $2`,
				item.Quantity, item.ProductID); err != nil {
				return nil, fmt.Errorf("restore stock: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE orders SET payment_status = $1, status = $2, updated_at = NOW() WHERE id = $3",
			models.PaymentStatusExpired, models.OrderStatusCancelled, order.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return overdue, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Storage) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Storage) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
