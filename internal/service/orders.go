package service

import (
	"context"

	"marketplace-checkout/internal/models"
)

// OrderReader is the order read surface for the presentation layer.
type OrderReader interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetOrdersByCustomerID(ctx context.Context, customerID int64) ([]models.Order, error)
}

// OrderQueryService serves order view models. Orders are immutable here;
// status transitions belong to order-management workflows.
type OrderQueryService struct {
	store OrderReader
}

// NewOrderQueryService creates a new order query service
func NewOrderQueryService(store OrderReader) *OrderQueryService {
	return &OrderQueryService{store: store}
}

// GetOrder returns one of the caller's orders with its items. Other
// customers' orders are indistinguishable from absent ones.
func (s *OrderQueryService) GetOrder(ctx context.Context, customerID, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, ErrNotFound
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

// ListOrders returns the caller's orders, newest first, without items.
func (s *OrderQueryService) ListOrders(ctx context.Context, customerID int64) ([]models.Order, error) {
	return s.store.GetOrdersByCustomerID(ctx, customerID)
}
