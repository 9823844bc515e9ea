package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrderAttachesItems(t *testing.T) {
	store := newMemStore()
	addressID, itemIDs := twoStoreCart(t, store)

	checkout := newCheckoutService(store)
	placed, err := checkout.Checkout(context.Background(), &CheckoutRequest{
		CustomerID:  100,
		AddressID:   addressID,
		CartItemIDs: itemIDs,
	})
	require.NoError(t, err)
	require.Len(t, placed, 2)

	svc := NewOrderQueryService(store)
	order, err := svc.GetOrder(context.Background(), 100, placed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, placed[0].OrderNumber, order.OrderNumber)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Mug", order.Items[0].ProductName)
}

func TestGetOrderOwnership(t *testing.T) {
	store := newMemStore()
	addressID, itemIDs := twoStoreCart(t, store)

	checkout := newCheckoutService(store)
	placed, err := checkout.Checkout(context.Background(), &CheckoutRequest{
		CustomerID:  100,
		AddressID:   addressID,
		CartItemIDs: itemIDs,
	})
	require.NoError(t, err)

	svc := NewOrderQueryService(store)
	_, err = svc.GetOrder(context.Background(), 200, placed[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrdersNewestFirst(t *testing.T) {
	store := newMemStore()
	addressID, itemIDs := twoStoreCart(t, store)

	checkout := newCheckoutService(store)
	_, err := checkout.Checkout(context.Background(), &CheckoutRequest{
		CustomerID:  100,
		AddressID:   addressID,
		CartItemIDs: itemIDs,
	})
	require.NoError(t, err)

	svc := NewOrderQueryService(store)
	orders, err := svc.ListOrders(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Greater(t, orders[0].ID, orders[1].ID)
	for _, order := range orders {
		assert.Empty(t, order.Items)
		assert.Equal(t, checkoutNow.Add(24*time.Hour), order.ExpiresAt)
	}

	other, err := svc.ListOrders(context.Background(), 999)
	require.NoError(t, err)
	assert.Empty(t, other)
}
