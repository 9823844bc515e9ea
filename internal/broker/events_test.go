package broker

import (
	"context"
	"encoding/json"
	"testing"

	"marketplace-checkout/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestEventHandlerRoutesPaymentSuccess(t *testing.T) {
	handler := NewEventHandler()

	var got *models.PaymentSuccessEvent
	handler.OnPaymentSuccess(func(ctx context.Context, event *models.PaymentSuccessEvent) error {
		got = event
		return nil
	})
	handler.OnPaymentFailed(func(ctx context.Context, event *models.PaymentFailedEvent) error {
		t.Fatal("payment failed handler should not fire")
		return nil
	})

	event := models.PaymentSuccessEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-1", EventType: models.EventTypePaymentSuccess},
		OrderID:   42,
		Amount:    7000,
		TxID:      "tx-99",
	}
	err := handler.HandleMessage(context.Background(), message(t, event))
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.OrderID)
	assert.Equal(t, "tx-99", got.TxID)
}

func TestEventHandlerRoutesPaymentFailed(t *testing.T) {
	handler := NewEventHandler()

	var got *models.PaymentFailedEvent
	handler.OnPaymentFailed(func(ctx context.Context, event *models.PaymentFailedEvent) error {
		got = event
		return nil
	})

	event := models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-2", EventType: models.EventTypePaymentFailed},
		OrderID:   42,
		Reason:    "card declined",
	}
	err := handler.HandleMessage(context.Background(), message(t, event))
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "card declined", got.Reason)
}

func TestEventHandlerIgnoresUnknownTypes(t *testing.T) {
	handler := NewEventHandler()
	handler.OnPaymentSuccess(func(ctx context.Context, event *models.PaymentSuccessEvent) error {
		t.Fatal("handler should not fire for unknown event types")
		return nil
	})

	event := models.BaseEvent{EventID: "evt-3", EventType: "SOMETHING_ELSE"}
	err := handler.HandleMessage(context.Background(), message(t, event))
	assert.NoError(t, err)
}

func TestEventHandlerRejectsMalformedPayload(t *testing.T) {
	handler := NewEventHandler()

	err := handler.HandleMessage(context.Background(), kafka.Message{Value: []byte("{not json")})
	assert.Error(t, err)
}
