package worker

import (
	"context"
	"fmt"
	"log"

	"marketplace-checkout/internal/broker"
	"marketplace-checkout/internal/models"
	"marketplace-checkout/internal/storage"
	"marketplace-checkout/internal/util"

	"go.uber.org/zap"
)

// PaymentWorker consumes the payment collaborator's events and transitions
// order payment status. This core never talks to a gateway; it only reacts
// to the webhook-shaped events.
type PaymentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *storage.Storage
	logger       *zap.Logger
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer *broker.Consumer, store *storage.Storage) *PaymentWorker {
	w := &PaymentWorker{
		consumer: consumer,
		store:    store,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentSuccess(w.handlePaymentSuccess)
	eventHandler.OnPaymentFailed(w.handlePaymentFailed)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *PaymentWorker) Start(ctx context.Context) error {
	log.Println("Starting payment worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *PaymentWorker) Stop() error {
	log.Println("Stopping payment worker...")
	return w.consumer.Close()
}

// handlePaymentSuccess marks an order paid and moves it into fulfilment.
// Events are processed at most once.
func (w *PaymentWorker) handlePaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	w.logger.Info("Handling payment success",
		zap.Int64("order_id", event.OrderID),
		zap.String("tx_id", event.TxID))

	if err := w.store.UpdateOrderPaymentStatus(ctx, event.OrderID,
		models.PaymentStatusPaid, models.OrderStatusProcessing); err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

// handlePaymentFailed records a failed payment. The order stays pending
// until it is retried or the expiry sweep cancels it.
func (w *PaymentWorker) handlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	w.logger.Warn("Handling payment failure",
		zap.Int64("order_id", event.OrderID),
		zap.String("reason", event.Reason))

	if err := w.store.UpdateOrderPaymentStatus(ctx, event.OrderID,
		models.PaymentStatusFailed, models.OrderStatusPending); err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}
