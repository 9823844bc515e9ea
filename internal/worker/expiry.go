package worker

import (
	"context"
	"log"
	"time"

	"marketplace-checkout/internal/broker"
	"marketplace-checkout/internal/models"
	"marketplace-checkout/internal/storage"
	"marketplace-checkout/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExpiryWorker periodically cancels unpaid orders past their payment
// deadline and restores the stock they were holding.
type ExpiryWorker struct {
	store    *storage.Storage
	events   *broker.EventPublisher
	interval time.Duration
	logger   *zap.Logger
}

// NewExpiryWorker creates a new expiry worker. events may be nil.
func NewExpiryWorker(store *storage.Storage, events *broker.EventPublisher, interval time.Duration) *ExpiryWorker {
	return &ExpiryWorker{
		store:    store,
		events:   events,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *ExpiryWorker) Start(ctx context.Context) error {
	log.Printf("Starting expiry worker, interval=%s", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Expiry worker context cancelled, stopping...")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	expired, err := w.store.ExpireOverdueOrders(ctx, time.Now())
	if err != nil {
		w.logger.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}

	util.OrdersExpiredTotal.Add(float64(len(expired)))
	w.logger.Info("Expired unpaid orders", zap.Int("count", len(expired)))

	if w.events == nil {
		return
	}
	for _, order := range expired {
		event := &models.OrderExpiredEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderExpired,
				Timestamp: time.Now(),
			},
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
		}
		if err := w.events.PublishOrderExpired(ctx, event); err != nil {
			w.logger.Error("Failed to publish OrderExpired event",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
	}
}
