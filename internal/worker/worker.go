package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// OrderEventsWorker consumes the order-events topic for the back office:
// confirmed and cancelled orders are recorded for visibility. Events are
// deduplicated through the processed_events table so a redelivered message
// is handled at most once.
type OrderEventsWorker struct {
	consumer *broker.Consumer
	store    *store.Store
	logger   *zap.Logger
}

// NewOrderEventsWorker creates a new order events worker
func NewOrderEventsWorker(consumer *broker.Consumer, store *store.Store) *OrderEventsWorker {
	return &OrderEventsWorker{
		consumer: consumer,
		store:    store,
		logger:   util.GetLogger(),
	}
}

// Start consumes events until the context is cancelled
func (w *OrderEventsWorker) Start(ctx context.Context) error {
	handler := broker.NewEventHandler()
	handler.OnOrderConfirmed(w.handleOrderConfirmed)
	handler.OnOrderCancelled(w.handleOrderCancelled)

	return w.consumer.StartConsuming(ctx, handler.HandleMessage)
}

// Stop closes the underlying consumer
func (w *OrderEventsWorker) Stop() {
	if err := w.consumer.Close(); err != nil {
		w.logger.Error("Failed to close consumer", zap.Error(err))
	}
}

func (w *OrderEventsWorker) handleOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	seen, err := w.markProcessed(ctx, event.EventID, event.EventType)
	if err != nil || seen {
		return err
	}

	w.logger.Info("Order confirmed",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("user_id", event.UserID),
		zap.String("total", event.Total.StringFixed(2)),
		zap.Int("lines", len(event.Lines)))
	util.OrderEventsHandledTotal.WithLabelValues(event.EventType).Inc()
	return nil
}

func (w *OrderEventsWorker) handleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	seen, err := w.markProcessed(ctx, event.EventID, event.EventType)
	if err != nil || seen {
		return err
	}

	w.logger.Info("Order cancelled",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("user_id", event.UserID),
		zap.Int("repositioned_lines", len(event.Repositioned)))
	util.OrderEventsHandledTotal.WithLabelValues(event.EventType).Inc()
	return nil
}

// markProcessed reports whether the event was already handled and records
// it otherwise.
func (w *OrderEventsWorker) markProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	processed, err := w.store.IsEventProcessed(ctx, eventID)
	if err != nil {
		return false, err
	}
	if processed {
		return true, nil
	}
	return false, w.store.MarkEventProcessed(ctx, eventID, eventType)
}
