package worker

import (
	"context"
	"fmt"

	"github.com/tanatos09/perfectbody/internal/broker"
	"github.com/tanatos09/perfectbody/internal/models"
	"github.com/tanatos09/perfectbody/internal/notify"
	"github.com/tanatos09/perfectbody/internal/util"

	"go.uber.org/zap"
)

// eventLog tracks consumed event ids so redeliveries are no-ops.
type eventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// NotificationWorker consumes order lifecycle events and turns them into
// customer notifications: a queued message for the visitor's session and a
// dispatch log entry standing in for the outbound email.
type NotificationWorker struct {
	consumer *broker.Consumer
	handler  *broker.EventHandler
	events   eventLog
	sink     notify.Sink
	logger   *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, events eventLog, sink notify.Sink) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		events:   events,
		sink:     sink,
		logger:   util.GetLogger(),
	}

	handler := broker.NewEventHandler()
	handler.OnOrderPlaced(w.handleOrderPlaced)
	handler.OnOrderCancelled(w.handleOrderCancelled)
	w.handler = handler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) alreadyProcessed(ctx context.Context, event models.BaseEvent) (bool, error) {
	processed, err := w.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return false, fmt.Errorf("failed to check event idempotency: %w", err)
	}
	if processed {
		w.logger.Debug("Skipping already processed event", zap.String("event_id", event.EventID))
	}
	return processed, nil
}

func (w *NotificationWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	processed, err := w.alreadyProcessed(ctx, event.BaseEvent)
	if err != nil || processed {
		return err
	}

	w.logger.Info("Dispatching order confirmation",
		zap.Int64("order_id", event.OrderID),
		zap.String("guest_email", event.GuestEmail),
		zap.Int64("total_price", event.TotalPrice))
	util.NotificationsSentTotal.WithLabelValues("order_placed").Inc()

	w.sink.Info(ctx, event.SessionID,
		fmt.Sprintf("a confirmation for order #%d is on its way", event.OrderID))

	return w.events.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

func (w *NotificationWorker) handleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	processed, err := w.alreadyProcessed(ctx, event.BaseEvent)
	if err != nil || processed {
		return err
	}

	w.logger.Info("Dispatching cancellation notice",
		zap.Int64("order_id", event.OrderID),
		zap.String("reason", event.Reason))
	util.NotificationsSentTotal.WithLabelValues("order_cancelled").Inc()

	w.sink.Info(ctx, event.SessionID,
		fmt.Sprintf("order #%d cancellation was processed", event.OrderID))

	return w.events.MarkEventProcessed(ctx, event.EventID, event.EventType)
}
