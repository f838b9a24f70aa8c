package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tanatos09/perfectbody/internal/models"
	"github.com/tanatos09/perfectbody/internal/notify"
	"github.com/tanatos09/perfectbody/internal/session"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEventLog struct {
	processed map[string]string
}

func newFakeEventLog() *fakeEventLog {
	return &fakeEventLog{processed: make(map[string]string)}
}

func (f *fakeEventLog) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	_, ok := f.processed[eventID]
	return ok, nil
}

func (f *fakeEventLog) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	f.processed[eventID] = eventType
	return nil
}

type workerFixture struct {
	worker   *NotificationWorker
	events   *fakeEventLog
	sessions *session.MemoryStore
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	events := newFakeEventLog()
	sessions := session.NewMemoryStore()
	w := NewNotificationWorker(nil, events, notify.NewFlashSink(sessions))
	return &workerFixture{worker: w, events: events, sessions: sessions}
}

func (f *workerFixture) deliver(t *testing.T, event any) error {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return f.worker.handler.HandleMessage(context.Background(), kafka.Message{Value: payload})
}

func placedEvent(eventID string) *models.OrderPlacedEvent {
	return &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   eventID,
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:    42,
		SessionID:  "s1",
		GuestEmail: "guest@example.com",
		TotalPrice: 20000,
	}
}

func TestOrderPlacedQueuesNotification(t *testing.T) {
	f := newWorkerFixture(t)

	require.NoError(t, f.deliver(t, placedEvent("evt-1")))

	messages, err := f.sessions.PopMessages(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageInfo, messages[0].Kind)
	assert.Contains(t, messages[0].Text, "#42")

	assert.Equal(t, models.EventTypeOrderPlaced, f.events.processed["evt-1"])
}

func TestRedeliveredEventIsSkipped(t *testing.T) {
	f := newWorkerFixture(t)

	require.NoError(t, f.deliver(t, placedEvent("evt-1")))
	_, err := f.sessions.PopMessages(context.Background(), "s1")
	require.NoError(t, err)

	// Kafka at-least-once: the same event comes around again.
	require.NoError(t, f.deliver(t, placedEvent("evt-1")))

	messages, err := f.sessions.PopMessages(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestOrderCancelledQueuesNotification(t *testing.T) {
	f := newWorkerFixture(t)

	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-2",
			EventType: models.EventTypeOrderCancelled,
			Timestamp: time.Now(),
		},
		OrderID:   42,
		SessionID: "s1",
		Reason:    "cancelled by customer",
	}
	require.NoError(t, f.deliver(t, event))

	messages, err := f.sessions.PopMessages(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Text, "cancellation")

	assert.Equal(t, models.EventTypeOrderCancelled, f.events.processed["evt-2"])
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	f := newWorkerFixture(t)

	payload, err := json.Marshal(models.BaseEvent{
		EventID:   "evt-3",
		EventType: "ORDER_SHIPPED",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, f.worker.handler.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	assert.Empty(t, f.events.processed)
}
