package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestHandleMessageRoutesOrderConfirmed(t *testing.T) {
	handler := NewEventHandler()

	var got *models.OrderConfirmedEvent
	handler.OnOrderConfirmed(func(ctx context.Context, e *models.OrderConfirmedEvent) error {
		got = e
		return nil
	})

	event := &models.OrderConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeOrderConfirmed,
			Timestamp: time.Now(),
		},
		OrderID: 42,
		UserID:  7,
		Total:   decimal.RequireFromString("19.99"),
	}

	err := handler.HandleMessage(context.Background(), message(t, event))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.OrderID)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("19.99")))
}

func TestHandleMessageSkipsUnregisteredTypes(t *testing.T) {
	handler := NewEventHandler()

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-2",
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID: 1,
	}

	err := handler.HandleMessage(context.Background(), message(t, event))
	assert.NoError(t, err)
}

func TestHandleMessageRejectsMalformedPayload(t *testing.T) {
	handler := NewEventHandler()

	err := handler.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}
