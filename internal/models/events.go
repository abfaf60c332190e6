package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types published on the order-events topic
const (
	EventTypeOrderCreated       = "order.created"
	EventTypeOrderConfirmed     = "order.confirmed"
	EventTypeOrderStatusChanged = "order.status_changed"
	EventTypeOrderCancelled     = "order.cancelled"
)

// BaseEvent is the envelope shared by all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderLineData is the line payload carried inside order events
type OrderLineData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderCreatedEvent is published when a new order is opened for a user
type OrderCreatedEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
	UserID  int64 `json:"user_id"`
}

// OrderConfirmedEvent is published after a successful checkout
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	UserID  int64           `json:"user_id"`
	Total   decimal.Decimal `json:"total"`
	Lines   []OrderLineData `json:"lines"`
}

// OrderStatusChangedEvent is published on every accepted status change
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID int64       `json:"order_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
}

// OrderCancelledEvent is published when an order is cancelled; Repositioned
// lists the stock given back per product for PENDING cancellations.
type OrderCancelledEvent struct {
	BaseEvent
	OrderID      int64           `json:"order_id"`
	UserID       int64           `json:"user_id"`
	Repositioned []OrderLineData `json:"repositioned,omitempty"`
}

// EventLines builds the event payload for an order's current lines
func EventLines(o *Order) []OrderLineData {
	lines := make([]OrderLineData, 0, len(o.Lines))
	for i := range o.Lines {
		lines = append(lines, OrderLineData{
			ProductID: o.Lines[i].ProductID,
			Quantity:  o.Lines[i].Quantity,
			UnitPrice: o.Lines[i].UnitPrice,
		})
	}
	return lines
}
