package models

import "time"

// Event types
const (
	EventTypeOrderPlaced    = "ORDER_PLACED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderLineData represents line data carried in events
type OrderLineData struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// OrderPlacedEvent is published when checkout confirmation succeeds.
type OrderPlacedEvent struct {
	BaseEvent
	OrderID    int64           `json:"order_id"`
	SessionID  string          `json:"session_id"`
	CustomerID *int64          `json:"customer_id,omitempty"`
	GuestEmail string          `json:"guest_email,omitempty"`
	TotalPrice int64           `json:"total_price"`
	Lines      []OrderLineData `json:"lines"`
}

// OrderCancelledEvent is published when a pending order is cancelled.
type OrderCancelledEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	SessionID  string `json:"session_id"`
	CustomerID *int64 `json:"customer_id,omitempty"`
	GuestEmail string `json:"guest_email,omitempty"`
	Reason     string `json:"reason"`
}
