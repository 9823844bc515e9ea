package models

import "time"

// Event types
const (
	EventTypeOrderPlaced    = "ORDER_PLACED"
	EventTypeOrderExpired   = "ORDER_EXPIRED"
	EventTypePaymentSuccess = "PAYMENT_SUCCESS"
	EventTypePaymentFailed  = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent is published, fire and forget, for every order a checkout
// fan-out creates. Notification delivery is a downstream concern.
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  int64           `json:"customer_id"`
	StoreID     int64           `json:"store_id"`
	GrandTotal  int64           `json:"grand_total"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Items       []OrderItemData `json:"items"`
}

// OrderExpiredEvent is published when the expiry sweep cancels an unpaid
// order past its payment deadline.
type OrderExpiredEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	CustomerID  int64  `json:"customer_id"`
}

// PaymentSuccessEvent is published by the payment collaborator
type PaymentSuccessEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Amount  int64  `json:"amount"`
	TxID    string `json:"tx_id"`
}

// PaymentFailedEvent is published by the payment collaborator
type PaymentFailedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}
