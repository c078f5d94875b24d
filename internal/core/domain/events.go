package domain

import "time"

const (
	EventOrderCreated   = "order.created"
	EventOrderCancelled = "order.cancelled"
	EventOrderCompleted = "order.completed"
)

// OrderEvent is published after an order changes state. Delivery is
// fire-and-forget; consumers must tolerate duplicates.
type OrderEvent struct {
	Type       string      `json:"type"`
	OrderID    string      `json:"order_id"`
	UserID     string      `json:"user_id"`
	Status     OrderStatus `json:"status"`
	Total      string      `json:"total"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func NewOrderEvent(eventType string, o *Order) OrderEvent {
	return OrderEvent{
		Type:       eventType,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		Total:      o.Total.StringFixed(2),
		OccurredAt: time.Now(),
	}
}
