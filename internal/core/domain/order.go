package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusCompleted OrderStatus = "completed"
)

// OrderLine is one product claim within an order. ReservationID references the
// inventory reservation backing the line so cancellation releases exactly this
// quantity.
type OrderLine struct {
	ProductID     string
	Quantity      int
	UnitPrice     decimal.Decimal
	ReservationID string
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID             string
	UserID         string
	Lines          []OrderLine
	Total          decimal.Decimal
	Status         OrderStatus
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOrder builds a pending order and computes its total from the lines.
func NewOrder(id, userID string, lines []OrderLine) (*Order, error) {
	if id == "" {
		return nil, &InvalidInputError{Reason: "order id is empty"}
	}
	if userID == "" {
		return nil, &InvalidInputError{Reason: "user id is empty"}
	}
	if len(lines) == 0 {
		return nil, &InvalidInputError{Reason: "order has no lines"}
	}

	total := decimal.Zero
	for i, l := range lines {
		if l.ProductID == "" {
			return nil, &InvalidInputError{Reason: fmt.Sprintf("line %d: product id is empty", i)}
		}
		if l.Quantity <= 0 {
			return nil, &InvalidInputError{Reason: fmt.Sprintf("line %d: quantity must be positive", i)}
		}
		total = total.Add(l.Subtotal())
	}

	now := time.Now()
	return &Order{
		ID:        id,
		UserID:    userID,
		Lines:     lines,
		Total:     total,
		Status:    OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Cancel transitions pending -> cancelled. Cancelled is terminal.
func (o *Order) Cancel() error {
	if o.Status != OrderStatusPending {
		return &InvalidStateError{OrderID: o.ID, Status: o.Status}
	}
	o.Status = OrderStatusCancelled
	o.UpdatedAt = time.Now()
	return nil
}

// Complete transitions pending -> completed. Completed is terminal.
func (o *Order) Complete() error {
	if o.Status != OrderStatusPending {
		return &InvalidStateError{OrderID: o.ID, Status: o.Status}
	}
	o.Status = OrderStatusCompleted
	o.UpdatedAt = time.Now()
	return nil
}
