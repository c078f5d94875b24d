package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrProductNotFound is returned when a product ID matches nothing.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound is returned when an order ID matches nothing.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUserNotFound is returned when a user lookup matches nothing.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering an already-used email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidToken is returned when a reservation ID is unknown or
	// already consumed.
	ErrInvalidToken = errors.New("invalid reservation token")
	// ErrInvalidCredentials is returned on a failed login. It never says
	// whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// InvalidInputError rejects a malformed request before any state changes.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// InvalidStateError rejects an order transition not allowed from the
// order's current status.
type InvalidStateError struct {
	OrderID string
	Status  OrderStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order %s is %s and cannot transition", e.OrderID, e.Status)
}

// InsufficientStockError reports a reservation attempt that exceeds what is
// currently available for a product.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// BusyError reports contention on a resource that did not resolve within
// the bounded wait. Callers may retry.
type BusyError struct {
	Resource string
	Wait     time.Duration
}

func (e *BusyError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("resource %s is busy after waiting %s", e.Resource, e.Wait)
	}
	return fmt.Sprintf("resource %s is busy", e.Resource)
}

// StorageError wraps a failure from a durable store so transport layers can
// distinguish infrastructure faults from domain rejections.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
