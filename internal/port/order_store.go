package port

import (
	"context"
	"time"

	"github.com/vrd2140/storefront/internal/core/domain"
)

type OrderStore interface {
	// Create persists a new order with its lines.
	Create(ctx context.Context, order *domain.Order) error

	// Get loads an order by ID, returning domain.ErrOrderNotFound if absent.
	Get(ctx context.Context, orderID string) (*domain.Order, error)

	// Update persists the order's current status and timestamps.
	Update(ctx context.Context, order *domain.Order) error

	// ListByUser returns a user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Order, error)

	// ListPendingBefore returns pending orders created before the cutoff.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Order, error)
}
