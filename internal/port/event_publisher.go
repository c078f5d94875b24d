package port

import (
	"context"

	"github.com/vrd2140/storefront/internal/core/domain"
)

type EventPublisher interface {
	// Publish emits an order event. Callers treat failures as non-fatal.
	Publish(ctx context.Context, event domain.OrderEvent) error
}
