package port

import (
	"context"

	"github.com/vrd2140/storefront/internal/core/domain"
)

type InventoryLedger interface {
	// TryReserve atomically claims quantity against a product's available
	// stock and returns a consume-once reservation. Fails with
	// domain.ErrProductNotFound, *domain.InsufficientStockError or
	// *domain.BusyError.
	TryReserve(ctx context.Context, orderID, productID string, quantity int) (*domain.Reservation, error)

	// Release returns a reservation's quantity to available stock and
	// invalidates it. A consumed or unknown ID fails domain.ErrInvalidToken.
	Release(reservationID string) error

	// Commit converts a reservation into a permanent stock deduction and
	// invalidates it. A consumed or unknown ID fails domain.ErrInvalidToken.
	Commit(reservationID string) error

	// Provision creates or resizes a product's stock record. Rejects totals
	// below the currently reserved quantity.
	Provision(productID string, totalStock int) error

	// Stock returns the product's current counters.
	Stock(productID string) (domain.Availability, error)
}
