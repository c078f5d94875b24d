package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/vrd2140/storefront/internal/core/domain"
)

const DefaultReserveWait = 2 * time.Second

// Ledger holds the authoritative available/reserved counters per product.
// Every read-check-modify cycle on a product's counters runs under that
// product's semaphore, so concurrent reservations are linearizable per
// product. No lock ever spans two products; multi-product callers must
// acquire reservations in ascending product ID order.
type Ledger struct {
	reserveWait time.Duration

	mu       sync.RWMutex // guards the two maps, never held across counter updates
	products map[string]*record
	tokens   map[string]*domain.Reservation
}

type record struct {
	sem      *semaphore.Weighted // weight 1, serializes counter access
	total    int
	reserved int
}

func NewLedger(reserveWait time.Duration) *Ledger {
	if reserveWait <= 0 {
		reserveWait = DefaultReserveWait
	}
	return &Ledger{
		reserveWait: reserveWait,
		products:    make(map[string]*record),
		tokens:      make(map[string]*domain.Reservation),
	}
}

// TryReserve claims quantity against the product's available stock. The
// returned reservation is consume-once: exactly one Release or Commit will
// ever succeed for it.
func (l *Ledger) TryReserve(ctx context.Context, orderID, productID string, quantity int) (*domain.Reservation, error) {
	if quantity <= 0 {
		return nil, &domain.InvalidInputError{Reason: "reserve quantity must be positive"}
	}

	rec, ok := l.lookup(productID)
	if !ok {
		return nil, fmt.Errorf("reserve %s: %w", productID, domain.ErrProductNotFound)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, l.reserveWait)
	defer cancel()
	if err := rec.sem.Acquire(acquireCtx, 1); err != nil {
		return nil, &domain.BusyError{Resource: "product:" + productID, Wait: l.reserveWait}
	}
	defer rec.sem.Release(1)

	available := rec.total - rec.reserved
	if available < quantity {
		return nil, &domain.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: available,
		}
	}

	rec.reserved += quantity
	res := &domain.Reservation{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
	}

	l.mu.Lock()
	l.tokens[res.ID] = res
	l.mu.Unlock()

	return res, nil
}

// Release returns a reservation's quantity to available stock. The token is
// claimed out of the registry before the counters change, so a second Release
// with the same ID always fails instead of double-releasing.
func (l *Ledger) Release(reservationID string) error {
	res, err := l.consume(reservationID)
	if err != nil {
		return err
	}

	rec, _ := l.lookup(res.ProductID)
	l.acquire(rec)
	rec.reserved -= res.Quantity
	rec.sem.Release(1)
	return nil
}

// Commit turns a reservation into a permanent deduction: both total and
// reserved drop by the reservation's quantity. Same consume-once discipline
// as Release.
func (l *Ledger) Commit(reservationID string) error {
	res, err := l.consume(reservationID)
	if err != nil {
		return err
	}

	rec, _ := l.lookup(res.ProductID)
	l.acquire(rec)
	rec.total -= res.Quantity
	rec.reserved -= res.Quantity
	rec.sem.Release(1)
	return nil
}

// Provision creates a product record or resizes an existing one. The new
// total must cover what is already reserved.
func (l *Ledger) Provision(productID string, totalStock int) error {
	if productID == "" {
		return &domain.InvalidInputError{Reason: "product id is empty"}
	}
	if totalStock < 0 {
		return &domain.InvalidInputError{Reason: "total stock must not be negative"}
	}

	l.mu.Lock()
	rec, ok := l.products[productID]
	if !ok {
		l.products[productID] = &record{
			sem:   semaphore.NewWeighted(1),
			total: totalStock,
		}
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	l.acquire(rec)
	defer rec.sem.Release(1)
	if totalStock < rec.reserved {
		return &domain.InvalidInputError{
			Reason: fmt.Sprintf("total stock %d for %s is below reserved %d", totalStock, productID, rec.reserved),
		}
	}
	rec.total = totalStock
	return nil
}

// Restore re-registers a previously issued reservation, bumping the reserved
// counter. Used at boot to rebuild the ledger from persisted pending orders.
func (l *Ledger) Restore(res *domain.Reservation) error {
	if res == nil || res.ID == "" || res.Quantity <= 0 {
		return &domain.InvalidInputError{Reason: "malformed reservation"}
	}

	rec, ok := l.lookup(res.ProductID)
	if !ok {
		return fmt.Errorf("restore %s: %w", res.ProductID, domain.ErrProductNotFound)
	}

	l.acquire(rec)
	defer rec.sem.Release(1)
	if rec.total-rec.reserved < res.Quantity {
		return &domain.InsufficientStockError{
			ProductID: res.ProductID,
			Requested: res.Quantity,
			Available: rec.total - rec.reserved,
		}
	}
	rec.reserved += res.Quantity

	l.mu.Lock()
	l.tokens[res.ID] = res
	l.mu.Unlock()
	return nil
}

// Stock returns the product's current counters.
func (l *Ledger) Stock(productID string) (domain.Availability, error) {
	rec, ok := l.lookup(productID)
	if !ok {
		return domain.Availability{}, fmt.Errorf("stock %s: %w", productID, domain.ErrProductNotFound)
	}

	l.acquire(rec)
	defer rec.sem.Release(1)
	return domain.Availability{
		ProductID:  productID,
		TotalStock: rec.total,
		Reserved:   rec.reserved,
	}, nil
}

func (l *Ledger) lookup(productID string) (*record, bool) {
	l.mu.RLock()
	rec, ok := l.products[productID]
	l.mu.RUnlock()
	return rec, ok
}

// consume claims a token out of the registry, invalidating it.
func (l *Ledger) consume(reservationID string) (*domain.Reservation, error) {
	l.mu.Lock()
	res, ok := l.tokens[reservationID]
	if ok {
		delete(l.tokens, reservationID)
	}
	l.mu.Unlock()
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	return res, nil
}

// acquire blocks until the record's semaphore is held. Holders only touch
// counters, so the wait is always short; only TryReserve bounds it.
func (l *Ledger) acquire(rec *record) {
	_ = rec.sem.Acquire(context.Background(), 1)
}
