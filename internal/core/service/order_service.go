package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vrd2140/storefront/internal/core/domain"
	"github.com/vrd2140/storefront/internal/pkg/metrics"
	"github.com/vrd2140/storefront/internal/port"
)

// Line is a requested (product, quantity) pair before pricing.
type Line struct {
	ProductID string
	Quantity  int
}

// OrderService drives the all-or-nothing reservation protocol and the order
// state machine. Every reservation it takes is either bound to a persisted
// order or released within the same call.
type OrderService struct {
	store    port.OrderStore
	catalog  port.ProductCatalog
	ledger   port.InventoryLedger
	idem     port.IdempotencyStore
	events   port.EventPublisher
	deducter port.StockDeducter
	logger   zerolog.Logger
	tracer   trace.Tracer

	// advisory per-order locks so concurrent cancels/completes of one order
	// serialize; entries are never removed, orders are finite per process
	orderLocks sync.Map
}

func NewOrderService(
	store port.OrderStore,
	catalog port.ProductCatalog,
	ledger port.InventoryLedger,
	idem port.IdempotencyStore,
	events port.EventPublisher,
	deducter port.StockDeducter,
	logger zerolog.Logger,
) *OrderService {
	return &OrderService{
		store:    store,
		catalog:  catalog,
		ledger:   ledger,
		idem:     idem,
		events:   events,
		deducter: deducter,
		logger:   logger.With().Str("component", "order_service").Logger(),
		tracer:   otel.Tracer("storefront/order"),
	}
}

// CreateOrder reserves stock for every line, then persists a pending order.
// On the first reservation failure, or on a persistence failure, every
// reservation already taken in this call is released before the error
// surfaces: the net reserved quantity is unchanged. idemKey may be empty;
// when set and already bound to an order, that order is returned instead of
// creating a new one.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, lines []Line, idemKey string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrder",
		trace.WithAttributes(attribute.Int("order.lines", len(lines))))
	defer span.End()

	if err := validateLines(userID, lines); err != nil {
		return nil, err
	}

	useKey := idemKey != "" && s.idem != nil
	if useKey {
		existing, err := s.claimKey(ctx, idemKey)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	order, err := s.createOrder(ctx, userID, lines, idemKey)
	if err != nil {
		span.RecordError(err)
		if useKey {
			s.forgetKey(ctx, idemKey)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	if useKey {
		if err := s.idem.Bind(ctx, idemKey, order.ID); err != nil {
			// Drop the claim rather than leave it unbound: an unbound key
			// answers Busy until its TTL expires even though the order
			// exists. Freeing it lets a retry through at the cost of a
			// possible duplicate create.
			s.logger.Error().Err(err).Str("order_id", order.ID).Msg("failed to bind idempotency key")
			s.forgetKey(ctx, idemKey)
		}
	}

	metrics.OrdersCreated.Inc()
	s.publish(ctx, domain.NewOrderEvent(domain.EventOrderCreated, order))
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, userID string, lines []Line, idemKey string) (*domain.Order, error) {
	// fixed acquisition order across products, see ledger contract
	sorted := make([]Line, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	orderID := uuid.NewString()
	orderLines := make([]domain.OrderLine, 0, len(sorted))
	reserved := make([]string, 0, len(sorted))

	for _, line := range sorted {
		price, err := s.catalog.UnitPrice(ctx, line.ProductID)
		if err != nil {
			s.rollback(reserved)
			return nil, err
		}

		res, err := s.ledger.TryReserve(ctx, orderID, line.ProductID, line.Quantity)
		if err != nil {
			metrics.ReservationRejects.WithLabelValues(rejectReason(err)).Inc()
			s.rollback(reserved)
			return nil, err
		}
		reserved = append(reserved, res.ID)

		orderLines = append(orderLines, domain.OrderLine{
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			UnitPrice:     price,
			ReservationID: res.ID,
		})
	}

	order, err := domain.NewOrder(orderID, userID, orderLines)
	if err != nil {
		s.rollback(reserved)
		return nil, err
	}
	order.IdempotencyKey = idemKey

	if err := s.store.Create(ctx, order); err != nil {
		// a reservation must never outlive a failed order
		s.rollback(reserved)
		return nil, &domain.StorageError{Op: "create order", Err: err}
	}

	return order, nil
}

// rollback releases reservations taken so far, newest first.
func (s *OrderService) rollback(reservationIDs []string) {
	for i := len(reservationIDs) - 1; i >= 0; i-- {
		if err := s.ledger.Release(reservationIDs[i]); err != nil {
			s.logger.Error().Err(err).Str("reservation_id", reservationIDs[i]).
				Msg("CRITICAL rollback release failed")
		}
	}
}

// CancelOrder releases every reservation a pending order holds and marks it
// cancelled. A second cancel fails with *domain.InvalidStateError and leaves
// inventory untouched. requestingUserID is recorded for audit; ownership is
// the transport layer's concern.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, requestingUserID string) error {
	ctx, span := s.tracer.Start(ctx, "CancelOrder",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	unlock := s.lockOrder(orderID)
	defer unlock()

	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := order.Cancel(); err != nil {
		span.RecordError(err)
		return err
	}

	for _, line := range order.Lines {
		if err := s.ledger.Release(line.ReservationID); err != nil {
			// consume-once tokens make a re-driven cancel safe to continue
			s.logger.Warn().Err(err).Str("order_id", orderID).
				Str("reservation_id", line.ReservationID).Msg("release skipped")
		}
	}

	if err := s.store.Update(ctx, order); err != nil {
		return &domain.StorageError{Op: "update order", Err: err}
	}

	s.logger.Info().Str("order_id", orderID).Str("requested_by", requestingUserID).Msg("order cancelled")
	metrics.OrdersCancelled.Inc()
	s.publish(ctx, domain.NewOrderEvent(domain.EventOrderCancelled, order))
	return nil
}

// CompleteOrder commits every reservation a pending order holds, turning them
// into permanent stock deductions, and marks the order completed.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "CompleteOrder",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	unlock := s.lockOrder(orderID)
	defer unlock()

	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := order.Complete(); err != nil {
		span.RecordError(err)
		return err
	}

	for _, line := range order.Lines {
		if err := s.ledger.Commit(line.ReservationID); err != nil {
			s.logger.Warn().Err(err).Str("order_id", orderID).
				Str("reservation_id", line.ReservationID).Msg("commit skipped")
			continue
		}
		if s.deducter == nil {
			continue
		}
		if err := s.deducter.DeductStock(ctx, line.ProductID, line.Quantity); err != nil {
			s.logger.Error().Err(err).Str("order_id", orderID).Str("product_id", line.ProductID).
				Msg("CRITICAL durable stock deduction failed")
		}
	}

	if err := s.store.Update(ctx, order); err != nil {
		return &domain.StorageError{Op: "update order", Err: err}
	}

	metrics.OrdersCompleted.Inc()
	s.publish(ctx, domain.NewOrderEvent(domain.EventOrderCompleted, order))
	return nil
}

// ExpireStaleOrders cancels pending orders created before now-olderThan,
// returning how many were cancelled. Races with concurrent cancels are
// tolerated; an order that left pending in the meantime is skipped.
func (s *OrderService) ExpireStaleOrders(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	stale, err := s.store.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, &domain.StorageError{Op: "list pending orders", Err: err}
	}

	expired := 0
	for _, order := range stale {
		if err := s.CancelOrder(ctx, order.ID, "janitor"); err != nil {
			s.logger.Debug().Err(err).Str("order_id", order.ID).Msg("stale order not expired")
			continue
		}
		metrics.OrdersExpired.Inc()
		expired++
	}
	return expired, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.store.Get(ctx, orderID)
}

func (s *OrderService) GetUserOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.store.ListByUser(ctx, userID)
}

// claimKey resolves an idempotency key: nil,nil means the key is freshly
// claimed and creation should proceed.
func (s *OrderService) claimKey(ctx context.Context, key string) (*domain.Order, error) {
	claimed, boundOrderID, err := s.idem.Claim(ctx, key)
	if err != nil {
		return nil, &domain.StorageError{Op: "claim idempotency key", Err: err}
	}
	if claimed {
		return nil, nil
	}
	if boundOrderID == "" {
		// original request still in flight
		return nil, &domain.BusyError{Resource: "idempotency:" + key}
	}
	order, err := s.store.Get(ctx, boundOrderID)
	if err != nil {
		return nil, fmt.Errorf("idempotency key %s bound to unknown order %s: %w", key, boundOrderID, err)
	}
	return order, nil
}

func (s *OrderService) forgetKey(ctx context.Context, key string) {
	if err := s.idem.Forget(ctx, key); err != nil {
		s.logger.Error().Err(err).Msg("failed to forget idempotency key")
	}
}

func (s *OrderService) publish(ctx context.Context, event domain.OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("event", event.Type).Str("order_id", event.OrderID).
			Msg("failed to publish order event")
	}
}

func (s *OrderService) lockOrder(orderID string) func() {
	v, _ := s.orderLocks.LoadOrStore(orderID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func validateLines(userID string, lines []Line) error {
	if userID == "" {
		return &domain.InvalidInputError{Reason: "user id is empty"}
	}
	if len(lines) == 0 {
		return &domain.InvalidInputError{Reason: "order has no lines"}
	}
	for i, l := range lines {
		if l.ProductID == "" {
			return &domain.InvalidInputError{Reason: fmt.Sprintf("line %d: product id is empty", i)}
		}
		if l.Quantity <= 0 {
			return &domain.InvalidInputError{Reason: fmt.Sprintf("line %d: quantity must be positive", i)}
		}
	}
	return nil
}

func rejectReason(err error) string {
	switch err.(type) {
	case *domain.InsufficientStockError:
		return "insufficient_stock"
	case *domain.BusyError:
		return "busy"
	default:
		return "other"
	}
}
