package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vrd2140/storefront/internal/core/domain"
	"github.com/vrd2140/storefront/internal/core/inventory"
	"github.com/vrd2140/storefront/internal/core/service"
	"github.com/vrd2140/storefront/internal/pkg/logging"
)

// loadgen drives N concurrent CreateOrder calls against an in-memory wiring
// and verifies that exactly available-stock orders succeed and nothing leaks.
func main() {
	stock := flag.Int("stock", 20, "initial stock for the test product")
	requests := flag.Int("requests", 50, "concurrent order attempts")
	flag.Parse()

	const productID = "load-test-product"
	ctx := context.Background()
	logger := logging.New("error", "console")

	ledger := inventory.NewLedger(2 * time.Second)
	if err := ledger.Provision(productID, *stock); err != nil {
		logger.Fatal().Err(err).Msg("failed to provision stock")
	}

	catalog := &fixedCatalog{prices: map[string]decimal.Decimal{
		productID: decimal.NewFromInt(10),
	}}
	store := newMemOrderStore()
	svc := service.NewOrderService(store, catalog, ledger, nil, nil, nil, logger)

	var successCount, failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *requests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			_, err := svc.CreateOrder(ctx, fmt.Sprintf("user-%d", userID),
				[]service.Line{{ProductID: productID, Quantity: 1}}, "")
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== LOAD GENERATOR RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *stock)
	fmt.Printf("Total Requests:   %d\n", *requests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("============================================")

	expected := int32(*stock)
	if int32(*requests) < expected {
		expected = int32(*requests)
	}
	if success == expected {
		fmt.Printf("PASS: exactly %d orders succeeded\n", expected)
	} else {
		fmt.Printf("FAIL: expected %d successes, got %d\n", expected, success)
	}

	avail, _ := ledger.Stock(productID)
	fmt.Printf("Final reserved: %d, available: %d\n", avail.Reserved, avail.Available())
	if avail.Reserved == int(success) {
		fmt.Println("PASS: reserved matches persisted orders, no reservation leaked")
	} else {
		fmt.Printf("FAIL: reserved %d does not match %d persisted orders\n", avail.Reserved, success)
	}
}

type fixedCatalog struct {
	prices map[string]decimal.Decimal
}

func (c *fixedCatalog) Exists(_ context.Context, productID string) (bool, error) {
	_, ok := c.prices[productID]
	return ok, nil
}

func (c *fixedCatalog) UnitPrice(_ context.Context, productID string) (decimal.Decimal, error) {
	price, ok := c.prices[productID]
	if !ok {
		return decimal.Zero, domain.ErrProductNotFound
	}
	return price, nil
}

type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]*domain.Order)}
}

func (s *memOrderStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *order
	s.orders[order.ID] = &clone
	return nil
}

func (s *memOrderStore) Get(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	clone := *order
	return &clone, nil
}

func (s *memOrderStore) Update(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	clone := *order
	s.orders[order.ID] = &clone
	return nil
}

func (s *memOrderStore) ListByUser(_ context.Context, userID string) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			clone := *o
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memOrderStore) ListPendingBefore(_ context.Context, cutoff time.Time) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Order
	for _, o := range s.orders {
		if o.Status == domain.OrderStatusPending && o.CreatedAt.Before(cutoff) {
			clone := *o
			out = append(out, &clone)
		}
	}
	return out, nil
}
