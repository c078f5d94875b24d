package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vrd2140/storefront/internal/core/domain"
	"github.com/vrd2140/storefront/internal/core/inventory"
)

// Mock ProductStore with failure injection
type mockProductStore struct {
	mu           sync.Mutex
	products     map[string]*domain.Product
	stock        map[string]int
	failSetStock bool
	setStockHits int
}

func newMockProductStore() *mockProductStore {
	return &mockProductStore{
		products: make(map[string]*domain.Product),
		stock:    make(map[string]int),
	}
}

func (m *mockProductStore) Create(_ context.Context, product *domain.Product, initialStock int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *product
	m.products[product.ID] = &clone
	m.stock[product.ID] = initialStock
	return nil
}

func (m *mockProductStore) Get(_ context.Context, productID string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	clone := *product
	return &clone, nil
}

func (m *mockProductStore) List(_ context.Context) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Product
	for _, p := range m.products {
		clone := *p
		out = append(out, &clone)
	}
	return out, nil
}

func (m *mockProductStore) Exists(_ context.Context, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.products[productID]
	return ok, nil
}

func (m *mockProductStore) UnitPrice(_ context.Context, productID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[productID]
	if !ok {
		return decimal.Zero, domain.ErrProductNotFound
	}
	return product.UnitPrice, nil
}

func (m *mockProductStore) SetStock(_ context.Context, productID string, totalStock int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStockHits++
	if m.failSetStock {
		return errors.New("injected set stock failure")
	}
	m.stock[productID] = totalStock
	return nil
}

func (m *mockProductStore) ListStock(_ context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.stock))
	for id, s := range m.stock {
		out[id] = s
	}
	return out, nil
}

func (m *mockProductStore) DeductStock(_ context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[productID] -= quantity
	return nil
}

func (m *mockProductStore) durableStock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[productID]
}

func newCatalogFixture(t *testing.T) (*CatalogService, *mockProductStore, *inventory.Ledger) {
	t.Helper()
	store := newMockProductStore()
	ledger := inventory.NewLedger(time.Second)
	return NewCatalogService(store, ledger, zerolog.Nop()), store, ledger
}

func TestCatalogCreateProduct_ProvisionsLedger(t *testing.T) {
	svc, store, ledger := newCatalogFixture(t)

	product, err := svc.CreateProduct(context.Background(), "widget", "", decimal.NewFromInt(5), 10)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	avail, err := ledger.Stock(product.ID)
	if err != nil {
		t.Fatalf("stock: %v", err)
	}
	if avail.Available() != 10 {
		t.Errorf("expected available 10, got %d", avail.Available())
	}
	if store.durableStock(product.ID) != 10 {
		t.Errorf("expected durable stock 10, got %d", store.durableStock(product.ID))
	}
}

func TestCatalogSetStock_StorageFailureLeavesLedgerUntouched(t *testing.T) {
	svc, store, ledger := newCatalogFixture(t)

	product, err := svc.CreateProduct(context.Background(), "widget", "", decimal.NewFromInt(5), 10)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	store.failSetStock = true
	_, err = svc.SetStock(context.Background(), product.ID, 50)
	var storeErr *domain.StorageError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StorageError, got: %v", err)
	}

	// the in-memory total must still match the durable row
	avail, _ := ledger.Stock(product.ID)
	if avail.TotalStock != 10 {
		t.Errorf("expected ledger total to stay 10, got %d", avail.TotalStock)
	}
	if store.durableStock(product.ID) != 10 {
		t.Errorf("expected durable stock to stay 10, got %d", store.durableStock(product.ID))
	}
}

func TestCatalogSetStock_BelowReservedRejectedBeforeWrite(t *testing.T) {
	svc, store, ledger := newCatalogFixture(t)

	product, err := svc.CreateProduct(context.Background(), "widget", "", decimal.NewFromInt(5), 10)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := ledger.TryReserve(context.Background(), "o1", product.ID, 4); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	hits := store.setStockHits

	_, err = svc.SetStock(context.Background(), product.ID, 3)
	var inputErr *domain.InvalidInputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("expected InvalidInputError, got: %v", err)
	}
	if store.setStockHits != hits {
		t.Error("expected the durable row to stay unwritten on rejection")
	}
}

func TestCatalogSetStock_Restock(t *testing.T) {
	svc, store, ledger := newCatalogFixture(t)

	product, err := svc.CreateProduct(context.Background(), "widget", "", decimal.NewFromInt(5), 2)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := ledger.TryReserve(context.Background(), "o1", product.ID, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	avail, err := svc.SetStock(context.Background(), product.ID, 8)
	if err != nil {
		t.Fatalf("set stock: %v", err)
	}
	if avail.TotalStock != 8 || avail.Reserved != 2 || avail.Available() != 6 {
		t.Errorf("unexpected availability: %+v", avail)
	}
	if store.durableStock(product.ID) != 8 {
		t.Errorf("expected durable stock 8, got %d", store.durableStock(product.ID))
	}
}
