package tests

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vrd2140/storefront/internal/adapter/storage"
	"github.com/vrd2140/storefront/internal/core/domain"
	"github.com/vrd2140/storefront/internal/core/inventory"
	"github.com/vrd2140/storefront/internal/core/service"
)

type testEnv struct {
	db     *sql.DB
	rdb    *redis.Client
	orders *storage.MySQLOrderStore
	prods  *storage.MySQLProductStore
	ledger *inventory.Ledger
	svc    *service.OrderService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	t.Cleanup(func() {
		rdb.Close()
		db.Close()
	})

	orders := storage.NewMySQLOrderStore(db)
	prods := storage.NewMySQLProductStore(db)
	ledger := inventory.NewLedger(2 * time.Second)
	idem := storage.NewRedisIdempotencyStore(rdb, time.Minute)

	svc := service.NewOrderService(orders, prods, ledger, idem, nil, prods, zerolog.Nop())
	return &testEnv{db: db, rdb: rdb, orders: orders, prods: prods, ledger: ledger, svc: svc}
}

func (env *testEnv) createProduct(t *testing.T, stock int) string {
	t.Helper()

	product := &domain.Product{
		ID:        uuid.NewString(),
		Name:      "integration product",
		UnitPrice: decimal.RequireFromString("10.00"),
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := env.prods.Create(context.Background(), product, stock); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := env.ledger.Provision(product.ID, stock); err != nil {
		t.Fatalf("provision: %v", err)
	}

	t.Cleanup(func() {
		env.db.Exec(`DELETE FROM order_lines WHERE product_id = ?`, product.ID)
		env.db.Exec(`DELETE FROM orders WHERE id IN (SELECT order_id FROM order_lines WHERE product_id = ?)`, product.ID)
		env.db.Exec(`DELETE FROM inventory WHERE product_id = ?`, product.ID)
		env.db.Exec(`DELETE FROM products WHERE id = ?`, product.ID)
	})
	return product.ID
}

func TestIntegration_ConcurrentOrders_NoOversell(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	const (
		stock    = 10
		attempts = 20
	)
	productID := env.createProduct(t, stock)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	orderIDs := make(chan string, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := env.svc.CreateOrder(ctx, "integration-user",
				[]service.Line{{ProductID: productID, Quantity: 1}}, "")
			if err == nil {
				successCount.Add(1)
				orderIDs <- order.ID
			}
		}()
	}
	wg.Wait()
	close(orderIDs)

	if successCount.Load() != stock {
		t.Errorf("expected %d successful orders, got %d", stock, successCount.Load())
	}

	avail, _ := env.ledger.Stock(productID)
	if avail.Available() != 0 || avail.Reserved != stock {
		t.Errorf("expected available 0 reserved %d, got %+v", stock, avail)
	}

	var count int
	env.db.QueryRow(`
		SELECT COUNT(DISTINCT o.id) FROM orders o
		JOIN order_lines l ON l.order_id = o.id
		WHERE l.product_id = ?`, productID).Scan(&count)
	if count != stock {
		t.Errorf("expected %d orders in MySQL, got %d", stock, count)
	}

	// cleanup the created orders
	for orderID := range orderIDs {
		env.db.Exec(`DELETE FROM order_lines WHERE order_id = ?`, orderID)
		env.db.Exec(`DELETE FROM orders WHERE id = ?`, orderID)
	}
}

func TestIntegration_CancelRestoresAvailability(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	productID := env.createProduct(t, 5)

	order, err := env.svc.CreateOrder(ctx, "integration-user",
		[]service.Line{{ProductID: productID, Quantity: 3}}, "")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := env.svc.CancelOrder(ctx, order.ID, "integration-user"); err != nil {
		t.Fatalf("cancel order: %v", err)
	}

	avail, _ := env.ledger.Stock(productID)
	if avail.Available() != 5 {
		t.Errorf("expected available 5, got %d", avail.Available())
	}

	loaded, err := env.svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != domain.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %s", loaded.Status)
	}

	// idempotent in effect: the second cancel fails and changes nothing
	if err := env.svc.CancelOrder(ctx, order.ID, "integration-user"); err == nil {
		t.Error("expected second cancel to fail")
	}
}

func TestIntegration_IdempotencyKeyAcrossRedis(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	productID := env.createProduct(t, 10)
	key := "itest-" + uuid.NewString()

	first, err := env.svc.CreateOrder(ctx, "integration-user",
		[]service.Line{{ProductID: productID, Quantity: 1}}, key)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	second, err := env.svc.CreateOrder(ctx, "integration-user",
		[]service.Line{{ProductID: productID, Quantity: 1}}, key)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected replay to return order %s, got %s", first.ID, second.ID)
	}

	avail, _ := env.ledger.Stock(productID)
	if avail.Reserved != 1 {
		t.Errorf("expected a single reservation, got %d", avail.Reserved)
	}
	env.rdb.Del(ctx, "idem:"+key)
}

func TestIntegration_CompletePersistsDeduction(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	productID := env.createProduct(t, 5)

	order, err := env.svc.CreateOrder(ctx, "integration-user",
		[]service.Line{{ProductID: productID, Quantity: 2}}, "")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := env.svc.CompleteOrder(ctx, order.ID); err != nil {
		t.Fatalf("complete order: %v", err)
	}

	stock, err := env.prods.ListStock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stock[productID] != 3 {
		t.Errorf("expected durable stock 3, got %d", stock[productID])
	}

	avail, _ := env.ledger.Stock(productID)
	if avail.TotalStock != 3 || avail.Reserved != 0 {
		t.Errorf("expected ledger total 3 reserved 0, got %+v", avail)
	}
}
