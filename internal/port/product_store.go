package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vrd2140/storefront/internal/core/domain"
)

// ProductCatalog is the read-only view the order coordinator needs.
type ProductCatalog interface {
	// Exists reports whether an active product with the given ID exists.
	Exists(ctx context.Context, productID string) (bool, error)

	// UnitPrice returns the current price of an active product, or
	// domain.ErrProductNotFound.
	UnitPrice(ctx context.Context, productID string) (decimal.Decimal, error)
}

// StockDeducter persists permanent stock deductions made by completed orders.
type StockDeducter interface {
	DeductStock(ctx context.Context, productID string, quantity int) error
}

type ProductStore interface {
	ProductCatalog

	// Create persists a product together with its inventory row.
	Create(ctx context.Context, product *domain.Product, initialStock int) error

	// Get loads a product by ID, returning domain.ErrProductNotFound if absent.
	Get(ctx context.Context, productID string) (*domain.Product, error)

	// List returns all active products.
	List(ctx context.Context) ([]*domain.Product, error)

	// SetStock sets the durable total stock for a product.
	SetStock(ctx context.Context, productID string, totalStock int) error

	// ListStock returns the durable stock level of every product.
	ListStock(ctx context.Context) (map[string]int, error)

	// DeductStock permanently removes quantity from a product's durable stock.
	// Fails if the row would go negative.
	DeductStock(ctx context.Context, productID string, quantity int) error
}
