package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vrd2140/storefront/internal/core/domain"
)

var ErrStockConflict = errors.New("stock deduction conflict")

type MySQLProductStore struct {
	db *sql.DB
}

func NewMySQLProductStore(db *sql.DB) *MySQLProductStore {
	return &MySQLProductStore{db: db}
}

func (s *MySQLProductStore) Create(ctx context.Context, product *domain.Product, initialStock int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, description, unit_price, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		product.ID, product.Name, product.Description, product.UnitPrice,
		product.Active, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory (product_id, stock) VALUES (?, ?)`,
		product.ID, initialStock,
	)
	if err != nil {
		return fmt.Errorf("insert inventory: %w", err)
	}

	return tx.Commit()
}

func (s *MySQLProductStore) Get(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, unit_price, active, created_at, updated_at
		FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Name, &p.Description, &p.UnitPrice, &p.Active, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (s *MySQLProductStore) List(ctx context.Context) ([]*domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, unit_price, active, created_at, updated_at
		FROM products WHERE active = TRUE ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.UnitPrice,
			&p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

func (s *MySQLProductStore) Exists(ctx context.Context, productID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM products WHERE id = ? AND active = TRUE`, productID,
	).Scan(&one)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query product: %w", err)
	}
	return true, nil
}

func (s *MySQLProductStore) UnitPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT unit_price FROM products WHERE id = ? AND active = TRUE`, productID,
	).Scan(&price)

	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, domain.ErrProductNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("query unit price: %w", err)
	}
	return price, nil
}

func (s *MySQLProductStore) SetStock(ctx context.Context, productID string, totalStock int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, stock) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE stock = ?`,
		productID, totalStock, totalStock,
	)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}
	return nil
}

func (s *MySQLProductStore) ListStock(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT product_id, stock FROM inventory`)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	stock := make(map[string]int)
	for rows.Next() {
		var (
			productID string
			total     int
		)
		if err := rows.Scan(&productID, &total); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		stock[productID] = total
	}
	return stock, rows.Err()
}

func (s *MySQLProductStore) DeductStock(ctx context.Context, productID string, quantity int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE inventory SET stock = stock - ? WHERE product_id = ? AND stock >= ?`,
		quantity, productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("deduct stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrStockConflict
	}
	return nil
}
