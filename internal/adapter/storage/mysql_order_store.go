package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vrd2140/storefront/internal/core/domain"
)

type MySQLOrderStore struct {
	db *sql.DB
}

func NewMySQLOrderStore(db *sql.DB) *MySQLOrderStore {
	return &MySQLOrderStore{db: db}
}

func (s *MySQLOrderStore) Create(ctx context.Context, order *domain.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, status, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.Total, order.Status,
		nullable(order.IdempotencyKey), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, quantity, unit_price, reservation_id)
			VALUES (?, ?, ?, ?, ?, ?)`,
			order.ID, i, line.ProductID, line.Quantity, line.UnitPrice, line.ReservationID,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	return tx.Commit()
}

func (s *MySQLOrderStore) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.scanOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.loadLines(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *MySQLOrderStore) Update(ctx context.Context, order *domain.Order) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		order.Status, order.UpdatedAt, order.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (s *MySQLOrderStore) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.list(ctx, `
		SELECT id, user_id, total, status, idempotency_key, created_at, updated_at
		FROM orders WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

func (s *MySQLOrderStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Order, error) {
	return s.list(ctx, `
		SELECT id, user_id, total, status, idempotency_key, created_at, updated_at
		FROM orders WHERE status = ? AND created_at < ?`, domain.OrderStatusPending, cutoff)
}

func (s *MySQLOrderStore) scanOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var (
		order   domain.Order
		idemKey sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, total, status, idempotency_key, created_at, updated_at
		FROM orders WHERE id = ?`, orderID,
	).Scan(&order.ID, &order.UserID, &order.Total, &order.Status, &idemKey,
		&order.CreatedAt, &order.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	order.IdempotencyKey = idemKey.String
	return &order, nil
}

func (s *MySQLOrderStore) loadLines(ctx context.Context, order *domain.Order) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, reservation_id
		FROM order_lines WHERE order_id = ? ORDER BY line_no`, order.ID)
	if err != nil {
		return fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice, &line.ReservationID); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}
	return rows.Err()
}

func (s *MySQLOrderStore) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var (
			order   domain.Order
			idemKey sql.NullString
		)
		if err := rows.Scan(&order.ID, &order.UserID, &order.Total, &order.Status,
			&idemKey, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		order.IdempotencyKey = idemKey.String
		orders = append(orders, &order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, order := range orders {
		if err := s.loadLines(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
