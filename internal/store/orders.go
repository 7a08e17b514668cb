package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"remit/internal/models"
)

const orderColumns = `id, user_id, total, currency, status, shipping_address, payment_id, created_at, updated_at`

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o         models.Order
		paymentID sql.NullString
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Total, &o.Currency, &o.Status,
		&o.ShippingAddress, &paymentID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	o.PaymentID = paymentID.String
	return &o, nil
}

// CreateOrder inserts the order and its items atomically.
func (s *PostgresStore) CreateOrder(ctx context.Context, o *models.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order transaction: %w", err)
	}
	defer tx.Rollback()

	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, total, currency, status, shipping_address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		o.UserID, o.Total, o.Currency, o.Status, o.ShippingAddress,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return mapError(err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		if err := stmt.QueryRowContext(ctx, item.OrderID, item.ProductID, item.Quantity, item.Price).Scan(&item.ID); err != nil {
			return mapError(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit order transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if err != nil {
		return nil, err
	}
	if o.Items, err = s.orderItems(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PostgresStore) orderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if orders[i].Items, err = s.orderItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *PostgresStore) ClaimOrder(ctx context.Context, id int64, staleBefore time.Time, key string) (string, error) {
	query := `
		UPDATE orders
		SET settling_at = NOW(), settle_key = COALESCE(settle_key, $3)
		WHERE id = $1
			AND status = 'pending'
			AND (settling_at IS NULL OR settling_at < $2)
		RETURNING settle_key`

	var stored string
	err := s.db.QueryRowContext(ctx, query, id, staleBefore, key).Scan(&stored)
	return claimedKey(stored, err)
}

func (s *PostgresStore) CompleteOrder(ctx context.Context, id int64, paymentID, status string) error {
	query := `
		UPDATE orders
		SET status = $3, payment_id = $2, settling_at = NULL, settle_key = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	res, err := s.db.ExecContext(ctx, query, id, paymentID, status)
	return updatedOne(res, err, ErrClaimed)
}

func (s *PostgresStore) ReleaseOrder(ctx context.Context, id int64, keepKey bool) error {
	query := `
		UPDATE orders
		SET settling_at = NULL,
			settle_key = CASE WHEN $2 THEN settle_key END,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	res, err := s.db.ExecContext(ctx, query, id, keepKey)
	return updatedOne(res, err, ErrClaimed)
}
