package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrder creates a new order in the CREATED state
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, total, status)
		VALUES ($1, $2, $3)
		RETURNING id, version, created_at`

	return s.db.GetContext(ctx, order, query,
		order.UserID, order.Total, order.Status)
}

// GetOrderWithLines retrieves an order together with its lines and each
// line's product in one fetch.
func (s *Store) GetOrderWithLines(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var lines []models.OrderLine
	err = s.db.SelectContext(ctx, &lines,
		"SELECT * FROM order_lines WHERE order_id = $1 ORDER BY product_id", id)
	if err != nil {
		return nil, err
	}

	productIDs := make([]int64, len(lines))
	for i := range lines {
		productIDs[i] = lines[i].ProductID
	}
	products, err := s.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	for i := range lines {
		lines[i].Product = byID[lines[i].ProductID]
	}

	order.Lines = lines
	return &order, nil
}

// SaveOrder persists the order header with an optimistic version check and
// syncs its lines: current lines are upserted and any line no longer in
// the collection is deleted (orphan removal).
func (s *Store) SaveOrder(ctx context.Context, order *models.Order) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET total = $1, status = $2, version = version + 1 WHERE id = $3 AND version = $4",
		order.Total, order.Status, order.ID, order.Version)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var exists bool
		if err := s.db.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", order.ID); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %d", models.ErrOrderNotFound, order.ID)
		}
		return fmt.Errorf("%w: order %d", models.ErrVersionConflict, order.ID)
	}
	order.Version++

	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (order_id, product_id)
			DO UPDATE SET quantity = EXCLUDED.quantity, unit_price = EXCLUDED.unit_price`,
			line.OrderID, line.ProductID, line.Quantity, line.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to upsert order line: %w", err)
		}
	}

	if len(order.Lines) == 0 {
		_, err = s.db.ExecContext(ctx, "DELETE FROM order_lines WHERE order_id = $1", order.ID)
		return err
	}

	keep := make([]int64, len(order.Lines))
	for i := range order.Lines {
		keep[i] = order.Lines[i].ProductID
	}
	query, args, err := sqlx.In(
		"DELETE FROM order_lines WHERE order_id = ? AND product_id NOT IN (?)", order.ID, keep)
	if err != nil {
		return err
	}
	query = s.db.Rebind(query)
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// DeleteOrder removes an order and all of its lines
func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM order_lines WHERE order_id = $1", id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	return nil
}

// ListOrdersByUser retrieves orders for a user, newest first
func (s *Store) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// ListOrders retrieves all orders, newest first
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, "SELECT * FROM orders ORDER BY created_at DESC")
	return orders, err
}
