package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pcstore-service/internal/apperr"
	"pcstore-service/internal/models"
	"pcstore-service/internal/protocol"
)

// OrderMutation changes a locked order in memory. Returning an error rolls
// back the whole transaction, including stock changes made through stock.
type OrderMutation func(ctx context.Context, order *models.Order, items []models.OrderItem, stock StockReserver) error

// CreateOrder inserts an order and its items in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (protocol, customer_id, company_id, status, subtotal, shipping_cost,
			tax_amount, discount_amount, total, shipping_zone, locale, shipping_address, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.Protocol, order.CustomerID, order.CompanyID, order.Status, order.Subtotal, order.ShippingCost,
		order.TaxAmount, order.DiscountAmount, order.Total, order.ShippingZone, order.Locale,
		order.ShippingAddress, order.IdempotencyKey,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err := tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO order_items (order_id, position, component_id, quantity, unit_price, line_subtotal)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			items[i].OrderID, items[i].Position, items[i].ComponentID, items[i].Quantity,
			items[i].UnitPrice, items[i].LineSubtotal)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("order", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY position", orderID)
	return items, err
}

// MutateOrder locks the order row, applies fn and persists the result.
// Concurrent mutations of the same order are serialized by the row lock, so
// fn always sees the latest committed status.
func (s *Store) MutateOrder(ctx context.Context, id int64, fn OrderMutation) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("order", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	var items []models.OrderItem
	if err := tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY position", id); err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	if err := fn(ctx, &order, items, &txStock{tx: tx}); err != nil {
		return nil, err
	}

	err = tx.GetContext(ctx, &order.UpdatedAt, `
		UPDATE orders SET status = $1, tracking_code = $2, paid_at = $3, shipped_at = $4,
			delivered_at = $5, cancelled_at = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at`,
		order.Status, order.TrackingCode, order.PaidAt, order.ShippedAt,
		order.DeliveredAt, order.CancelledAt, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

// ProtocolExists reports whether code is already used by an order or ticket
func (s *Store) ProtocolExists(ctx context.Context, kind protocol.Kind, code string) (bool, error) {
	var query string
	switch kind {
	case protocol.KindOrder:
		query = "SELECT EXISTS(SELECT 1 FROM orders WHERE protocol = $1)"
	case protocol.KindTicket:
		query = "SELECT EXISTS(SELECT 1 FROM service_tickets WHERE protocol = $1)"
	default:
		return false, fmt.Errorf("unknown protocol kind %q", kind)
	}

	var exists bool
	err := s.db.GetContext(ctx, &exists, query, code)
	return exists, err
}

// HighestSequence returns the largest sequence among the protocols issued
// for kind on day. Codes past six digits are longer, so length sorts first.
func (s *Store) HighestSequence(ctx context.Context, kind protocol.Kind, day string) (int64, error) {
	var query string
	switch kind {
	case protocol.KindOrder:
		query = "SELECT protocol FROM orders WHERE protocol LIKE $1 ORDER BY LENGTH(protocol) DESC, protocol DESC LIMIT 1"
	case protocol.KindTicket:
		query = "SELECT protocol FROM service_tickets WHERE protocol LIKE $1 ORDER BY LENGTH(protocol) DESC, protocol DESC LIMIT 1"
	default:
		return 0, fmt.Errorf("unknown protocol kind %q", kind)
	}

	var code string
	err := s.db.GetContext(ctx, &code, query, protocol.Prefix(kind, day)+"%")
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read highest protocol: %w", err)
	}
	n, _ := protocol.ParseSequence(kind, day, code)
	return n, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
