package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"pcstore-service/internal/apperr"
	"pcstore-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// ErrDuplicateProtocol is returned when an insert hits the protocol unique key
var ErrDuplicateProtocol = errors.New("protocol already taken")

// ErrDuplicateIdempotencyKey is returned when an order with the same
// idempotency key was committed concurrently.
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Migrate creates the schema if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListComponentTypes retrieves all component types
func (s *Store) ListComponentTypes(ctx context.Context) ([]models.ComponentType, error) {
	var types []models.ComponentType
	err := s.db.SelectContext(ctx, &types,
		"SELECT code, name, is_required, sort_order FROM component_types ORDER BY sort_order, code")
	return types, err
}

// ListComponents retrieves all components, active or not
func (s *Store) ListComponents(ctx context.Context) ([]models.Component, error) {
	var components []models.Component
	err := s.db.SelectContext(ctx, &components, "SELECT * FROM components ORDER BY id")
	return components, err
}

// GetComponentsByIDs retrieves multiple components by IDs
func (s *Store) GetComponentsByIDs(ctx context.Context, ids []int64) ([]models.Component, error) {
	if len(ids) == 0 {
		return []models.Component{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM components WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var components []models.Component
	err = s.db.SelectContext(ctx, &components, query, args...)
	return components, err
}

// StockReserver changes component stock inside the caller's transaction
type StockReserver interface {
	ReserveStock(ctx context.Context, items []models.OrderItem) error
	ReleaseStock(ctx context.Context, items []models.OrderItem) error
}

type txStock struct {
	tx *sqlx.Tx
}

// ReserveStock decrements stock for every item with a conditional update.
// The first shortfall aborts with *apperr.OutOfStockError; the caller's
// transaction rollback discards the decrements already applied.
func (t *txStock) ReserveStock(ctx context.Context, items []models.OrderItem) error {
	for _, line := range AggregateStock(items) {
		if line.Quantity <= 0 {
			return fmt.Errorf("failed to reserve stock: invalid quantity %d for component %d", line.Quantity, line.ComponentID)
		}
		res, err := t.tx.ExecContext(ctx,
			`UPDATE components SET stock_quantity = stock_quantity - $1, updated_at = NOW()
			 WHERE id = $2 AND stock_quantity >= $1`,
			line.Quantity, line.ComponentID)
		if err != nil {
			return fmt.Errorf("failed to reserve stock: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to reserve stock: %w", err)
		}
		if n == 0 {
			var available int
			if err := t.tx.GetContext(ctx, &available,
				"SELECT stock_quantity FROM components WHERE id = $1", line.ComponentID); err != nil {
				return fmt.Errorf("failed to read stock: %w", err)
			}
			return &apperr.OutOfStockError{
				ComponentID: line.ComponentID,
				Requested:   line.Quantity,
				Available:   available,
			}
		}
	}
	return nil
}

// ReleaseStock returns reserved units to stock
func (t *txStock) ReleaseStock(ctx context.Context, items []models.OrderItem) error {
	for _, line := range AggregateStock(items) {
		if _, err := t.tx.ExecContext(ctx,
			"UPDATE components SET stock_quantity = stock_quantity + $1, updated_at = NOW() WHERE id = $2",
			line.Quantity, line.ComponentID); err != nil {
			return fmt.Errorf("failed to release stock: %w", err)
		}
	}
	return nil
}

// StockLine is the total quantity of one component across an order
type StockLine struct {
	ComponentID int64
	Quantity    int
}

// AggregateStock sums quantities per component and orders lines by component
// id so concurrent transactions lock rows in the same order.
func AggregateStock(items []models.OrderItem) []StockLine {
	totals := make(map[int64]int, len(items))
	for _, it := range items {
		totals[it.ComponentID] += it.Quantity
	}
	lines := make([]StockLine, 0, len(totals))
	for id, q := range totals {
		lines = append(lines, StockLine{ComponentID: id, Quantity: q})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ComponentID < lines[j].ComponentID })
	return lines
}

func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return err
	}
	switch pqErr.Constraint {
	case "orders_protocol_key", "service_tickets_protocol_key":
		return ErrDuplicateProtocol
	case "orders_idempotency_key_key":
		return ErrDuplicateIdempotencyKey
	}
	return err
}
