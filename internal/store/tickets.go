package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pcstore-service/internal/apperr"
	"pcstore-service/internal/models"
)

// CreateTicket inserts a new service ticket
func (s *Store) CreateTicket(ctx context.Context, ticket *models.ServiceTicket) error {
	query := `
		INSERT INTO service_tickets (protocol, customer_id, company_id, service_id, status, priority, symptoms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		ticket.Protocol, ticket.CustomerID, ticket.CompanyID, ticket.ServiceID,
		ticket.Status, ticket.Priority, ticket.Symptoms,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	return mapUniqueViolation(err)
}

// GetTicketByID retrieves a ticket by ID
func (s *Store) GetTicketByID(ctx context.Context, id int64) (*models.ServiceTicket, error) {
	var ticket models.ServiceTicket
	err := s.db.GetContext(ctx, &ticket, "SELECT * FROM service_tickets WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("ticket", id)
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// MutateTicket locks the ticket row, applies fn and persists the result
func (s *Store) MutateTicket(ctx context.Context, id int64, fn func(t *models.ServiceTicket) error) (*models.ServiceTicket, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var ticket models.ServiceTicket
	err = tx.GetContext(ctx, &ticket, "SELECT * FROM service_tickets WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("ticket", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock ticket: %w", err)
	}

	if err := fn(&ticket); err != nil {
		return nil, err
	}

	err = tx.GetContext(ctx, &ticket.UpdatedAt, `
		UPDATE service_tickets SET status = $1, priority = $2, diagnosis = $3, solution = $4,
			closed_at = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`,
		ticket.Status, ticket.Priority, ticket.Diagnosis, ticket.Solution, ticket.ClosedAt, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &ticket, nil
}
