package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"pcstore-service/internal/apperr"
	"pcstore-service/internal/catalog"
	"pcstore-service/internal/models"
	"pcstore-service/internal/protocol"
	"pcstore-service/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CatalogReader serves component catalog snapshots
type CatalogReader interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
	Load(ctx context.Context) (*catalog.Snapshot, error)
	Invalidate(ctx context.Context)
}

// OrderStore persists orders. Implemented by *store.Store and *memstore.Store.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	MutateOrder(ctx context.Context, id int64, fn store.OrderMutation) (*models.Order, error)
}

// TicketStore persists service tickets
type TicketStore interface {
	CreateTicket(ctx context.Context, ticket *models.ServiceTicket) error
	GetTicketByID(ctx context.Context, id int64) (*models.ServiceTicket, error)
	MutateTicket(ctx context.Context, id int64, fn func(t *models.ServiceTicket) error) (*models.ServiceTicket, error)
}

// EventStore deduplicates consumed events
type EventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// ProtocolGenerator issues unique human-readable protocols
type ProtocolGenerator interface {
	Generate(ctx context.Context, kind protocol.Kind) (string, error)
}

// EventPublisher publishes domain events after commit
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishTicketCreated(ctx context.Context, event *models.TicketCreatedEvent) error
	PublishTicketStatusChanged(ctx context.Context, event *models.TicketStatusChangedEvent) error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error { return nil }
func (NopPublisher) PublishOrderStatusChanged(context.Context, *models.OrderStatusChangedEvent) error {
	return nil
}
func (NopPublisher) PublishTicketCreated(context.Context, *models.TicketCreatedEvent) error { return nil }
func (NopPublisher) PublishTicketStatusChanged(context.Context, *models.TicketStatusChangedEvent) error {
	return nil
}

// maxInsertAttempts bounds retries when a freshly generated protocol loses
// the unique-key race against a concurrent insert.
const maxInsertAttempts = protocol.DefaultMaxAttempts

func newBaseEvent(eventType string, now time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: now,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest checks struct tags and converts failures to
// apperr.ValidationErrors keyed by JSON field name.
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(apperr.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			out = append(out, apperr.Validation(field, "failed on %s=%s", fe.Tag(), fe.Param()))
		} else {
			out = append(out, apperr.Validation(field, "failed on %s", fe.Tag()))
		}
	}
	return out
}

// unknownEventLabel is the metric label of events no lifecycle table knows
const unknownEventLabel = "unknown"

// resultLabel maps an operation error to a metrics label
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, apperr.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, apperr.ErrValidation):
		return "validation"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrConfiguration):
		return "configuration"
	case errors.Is(err, apperr.ErrProtocolGenerationFailed):
		return "protocol"
	}
	return "error"
}
