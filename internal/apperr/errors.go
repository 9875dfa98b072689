package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by the business core. Typed errors below match their
// kind with errors.Is so callers can branch without type switches.
var (
	ErrNotFound                 = errors.New("not found")
	ErrValidation               = errors.New("validation error")
	ErrConfiguration            = errors.New("invalid configuration")
	ErrOutOfStock               = errors.New("out of stock")
	ErrInvalidTransition        = errors.New("invalid transition")
	ErrProtocolGenerationFailed = errors.New("protocol generation failed")
)

// ValidationError reports malformed caller input
type ValidationError struct {
	Field   string
	Message string
}

// Validation builds a ValidationError for a single field
func Validation(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ValidationErrors groups several field failures from one request
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

func (es ValidationErrors) Is(target error) bool { return target == ErrValidation }

// OutOfStockError reports a component that cannot cover the requested quantity
type OutOfStockError struct {
	ComponentID int64
	Requested   int
	Available   int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("insufficient stock for component %d: available=%d, requested=%d",
		e.ComponentID, e.Available, e.Requested)
}

func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }

// InvalidTransitionError reports an event the state machine does not accept
// from the entity's current status.
type InvalidTransitionError struct {
	Entity string
	From   string
	Event  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: event %s not allowed from status %s", e.Entity, e.Event, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// NotFound wraps ErrNotFound with the missing entity
func NotFound(entity string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}
