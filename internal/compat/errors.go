package compat

import (
	"fmt"
	"strings"

	"pcstore-service/internal/apperr"
	"pcstore-service/internal/models"
)

// Kind classifies a configuration problem
type Kind string

// Configuration problem kinds
const (
	KindMissingComponent Kind = "MISSING_COMPONENT"
	KindIncompatiblePair Kind = "INCOMPATIBLE_PAIR"
	KindOutOfStock       Kind = "OUT_OF_STOCK"
	KindInvalidSelection Kind = "INVALID_SELECTION"
)

// Detail is the serializable form of a configuration problem
type Detail struct {
	Kind         Kind   `json:"kind"`
	Type         string `json:"type,omitempty"`
	ComponentID  int64  `json:"component_id,omitempty"`
	ComponentBID int64  `json:"component_b_id,omitempty"`
	Rule         string `json:"rule,omitempty"`
	Message      string `json:"message"`
}

// ConfigurationError is one problem found while validating a selection
type ConfigurationError interface {
	error
	Detail() Detail
}

// MissingComponent reports a required type with no selected component
type MissingComponent struct {
	Type string
}

func (e MissingComponent) Error() string {
	return fmt.Sprintf("missing required component of type %s", e.Type)
}

func (e MissingComponent) Detail() Detail {
	return Detail{Kind: KindMissingComponent, Type: e.Type, Message: e.Error()}
}

// IncompatiblePair reports two selected components violating a rule
type IncompatiblePair struct {
	ComponentA models.Component
	ComponentB models.Component
	Rule       Rule
}

func (e IncompatiblePair) Error() string {
	return fmt.Sprintf("component %d (%s) is incompatible with component %d (%s): rule %s",
		e.ComponentA.ID, e.ComponentA.TypeCode, e.ComponentB.ID, e.ComponentB.TypeCode, e.Rule)
}

func (e IncompatiblePair) Detail() Detail {
	return Detail{
		Kind:         KindIncompatiblePair,
		ComponentID:  e.ComponentA.ID,
		ComponentBID: e.ComponentB.ID,
		Rule:         e.Rule.Name,
		Message:      e.Error(),
	}
}

// OutOfStock warns that a selected component has no stock. The selection
// stays valid for pricing but cannot be checked out.
type OutOfStock struct {
	Component models.Component
}

func (e OutOfStock) Error() string {
	return fmt.Sprintf("component %d (%s) is out of stock", e.Component.ID, e.Component.TypeCode)
}

func (e OutOfStock) Detail() Detail {
	return Detail{
		Kind:        KindOutOfStock,
		Type:        e.Component.TypeCode,
		ComponentID: e.Component.ID,
		Message:     e.Error(),
	}
}

// InvalidSelection reports a malformed selection entry: unknown type,
// unknown or inactive component, or a component placed in the wrong slot.
type InvalidSelection struct {
	Type        string
	ComponentID int64
	Reason      string
}

func (e InvalidSelection) Error() string {
	return fmt.Sprintf("invalid selection for %s: %s", e.Type, e.Reason)
}

func (e InvalidSelection) Detail() Detail {
	return Detail{
		Kind:        KindInvalidSelection,
		Type:        e.Type,
		ComponentID: e.ComponentID,
		Message:     e.Error(),
	}
}

// ValidationErrors collects every problem found in one validation pass
type ValidationErrors struct {
	Errors   []ConfigurationError
	Warnings []ConfigurationError
}

func (e *ValidationErrors) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ce := range e.Errors {
		msgs[i] = ce.Error()
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func (e *ValidationErrors) Is(target error) bool { return target == apperr.ErrConfiguration }

// Details returns the serializable errors followed by the warnings
func (e *ValidationErrors) Details() []Detail {
	return details(e.Errors, e.Warnings)
}

func details(groups ...[]ConfigurationError) []Detail {
	var out []Detail
	for _, g := range groups {
		for _, ce := range g {
			out = append(out, ce.Detail())
		}
	}
	return out
}
