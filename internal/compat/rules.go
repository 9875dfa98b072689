package compat

import (
	"fmt"
	"regexp"

	"pcstore-service/internal/models"

	"github.com/shopspring/decimal"
)

// Relation is how a rule compares two tag values
type Relation string

const (
	// RelationEqual requires tag KeyA of the TypeA component to equal tag
	// KeyB of the TypeB component.
	RelationEqual Relation = "equal"
	// RelationSumLTE requires the sum of tag KeyA over the selected
	// components (restricted to TypeA when set) to be at most tag KeyB of
	// the TypeB component.
	RelationSumLTE Relation = "sum_lte"
)

// Rule is one externally supplied compatibility constraint
type Rule struct {
	Name     string   `yaml:"name" json:"name"`
	Relation Relation `yaml:"relation" json:"relation"`
	TypeA    string   `yaml:"type_a" json:"type_a,omitempty"`
	KeyA     string   `yaml:"key_a" json:"key_a"`
	TypeB    string   `yaml:"type_b" json:"type_b"`
	KeyB     string   `yaml:"key_b" json:"key_b"`
}

// Validate checks the rule is well formed
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.KeyA == "" || r.KeyB == "" || r.TypeB == "" {
		return fmt.Errorf("rule %s: key_a, key_b and type_b are required", r.Name)
	}
	switch r.Relation {
	case RelationEqual:
		if r.TypeA == "" {
			return fmt.Errorf("rule %s: type_a is required for %s", r.Name, r.Relation)
		}
	case RelationSumLTE:
	default:
		return fmt.Errorf("rule %s: unknown relation %q", r.Name, r.Relation)
	}
	return nil
}

func (r Rule) String() string {
	switch r.Relation {
	case RelationEqual:
		return fmt.Sprintf("%s: %s.%s == %s.%s", r.Name, r.TypeA, r.KeyA, r.TypeB, r.KeyB)
	default:
		scope := r.TypeA
		if scope == "" {
			scope = "*"
		}
		return fmt.Sprintf("%s: sum(%s.%s) <= %s.%s", r.Name, scope, r.KeyA, r.TypeB, r.KeyB)
	}
}

var numericPrefix = regexp.MustCompile(`^\s*(-?[0-9]+(?:\.[0-9]+)?)`)

// tagNumber parses the numeric part of a tag value, ignoring a unit suffix
// such as "W" in "650W".
func tagNumber(c models.Component, key string) (decimal.Decimal, bool, error) {
	raw, ok := c.Tags[key]
	if !ok {
		return decimal.Zero, false, nil
	}
	m := numericPrefix.FindStringSubmatch(raw)
	if m == nil {
		return decimal.Zero, true, fmt.Errorf("tag %s=%q of component %d is not numeric", key, raw, c.ID)
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Zero, true, fmt.Errorf("tag %s=%q of component %d: %w", key, raw, c.ID, err)
	}
	return d, true, nil
}
