package compat

import (
	"fmt"
	"sort"

	"pcstore-service/internal/catalog"
	"pcstore-service/internal/models"
	"pcstore-service/internal/money"

	"github.com/shopspring/decimal"
)

// Selection maps a component type code to the chosen component id
type Selection map[string]int64

// PricedConfiguration is a selection that passed validation
type PricedConfiguration struct {
	Components []models.Component `json:"components"`
	Price      decimal.Decimal    `json:"price"`
	Warnings   []Detail           `json:"warnings,omitempty"`
}

// HasWarnings reports whether the configuration cannot be checked out as is
func (p *PricedConfiguration) HasWarnings() bool {
	return len(p.Warnings) > 0
}

// Resolver validates selections against a fixed rule set
type Resolver struct {
	rules []Rule
}

// NewResolver creates a resolver. Rules are evaluated in the given order.
func NewResolver(rules []Rule) (*Resolver, error) {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true
	}
	return &Resolver{rules: append([]Rule(nil), rules...)}, nil
}

// Rules returns the registered rules
func (r *Resolver) Rules() []Rule {
	return r.rules
}

// Validate checks completeness, pairwise compatibility and availability of
// sel against snap. Every problem is collected; on failure the returned
// error is a *ValidationErrors and no price is computed.
func (r *Resolver) Validate(sel Selection, snap *catalog.Snapshot) (*PricedConfiguration, error) {
	var errs, warnings []ConfigurationError

	chosen := make(map[string]models.Component, len(sel))
	for _, code := range sortedKeys(sel) {
		id := sel[code]
		if _, ok := snap.Type(code); !ok {
			errs = append(errs, InvalidSelection{Type: code, ComponentID: id, Reason: "unknown component type"})
			continue
		}
		c, ok := snap.Component(id)
		switch {
		case !ok:
			errs = append(errs, InvalidSelection{Type: code, ComponentID: id, Reason: fmt.Sprintf("component %d not found", id)})
			continue
		case c.TypeCode != code:
			errs = append(errs, InvalidSelection{Type: code, ComponentID: id, Reason: fmt.Sprintf("component %d is of type %s", id, c.TypeCode)})
			continue
		case !c.IsActive:
			errs = append(errs, InvalidSelection{Type: code, ComponentID: id, Reason: fmt.Sprintf("component %d is not available", id)})
			continue
		}
		chosen[code] = c
	}

	var ordered []models.Component
	for _, t := range snap.Types() {
		c, ok := chosen[t.Code]
		if !ok {
			if t.IsRequired {
				if _, selected := sel[t.Code]; !selected {
					errs = append(errs, MissingComponent{Type: t.Code})
				}
			}
			continue
		}
		ordered = append(ordered, c)
	}

	for _, rule := range r.rules {
		errs = append(errs, r.check(rule, chosen, ordered)...)
	}

	for _, c := range ordered {
		if c.StockQuantity == 0 {
			warnings = append(warnings, OutOfStock{Component: c})
		}
	}

	if len(errs) > 0 {
		return nil, &ValidationErrors{Errors: errs, Warnings: warnings}
	}

	prices := make([]decimal.Decimal, len(ordered))
	for i, c := range ordered {
		prices[i] = c.Price
	}

	return &PricedConfiguration{
		Components: ordered,
		Price:      money.Round(money.Sum(prices...)),
		Warnings:   details(warnings),
	}, nil
}

func (r *Resolver) check(rule Rule, chosen map[string]models.Component, ordered []models.Component) []ConfigurationError {
	switch rule.Relation {
	case RelationEqual:
		return checkEqual(rule, chosen)
	case RelationSumLTE:
		return checkSum(rule, chosen, ordered)
	}
	return nil
}

func checkEqual(rule Rule, chosen map[string]models.Component) []ConfigurationError {
	a, okA := chosen[rule.TypeA]
	b, okB := chosen[rule.TypeB]
	if !okA || !okB {
		return nil
	}
	va, hasA := a.Tags[rule.KeyA]
	vb, hasB := b.Tags[rule.KeyB]
	if !hasA || !hasB {
		return nil
	}
	if va != vb {
		return []ConfigurationError{IncompatiblePair{ComponentA: a, ComponentB: b, Rule: rule}}
	}
	return nil
}

func checkSum(rule Rule, chosen map[string]models.Component, ordered []models.Component) []ConfigurationError {
	limiter, ok := chosen[rule.TypeB]
	if !ok {
		return nil
	}
	limit, hasLimit, err := tagNumber(limiter, rule.KeyB)
	if err != nil {
		return []ConfigurationError{InvalidSelection{Type: limiter.TypeCode, ComponentID: limiter.ID, Reason: err.Error()}}
	}
	if !hasLimit {
		return nil
	}

	var errs []ConfigurationError
	var contributors []models.Component
	total := decimal.Zero
	for _, c := range ordered {
		if rule.TypeA != "" && c.TypeCode != rule.TypeA {
			continue
		}
		v, has, err := tagNumber(c, rule.KeyA)
		if err != nil {
			errs = append(errs, InvalidSelection{Type: c.TypeCode, ComponentID: c.ID, Reason: err.Error()})
			continue
		}
		if !has {
			continue
		}
		total = total.Add(v)
		if c.ID != limiter.ID {
			contributors = append(contributors, c)
		}
	}
	if len(errs) > 0 || total.LessThanOrEqual(limit) {
		return errs
	}

	if len(contributors) == 0 {
		// the limiting component alone exceeds its own limit
		contributors = append(contributors, limiter)
	}
	for _, c := range contributors {
		errs = append(errs, IncompatiblePair{ComponentA: c, ComponentB: limiter, Rule: rule})
	}
	return errs
}

func sortedKeys(sel Selection) []string {
	keys := make([]string, 0, len(sel))
	for k := range sel {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
