package config

import (
	"fmt"
	"os"

	"pcstore-service/internal/compat"
	"pcstore-service/internal/pricing"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Tables holds the business data injected into the resolver and the
// pricing engine.
type Tables struct {
	Rules    []compat.Rule
	Tax      pricing.TaxTable
	Shipping pricing.ShippingTable
}

type tablesFile struct {
	Rules []compat.Rule `yaml:"rules"`
	Tax   struct {
		Default string            `yaml:"default"`
		Rates   map[string]string `yaml:"rates"`
	} `yaml:"tax"`
	Shipping map[string][]struct {
		MaxItems int    `yaml:"max_items"`
		Cost     string `yaml:"cost"`
	} `yaml:"shipping"`
}

// LoadTables reads the tables file at path
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}
	return ParseTables(data)
}

// ParseTables decodes a YAML tables document. Amounts are decimal strings.
func ParseTables(data []byte) (*Tables, error) {
	var raw tablesFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tables: %w", err)
	}

	for _, r := range raw.Rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rule: %w", err)
		}
	}

	tax := pricing.TaxTable{Default: decimal.Zero, Rates: make(map[string]decimal.Decimal, len(raw.Tax.Rates))}
	if raw.Tax.Default != "" {
		d, err := parseAmount("tax.default", raw.Tax.Default)
		if err != nil {
			return nil, err
		}
		tax.Default = d
	}
	for locale, s := range raw.Tax.Rates {
		d, err := parseAmount("tax.rates."+locale, s)
		if err != nil {
			return nil, err
		}
		tax.Rates[locale] = d
	}

	zones := make(map[string][]pricing.ShippingTier, len(raw.Shipping))
	for zone, tiers := range raw.Shipping {
		for i, t := range tiers {
			if t.MaxItems < 0 {
				return nil, fmt.Errorf("shipping.%s[%d]: max_items must not be negative", zone, i)
			}
			cost, err := parseAmount(fmt.Sprintf("shipping.%s[%d].cost", zone, i), t.Cost)
			if err != nil {
				return nil, err
			}
			zones[zone] = append(zones[zone], pricing.ShippingTier{MaxItems: t.MaxItems, Cost: cost})
		}
	}

	return &Tables{
		Rules:    raw.Rules,
		Tax:      tax,
		Shipping: pricing.NewShippingTable(zones),
	}, nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid amount %q: %w", field, s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s: amount must not be negative", field)
	}
	return d, nil
}
