package pricing

import (
	"sort"

	"pcstore-service/internal/apperr"
	"pcstore-service/internal/money"

	"github.com/shopspring/decimal"
)

// TaxTable maps a locale to its VAT rate (0.20 for 20%)
type TaxTable struct {
	Default decimal.Decimal
	Rates   map[string]decimal.Decimal
}

// Rate returns the rate for locale, or the default rate when unknown
func (t TaxTable) Rate(locale string) decimal.Decimal {
	if r, ok := t.Rates[locale]; ok {
		return r
	}
	return t.Default
}

// ShippingTier prices shipments of up to MaxItems units. MaxItems 0 means
// no upper bound.
type ShippingTier struct {
	MaxItems int
	Cost     decimal.Decimal
}

// ShippingTable maps a destination zone to its tiers
type ShippingTable map[string][]ShippingTier

// NewShippingTable copies zones and sorts each zone's tiers ascending,
// with the unbounded tier last.
func NewShippingTable(zones map[string][]ShippingTier) ShippingTable {
	t := make(ShippingTable, len(zones))
	for zone, tiers := range zones {
		sorted := append([]ShippingTier(nil), tiers...)
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := sorted[i].MaxItems, sorted[j].MaxItems
			if a == 0 || b == 0 {
				return b == 0 && a != 0
			}
			return a < b
		})
		t[zone] = sorted
	}
	return t
}

// Cost returns the first tier of zone able to carry itemCount units. The
// second result is false when the table has no matching tier.
func (t ShippingTable) Cost(zone string, itemCount int) (decimal.Decimal, bool) {
	for _, tier := range t[zone] {
		if tier.MaxItems == 0 || itemCount <= tier.MaxItems {
			return tier.Cost, true
		}
	}
	return decimal.Zero, false
}

// Item is one priced line
type Item struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Breakdown is the full monetary result for an order
type Breakdown struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
	// ShippingMatched is false when the zone had no tier and shipping
	// defaulted to zero.
	ShippingMatched bool `json:"-"`
}

// Engine computes order prices from injected lookup tables
type Engine struct {
	tax      TaxTable
	shipping ShippingTable
}

// NewEngine creates a pricing engine
func NewEngine(tax TaxTable, shipping ShippingTable) *Engine {
	return &Engine{tax: tax, shipping: shipping}
}

// Price computes the breakdown for items shipped to zone under locale.
// Tax applies to the goods subtotal only.
func (e *Engine) Price(items []Item, zone, locale string, discount decimal.Decimal) (Breakdown, error) {
	subtotal := decimal.Zero
	count := 0
	for i, it := range items {
		if it.Quantity <= 0 {
			return Breakdown{}, apperr.Validation("items", "item %d: quantity must be positive", i)
		}
		if it.UnitPrice.IsNegative() {
			return Breakdown{}, apperr.Validation("items", "item %d: unit price must not be negative", i)
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		count += it.Quantity
	}
	subtotal = money.Round(subtotal)

	shipping, matched := e.shipping.Cost(zone, count)
	shipping = money.Round(shipping)

	tax := money.Round(subtotal.Mul(e.tax.Rate(locale)))

	discount = money.Round(discount)
	if discount.IsNegative() {
		return Breakdown{}, apperr.Validation("discount_amount", "must not be negative")
	}
	if discount.GreaterThan(subtotal.Add(shipping)) {
		return Breakdown{}, apperr.Validation("discount_amount",
			"%s exceeds subtotal plus shipping %s", discount.StringFixed(2), subtotal.Add(shipping).StringFixed(2))
	}

	return Breakdown{
		Subtotal:        subtotal,
		ShippingCost:    shipping,
		TaxAmount:       tax,
		DiscountAmount:  discount,
		Total:           subtotal.Add(shipping).Add(tax).Sub(discount),
		ShippingMatched: matched,
	}, nil
}
