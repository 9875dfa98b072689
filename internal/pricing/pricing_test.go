package pricing

import (
	"errors"
	"testing"

	"pcstore-service/internal/apperr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testEngine() *Engine {
	tax := TaxTable{
		Default: d("0.10"),
		Rates:   map[string]decimal.Decimal{"pt-PT": d("0.20"), "de-DE": d("0.19")},
	}
	shipping := NewShippingTable(map[string][]ShippingTier{
		"EU": {
			{MaxItems: 0, Cost: d("60.00")},
			{MaxItems: 5, Cost: d("40.00")},
			{MaxItems: 2, Cost: d("25.00")},
		},
	})
	return NewEngine(tax, shipping)
}

func TestPriceExample(t *testing.T) {
	b, err := testEngine().Price([]Item{{UnitPrice: d("1000.00"), Quantity: 1}}, "EU", "pt-PT", decimal.Zero)
	require.NoError(t, err)

	assert.Equal(t, "1000.00", b.Subtotal.StringFixed(2))
	assert.Equal(t, "25.00", b.ShippingCost.StringFixed(2))
	assert.Equal(t, "200.00", b.TaxAmount.StringFixed(2))
	assert.Equal(t, "1225.00", b.Total.StringFixed(2))
	assert.True(t, b.ShippingMatched)
}

func TestPriceShippingTiers(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		zone     string
		want     string
		matched  bool
	}{
		{"smallest tier", 2, "EU", "25.00", true},
		{"middle tier", 3, "EU", "40.00", true},
		{"unbounded tier", 50, "EU", "60.00", true},
		{"unknown zone", 1, "MARS", "0.00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := testEngine().Price([]Item{{UnitPrice: d("10.00"), Quantity: tt.quantity}}, tt.zone, "pt-PT", decimal.Zero)
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.ShippingCost.StringFixed(2))
			assert.Equal(t, tt.matched, b.ShippingMatched)
		})
	}
}

func TestPriceRoundsSubtotalAfterSummation(t *testing.T) {
	// per-line rounding would give 0.01 * 3 = 0.03; summing first gives 0.02
	items := []Item{
		{UnitPrice: d("0.005"), Quantity: 1},
		{UnitPrice: d("0.005"), Quantity: 1},
		{UnitPrice: d("0.005"), Quantity: 1},
	}
	b, err := testEngine().Price(items, "MARS", "xx", decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "0.02", b.Subtotal.StringFixed(2))
}

func TestPriceTaxOnGoodsOnly(t *testing.T) {
	b, err := testEngine().Price([]Item{{UnitPrice: d("99.99"), Quantity: 1}}, "EU", "de-DE", decimal.Zero)
	require.NoError(t, err)

	// 99.99 * 0.19 = 18.9981
	assert.Equal(t, "19.00", b.TaxAmount.StringFixed(2))
	assert.Equal(t, "143.99", b.Total.StringFixed(2))
}

func TestPriceUnknownLocaleUsesDefaultRate(t *testing.T) {
	b, err := testEngine().Price([]Item{{UnitPrice: d("50.00"), Quantity: 2}}, "EU", "fr-FR", decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "10.00", b.TaxAmount.StringFixed(2))
}

func TestPriceDiscount(t *testing.T) {
	items := []Item{{UnitPrice: d("100.00"), Quantity: 1}}

	b, err := testEngine().Price(items, "EU", "pt-PT", d("125.00"))
	require.NoError(t, err)
	assert.Equal(t, "20.00", b.Total.StringFixed(2))

	_, err = testEngine().Price(items, "EU", "pt-PT", d("125.01"))
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = testEngine().Price(items, "EU", "pt-PT", d("-1"))
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestPriceRejectsBadItems(t *testing.T) {
	_, err := testEngine().Price([]Item{{UnitPrice: d("1"), Quantity: 0}}, "EU", "pt-PT", decimal.Zero)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = testEngine().Price([]Item{{UnitPrice: d("-1"), Quantity: 1}}, "EU", "pt-PT", decimal.Zero)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestPriceTotalInvariant(t *testing.T) {
	engine := testEngine()
	for _, discount := range []string{"0", "0.01", "13.37", "49.99"} {
		b, err := engine.Price([]Item{
			{UnitPrice: d("19.99"), Quantity: 3},
			{UnitPrice: d("0.333"), Quantity: 7},
		}, "EU", "de-DE", d(discount))
		require.NoError(t, err)

		sum := b.Subtotal.Add(b.ShippingCost).Add(b.TaxAmount).Sub(b.DiscountAmount)
		assert.True(t, sum.Equal(b.Total))
		assert.True(t, b.Total.Equal(b.Total.Round(2)))
		assert.False(t, b.Total.IsNegative())
	}
}

func TestPriceIsDeterministic(t *testing.T) {
	items := []Item{{UnitPrice: d("123.45"), Quantity: 2}}
	b1, err1 := testEngine().Price(items, "EU", "pt-PT", d("5"))
	b2, err2 := testEngine().Price(items, "EU", "pt-PT", d("5"))
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.True(t, b1.Total.Equal(b2.Total))
	assert.Equal(t, b1.Subtotal.String(), b2.Subtotal.String())
}
