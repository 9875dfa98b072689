package money

import "github.com/shopspring/decimal"

// Places is the number of fractional digits kept for every monetary amount
const Places = 2

// Round rounds half-up to two decimals. Amounts are never negative, so the
// library's half-away-from-zero rounding is exactly half-up here.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Sum adds the amounts without intermediate rounding
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
