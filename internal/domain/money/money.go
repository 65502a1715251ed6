// Package money holds the currency arithmetic shared by pricing, coupons and
// shipping. Amounts are decimal.Decimal values; intermediate sums keep full
// precision and are rounded to cents only when a result is produced.
package money

import (
	"math"

	"github.com/shopspring/decimal"
)

// Places is the number of fraction digits stored for every currency amount.
const Places = 2

// Hundred is used for percentage arithmetic.
var Hundred = decimal.NewFromInt(100)

// Round rounds v half away from zero to cents.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(Places)
}

// FloorZero returns v, or zero when v is negative.
func FloorZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// LineTotal returns price * quantity at full precision.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}

// Percent returns pct percent of amount at full precision.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(Hundred)
}

// String formats v with exactly two fraction digits, the wire format for
// every amount the service emits.
func String(v decimal.Decimal) string {
	return v.StringFixed(Places)
}

// MaxQuantity bounds a single line and the per-product total of an order.
// It matches the INTEGER stock and quantity columns.
const MaxQuantity = math.MaxInt32

// ValidQuantity reports whether q is an acceptable line quantity.
func ValidQuantity(q int) bool {
	return q >= 1 && q <= MaxQuantity
}
