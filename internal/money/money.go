// Package money holds the rounding and text rules shared by ledger writes.
package money

import (
	"github.com/shopspring/decimal"
)

// DescriptionLimit is how many characters of a transfer description reach
// the activity records.
const DescriptionLimit = 12

var hundred = decimal.NewFromInt(100)

// Round2 rounds to two decimal places, half to even.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// PercentOf returns round2(amount * rate / 100).
func PercentOf(amount, rate decimal.Decimal) decimal.Decimal {
	return Round2(amount.Mul(rate).Div(hundred))
}

// TruncateDescription keeps the first DescriptionLimit characters of s.
func TruncateDescription(s string) string {
	r := []rune(s)
	if len(r) <= DescriptionLimit {
		return s
	}
	return string(r[:DescriptionLimit])
}
