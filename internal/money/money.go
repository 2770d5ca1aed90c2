// Package money holds the fixed-scale decimal conventions used for all
// monetary values in the core: scale 2, HALF_UP rounding.
package money

import "github.com/shopspring/decimal"

const Scale = 2

// Round applies HALF_UP rounding at Scale, matching the tick-budget
// formula's decimal semantics.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// DivRound divides a by b and rounds the quotient HALF_UP at Scale. b
// must be non-zero; callers in this package are expected to have
// already guarded against a zero divisor.
func DivRound(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, int32(Scale))
}

// Zero is the canonical zero amount at Scale.
var Zero = decimal.Zero
