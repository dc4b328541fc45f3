package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// SettledEpsilon is the tolerance below which a remaining balance counts as paid.
const SettledEpsilon = 0.01

// RoundCents rounds a float amount half away from zero to two decimals.
func RoundCents(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// ClampRemaining returns max(0, total-paid).
func ClampRemaining(total, paid float64) float64 {
	r := total - paid
	if r < 0 {
		return 0
	}
	return r
}

// IsSettled reports whether a remaining balance is within SettledEpsilon of zero.
func IsSettled(remaining float64) bool {
	return remaining <= SettledEpsilon
}
