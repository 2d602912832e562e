// Package money holds the fixed-scale decimal helpers used for line prices,
// propagation coefficients and order totals.
//
// Two rounding modes are in use: half-up for currency totals and half-even
// for coefficients and propagated unit prices.
package money

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept on prices, totals and coefficients.
const Scale int32 = 4

var two = decimal.NewFromInt(2)

// RoundHalfUp rounds d to places, ties away from zero.
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// RoundHalfEven rounds d to places, ties to the even neighbour.
func RoundHalfEven(d decimal.Decimal, places int32) decimal.Decimal {
	return d.RoundBank(places)
}

// DivHalfEven returns a/b rounded half-even to places. The rounding decision is
// taken on the exact remainder, so no precision is lost to an intermediate
// division scale. b must not be zero.
func DivHalfEven(a, b decimal.Decimal, places int32) decimal.Decimal {
	q, r := a.QuoRem(b, places)
	if r.IsZero() {
		return q
	}

	unit := decimal.New(1, -places)
	// |r| < |b|*unit, so comparing 2|r| with |b|*unit tells which side of the tie we are on.
	cmp := r.Abs().Mul(two).Cmp(b.Abs().Mul(unit))

	roundAway := cmp > 0
	if cmp == 0 {
		digits := new(big.Int).Abs(q.Shift(places).BigInt())
		roundAway = digits.Bit(0) == 1
	}
	if !roundAway {
		return q
	}

	if a.Sign()*b.Sign() < 0 {
		return q.Sub(unit)
	}
	return q.Add(unit)
}

// FromInt converts an integer quantity into a decimal.
func FromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// OneIfZero substitutes one for a zero value. Ratios and scaled values use it
// so that a line without history is treated as "no change".
func OneIfZero(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return decimal.NewFromInt(1)
	}
	return d
}

// Fixed formats d with exactly Scale fractional digits.
func Fixed(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
