// Package numutil provides guarded arithmetic for monetary calculations.
// Every component in the trading core routes division and percentage math
// through these helpers so a zero denominator or a NaN input degrades to a
// named fallback instead of propagating through a trade decision.
package numutil

import "math"

// IsFinite reports whether v is a usable number (not NaN, not Inf).
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SafeDiv divides a by b, returning 0 when the result would be undefined.
func SafeDiv(a, b float64) float64 {
	return SafeDivOr(a, b, 0)
}

// SafeDivOr divides a by b, returning fallback when b is zero or either
// operand is non-finite.
func SafeDivOr(a, b, fallback float64) float64 {
	if b == 0 || !IsFinite(a) || !IsFinite(b) {
		return fallback
	}
	q := a / b
	if !IsFinite(q) {
		return fallback
	}
	return q
}

// PctChange returns the percentage change from `from` to `to`.
// Returns 0 when `from` is zero or either input is non-finite.
func PctChange(from, to float64) float64 {
	return SafeDiv(to-from, from) * 100
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, decimals int) float64 {
	if !IsFinite(v) {
		return 0
	}
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

// Clamp limits v to the inclusive range [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NonNeg floors v at zero. Used to absorb rounding dust in quantity and
// cost accounting.
func NonNeg(v float64) float64 {
	if !IsFinite(v) || v < 0 {
		return 0
	}
	return v
}

// Min returns the smaller of a and b.
func Min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
