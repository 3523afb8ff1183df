// Package num validates numbers at the system boundary so internal
// accounting logic can assume well-formed values throughout.
package num

import "math"

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Positive reports whether v is a finite value greater than zero.
func Positive(v float64) bool {
	return Finite(v) && v > 0
}

// NonNegative reports whether v is a finite value of at least zero.
func NonNegative(v float64) bool {
	return Finite(v) && v >= 0
}

// Coerce maps NaN and infinities to zero. Used when loading persisted
// state that may be partially missing or corrupted.
func Coerce(v float64) float64 {
	if !Finite(v) {
		return 0
	}
	return v
}

// CoerceNonNegative maps NaN, infinities and negative values to zero.
func CoerceNonNegative(v float64) float64 {
	if !Finite(v) || v < 0 {
		return 0
	}
	return v
}

// CoerceDefault maps non-finite values to def.
func CoerceDefault(v, def float64) float64 {
	if !Finite(v) {
		return def
	}
	return v
}
