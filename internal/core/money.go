// Package core provides the domain entities shared by the classification
// engine, the bridge normalizer and the persistence layer.
//
// Amounts are held as signed integer cents. The bridge delivers amounts as
// decimal strings; ParseAmount converts them exactly, and malformed input
// coerces to zero so one corrupt record never aborts a batch aggregation.
package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a signed amount in integer cents.
type Money struct {
	Cents int64
}

// ParseAmount converts a decimal string ("12.34", "-500", "2500.00") to
// Money. The second return value reports whether the input was a valid
// decimal; on failure the returned Money is zero.
func ParseAmount(s string) (Money, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, false
	}
	// Half-up to two places, then shift into cents.
	cents := d.Round(2).Shift(2)
	if !cents.IsInteger() {
		return Money{}, false
	}
	return Money{Cents: cents.IntPart()}, true
}

// Abs returns the magnitude of the amount.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}

// Neg returns the amount with its sign flipped.
func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{Cents: m.Cents + other.Cents}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	return Money{Cents: m.Cents - other.Cents}
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.Cents > 0 }

// IsNegative reports whether the amount is strictly less than zero.
func (m Money) IsNegative() bool { return m.Cents < 0 }

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.Cents == 0 }

// Float returns the amount in major units for display purposes.
// Use cents for all calculations.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount as a plain decimal with two places.
func (m Money) String() string {
	sign := ""
	c := m.Cents
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
