// Package types provides money arithmetic and rounding helpers.
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// Hundred is the percent divisor.
var Hundred = decimal.NewFromInt(100)

// MinMoney returns the smaller of a and b.
func MinMoney(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// NonNegative clamps m at zero.
func NonNegative(m Money) Money {
	if m.IsNegative() {
		return decimal.Zero
	}
	return m
}

// Qty converts an item quantity into Money for multiplication.
func Qty(q int) Money {
	return decimal.NewFromInt(int64(q))
}

// RoundingMode selects how monetary values are rounded to a fixed scale.
type RoundingMode string

const (
	RoundHalfEven RoundingMode = "HALF_EVEN"
	RoundHalfUp   RoundingMode = "HALF_UP"
	RoundUp       RoundingMode = "UP"
	RoundDown     RoundingMode = "DOWN"
	RoundCeiling  RoundingMode = "CEILING"
	RoundFloor    RoundingMode = "FLOOR"
)

// ParseRoundingMode parses a rounding mode name (case-insensitive).
func ParseRoundingMode(s string) (RoundingMode, error) {
	m := RoundingMode(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case RoundHalfEven, RoundHalfUp, RoundUp, RoundDown, RoundCeiling, RoundFloor:
		return m, nil
	case "":
		return RoundHalfEven, nil
	}
	return "", fmt.Errorf("unknown rounding mode %q", s)
}

// Round rounds m to scale places using mode. Unknown modes fall back to HALF_EVEN.
func Round(m Money, scale int32, mode RoundingMode) Money {
	switch mode {
	case RoundHalfUp:
		return m.Round(scale)
	case RoundUp:
		return m.RoundUp(scale)
	case RoundDown:
		return m.RoundDown(scale)
	case RoundCeiling:
		return m.RoundCeil(scale)
	case RoundFloor:
		return m.RoundFloor(scale)
	default:
		return m.RoundBank(scale)
	}
}
