// Package promotion applies offers to orders.
//
// A pricing run wraps the persistent order in a Promotable* mirror, lets the
// item, order and fulfillment group processors mark qualifiers and targets and
// attach candidate adjustments, arbitrates conflicts between exclusive offers,
// and finally synchronizes the surviving adjustments back onto the order.
package promotion

import (
	"offerengine/internal/core/types"
)

// percentScale is the precision of percent/100 before it multiplies a price.
const percentScale = 5

// Config controls monetary rounding of computed adjustments.
type Config struct {
	RoundOfferValues bool
	RoundingScale    int32
	RoundingMode     types.RoundingMode
}

// DefaultConfig rounds adjustments to cents, half-even.
func DefaultConfig() Config {
	return Config{
		RoundOfferValues: true,
		RoundingScale:    2,
		RoundingMode:     types.RoundHalfEven,
	}
}

func (c Config) round(m types.Money) types.Money {
	if !c.RoundOfferValues {
		return m
	}
	return types.Round(m, c.RoundingScale, c.RoundingMode)
}

// percentOff returns current * percent/100 with the rate carried to five digits half-even.
func (c Config) percentOff(current, percent types.Money) types.Money {
	rate := types.Round(percent.Div(types.Hundred), percentScale, types.RoundHalfEven)
	return c.round(current.Mul(rate))
}
