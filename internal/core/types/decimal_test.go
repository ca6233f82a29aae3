package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound(t *testing.T) {
	tests := []struct {
		in   string
		mode RoundingMode
		want string
	}{
		{"4.995", RoundHalfEven, "5"},
		{"4.985", RoundHalfEven, "4.98"},
		{"4.985", RoundHalfUp, "4.99"},
		{"4.981", RoundUp, "4.99"},
		{"4.989", RoundDown, "4.98"},
		{"-4.981", RoundCeiling, "-4.98"},
		{"-4.981", RoundFloor, "-4.99"},
	}
	for _, tt := range tests {
		got := Round(MustMoney(tt.in), 2, tt.mode)
		assert.True(t, got.Equal(MustMoney(tt.want)), "%s %s: got %s", tt.in, tt.mode, got)
	}
}

func TestParseRoundingMode(t *testing.T) {
	m, err := ParseRoundingMode("half_up")
	require.NoError(t, err)
	assert.Equal(t, RoundHalfUp, m)

	m, err = ParseRoundingMode("")
	require.NoError(t, err)
	assert.Equal(t, RoundHalfEven, m)

	_, err = ParseRoundingMode("banker")
	assert.Error(t, err)
}

func TestNonNegativeAndMin(t *testing.T) {
	assert.True(t, NonNegative(MustMoney("-1")).IsZero())
	assert.True(t, MinMoney(MustMoney("3"), MustMoney("2")).Equal(MustMoney("2")))
}
