package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerengine/internal/core/types"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(envOf(map[string]string{"DATABASE_URL": "postgres://localhost/offers"}))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.True(t, cfg.Development())
	assert.True(t, cfg.Promotion.RoundOfferValues)
	assert.Equal(t, int32(2), cfg.Promotion.RoundingScale)
	assert.Equal(t, types.RoundHalfEven, cfg.Promotion.RoundingMode)
	assert.Equal(t, 500*time.Millisecond, cfg.WorkerPollInterval)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := LoadConfig(envOf(map[string]string{
		"DATABASE_URL":             "postgres://localhost/offers",
		"APP_ENV":                  "production",
		"PROMO_ROUND_OFFER_VALUES": "false",
		"PROMO_ROUNDING_SCALE":     "4",
		"PROMO_ROUNDING_MODE":      "half_up",
		"WORKER_POLL_INTERVAL":     "2s",
		"LOCK_RETRY_ATTEMPTS":      "9",
	}))
	require.NoError(t, err)

	assert.False(t, cfg.Development())
	assert.False(t, cfg.Promotion.RoundOfferValues)
	assert.Equal(t, int32(4), cfg.Promotion.RoundingScale)
	assert.Equal(t, types.RoundHalfUp, cfg.Promotion.RoundingMode)
	assert.Equal(t, 2*time.Second, cfg.WorkerPollInterval)
	assert.Equal(t, 9, cfg.Retry.MaxAttempts)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database", map[string]string{}},
		{"bad rounding mode", map[string]string{"DATABASE_URL": "x", "PROMO_ROUNDING_MODE": "sideways"}},
		{"bad bool", map[string]string{"DATABASE_URL": "x", "PROMO_ROUND_OFFER_VALUES": "maybe"}},
		{"bad duration", map[string]string{"DATABASE_URL": "x", "WORKER_POLL_INTERVAL": "soon"}},
		{"negative scale", map[string]string{"DATABASE_URL": "x", "PROMO_ROUNDING_SCALE": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(envOf(tt.env))
			assert.Error(t, err)
		})
	}
}
