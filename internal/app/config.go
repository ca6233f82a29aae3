// Package app loads process configuration and wires the offer engine for the
// server and worker binaries.
package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"offerengine/internal/core/types"
	"offerengine/internal/domain/promotion"
	"offerengine/internal/infrastructure/storage/postgres"
)

// Config is read from the environment.
type Config struct {
	DatabaseURL string
	LogLevel    string
	Env         string
	HTTPAddr    string
	JWTSecret   string

	Promotion promotion.Config

	WorkerPollInterval time.Duration
	WorkerBatchSize    int
	OutboxRetention    time.Duration

	Retry postgres.RetryPolicy
}

// Development reports whether APP_ENV is development.
func (c Config) Development() bool {
	return c.Env == "development"
}

// LoadConfig reads Config through getenv. Unset keys take defaults; malformed
// values are errors.
func LoadConfig(getenv func(string) string) (Config, error) {
	env := envReader{getenv: getenv}

	cfg := Config{
		DatabaseURL:        env.getString("DATABASE_URL", ""),
		LogLevel:           env.getString("LOG_LEVEL", "info"),
		Env:                env.getString("APP_ENV", "development"),
		HTTPAddr:           env.getString("HTTP_ADDR", ":8080"),
		JWTSecret:          env.getString("JWT_SECRET", ""),
		Promotion:          promotion.DefaultConfig(),
		WorkerPollInterval: env.getDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
		WorkerBatchSize:    env.getInt("WORKER_BATCH_SIZE", 50),
		OutboxRetention:    env.getDuration("OUTBOX_RETENTION", 7*24*time.Hour),
		Retry:              postgres.DefaultRetryPolicy(),
	}

	cfg.Promotion.RoundOfferValues = env.getBool("PROMO_ROUND_OFFER_VALUES", cfg.Promotion.RoundOfferValues)
	cfg.Promotion.RoundingScale = int32(env.getInt("PROMO_ROUNDING_SCALE", int(cfg.Promotion.RoundingScale)))
	if mode := env.getString("PROMO_ROUNDING_MODE", ""); mode != "" {
		m, err := types.ParseRoundingMode(mode)
		if err != nil {
			env.fail("PROMO_ROUNDING_MODE", err)
		}
		cfg.Promotion.RoundingMode = m
	}
	cfg.Retry.MaxAttempts = env.getInt("LOCK_RETRY_ATTEMPTS", cfg.Retry.MaxAttempts)

	if env.err != nil {
		return Config{}, env.err
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Promotion.RoundingScale < 0 {
		return Config{}, fmt.Errorf("PROMO_ROUNDING_SCALE must not be negative")
	}
	return cfg, nil
}

// LoadConfigFromEnv reads Config from the process environment.
func LoadConfigFromEnv() (Config, error) {
	return LoadConfig(os.Getenv)
}

// envReader parses typed values and keeps the first error.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (e *envReader) getString(key, def string) string {
	if v := e.getenv(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) getInt(key string, def int) int {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *envReader) getBool(key string, def bool) bool {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return b
}

func (e *envReader) getDuration(key string, def time.Duration) time.Duration {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}
