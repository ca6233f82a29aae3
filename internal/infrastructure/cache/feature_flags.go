package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"offerengine/pkg/logger"
)

// FlagPromotionsEnabled switches promotion calculation on and off globally.
const FlagPromotionsEnabled = "promotions_enabled"

// FeatureFlag is a row of ofr_feature_flag.
type FeatureFlag struct {
	FlagName   string     `db:"flag_name"`
	IsEnabled  bool       `db:"is_enabled"`
	ValidFrom  *time.Time `db:"valid_from"`
	ValidUntil *time.Time `db:"valid_until"`
}

// activeAt reports whether the flag is on at now, honoring its validity window.
func (f FeatureFlag) activeAt(now time.Time) bool {
	if !f.IsEnabled {
		return false
	}
	if f.ValidFrom != nil && now.Before(*f.ValidFrom) {
		return false
	}
	return f.ValidUntil == nil || !now.After(*f.ValidUntil)
}

// FeatureFlags caches ofr_feature_flag and reloads it on feature_flags_changed.
type FeatureFlags struct {
	pool *pgxpool.Pool
	now  func() time.Time

	mu    sync.RWMutex
	flags map[string]FeatureFlag
}

func NewFeatureFlags(pool *pgxpool.Pool) *FeatureFlags {
	return &FeatureFlags{
		pool:  pool,
		now:   time.Now,
		flags: make(map[string]FeatureFlag),
	}
}

// Attach subscribes the flags to change notifications.
func (f *FeatureFlags) Attach(l *Listener) {
	l.Subscribe(ChannelFeatureFlagsChanged, func(ctx context.Context, _, _ string) {
		if err := f.Load(ctx); err != nil {
			logger.Error(ctx, "failed to reload feature flags", "error", err)
		}
	})
}

// Load replaces the cached flags with the stored ones.
func (f *FeatureFlags) Load(ctx context.Context) error {
	var rows []FeatureFlag
	err := pgxscan.Select(ctx, f.pool, &rows,
		`SELECT flag_name, is_enabled, valid_from, valid_until FROM ofr_feature_flag`)
	if err != nil {
		return fmt.Errorf("query feature flags: %w", err)
	}
	f.set(rows)
	logger.Info(ctx, "loaded feature flags", "count", len(rows))
	return nil
}

func (f *FeatureFlags) set(rows []FeatureFlag) {
	flags := make(map[string]FeatureFlag, len(rows))
	for _, r := range rows {
		flags[r.FlagName] = r
	}
	f.mu.Lock()
	f.flags = flags
	f.mu.Unlock()
}

// IsEnabled reports whether flag is on. Unknown flags return def.
func (f *FeatureFlags) IsEnabled(_ context.Context, flag string, def bool) bool {
	f.mu.RLock()
	ff, ok := f.flags[flag]
	f.mu.RUnlock()
	if !ok {
		return def
	}
	return ff.activeAt(f.now())
}

// PromotionsEnabled reads the global promotions switch. It defaults to on.
func (f *FeatureFlags) PromotionsEnabled(ctx context.Context) bool {
	return f.IsEnabled(ctx, FlagPromotionsEnabled, true)
}
