package redis

import (
	"context"
	"errors"
	"time"

	"github.com/questforge/questbot/internal/application/query"
)

// jsonStore is the subset of Cache used by StatsCache.
type jsonStore interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// StatsCache implements query.StatsCache on Redis.
type StatsCache struct {
	store jsonStore
	ttl   time.Duration
}

// NewStatsCache creates a stats cache; ttl <= 0 uses TTLAdminStats.
func NewStatsCache(store jsonStore, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = TTLAdminStats
	}
	return &StatsCache{store: store, ttl: ttl}
}

var statsKey = StatsKey("admin")

// GetStats loads cached statistics into dest. A miss is (false, nil).
func (c *StatsCache) GetStats(ctx context.Context, dest *query.AdminStats) (bool, error) {
	err := c.store.Get(ctx, statsKey, dest)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetStats stores statistics for the configured TTL.
func (c *StatsCache) SetStats(ctx context.Context, stats *query.AdminStats) error {
	return c.store.Set(ctx, statsKey, stats, c.ttl)
}
