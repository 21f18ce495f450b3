package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge/questbot/internal/application/query"
)

// memStore emulates the Redis commands Cache exposes.
type memStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(ctx context.Context, key string, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	raw, ok := m.data[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal([]byte(raw), dest)
}

func (m *memStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = string(b)
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return true, nil
}

func (m *memStore) CompareAndDelete(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] == token {
		delete(m.data, key)
	}
	return nil
}

func TestConfigOptions(t *testing.T) {
	opts, err := Config{URL: "redis://:pw@cache:6380/2", PoolSize: 5}.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 5, opts.PoolSize)

	opts, err = DefaultConfig().Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	_, err = Config{URL: "http://nope"}.Options()
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestStatsCache(t *testing.T) {
	store := newMemStore()
	cache := NewStatsCache(store, 0)
	ctx := context.Background()

	var got query.AdminStats
	hit, err := cache.GetStats(ctx, &got)
	require.NoError(t, err)
	assert.False(t, hit)

	want := &query.AdminStats{TotalUsers: 12, CompletedQuests: 30, AverageLevel: 2.5}
	require.NoError(t, cache.SetStats(ctx, want))
	assert.Equal(t, TTLAdminStats, store.ttls[StatsKey("admin")])

	hit, err = cache.GetStats(ctx, &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 12, got.TotalUsers)
	assert.InDelta(t, 2.5, got.AverageLevel, 1e-9)

	store.err = errors.New("conn refused")
	_, err = cache.GetStats(ctx, &got)
	assert.Error(t, err)
}

func TestLocker(t *testing.T) {
	store := newMemStore()
	l := NewLocker(store)
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "issue_daily_quests", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "issue_daily_quests", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// A foreign token must not release the lock.
	require.NoError(t, store.CompareAndDelete(ctx, LockKey("issue_daily_quests"), "someone-else"))
	_, ok, _ = l.TryLock(ctx, "issue_daily_quests", time.Minute)
	assert.False(t, ok)

	require.NoError(t, unlock(ctx))
	_, ok, err = l.TryLock(ctx, "issue_daily_quests", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, TTLBatchLock, store.ttls[LockKey("issue_daily_quests")])
}
