// Package redis implements the optional Redis layer of the quest bot:
// a JSON cache for admin statistics and short-lived locks that keep
// scheduled broadcasts from running twice when the bot and the worker
// share a schedule.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout. Everything the bot writes lives under "questbot:".
const (
	keyPrefix = "questbot:"

	// TTLAdminStats is how long /admin_stats numbers are served from cache.
	TTLAdminStats = time.Minute

	// TTLBatchLock bounds a broadcast lock if the holder dies.
	TTLBatchLock = 30 * time.Minute
)

func StatsKey(name string) string    { return keyPrefix + "stats:" + name }
func LockKey(resource string) string { return keyPrefix + "lock:" + resource }

var (
	ErrCacheMiss          = errors.New("cache: key not found")
	ErrCacheConnection    = errors.New("cache: connection failed")
	ErrCacheSerialization = errors.New("cache: serialization failed")
)

// Config selects the server either by URL or by host fields. Zero tuning
// fields keep the go-redis defaults.
type Config struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Options translates the config into go-redis options. URL wins over the
// host fields.
func (c Config) Options() (*redis.Options, error) {
	opts := &redis.Options{
		Addr:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Password: c.Password,
		DB:       c.DB,
	}
	if c.URL != "" {
		parsed, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
		}
		opts = parsed
	}

	setIfPositive(&opts.PoolSize, c.PoolSize)
	setIfPositive(&opts.MaxRetries, c.MaxRetries)
	setIfPositive(&opts.DialTimeout, c.DialTimeout)
	setIfPositive(&opts.ReadTimeout, c.ReadTimeout)
	setIfPositive(&opts.WriteTimeout, c.WriteTimeout)
	return opts, nil
}

func setIfPositive[T int | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Cache stores JSON documents and lock tokens in Redis.
type Cache struct {
	rdb *redis.Client
}

// NewCache connects and pings within the dial timeout.
func NewCache(cfg Config) (*Cache, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return &Cache{rdb: rdb}, nil
}

func (c *Cache) Close() error { return c.rdb.Close() }

func (c *Cache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Set writes value as JSON. A zero ttl keeps the key forever.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// Get decodes the JSON at key into dest, or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// SetNX stores value only if key is absent.
func (c *Cache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CompareAndDelete deletes key if its value equals token.
func (c *Cache) CompareAndDelete(ctx context.Context, key, token string) error {
	return compareAndDelete.Run(ctx, c.rdb, []string{key}, token).Err()
}
