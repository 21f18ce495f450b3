package middleware

import (
	"context"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER MIDDLEWARE
// Per-user token bucket. Repeated violations earn a short ban.
// Quest generation is expensive, so generate commands draw from a
// separate, stricter bucket.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained refill rate per user.
	RequestsPerMinute int

	// BurstSize is the bucket capacity.
	BurstSize int

	// BanThreshold is the number of violations within ViolationWindow
	// that triggers a ban. Zero disables bans.
	BanThreshold int

	// ViolationWindow resets the violation counter when exceeded.
	ViolationWindow time.Duration

	// BanDuration is how long a ban lasts.
	BanDuration time.Duration

	// IdleTTL is how long an untouched bucket is kept.
	IdleTTL time.Duration

	// Whitelist holds users exempt from limiting (admins).
	Whitelist map[int64]bool
}

// DefaultRateLimitConfig returns sensible defaults for rate limiting.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 30,
		BurstSize:         5,
		BanThreshold:      5,
		ViolationWindow:   5 * time.Minute,
		BanDuration:       5 * time.Minute,
		IdleTTL:           10 * time.Minute,
		Whitelist:         map[int64]bool{},
	}
}

// GenerateRateLimitConfig is the stricter preset for quest generation commands.
func GenerateRateLimitConfig() RateLimitConfig {
	cfg := DefaultRateLimitConfig()
	cfg.RequestsPerMinute = 4
	cfg.BurstSize = 2
	cfg.BanThreshold = 0
	return cfg
}

// RateLimiter implements per-user rate limiting using the token bucket algorithm.
type RateLimiter struct {
	config RateLimitConfig
	now    func() time.Time

	mu      sync.Mutex
	buckets map[int64]*tokenBucket
	bans    map[int64]time.Time
}

type tokenBucket struct {
	tokens       float64
	lastRefill   time.Time
	violations   int
	lastViolated time.Time
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultRateLimitConfig().RequestsPerMinute
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &RateLimiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[int64]*tokenBucket),
		bans:    make(map[int64]time.Time),
	}
}

// RateLimitResult represents the result of a rate limit check.
type RateLimitResult struct {
	// Allowed indicates if the request is allowed.
	Allowed bool

	// RetryAfter is how long the user should wait before retrying.
	RetryAfter time.Duration

	// Banned is true when the user is serving a ban.
	Banned bool

	// Remaining is the number of whole tokens left.
	Remaining int
}

// Check consumes one token for the user if available.
func (rl *RateLimiter) Check(_ context.Context, telegramID int64) *RateLimitResult {
	if rl.config.Whitelist[telegramID] {
		return &RateLimitResult{Allowed: true, Remaining: rl.config.BurstSize}
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if until, ok := rl.bans[telegramID]; ok {
		if now.Before(until) {
			return &RateLimitResult{Banned: true, RetryAfter: until.Sub(now)}
		}
		delete(rl.bans, telegramID)
	}

	b, ok := rl.buckets[telegramID]
	if !ok {
		b = &tokenBucket{tokens: float64(rl.config.BurstSize), lastRefill: now}
		rl.buckets[telegramID] = b
	}

	rate := float64(rl.config.RequestsPerMinute) / 60.0
	b.tokens += now.Sub(b.lastRefill).Seconds() * rate
	if b.tokens > float64(rl.config.BurstSize) {
		b.tokens = float64(rl.config.BurstSize)
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return &RateLimitResult{Allowed: true, Remaining: int(b.tokens)}
	}

	if rl.config.ViolationWindow > 0 && now.Sub(b.lastViolated) > rl.config.ViolationWindow {
		b.violations = 0
	}
	b.violations++
	b.lastViolated = now

	if rl.config.BanThreshold > 0 && b.violations >= rl.config.BanThreshold {
		rl.bans[telegramID] = now.Add(rl.config.BanDuration)
		b.violations = 0
		return &RateLimitResult{Banned: true, RetryAfter: rl.config.BanDuration}
	}

	wait := time.Duration((1 - b.tokens) / rate * float64(time.Second))
	return &RateLimitResult{RetryAfter: wait}
}

// Reset clears the state for a user.
func (rl *RateLimiter) Reset(telegramID int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, telegramID)
	delete(rl.bans, telegramID)
}

// Cleanup drops idle buckets and expired bans.
func (rl *RateLimiter) Cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for id, b := range rl.buckets {
		if now.Sub(b.lastRefill) > rl.config.IdleTTL {
			delete(rl.buckets, id)
		}
	}
	for id, until := range rl.bans {
		if !now.Before(until) {
			delete(rl.bans, id)
		}
	}
}

// Run calls Cleanup every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// Tracked returns the number of users with live state.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
