package generator

import (
	"context"
	"math"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiterConfig sizes the token bucket in front of the completion API.
type RateLimiterConfig struct {
	RequestsPerSecond float64
	BurstSize         int

	// WaitTimeout caps how long Allow blocks before giving up.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig fits a paid API tier.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 3,
		BurstSize:         5,
		WaitTimeout:       time.Minute,
	}
}

// RateLimitError means no token became available within WaitTimeout.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded, retry after " + e.RetryAfter.String()
}

// RateLimiter is a token bucket that backs off on its own.
//
// A broadcast to every user would otherwise send completions as fast as the
// worker pool allows. When the provider still answers 429, RecordRateLimitHit
// empties the bucket and slows the refill by a fifth; the nominal rate comes
// back once the bucket fills up again. Repeated waits double the wait up to
// 32 times.
type RateLimiter struct {
	mu sync.Mutex

	capacity float64
	nominal  float64 // configured tokens per second
	rate     float64 // current tokens per second
	tokens   float64
	misses   int // consecutive failed acquisitions
	timeout  time.Duration

	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter returns a limiter with a full bucket.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	burst := float64(max(cfg.BurstSize, 1))
	rl := &RateLimiter{
		capacity: burst,
		nominal:  cfg.RequestsPerSecond,
		rate:     cfg.RequestsPerSecond,
		tokens:   burst,
		timeout:  cfg.WaitTimeout,
		now:      time.Now,
	}
	rl.lastRefill = rl.now()
	return rl
}

// Allow waits for a token. It fails with *RateLimitError when the next token
// is further away than WaitTimeout, or with ctx.Err().
func (rl *RateLimiter) Allow(ctx context.Context) error {
	giveUp := rl.now().Add(rl.timeout)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, ok := rl.take()
		if ok {
			return nil
		}
		if rl.now().Add(wait).After(giveUp) {
			return &RateLimitError{RetryAfter: wait}
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// TryAllow takes a token if one is available right now.
func (rl *RateLimiter) TryAllow() bool {
	_, ok := rl.take()
	return ok
}

// take consumes a token or reports how long to wait for one.
func (rl *RateLimiter) take() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		rl.misses = 0
		return 0, true
	}

	deficit := 1 - rl.tokens
	wait := time.Duration(deficit / rl.rate * float64(time.Second))
	wait <<= min(rl.misses, 5)
	rl.misses++
	return wait, false
}

// refill adds the tokens earned since the last call. Callers hold mu.
func (rl *RateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.lastRefill = now

	rl.tokens = math.Min(rl.capacity, rl.tokens+elapsed*rl.rate)
	if rl.tokens == rl.capacity {
		rl.rate = rl.nominal
	}
}

// RecordRateLimitHit reacts to a 429 from the provider. retryAfter, if known,
// is turned into token debt so the bucket stays empty that long.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = 0
	if retryAfter > 0 {
		rl.tokens = -retryAfter.Seconds() * rl.rate
	}
	rl.rate *= 0.8
	rl.misses++
	rl.lastRefill = rl.now()
}

// RateLimiterStatus is a snapshot of the bucket.
type RateLimiterStatus struct {
	AvailableTokens float64
	MaxTokens       float64
	RefillRate      float64
}

func (rl *RateLimiter) Status() RateLimiterStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	return RateLimiterStatus{
		AvailableTokens: rl.tokens,
		MaxTokens:       rl.capacity,
		RefillRate:      rl.rate,
	}
}
