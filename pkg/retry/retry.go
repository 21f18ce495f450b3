// Package retry re-runs failing calls with capped exponential backoff and
// jitter. The quest generator, the Telegram client and the database dialer
// all go through it.
//
// By default only errors wrapped with Retryable are retried. WithRetryIf
// replaces that rule; an error wrapped with Permanent always stops the loop.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryableError marks an error as worth another attempt.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// PermanentError marks an error that must not be retried.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsRetryable(err error) bool {
	var target *RetryableError
	return errors.As(err, &target)
}

func IsPermanent(err error) bool {
	var target *PermanentError
	return errors.As(err, &target)
}

// Config is the backoff policy. MaxAttempts counts the first call.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64

	RetryIf func(error) bool
	OnRetry func(attempt int, err error, delay time.Duration)
}

type Option func(*Config)

func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.InitialDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithMultiplier sets the backoff growth; values below 1 are ignored.
func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m >= 1 {
			c.Multiplier = m
		}
	}
}

// WithJitter spreads each delay by ±j of itself, 0 ≤ j ≤ 1.
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1 {
			c.JitterFactor = j
		}
	}
}

func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) { c.RetryIf = fn }
}

// WithOnRetry observes each failed attempt that will be retried.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// Retrier applies one policy to any number of calls. It is stateless
// between calls and safe for concurrent use.
type Retrier struct {
	cfg Config
}

// New starts from 3 attempts, 100ms doubling up to 30s, 10% jitter.
func New(opts ...Option) *Retrier {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Retrier{cfg: cfg}
}

// Do calls operation until it succeeds, returns an error that should not be
// retried, or runs out of attempts. Marker wrappers are stripped from the
// returned error. A cancelled ctx ends the loop with the last error seen.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var last error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := operation(ctx)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return errors.Unwrap(err)
		case !r.retryable(err):
			return err
		}
		if IsRetryable(err) {
			err = errors.Unwrap(err)
		}
		last = err

		if attempt >= r.cfg.MaxAttempts {
			return last
		}

		wait := r.delay(attempt)
		if r.cfg.OnRetry != nil {
			r.cfg.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
}

func (r *Retrier) retryable(err error) bool {
	if r.cfg.RetryIf != nil {
		return r.cfg.RetryIf(err)
	}
	return IsRetryable(err)
}

// delay is InitialDelay·Multiplier^(attempt-1), capped at MaxDelay, then jittered.
func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(r.cfg.MaxDelay))
	if j := r.cfg.JitterFactor; j > 0 {
		d *= 1 + j*(2*rand.Float64()-1)
	}
	return time.Duration(math.Max(d, 0))
}

// Do runs operation with a one-off Retrier.
func Do(ctx context.Context, operation func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, operation)
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, r *Retrier, operation func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := operation(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

// TelegramRetrier is the Bot API policy: quick retries, since flood control
// waits are handled by the client itself.
func TelegramRetrier() *Retrier {
	return New(
		WithMaxAttempts(5),
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(5*time.Second),
		WithMultiplier(1.5),
		WithJitter(0.1),
	)
}

// DatabaseRetrier waits for a database that is still starting. Every error
// except cancellation is retried.
func DatabaseRetrier(attempts int, onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(
		WithMaxAttempts(attempts),
		WithInitialDelay(time.Second),
		WithMaxDelay(10*time.Second),
		WithMultiplier(2),
		WithJitter(0.05),
		WithRetryIf(func(err error) bool { return !errors.Is(err, context.Canceled) }),
		WithOnRetry(onRetry),
	)
}
