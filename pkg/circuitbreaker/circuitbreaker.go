// Package circuitbreaker stops calling a dependency that keeps failing.
// After FailureThreshold consecutive failures the breaker opens and rejects
// calls for Timeout; then a few probe calls decide whether it closes again.
// The bot puts one in front of the quest generator and one in front of the
// Telegram Bot API.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	// ErrCircuitOpen rejects a call while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests rejects a call once the half-open probes are taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config tunes a breaker. Build it with New and options.
type Config struct {
	Name                string
	FailureThreshold    int
	SuccessThreshold    int
	Timeout             time.Duration
	MaxHalfOpenRequests int

	// OnStateChange observes transitions. It runs under the breaker lock
	// and must not call back into the breaker.
	OnStateChange func(name string, from, to State)

	// IsFailure classifies errors. Nil counts everything but cancellation.
	IsFailure func(error) bool

	Now func() time.Time
}

type Option func(*Config)

func setPositive[T int | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

func WithFailureThreshold(n int) Option {
	return func(c *Config) { setPositive(&c.FailureThreshold, n) }
}

func WithSuccessThreshold(n int) Option {
	return func(c *Config) { setPositive(&c.SuccessThreshold, n) }
}

// WithTimeout sets how long the breaker stays open.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { setPositive(&c.Timeout, d) }
}

func WithMaxHalfOpenRequests(n int) Option {
	return func(c *Config) { setPositive(&c.MaxHalfOpenRequests, n) }
}

func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) { c.IsFailure = fn }
}

func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}

// Counts are lifetime totals plus the current streak.
type Counts struct {
	Requests             int
	TotalSuccesses       int
	TotalFailures        int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
	Rejected             int
}

type CircuitBreaker struct {
	cfg Config

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	probes   int // admitted half-open calls still in flight
}

// New builds a closed breaker: 5 failures open it for 30s, 2 probe
// successes close it, one probe at a time.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := Config{
		Name:                name,
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
		Now:                 time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute calls fn unless the breaker rejects it, and feeds the outcome back.
// A rejection returns ErrCircuitOpen or ErrTooManyRequests without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.Timeout {
			cb.counts.Rejected++
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}

	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.MaxHalfOpenRequests {
			cb.counts.Rejected++
			return ErrTooManyRequests
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := &cb.counts
	c.Requests++

	if !cb.failed(err) {
		c.TotalSuccesses++
		c.ConsecutiveSuccesses++
		c.ConsecutiveFailures = 0
		if cb.state == StateHalfOpen {
			if c.ConsecutiveSuccesses >= cb.cfg.SuccessThreshold {
				cb.transition(StateClosed)
			} else if cb.probes > 0 {
				cb.probes--
			}
		}
		return
	}

	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
	if cb.state == StateHalfOpen || c.ConsecutiveFailures >= cb.cfg.FailureThreshold {
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) failed(err error) bool {
	switch {
	case err == nil:
		return false
	case cb.cfg.IsFailure != nil:
		return cb.cfg.IsFailure(err)
	default:
		return !errors.Is(err, context.Canceled)
	}
}

// transition resets the streak and probe budget. Callers hold mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateOpen {
		cb.openedAt = cb.cfg.Now()
	}
	cb.counts.ConsecutiveSuccesses = 0
	cb.counts.ConsecutiveFailures = 0
	cb.probes = 0

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) IsOpen() bool { return cb.State() == StateOpen }

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the breaker and clears all counters without notifying.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.counts = Counts{}
	cb.probes = 0
}

// GeneratorBreaker guards the quest generator. A scheduled broadcast can
// fire hundreds of calls, so it opens quickly and cools down for a minute.
func GeneratorBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New("quest-generator",
		WithFailureThreshold(5),
		WithSuccessThreshold(1),
		WithTimeout(time.Minute),
		WithOnStateChange(onStateChange),
	)
}

// TelegramAPIBreaker guards the Bot API. isFailure must ignore per-chat
// errors: one user blocking the bot is not an outage.
func TelegramAPIBreaker(onStateChange func(name string, from, to State), isFailure func(error) bool) *CircuitBreaker {
	return New("telegram-api",
		WithFailureThreshold(5),
		WithSuccessThreshold(1),
		WithTimeout(30*time.Second),
		WithMaxHalfOpenRequests(2),
		WithOnStateChange(onStateChange),
		WithIsFailure(isFailure),
	)
}
