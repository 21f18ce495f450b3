// Package handlers contains the HTTP handlers of the bot service.
package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Overall and per-check states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
	StatusFail     = "fail"
)

// HealthChecker reports the state of the service dependencies.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc returns nil when the dependency answers.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the body of /ready.
//
// A failed critical check (the database) makes the service down and not
// ready. A failed optional check (Redis) only degrades it: the bot keeps
// serving without the stats cache and job locks.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Ready     bool                   `json:"ready"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   string `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
	Latency  string `json:"latency"`
}

type namedCheck struct {
	fn       HealthCheckFunc
	critical bool
}

// HealthRegistry runs registered checks concurrently.
type HealthRegistry struct {
	mu      sync.RWMutex
	checks  map[string]namedCheck
	started time.Time
	version string
	timeout time.Duration
}

// NewHealthRegistry creates an empty registry. Each check gets five seconds.
func NewHealthRegistry(version string) *HealthRegistry {
	return &HealthRegistry{
		checks:  make(map[string]namedCheck),
		started: time.Now(),
		version: version,
		timeout: 5 * time.Second,
	}
}

// Critical registers a check the service cannot work without.
func (h *HealthRegistry) Critical(name string, fn HealthCheckFunc) {
	h.add(name, fn, true)
}

// Optional registers a check whose failure only degrades the service.
func (h *HealthRegistry) Optional(name string, fn HealthCheckFunc) {
	h.add(name, fn, false)
}

// SetTimeout bounds each check.
func (h *HealthRegistry) SetTimeout(d time.Duration) {
	h.mu.Lock()
	h.timeout = d
	h.mu.Unlock()
}

func (h *HealthRegistry) add(name string, fn HealthCheckFunc, critical bool) {
	h.mu.Lock()
	h.checks[name] = namedCheck{fn: fn, critical: critical}
	h.mu.Unlock()
}

// Check runs every check and folds the results.
func (h *HealthRegistry) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := make(map[string]namedCheck, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	timeout := h.timeout
	h.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for name, c := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := c.fn(checkCtx)
			res := CheckResult{
				Status:   StatusOK,
				Critical: c.critical,
				Latency:  time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				res.Status = StatusFail
				res.Error = err.Error()
			}

			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{
		Status:    StatusOK,
		Ready:     true,
		Checks:    results,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Version:   h.version,
		Timestamp: time.Now().UTC(),
	}
	for _, res := range results {
		if res.Status == StatusOK {
			continue
		}
		if res.Critical {
			status.Status = StatusDown
			status.Ready = false
		} else if status.Status == StatusOK {
			status.Status = StatusDegraded
		}
	}
	return status
}

// Pinger is implemented by the postgres, sqlite and redis adapters.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck checks a dependency by pinging it.
func PingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// Live answers liveness probes. It never touches dependencies.
func Live(w http.ResponseWriter, _ *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready answers 503 while a critical dependency is down.
func Ready(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := checker.Check(r.Context())
		code := http.StatusOK
		if !status.Ready {
			code = http.StatusServiceUnavailable
		}
		RespondWithJSON(w, code, status)
	}
}
