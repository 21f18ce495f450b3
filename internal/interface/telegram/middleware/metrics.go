package middleware

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS MIDDLEWARE
// Per-command counters and latencies. Exposed read-only on the admin
// HTTP endpoint.
// ══════════════════════════════════════════════════════════════════════════════

// MetricsMiddleware collects usage counters.
type MetricsMiddleware struct {
	totalRequests  atomic.Int64
	totalErrors    atomic.Int64
	activeRequests atomic.Int64
	startedAt      time.Time

	mu       sync.RWMutex
	commands map[string]*commandMetrics
}

type commandMetrics struct {
	count    int64
	errors   int64
	total    time.Duration
	max      time.Duration
	lastSeen time.Time
}

// NewMetricsMiddleware creates a new metrics middleware.
func NewMetricsMiddleware() *MetricsMiddleware {
	return &MetricsMiddleware{
		startedAt: time.Now(),
		commands:  make(map[string]*commandMetrics),
	}
}

// Begin marks the start of a request and returns the function that ends it.
func (m *MetricsMiddleware) Begin(command string) func(err error) {
	start := time.Now()
	m.activeRequests.Add(1)
	m.totalRequests.Add(1)

	return func(err error) {
		m.activeRequests.Add(-1)
		m.Record(command, time.Since(start), err)
	}
}

// Record adds one finished request.
func (m *MetricsMiddleware) Record(command string, d time.Duration, err error) {
	if err != nil {
		m.totalErrors.Add(1)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cm, ok := m.commands[command]
	if !ok {
		cm = &commandMetrics{}
		m.commands[command] = cm
	}
	cm.count++
	if err != nil {
		cm.errors++
	}
	cm.total += d
	if d > cm.max {
		cm.max = d
	}
	cm.lastSeen = time.Now()
}

// CommandStats is a point-in-time view of one command.
type CommandStats struct {
	Command   string    `json:"command"`
	Count     int64     `json:"count"`
	Errors    int64     `json:"errors"`
	AvgMillis float64   `json:"avg_ms"`
	MaxMillis float64   `json:"max_ms"`
	LastSeen  time.Time `json:"last_seen"`
}

// MetricsSnapshot is a point-in-time view of all counters.
type MetricsSnapshot struct {
	Uptime   string         `json:"uptime"`
	Requests int64          `json:"requests"`
	Errors   int64          `json:"errors"`
	Active   int64          `json:"active"`
	Commands []CommandStats `json:"commands"`
}

// Snapshot returns the counters sorted by call count, busiest first.
func (m *MetricsMiddleware) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	commands := make([]CommandStats, 0, len(m.commands))
	for name, cm := range m.commands {
		cs := CommandStats{
			Command:   name,
			Count:     cm.count,
			Errors:    cm.errors,
			MaxMillis: float64(cm.max) / float64(time.Millisecond),
			LastSeen:  cm.lastSeen,
		}
		if cm.count > 0 {
			cs.AvgMillis = float64(cm.total) / float64(cm.count) / float64(time.Millisecond)
		}
		commands = append(commands, cs)
	}
	m.mu.RUnlock()

	sort.Slice(commands, func(i, j int) bool {
		if commands[i].Count != commands[j].Count {
			return commands[i].Count > commands[j].Count
		}
		return commands[i].Command < commands[j].Command
	})

	return MetricsSnapshot{
		Uptime:   time.Since(m.startedAt).Round(time.Second).String(),
		Requests: m.totalRequests.Load(),
		Errors:   m.totalErrors.Load(),
		Active:   m.activeRequests.Load(),
		Commands: commands,
	}
}
