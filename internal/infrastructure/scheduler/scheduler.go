// Package scheduler runs the quest bot's periodic jobs: the daily and weekly
// quest broadcasts and the optional expiry sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/questforge/questbot/pkg/logger"
)

// Job is one unit of periodic work. Run gets a context that is cancelled on
// Stop and, when a job timeout is configured, after that timeout.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// Schedule yields the run times of a job.
type Schedule interface {
	// Next returns the first run time strictly after t, or the zero time
	// if there is none.
	Next(t time.Time) time.Time
	String() string
}

// Locker guards a job run across processes. Implemented by the Redis layer.
type Locker interface {
	// TryLock returns ok=false if another holder owns name.
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// JobResult describes one finished run. Skipped runs were not executed
// because another process held the job lock.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Skipped     bool
	Error       error
}

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobInFlight             = errors.New("job is already running")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// Config configures a Scheduler.
type Config struct {
	Logger *slog.Logger

	// Timezone is where cron expressions are evaluated. Defaults to UTC.
	Timezone *time.Location

	// Locker makes each run exclusive across processes. Optional.
	Locker Locker

	// JobTimeout bounds one run and is the lock TTL. Zero means no bound
	// and a one hour lock.
	JobTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Logger:     slog.Default(),
		Timezone:   time.UTC,
		JobTimeout: 30 * time.Minute,
	}
}

// entry is the mutable state of a registered job. Guarded by Scheduler.mu.
type entry struct {
	job      Job
	schedule Schedule
	busy     bool
	lastRun  time.Time
	nextRun  time.Time
	runs     int64
	failures int64
	last     *JobResult
}

// Scheduler fires registered jobs when their schedule comes due. A job never
// overlaps itself: a due tick is dropped while the previous run is active.
type Scheduler struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	onDone  func(JobResult)

	running bool
	since   time.Time
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	return &Scheduler{
		cfg:     cfg,
		log:     cfg.Logger.With(logger.Component("scheduler")),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds job under its name. Names are unique.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	switch {
	case job == nil:
		return ErrNilJob
	case schedule == nil:
		return ErrNilSchedule
	}

	name := job.Name()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	e := &entry{job: job, schedule: schedule}
	e.nextRun = schedule.Next(s.now().In(s.cfg.Timezone))
	s.entries[name] = e

	s.log.Info("job registered",
		slog.String("job", name),
		slog.String("schedule", schedule.String()),
		slog.Time("next_run", e.nextRun),
	)
	return nil
}

// RegisterCron registers job with a five-field cron expression.
func (s *Scheduler) RegisterCron(job Job, expr string) error {
	sched, err := ParseCronExpression(expr)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name(), err)
	}
	return s.Register(job, sched)
}

// RegisterEvery registers job on a fixed interval grid.
func (s *Scheduler) RegisterEvery(job Job, interval time.Duration) error {
	sched, err := NewIntervalSchedule(interval)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name(), err)
	}
	return s.Register(job, sched)
}

// OnJobComplete installs a hook that sees every result, skipped runs included.
func (s *Scheduler) OnJobComplete(fn func(JobResult)) {
	s.mu.Lock()
	s.onDone = fn
	s.mu.Unlock()
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start launches the tick loop. Runs inherit ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.running = true
	s.since = s.now()

	s.log.Info("scheduler started",
		slog.Int("jobs", len(s.entries)),
		slog.String("timezone", s.cfg.Timezone.String()),
	)

	s.wg.Add(1)
	go s.loop(loopCtx)
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.stop()
	since := s.since
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped", slog.Duration("uptime", s.now().Sub(since)))
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.dispatchDue(ctx, s.now().In(s.cfg.Timezone))
		}
	}
}

// dispatchDue starts every idle job whose next run is not after now and
// advances its schedule. A zero next run means the schedule is exhausted.
func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) {
	var due []*entry

	s.mu.Lock()
	for _, e := range s.entries {
		if e.busy || e.nextRun.IsZero() || e.nextRun.After(now) {
			continue
		}
		e.busy = true
		e.runs++
		e.lastRun = now
		e.nextRun = e.schedule.Next(now)
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.execute(ctx, e, false)
		}()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow runs a job immediately, outside its schedule. The returned error is
// the job's own error.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	switch {
	case !ok:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	case e.busy:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobInFlight, name)
	}
	e.busy = true
	e.runs++
	s.mu.Unlock()

	res := s.execute(ctx, e, true)
	return &res, res.Error
}

// execute takes the job lock if configured, runs the job and records the
// outcome. The entry is marked idle on return.
func (s *Scheduler) execute(ctx context.Context, e *entry, manual bool) JobResult {
	name := e.job.Name()
	log := s.log.With(slog.String("job", name), slog.Bool("manual", manual))

	defer func() {
		s.mu.Lock()
		e.busy = false
		s.mu.Unlock()
	}()

	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	res := JobResult{JobName: name, StartedAt: s.now()}

	if s.cfg.Locker != nil {
		unlock, acquired, err := s.cfg.Locker.TryLock(ctx, name, s.lockTTL())
		switch {
		case err != nil:
			// Redis is optional: without it the run proceeds unguarded.
			log.Warn("job lock unavailable, running unlocked", logger.Err(err))
		case !acquired:
			log.Info("job skipped, lock held elsewhere")
			res.Skipped = true
			res.Success = true
			res.CompletedAt = s.now()
			s.finish(e, res)
			return res
		default:
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					log.Warn("job unlock failed", logger.Err(err))
				}
			}()
		}
	}

	log.Info("job started")
	err := e.job.Run(ctx)

	res.CompletedAt = s.now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)
	res.Error = err
	res.Success = err == nil

	if err != nil {
		log.Error("job failed", slog.Duration("duration", res.Duration), logger.Err(err))
	} else {
		log.Info("job completed", slog.Duration("duration", res.Duration))
	}

	s.finish(e, res)
	return res
}

func (s *Scheduler) lockTTL() time.Duration {
	if s.cfg.JobTimeout > 0 {
		return s.cfg.JobTimeout
	}
	return time.Hour
}

func (s *Scheduler) finish(e *entry, res JobResult) {
	s.mu.Lock()
	if res.Error != nil {
		e.failures++
	}
	e.last = &res
	hook := s.onDone
	s.mu.Unlock()

	if hook != nil {
		hook(res)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo is a snapshot of one job for the admin API and the worker CLI.
type JobInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Running     bool       `json:"running"`
	Schedule    string     `json:"schedule"`
	LastRun     time.Time  `json:"last_run"`
	NextRun     time.Time  `json:"next_run"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	LastResult  *JobResult `json:"-"`
}

// ListJobs returns all jobs ordered by next run, exhausted schedules last.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	infos := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Running:     e.busy,
			Schedule:    e.schedule.String(),
			LastRun:     e.lastRun,
			NextRun:     e.nextRun,
			RunCount:    e.runs,
			FailCount:   e.failures,
			LastResult:  e.last,
		})
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		a, b := infos[i].NextRun, infos[j].NextRun
		if a.IsZero() != b.IsZero() {
			return b.IsZero()
		}
		if a.Equal(b) {
			return infos[i].Name < infos[j].Name
		}
		return a.Before(b)
	})
	return infos
}
