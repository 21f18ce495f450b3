package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2025-03-10 is a Monday.
var monday9 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }
func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	return j.err
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	unlocked int
}

func (l *fakeLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, name)
		l.unlocked++
		return nil
	}, true, nil
}

func newTestScheduler(locker Locker) *Scheduler {
	s := New(Config{Locker: locker})
	s.now = func() time.Time { return monday9.Add(-time.Minute) }
	return s
}

func TestParseCronExpression_Next(t *testing.T) {
	daily := MustParseCronExpression(EveryDay9AM)
	assert.Equal(t, monday9, daily.Next(monday9.Add(-30*time.Second)))
	assert.Equal(t, monday9.Add(24*time.Hour), daily.Next(monday9))

	weekly := MustParseCronExpression(EveryMonday9AM)
	assert.Equal(t, monday9.Add(7*24*time.Hour), weekly.Next(monday9))
	assert.Equal(t, monday9, weekly.Next(monday9.Add(-72*time.Hour)))

	hourly := MustParseCronExpression(EveryHour)
	assert.Equal(t, monday9.Add(time.Hour), hourly.Next(monday9.Add(time.Second)))

	list := MustParseCronExpression("15,45 * * * *")
	assert.Equal(t, monday9.Add(15*time.Minute), list.Next(monday9))
}

func TestParseCronExpression_Fields(t *testing.T) {
	// 7 and 0 are both Sunday; 2025-03-16 is a Sunday.
	sunday := MustParseCronExpression("30 8 * * 7")
	assert.Equal(t, time.Date(2025, 3, 16, 8, 30, 0, 0, time.UTC), sunday.Next(monday9))

	mixed := MustParseCronExpression("0 1-3,22 * * *")
	assert.Equal(t, time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC), mixed.Next(monday9))
	assert.Equal(t, time.Date(2025, 3, 11, 1, 0, 0, 0, time.UTC), mixed.Next(monday9.Add(13*time.Hour)))

	offset := MustParseCronExpression("5/20 * * * *")
	assert.Equal(t, monday9.Add(5*time.Minute), offset.Next(monday9))
	assert.Equal(t, monday9.Add(25*time.Minute), offset.Next(monday9.Add(5*time.Minute)))

	// Both day fields restricted: the 1st of the month or any Friday.
	either := MustParseCronExpression("0 9 1 * 5")
	assert.Equal(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), either.Next(monday9))
	assert.Equal(t, time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC), either.Next(time.Date(2025, 3, 28, 9, 0, 0, 0, time.UTC)))

	never := MustParseCronExpression("0 0 31 2 *")
	assert.True(t, never.Next(monday9).IsZero())

	almaty := time.FixedZone("ALMT", 5*3600)
	daily := MustParseCronExpression(EveryDay9AM)
	assert.Equal(t, time.Date(2025, 3, 11, 9, 0, 0, 0, almaty), daily.Next(time.Date(2025, 3, 10, 9, 0, 0, 0, almaty)))
	assert.Equal(t, "0 9 * * *", daily.String())
}

func TestIntervalSchedule(t *testing.T) {
	_, err := NewIntervalSchedule(time.Millisecond)
	assert.Error(t, err)

	is, err := NewIntervalSchedule(15 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "@every 15m0s", is.String())
	assert.Equal(t, monday9.Add(15*time.Minute), is.Next(monday9))
	assert.Equal(t, monday9.Add(15*time.Minute), is.Next(monday9.Add(7*time.Minute)))
}

func TestParseCronExpression_Invalid(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "61 * * * *", "*/0 * * * *", "a b c d e", "5-1 * * * *", "1,,2 * * * *", "* * 0 * *", "* * * 13 *"} {
		_, err := ParseCronExpression(expr)
		assert.Error(t, err, expr)
	}
}

func TestScheduler_RegisterDuplicate(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "issue_daily_quests"}

	require.NoError(t, s.RegisterCron(job, EveryDay9AM))
	assert.ErrorIs(t, s.Register(job, &IntervalSchedule{Interval: time.Hour}), ErrJobAlreadyExists)
	assert.Error(t, s.RegisterCron(&countingJob{name: "bad"}, "nope"))
	assert.ErrorIs(t, s.Register(nil, &IntervalSchedule{Interval: time.Hour}), ErrNilJob)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, monday9, jobs[0].NextRun)
}

func TestScheduler_DispatchDue(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "issue_daily_quests"}
	require.NoError(t, s.RegisterCron(job, EveryDay9AM))

	s.dispatchDue(context.Background(), monday9.Add(-time.Second))
	s.wg.Wait()
	assert.Equal(t, int32(0), job.runs.Load())

	s.dispatchDue(context.Background(), monday9)
	s.wg.Wait()
	assert.Equal(t, int32(1), job.runs.Load())

	info := s.ListJobs()[0]
	assert.Equal(t, monday9.Add(24*time.Hour), info.NextRun)
	assert.Equal(t, int64(1), info.RunCount)
	require.NotNil(t, info.LastResult)
	assert.True(t, info.LastResult.Success)
}

func TestScheduler_DoesNotOverlapRuns(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, &IntervalSchedule{Interval: time.Second}))

	s.dispatchDue(context.Background(), monday9)
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)

	s.dispatchDue(context.Background(), monday9.Add(time.Hour))
	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobInFlight)

	close(job.block)
	s.wg.Wait()
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestScheduler_LockSkipsRun(t *testing.T) {
	locker := &fakeLocker{held: map[string]bool{"issue_weekly_quests": true}}
	s := newTestScheduler(locker)
	job := &countingJob{name: "issue_weekly_quests"}
	require.NoError(t, s.RegisterCron(job, EveryMonday9AM))

	res, err := s.RunNow(context.Background(), job.name)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, int32(0), job.runs.Load())

	delete(locker.held, job.name)
	res, err = s.RunNow(context.Background(), job.name)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, int32(1), job.runs.Load())
	assert.Equal(t, 1, locker.unlocked)
}

func TestScheduler_RunNowReportsFailure(t *testing.T) {
	s := newTestScheduler(nil)
	boom := errors.New("boom")
	require.NoError(t, s.Register(&countingJob{name: "failing", err: boom}, &IntervalSchedule{Interval: time.Hour}))

	var completed []JobResult
	s.OnJobComplete(func(r JobResult) { completed = append(completed, r) })

	res, err := s.RunNow(context.Background(), "failing")
	assert.ErrorIs(t, err, boom)
	assert.False(t, res.Success)
	require.Len(t, completed, 1)
	assert.Equal(t, int64(1), s.ListJobs()[0].FailCount)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(DefaultConfig())
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}
