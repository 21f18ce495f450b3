package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule fires every Interval on a fixed grid, so a restart does not
// shift the run times.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates an IntervalSchedule. Intervals under a second
// are rejected.
func NewIntervalSchedule(interval time.Duration) (*IntervalSchedule, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("interval %s is shorter than 1s", interval)
	}
	return &IntervalSchedule{Interval: interval}, nil
}

// Next returns the first grid point strictly after t.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Truncate(s.Interval).Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}
