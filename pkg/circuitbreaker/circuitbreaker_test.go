package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := New("gen",
		WithFailureThreshold(2),
		WithTimeout(time.Minute),
		WithClock(clock.Now),
		WithOnStateChange(func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	fail := func(context.Context) error { return errors.New("down") }
	ok := func(context.Context) error { return nil }
	ctx := context.Background()

	assert.Error(t, cb.Execute(ctx, fail))
	assert.Equal(t, StateClosed, cb.State())
	assert.Error(t, cb.Execute(ctx, fail))
	assert.True(t, cb.IsOpen())

	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
	assert.Equal(t, 1, cb.Counts().Rejected)

	clock.now = clock.now.Add(time.Minute)
	assert.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cb := New("gen", WithFailureThreshold(1), WithTimeout(time.Second), WithClock(clock.Now))
	ctx := context.Background()

	_ = cb.Execute(ctx, func(context.Context) error { return errors.New("x") })
	assert.True(t, cb.IsOpen())

	clock.now = clock.now.Add(2 * time.Second)
	_ = cb.Execute(ctx, func(context.Context) error { return errors.New("x") })
	assert.True(t, cb.IsOpen())
}

func TestBreaker_IgnoresCancellation(t *testing.T) {
	cb := New("gen", WithFailureThreshold(1))
	_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.Equal(t, StateClosed, cb.State())

	cb.Reset()
	assert.Equal(t, Counts{}, cb.Counts())
}
