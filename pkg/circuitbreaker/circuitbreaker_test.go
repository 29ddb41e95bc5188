package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestBreaker_HalfOpenLimitsTrials(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cb := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(2),
		WithMaxHalfOpenRequests(1),
		WithTimeout(time.Second),
		WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(time.Second)
	blocked := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error { <-blocked; return nil })
	}()
	require.Eventually(t, func() bool { return cb.State() == StateHalfOpen }, time.Second, time.Millisecond)

	err := cb.Execute(ctx, ok)
	assert.ErrorIs(t, err, ErrTooManyRequests)
	assert.True(t, IsRejection(err))

	close(blocked)
	require.NoError(t, <-done)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 3, cb.Counts().Requests)
}

func TestBreaker_FailureInHalfOpenReopens(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cb := New("test", WithFailureThreshold(2), WithTimeout(time.Second), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(time.Second)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
	assert.Equal(t, "test", cb.Name())
}

func TestRankingBreaker(t *testing.T) {
	cb := RankingBreaker(nil)
	assert.Equal(t, "redis-ranking", cb.Name())
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_CanceledIsNotAFailure(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))
	err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Counts().TotalSuccesses)
}

func TestBreaker_Snapshot(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cb := New("ranking", WithFailureThreshold(1), WithClock(func() time.Time { return now }))
	_ = cb.Execute(context.Background(), fail)

	snap := cb.Snapshot()
	assert.Equal(t, "ranking", snap.Name)
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, 1, snap.Counts.TotalFailures)
	assert.Equal(t, now, snap.LastFailure)

	text, err := snap.State.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "open", string(text))
}
