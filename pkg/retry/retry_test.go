package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

func fast(opts ...Option) []Option {
	return append([]Option{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond)}, opts...)
}

func TestDo_RetriesEngineConflicts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return shared.ErrUserStale
		}
		return nil
	}, fast(WithMaxAttempts(5))...)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_DoesNotRetryDomainRejections(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return shared.ErrNoExtraLivesAvailable
	}, fast()...)

	assert.ErrorIs(t, err, shared.ErrNoExtraLivesAvailable)
	assert.Equal(t, 1, attempts)
}

func TestDo_StopsAfterMaxAttempts(t *testing.T) {
	attempts := 0
	var delays []time.Duration
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return shared.ErrLockTimeout
	}, fast(WithMaxAttempts(4), WithOnRetry(func(_ int, _ error, d time.Duration) {
		delays = append(delays, d)
	}))...)

	require.ErrorIs(t, err, shared.ErrLockTimeout)
	assert.Equal(t, 4, attempts)
	assert.Len(t, delays, 3)
}

func TestDo_PermanentIsUnwrapped(t *testing.T) {
	base := errors.New("bad input")
	err := Do(context.Background(), func(ctx context.Context) error {
		return Permanent(base)
	}, fast(WithRetryIf(func(error) bool { return true }))...)
	assert.Same(t, base, err)
}

func TestDo_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return shared.ErrLockTimeout
	}, fast()...)

	assert.True(t, shared.IsRetryable(err))
	assert.Equal(t, 1, attempts)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	v, err := DoWithData(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, shared.ErrClanStale
		}
		return 42, nil
	}, fast()...)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestConflictRetrier(t *testing.T) {
	r := ConflictRetrier()
	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return shared.ErrHabitStale
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestStartupOptions_PermanentStopsImmediately(t *testing.T) {
	attempts := 0
	base := errors.New("invalid url")
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return Permanent(base)
	}, append(StartupOptions(nil), fast()...)...)

	assert.Same(t, base, err)
	assert.Equal(t, 1, attempts)
}

func TestBackoff_IsCapped(t *testing.T) {
	r := New(WithInitialDelay(time.Second), WithMaxDelay(3*time.Second), WithJitter(0))
	assert.Equal(t, time.Second, r.backoff(1))
	assert.Equal(t, 2*time.Second, r.backoff(2))
	assert.Equal(t, 3*time.Second, r.backoff(3))
	assert.Equal(t, 3*time.Second, r.backoff(10))
}
