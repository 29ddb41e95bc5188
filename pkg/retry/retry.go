// Package retry re-runs an operation with exponential backoff and jitter.
//
// The progression engine never retries on its own: a lost version check or a
// lock timeout surfaces as a retryable shared.DomainError, and callers such
// as the worker decide whether to try again with fresh state.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// PermanentError stops a retry loop regardless of RetryIf.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying. Do returns the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked by Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the backoff schedule.
type Config struct {
	// MaxAttempts counts the first call too.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFactor spreads each delay by ±factor.
	JitterFactor float64

	// RetryIf selects retryable errors. Defaults to shared.IsRetryable:
	// version conflicts, lock timeouts and store unavailability.
	RetryIf func(error) bool

	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig: 3 attempts starting at 100ms, doubling, 10% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
		RetryIf:      shared.IsRetryable,
	}
}

// Option adjusts a Config. Out-of-range values are ignored.
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
		if d > 0 {
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

func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m >= 1 {
			c.Multiplier = m
		}
	}
}

func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1 {
			c.JitterFactor = j
		}
	}
}

func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) {
		if fn != nil {
			c.RetryIf = fn
		}
	}
}

func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier is an immutable retry policy; one value may serve many callers.
type Retrier struct {
	config Config
}

func New(opts ...Option) *Retrier {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Retrier{config: config}
}

// Do calls operation until it succeeds, returns a non-retryable error, runs
// out of attempts or ctx ends. When ctx ends after a failed attempt the
// operation's error is returned, not ctx.Err().
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		lastErr = err

		if !r.config.RetryIf(err) || attempt == r.config.MaxAttempts {
			return err
		}

		delay := r.backoff(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

// backoff = InitialDelay * Multiplier^(attempt-1), capped, then jittered.
func (r *Retrier) backoff(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(r.config.MaxDelay))
	if r.config.JitterFactor > 0 {
		d += d * r.config.JitterFactor * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// Do runs operation under a one-off Retrier.
func Do(ctx context.Context, operation func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, operation)
}

// DoWithData is Do for operations that produce a value.
func DoWithData[T any](ctx context.Context, operation func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var result T
	err := New(opts...).Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = operation(ctx)
		return opErr
	})
	return result, err
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICIES
// ══════════════════════════════════════════════════════════════════════════════

// ConflictRetrier retries engine calls that lost an optimistic version check
// or timed out on a lock. The competing writer usually finishes within
// milliseconds, so delays stay short.
func ConflictRetrier() *Retrier {
	return New(
		WithMaxAttempts(5),
		WithInitialDelay(10*time.Millisecond),
		WithMaxDelay(500*time.Millisecond),
		WithJitter(0.3),
	)
}

// StartupOptions retries connecting to Postgres and Redis while they come
// up next to the worker. Anything but cancellation or a Permanent error is
// retried. onRetry may be nil.
func StartupOptions(onRetry func(attempt int, err error, delay time.Duration)) []Option {
	return []Option{
		WithMaxAttempts(6),
		WithInitialDelay(500 * time.Millisecond),
		WithMaxDelay(10 * time.Second),
		WithJitter(0.2),
		WithRetryIf(func(err error) bool { return !errors.Is(err, context.Canceled) }),
		WithOnRetry(onRetry),
	}
}
