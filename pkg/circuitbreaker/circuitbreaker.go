// Package circuitbreaker guards calls to an unreliable dependency.
//
// The worker puts one in front of the Redis leaderboard: during an outage
// projection writes fail immediately instead of waiting out a timeout per
// event, and the leaderboard rebuild job repairs whatever was skipped.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
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

// MarshalText lets snapshots render the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrCircuitOpen rejects calls while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests rejects calls beyond the half-open trial budget.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// IsRejection reports whether err came from the breaker rather than the
// guarded call.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

type settings struct {
	failureThreshold int           // consecutive failures that open the breaker
	successThreshold int           // consecutive half-open successes that close it
	openFor          time.Duration // time spent open before probing
	maxTrials        int           // concurrent calls allowed while half-open
	onStateChange    func(name string, from, to State)
	clock            func() time.Time
}

// Option configures a breaker. Non-positive values keep the default.
type Option func(*settings)

func WithFailureThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.failureThreshold = n
		}
	}
}

func WithSuccessThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.successThreshold = n
		}
	}
}

// WithTimeout sets how long the breaker stays open before it lets a trial call through.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.openFor = d
		}
	}
}

func WithMaxHalfOpenRequests(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxTrials = n
		}
	}
}

// WithOnStateChange registers a callback run under the breaker lock on every
// transition. It must not call back into the breaker.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(s *settings) { s.onStateChange = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.clock = now
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER
// ══════════════════════════════════════════════════════════════════════════════

// Counts are the lifetime and streak counters of a breaker.
type Counts struct {
	Requests             int `json:"requests"`
	TotalSuccesses       int `json:"total_successes"`
	TotalFailures        int `json:"total_failures"`
	ConsecutiveSuccesses int `json:"consecutive_successes"`
	ConsecutiveFailures  int `json:"consecutive_failures"`
}

// Snapshot is the breaker state served on the ops endpoint.
type Snapshot struct {
	Name        string    `json:"name"`
	State       State     `json:"state"`
	Counts      Counts    `json:"counts"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	name string
	cfg  settings

	mu          sync.Mutex
	state       State
	counts      Counts
	lastFailure time.Time
	trials      int
}

// New returns a closed breaker. Defaults: 5 failures to open, 2 successes to
// close, 30s open, 1 trial call.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := settings{
		failureThreshold: 5,
		successThreshold: 2,
		openFor:          30 * time.Second,
		maxTrials:        1,
		clock:            time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CircuitBreaker{name: name, cfg: cfg}
}

// RankingBreaker is tuned for leaderboard writes, which happen once per xp
// event: it opens after three failures and retries after 15 seconds.
func RankingBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New("redis-ranking",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithTimeout(15*time.Second),
		WithMaxHalfOpenRequests(1),
		WithOnStateChange(onStateChange),
	)
}

// Execute runs fn unless the breaker rejects it. A context.Canceled result
// is not held against the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err != nil && !errors.Is(err, context.Canceled))
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.cfg.clock().Sub(cb.lastFailure) < cb.cfg.openFor {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.trials = 1
		return nil
	case StateHalfOpen:
		if cb.trials >= cb.cfg.maxTrials {
			return ErrTooManyRequests
		}
		cb.trials++
		return nil
	}
	return ErrCircuitOpen
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counts.Requests++
	if cb.state == StateHalfOpen && cb.trials > 0 {
		cb.trials--
	}

	if !failed {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveSuccesses++
		cb.counts.ConsecutiveFailures = 0
		if cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.cfg.successThreshold {
			cb.transition(StateClosed)
		}
		return
	}

	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0
	cb.lastFailure = cb.cfg.clock()

	switch {
	case cb.state == StateHalfOpen:
		cb.transition(StateOpen)
	case cb.state == StateClosed && cb.counts.ConsecutiveFailures >= cb.cfg.failureThreshold:
		cb.transition(StateOpen)
	}
}

// transition resets the streak counters and the trial budget. Caller holds mu.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.counts.ConsecutiveSuccesses = 0
	cb.counts.ConsecutiveFailures = 0
	cb.trials = 0

	if cb.cfg.onStateChange != nil {
		cb.cfg.onStateChange(cb.name, from, to)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Snapshot copies the current state under the lock.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{Name: cb.name, State: cb.state, Counts: cb.counts, LastFailure: cb.lastFailure}
}
