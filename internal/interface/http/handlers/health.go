// Package handlers contains the health checks served by the worker's ops
// endpoint.
package handlers

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECK TYPES
// ══════════════════════════════════════════════════════════════════════════════

// HealthCheckFunc performs a single check and returns an error if it fails.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the aggregated health of the process.
type HealthStatus struct {
	// Healthy is false when any critical check failed.
	Healthy bool `json:"healthy"`

	// Ready is false when any check failed, critical or not.
	Ready bool `json:"ready"`

	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE HEALTH CHECKER
// ══════════════════════════════════════════════════════════════════════════════

type namedCheck struct {
	fn       HealthCheckFunc
	critical bool
}

// CompositeHealthChecker runs every registered check concurrently.
//
// A failing critical check (Postgres, Redis locks) makes the process
// unhealthy; a failing optional check (the scheduler) only makes it not
// ready, since the engine keeps mutating progress without it.
type CompositeHealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]namedCheck
	startTime time.Time
	version   string
	timeout   time.Duration
	now       func() time.Time
}

// NewCompositeHealthChecker creates a checker reporting version.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:    make(map[string]namedCheck),
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
		now:       time.Now,
	}
}

// SetTimeout sets the timeout of each individual check.
func (c *CompositeHealthChecker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// AddCheck registers a critical check.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.add(name, check, true)
}

// AddOptionalCheck registers a check that only affects readiness.
func (c *CompositeHealthChecker) AddOptionalCheck(name string, check HealthCheckFunc) {
	c.add(name, check, false)
}

func (c *CompositeHealthChecker) add(name string, check HealthCheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = namedCheck{fn: check, critical: critical}
}

// RemoveCheck removes a named check.
func (c *CompositeHealthChecker) RemoveCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Check runs all checks and aggregates the results.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]namedCheck, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	timeout := c.timeout
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    c.now().Sub(c.startTime).Round(time.Second).String(),
		Timestamp: c.now().UTC(),
		Version:   c.version,
	}
	if len(checks) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check namedCheck) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := check.fn(checkCtx)
			result := CheckResult{
				Healthy:  err == nil,
				Critical: check.critical,
				Message:  "OK",
				Duration: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				result.Message = err.Error()
			}

			mu.Lock()
			status.Checks[name] = result
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	var failed []string
	for name, r := range status.Checks {
		if r.Healthy {
			continue
		}
		failed = append(failed, name)
		status.Ready = false
		if r.Critical {
			status.Healthy = false
		}
	}
	sort.Strings(failed)

	if len(failed) == 0 {
		status.Message = "All checks passed"
	} else {
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return status
}

// ══════════════════════════════════════════════════════════════════════════════
// PREDEFINED HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is anything with a connectivity check: the Postgres connection and
// the Redis cache both qualify.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck wraps a Pinger.
func NewPingCheck(p Pinger) HealthCheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// RunningChecker reports whether a background component is running.
type RunningChecker interface {
	IsRunning() bool
}

// ErrNotRunning is returned by NewRunningCheck for a stopped component.
var ErrNotRunning = errors.New("not running")

// NewRunningCheck fails while r is stopped. Used for the scheduler.
func NewRunningCheck(r RunningChecker) HealthCheckFunc {
	return func(ctx context.Context) error {
		if !r.IsRunning() {
			return ErrNotRunning
		}
		return nil
	}
}
