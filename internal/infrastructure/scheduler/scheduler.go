// Package scheduler runs the engine's periodic maintenance jobs: the
// missed-day scan that marks broken streaks and the leaderboard rebuild.
// A job never overlaps with itself; a tick that finds a job still running
// skips it and reschedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next time the job should run after the given time.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Manual      bool
	Error       error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.RWMutex

	logger   *slog.Logger
	timezone *time.Location
	tick     time.Duration
	now      func() time.Time

	jobs      map[string]*scheduledJob
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	metrics    *SchedulerMetrics
	lastRuns   map[string]*JobResult
	runHistory []JobResult
	maxHistory int
}

type scheduledJob struct {
	job       Job
	schedule  Schedule
	inFlight  bool
	lastRun   time.Time
	nextRun   time.Time
	runCount  int64
	failCount int64
	skipped   int64
}

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger

	// Timezone for schedule calculations (default: UTC). Cron expressions
	// are evaluated in this zone, so "5 0 * * *" fires just after the
	// engine's local midnight.
	Timezone *time.Location

	// TickInterval is how often due jobs are checked (default: 1s).
	TickInterval time.Duration

	// MaxHistorySize is the maximum number of job results to keep in history.
	MaxHistorySize int

	// Clock overrides time.Now.
	Clock func() time.Time
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:         slog.Default(),
		Timezone:       time.UTC,
		TickInterval:   time.Second,
		MaxHistorySize: 1000,
	}
}

// NewScheduler creates a new Scheduler with the given configuration.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 1000
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &Scheduler{
		logger:     config.Logger.With("component", "scheduler"),
		timezone:   config.Timezone,
		tick:       config.TickInterval,
		now:        config.Clock,
		jobs:       make(map[string]*scheduledJob),
		lastRuns:   make(map[string]*JobResult),
		runHistory: make([]JobResult, 0, config.MaxHistorySize),
		maxHistory: config.MaxHistorySize,
		metrics:    NewSchedulerMetrics(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job to the scheduler with the given schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(s.localNow()),
	}
	s.jobs[name] = sj

	s.logger.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"next_run", sj.nextRun.Format(time.RFC3339),
	)

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = s.now()
	count := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs_count", count)

	s.wg.Add(1)
	go s.runLoop()

	return nil
}

// Stop cancels running jobs and waits for them and the loop to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.logger.Info("scheduler stopped",
		"uptime", s.now().Sub(s.startedAt).String(),
	)

	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER LOOP
// ══════════════════════════════════════════════════════════════════════════════

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunJobs()
		}
	}
}

// checkAndRunJobs starts every due job that is not already running. The
// next run is computed before the job starts, so a slow run never causes
// a burst of catch-up runs.
func (s *Scheduler) checkAndRunJobs() {
	now := s.localNow()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}

	for _, sj := range s.jobs {
		if sj.nextRun.IsZero() || now.Before(sj.nextRun) {
			continue
		}
		sj.nextRun = sj.schedule.Next(now)
		if sj.inFlight {
			sj.skipped++
			s.logger.Warn("job still running, skipping tick",
				"job", sj.job.Name(),
				"next_run", sj.nextRun.Format(time.RFC3339),
			)
			continue
		}
		sj.inFlight = true
		sj.lastRun = now
		sj.runCount++

		s.wg.Add(1)
		go func(sj *scheduledJob) {
			defer s.wg.Done()
			s.execute(s.ctx, sj, false)
		}(sj)
	}
}

// execute runs the job and records the result. The caller has already
// marked the job in flight.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) JobResult {
	name := sj.job.Name()
	startedAt := s.now()
	s.logger.Info("job started", "job", name, "manual", manual)

	err := s.safeRun(ctx, sj.job)
	completedAt := s.now()

	result := JobResult{
		JobName:     name,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Success:     err == nil,
		Manual:      manual,
		Error:       err,
	}
	s.metrics.RecordExecution(name, result.Duration, result.Success)

	s.mu.Lock()
	sj.inFlight = false
	if err != nil {
		sj.failCount++
	}
	s.lastRuns[name] = &result
	s.addToHistory(result)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			"job", name,
			"duration", result.Duration.String(),
			"error", err,
		)
	} else {
		s.logger.Info("job completed",
			"job", name,
			"duration", result.Duration.String(),
		)
	}

	return result
}

// safeRun turns a panicking job into a failed run.
func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// addToHistory must be called with s.mu held.
func (s *Scheduler) addToHistory(result JobResult) {
	s.runHistory = append(s.runHistory, result)
	if len(s.runHistory) > s.maxHistory {
		s.runHistory = s.runHistory[len(s.runHistory)-s.maxHistory:]
	}
}

func (s *Scheduler) localNow() time.Time {
	return s.now().In(s.timezone)
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow executes a job immediately, ignoring its schedule. It returns
// ErrJobRunning if a run of the same job is in progress.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.Lock()
	sj, exists := s.jobs[jobName]
	if !exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if sj.inFlight {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, jobName)
	}
	sj.inFlight = true
	sj.lastRun = s.localNow()
	sj.runCount++
	s.mu.Unlock()

	result := s.execute(ctx, sj, true)
	return &result, result.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name         string
	Description  string
	Schedule     string
	Running      bool
	LastRun      time.Time
	NextRun      time.Time
	RunCount     int64
	FailCount    int64
	SkippedTicks int64
	LastResult   *JobResult
}

// ListJobs returns information about all registered jobs, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, JobInfo{
			Name:         name,
			Description:  sj.job.Description(),
			Schedule:     sj.schedule.String(),
			Running:      sj.inFlight,
			LastRun:      sj.lastRun,
			NextRun:      sj.nextRun,
			RunCount:     sj.runCount,
			FailCount:    sj.failCount,
			SkippedTicks: sj.skipped,
			LastResult:   s.lastRuns[name],
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// GetHistory returns the most recent job results, oldest first.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.runHistory) {
		limit = len(s.runHistory)
	}

	start := len(s.runHistory) - limit
	result := make([]JobResult, limit)
	copy(result, s.runHistory[start:])

	return result
}

// GetMetrics returns scheduler metrics.
func (s *Scheduler) GetMetrics() *SchedulerMetrics {
	return s.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerMetrics tracks scheduler performance metrics.
type SchedulerMetrics struct {
	mu sync.RWMutex

	totalExecutions int64
	totalSuccesses  int64
	totalFailures   int64
	totalDuration   time.Duration
	failuresByJob   map[string]int64
}

// NewSchedulerMetrics creates a new metrics tracker.
func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{
		failuresByJob: make(map[string]int64),
	}
}

// RecordExecution records a job execution.
func (m *SchedulerMetrics) RecordExecution(jobName string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalExecutions++
	m.totalDuration += duration
	if success {
		m.totalSuccesses++
	} else {
		m.totalFailures++
		m.failuresByJob[jobName]++
	}
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *SchedulerMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		TotalExecutions: m.totalExecutions,
		TotalSuccesses:  m.totalSuccesses,
		TotalFailures:   m.totalFailures,
		FailuresByJob:   make(map[string]int64, len(m.failuresByJob)),
	}
	for k, v := range m.failuresByJob {
		snap.FailuresByJob[k] = v
	}
	if m.totalExecutions > 0 {
		snap.AverageDuration = m.totalDuration / time.Duration(m.totalExecutions)
		snap.SuccessRate = float64(m.totalSuccesses) / float64(m.totalExecutions)
	}
	return snap
}

// MetricsSnapshot is a point-in-time snapshot of scheduler metrics.
type MetricsSnapshot struct {
	TotalExecutions int64
	TotalSuccesses  int64
	TotalFailures   int64
	SuccessRate     float64
	AverageDuration time.Duration
	FailuresByJob   map[string]int64
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when trying to register a nil job.
	ErrNilJob = errors.New("job cannot be nil")

	// ErrNilSchedule is returned when trying to register a job with nil schedule.
	ErrNilSchedule = errors.New("schedule cannot be nil")

	// ErrJobAlreadyExists is returned when a job with the same name already exists.
	ErrJobAlreadyExists = errors.New("job already exists")

	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobRunning is returned by RunNow while the job is in flight.
	ErrJobRunning = errors.New("job is already running")

	// ErrSchedulerAlreadyRunning is returned when Start is called on a running scheduler.
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")

	// ErrSchedulerNotRunning is returned when Stop is called on a stopped scheduler.
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
)
