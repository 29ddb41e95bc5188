package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/habituate/progression-engine/internal/application/command"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
	"github.com/habituate/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DETECT MISSED DAYS JOB
// ══════════════════════════════════════════════════════════════════════════════

// MissedDayScanner marks missed days for one user. The engine implements it.
type MissedDayScanner interface {
	ScanMissed(ctx context.Context, userID string, on shared.Date) (*command.ScanMissedResult, error)
}

// DetectMissedDaysJob walks every user and records missed days on their
// habits, emitting streak-broken events the first time a streak lapses.
// It runs shortly after the engine's midnight. A failing user is logged and
// counted; the scan carries on with the rest.
type DetectMissedDaysJob struct {
	users   UserLister
	scanner MissedDayScanner
	logger  *slog.Logger
	config  DetectMissedDaysConfig

	lastStats atomic.Pointer[MissedDayStats]
}

// DetectMissedDaysConfig contains configuration for the missed-day scan.
type DetectMissedDaysConfig struct {
	// Concurrency bounds the number of users scanned at once.
	Concurrency int

	// PageSize is the number of users read per List call.
	PageSize int

	// Location defines the calendar day the scan evaluates.
	Location *time.Location

	// Timeout is the maximum duration for one run.
	Timeout time.Duration

	// Clock overrides time.Now.
	Clock func() time.Time
}

// DefaultDetectMissedDaysConfig returns sensible defaults.
func DefaultDetectMissedDaysConfig() DetectMissedDaysConfig {
	return DetectMissedDaysConfig{
		Concurrency: 8,
		PageSize:    200,
		Location:    time.UTC,
		Timeout:     30 * time.Minute,
	}
}

// MissedDayStats contains statistics from a scan.
type MissedDayStats struct {
	Day          shared.Date
	StartedAt    time.Time
	Duration     time.Duration
	UsersScanned int
	HabitsMarked int
	Redeemable   int
	Failed       []string
}

// NewDetectMissedDaysJob creates the missed-day scan job.
func NewDetectMissedDaysJob(users UserLister, scanner MissedDayScanner, logger *slog.Logger, config DetectMissedDaysConfig) *DetectMissedDaysJob {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultDetectMissedDaysConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.Location == nil {
		config.Location = defaults.Location
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &DetectMissedDaysJob{
		users:   users,
		scanner: scanner,
		logger:  logger.With("job", "detect_missed_days"),
		config:  config,
	}
}

// Name returns the job name.
func (j *DetectMissedDaysJob) Name() string {
	return "detect_missed_days"
}

// Description returns a human-readable description.
func (j *DetectMissedDaysJob) Description() string {
	return "Marks missed days on every habit and reports redeemable streaks"
}

// LastStats returns the statistics of the last completed run, or nil.
func (j *DetectMissedDaysJob) LastStats() *MissedDayStats {
	return j.lastStats.Load()
}

// Run executes the scan for the current calendar day.
func (j *DetectMissedDaysJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	started := j.config.Clock()
	stats := &MissedDayStats{
		Day:       shared.DateOf(started, j.config.Location),
		StartedAt: started,
	}

	var (
		mu      sync.Mutex
		scanned int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)

	opts := user.ListOptions{Limit: j.config.PageSize}
	var listErr error
	for {
		page, err := j.users.List(gctx, opts)
		if err != nil {
			listErr = err
			break
		}
		for _, u := range page {
			id := u.ID
			g.Go(func() error {
				res, err := j.scanner.ScanMissed(gctx, id, stats.Day)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					j.logger.Error("missed-day scan failed", logger.UserID(id), logger.Err(err))
					mu.Lock()
					stats.Failed = append(stats.Failed, id)
					mu.Unlock()
					return nil
				}
				atomic.AddInt64(&scanned, 1)

				redeemable := 0
				for _, r := range res.Reports {
					if r.CanRedeem {
						redeemable++
					}
				}
				mu.Lock()
				stats.HabitsMarked += res.Marked
				stats.Redeemable += redeemable
				mu.Unlock()
				return nil
			})
		}
		if len(page) < opts.Limit {
			break
		}
		opts.Offset += len(page)
	}

	waitErr := g.Wait()
	stats.UsersScanned = int(atomic.LoadInt64(&scanned))
	stats.Duration = j.config.Clock().Sub(started)
	j.lastStats.Store(stats)

	j.logger.Info("missed-day scan finished",
		"day", stats.Day.String(),
		"duration", stats.Duration.String(),
		"users", stats.UsersScanned,
		"habits_marked", stats.HabitsMarked,
		"redeemable", stats.Redeemable,
		"failed", len(stats.Failed),
	)

	if waitErr != nil {
		return waitErr
	}
	if listErr != nil {
		return listErr
	}
	if len(stats.Failed) > 0 {
		return fmt.Errorf("%w: %d users failed, first %s", ErrPartialScan, len(stats.Failed), stats.Failed[0])
	}
	return nil
}

// ErrPartialScan is returned when at least one user could not be scanned.
var ErrPartialScan = errors.New("missed-day scan completed with failures")
