// Package jobs contains the scheduled maintenance jobs of the progression engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/leaderboard"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// UserLister pages through user progress records ordered by ID.
type UserLister interface {
	List(ctx context.Context, opts user.ListOptions) ([]*user.Progress, error)
}

// ClanLister pages through clans ordered by ID.
type ClanLister interface {
	List(ctx context.Context, opts user.ListOptions) ([]*clan.Clan, error)
}

// RebuildLeaderboardJob recomputes both leaderboards from the stores of
// record. The leaderboard is a projection fed by xp events; a dropped event
// or a lost Redis instance leaves it stale until this job runs.
type RebuildLeaderboardJob struct {
	users   UserLister
	clans   ClanLister
	ranking leaderboard.Ranking
	logger  *slog.Logger
	config  RebuildLeaderboardConfig

	lastStats atomic.Pointer[RebuildStats]
}

// RebuildLeaderboardConfig contains configuration for the rebuild job.
type RebuildLeaderboardConfig struct {
	// PageSize is the number of records read per List call.
	PageSize int

	// Timeout is the maximum duration for the rebuild operation.
	Timeout time.Duration
}

// DefaultRebuildLeaderboardConfig returns sensible defaults.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{
		PageSize: 500,
		Timeout:  5 * time.Minute,
	}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Users       int
	Clans       int

	// Drift counts entries whose projected score differed from the store
	// or that were missing from (or extra in) the projection.
	Drift map[leaderboard.Board]int
}

// NewRebuildLeaderboardJob creates a new rebuild leaderboard job.
func NewRebuildLeaderboardJob(
	users UserLister,
	clans ClanLister,
	ranking leaderboard.Ranking,
	logger *slog.Logger,
	config RebuildLeaderboardConfig,
) *RebuildLeaderboardJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultRebuildLeaderboardConfig().PageSize
	}

	return &RebuildLeaderboardJob{
		users:   users,
		clans:   clans,
		ranking: ranking,
		logger:  logger.With("job", "rebuild_leaderboard"),
		config:  config,
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Recomputes the user and clan leaderboards from stored progress"
}

// LastStats returns the statistics of the last completed run, or nil.
func (j *RebuildLeaderboardJob) LastStats() *RebuildStats {
	return j.lastStats.Load()
}

// Run executes the rebuild job.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	stats := &RebuildStats{
		StartedAt: time.Now(),
		Drift:     make(map[leaderboard.Board]int, 2),
	}

	userScores, err := j.userScores(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	stats.Users = len(userScores)
	if err := j.replace(ctx, leaderboard.BoardUsers, userScores, stats); err != nil {
		return err
	}

	clanScores, err := j.clanScores(ctx)
	if err != nil {
		return fmt.Errorf("failed to list clans: %w", err)
	}
	stats.Clans = len(clanScores)
	if err := j.replace(ctx, leaderboard.BoardClans, clanScores, stats); err != nil {
		return err
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastStats.Store(stats)

	j.logger.Info("leaderboards rebuilt",
		"duration", stats.Duration.String(),
		"users", stats.Users,
		"clans", stats.Clans,
		"users_drift", stats.Drift[leaderboard.BoardUsers],
		"clans_drift", stats.Drift[leaderboard.BoardClans],
	)
	return nil
}

func (j *RebuildLeaderboardJob) replace(ctx context.Context, board leaderboard.Board, scores map[string]int64, stats *RebuildStats) error {
	drift, err := j.drift(ctx, board, scores)
	if err != nil {
		// Drift is informational; the rebuild still goes ahead.
		j.logger.Warn("failed to read current leaderboard", "board", board, "error", err)
	}
	stats.Drift[board] = drift

	if err := j.ranking.Replace(ctx, board, scores); err != nil {
		return fmt.Errorf("failed to replace %s leaderboard: %w", board, err)
	}
	return nil
}

// drift compares the current projection with the recomputed scores.
func (j *RebuildLeaderboardJob) drift(ctx context.Context, board leaderboard.Board, scores map[string]int64) (int, error) {
	n, err := j.ranking.Count(ctx, board)
	if err != nil {
		return 0, err
	}
	current, err := j.ranking.Top(ctx, board, 0, n)
	if err != nil {
		return 0, err
	}

	drift := 0
	seen := make(map[string]struct{}, len(current))
	for _, e := range current {
		seen[e.ID] = struct{}{}
		if score, ok := scores[e.ID]; !ok || score != e.Score {
			drift++
		}
	}
	for id := range scores {
		if _, ok := seen[id]; !ok {
			drift++
		}
	}
	return drift, nil
}

func (j *RebuildLeaderboardJob) userScores(ctx context.Context) (map[string]int64, error) {
	scores := make(map[string]int64)
	opts := user.ListOptions{Limit: j.config.PageSize}
	for {
		page, err := j.users.List(ctx, opts)
		if err != nil {
			return nil, err
		}
		for _, u := range page {
			scores[u.ID] = u.XP
		}
		if len(page) < opts.Limit {
			return scores, nil
		}
		opts.Offset += len(page)
	}
}

func (j *RebuildLeaderboardJob) clanScores(ctx context.Context) (map[string]int64, error) {
	scores := make(map[string]int64)
	opts := user.ListOptions{Limit: j.config.PageSize}
	for {
		page, err := j.clans.List(ctx, opts)
		if err != nil {
			return nil, err
		}
		for _, c := range page {
			scores[c.ID] = c.TotalXP
		}
		if len(page) < opts.Limit {
			return scores, nil
		}
		opts.Offset += len(page)
	}
}
