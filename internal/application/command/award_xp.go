package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/leveling"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD XP COMMAND
// The progression cascade: one grant updates xp, level and total points in a
// single version-guarded save, then runs level-up side effects in ascending
// level order, forwards the grant to the user's clan and finally emits
// telemetry. Nothing after the save can undo it.
// ══════════════════════════════════════════════════════════════════════════════

// AwardXPCommand contains one XP grant.
type AwardXPCommand struct {
	// UserID is the recipient.
	UserID string

	// Amount may be negative for administrative corrections; XP never drops below 0.
	Amount int64

	// Reason tags the grant, e.g. "habit_complete:<id>" or "weekly_streak_bonus".
	Reason string
}

// Validate validates the command.
func (c AwardXPCommand) Validate() error {
	if err := required("award_xp", "user_id", c.UserID); err != nil {
		return err
	}
	if err := required("award_xp", "reason", c.Reason); err != nil {
		return err
	}
	if c.Amount == 0 {
		return fmt.Errorf("award_xp: amount must be non-zero: %w", shared.ErrInvalidInput)
	}
	return nil
}

// LevelUp describes one crossed level.
type LevelUp struct {
	Level   int
	Rewards leveling.Rewards

	// BonusGranted reports whether the milestone bonus was paid out as XP.
	BonusGranted bool
}

// AwardXPResult contains the outcome of a grant.
type AwardXPResult struct {
	UserID   string
	Amount   int64
	Reason   string
	OldXP    int64
	NewXP    int64
	OldLevel int
	NewLevel int

	// LevelsGained lists crossed levels in ascending order.
	LevelsGained []int

	// LevelUps carries the rewards of each crossed level.
	LevelUps []LevelUp

	// BadgesAwarded are level badges earned by this grant.
	BadgesAwarded []badge.Definition

	// Clan is set when the grant was forwarded to the user's clan.
	Clan *ContributeClanXPResult

	// BonusAwards are milestone bonuses granted through the cascade
	// when AwardXPConfig.GrantMilestoneBonus is on.
	BonusAwards []*AwardXPResult

	// Clamped is true when a negative correction hit zero.
	Clamped bool

	// SideEffectErrors are failures after the grant was persisted. The grant
	// itself stands; callers must not retry it.
	SideEffectErrors []error
}

// LeveledUp reports whether at least one level was crossed.
func (r *AwardXPResult) LeveledUp() bool {
	return r.NewLevel > r.OldLevel
}

// AwardXPConfig contains configuration for the cascade.
type AwardXPConfig struct {
	// GrantMilestoneBonus pays the level*10 bonus of every fifth level as XP.
	// Off means the bonus is only reported and emitted as telemetry.
	GrantMilestoneBonus bool
}

// DefaultAwardXPConfig returns default configuration.
func DefaultAwardXPConfig() AwardXPConfig {
	return AwardXPConfig{GrantMilestoneBonus: false}
}

// AwardXPHandler handles XP grants.
type AwardXPHandler struct {
	users     user.Repository
	locker    shared.Locker
	badges    *BadgeHandler
	clan      *ContributeClanXPHandler
	publisher shared.EventPublisher
	clock     Clock
	logger    *slog.Logger
	config    AwardXPConfig
}

// NewAwardXPHandler creates a new AwardXPHandler.
func NewAwardXPHandler(
	users user.Repository,
	locker shared.Locker,
	badges *BadgeHandler,
	clan *ContributeClanXPHandler,
	publisher shared.EventPublisher,
	clock Clock,
	logger *slog.Logger,
	config AwardXPConfig,
) *AwardXPHandler {
	return &AwardXPHandler{
		users:     users,
		locker:    locker,
		badges:    badges,
		clan:      clan,
		publisher: publisherOrDefault(publisher),
		clock:     clockOrDefault(clock),
		logger:    loggerOrDefault(logger, "award_xp"),
		config:    config,
	}
}

// Handle executes the cascade under the user's lock.
func (h *AwardXPHandler) Handle(ctx context.Context, cmd AwardXPCommand) (*AwardXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *AwardXPResult
	err := withLock(ctx, h.locker, shared.UserLockKey(cmd.UserID), func() error {
		var err error
		result, err = h.awardLocked(ctx, cmd, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// awardLocked runs the cascade; the caller holds the user's lock.
func (h *AwardXPHandler) awardLocked(ctx context.Context, cmd AwardXPCommand, forwardToClan bool) (*AwardXPResult, error) {
	u, corrected, err := user.Load(ctx, h.users, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("award_xp: failed to get user: %w", err)
	}
	if corrected {
		h.logger.Warn("user level recomputed from xp", "user_id", u.ID, "error", shared.ErrLevelDesync)
	}

	now := h.clock()
	grant := u.ApplyXP(cmd.Amount, now)

	if err := h.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("award_xp: failed to save user: %w", err)
	}
	return h.afterGrant(ctx, u, cmd, grant, forwardToClan, now), nil
}

// afterGrant runs the cascade steps that follow a persisted grant: level-up
// rewards and badges, the clan forward, telemetry and granted milestone
// bonuses. The caller holds the user's lock. Failures land in
// SideEffectErrors and never undo the grant.
func (h *AwardXPHandler) afterGrant(ctx context.Context, u *user.Progress, cmd AwardXPCommand, grant user.Grant, forwardToClan bool, now time.Time) *AwardXPResult {
	result := &AwardXPResult{
		UserID:       u.ID,
		Amount:       cmd.Amount,
		Reason:       cmd.Reason,
		OldXP:        grant.OldXP,
		NewXP:        grant.NewXP,
		OldLevel:     grant.OldLevel,
		NewLevel:     grant.NewLevel,
		LevelsGained: grant.LevelsGained(),
		Clamped:      grant.Clamped,
	}

	events := []shared.Event{
		shared.NewXPAwardedEvent(u.ID, cmd.Amount, cmd.Reason, grant.NewXP, grant.OldLevel, grant.NewLevel, now),
	}
	var bonuses []LevelUp

	for _, level := range result.LevelsGained {
		rewards := leveling.RewardsFor(level)
		lu := LevelUp{Level: level, Rewards: rewards}

		if h.badges != nil {
			awarded, err := h.badges.CheckSnapshot(ctx, u.ID, badge.Snapshot{Level: level}, badge.TypeLevel)
			if err != nil {
				result.SideEffectErrors = append(result.SideEffectErrors, err)
				h.logger.Error("level badge check failed", "user_id", u.ID, "level", level, "error", err)
			}
			result.BadgesAwarded = append(result.BadgesAwarded, awarded...)
		}

		events = append(events, shared.NewLevelUpEvent(u.ID, level, rewards.Title, now))
		if rewards.IsMilestone() {
			lu.BonusGranted = h.config.GrantMilestoneBonus
			events = append(events, shared.NewMilestoneBonusEvent(u.ID, level, rewards.BonusXP, lu.BonusGranted, now))
			if lu.BonusGranted {
				bonuses = append(bonuses, lu)
			}
		}

		result.LevelUps = append(result.LevelUps, lu)
	}

	if result.LeveledUp() {
		h.logger.Info("user leveled up",
			"user_id", u.ID,
			"old_level", grant.OldLevel,
			"new_level", grant.NewLevel,
			"reason", cmd.Reason,
		)
	}

	// Only the original grant goes to the clan, never the level bonuses.
	if forwardToClan && cmd.Amount > 0 && u.HasClan() && h.clan != nil {
		contrib, err := h.clan.Handle(ctx, ContributeClanXPCommand{
			ClanID: u.ClanID,
			UserID: u.ID,
			Amount: cmd.Amount,
		})
		if err != nil {
			result.SideEffectErrors = append(result.SideEffectErrors, err)
			h.logger.Error("clan forward failed", "user_id", u.ID, "clan_id", u.ClanID, "amount", cmd.Amount, "error", err)
		}
		result.Clan = contrib
	}

	publishAll(h.logger, h.publisher, events...)

	for _, lu := range bonuses {
		sub, err := h.awardLocked(ctx, AwardXPCommand{
			UserID: u.ID,
			Amount: lu.Rewards.BonusXP,
			Reason: fmt.Sprintf("level_milestone_bonus_%d", lu.Level),
		}, false)
		if err != nil {
			result.SideEffectErrors = append(result.SideEffectErrors, err)
			h.logger.Error("milestone bonus grant failed", "user_id", u.ID, "level", lu.Level, "error", err)
			continue
		}
		result.BonusAwards = append(result.BonusAwards, sub)
	}

	return result
}
