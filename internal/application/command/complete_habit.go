package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE HABIT COMMAND
// Records today's completion of a habit, advances its streak and awards the
// earned XP through the award cascade. A second completion on the same day is
// a no-op that reports the existing state.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteHabitCommand contains one completion.
type CompleteHabitCommand struct {
	UserID  string
	HabitID string
	Notes   string

	// On is the completion day. Zero means the handler's clock in its zone.
	On shared.Date
}

// Validate validates the command.
func (c CompleteHabitCommand) Validate() error {
	if err := required("complete_habit", "user_id", c.UserID); err != nil {
		return err
	}
	if err := required("complete_habit", "habit_id", c.HabitID); err != nil {
		return err
	}
	if len(c.Notes) > 1000 {
		return fmt.Errorf("complete_habit: notes exceed 1000 chars: %w", shared.ErrValueOutOfRange)
	}
	return nil
}

// CompleteHabitResult contains the outcome of a completion.
type CompleteHabitResult struct {
	UserID  string
	HabitID string
	On      shared.Date

	// AlreadyCompletedToday is set on a same-day repeat; the streak fields
	// then describe the stored state.
	AlreadyCompletedToday bool

	PreviousStreak   int
	NewStreak        int
	BestStreak       int
	TotalCompletions int
	Transition       habit.Transition
	XPEarned         int64

	// Award is the cascade for XPEarned.
	Award *AwardXPResult

	// Milestone is the streak milestone reached, if any, and MilestoneAward
	// its bonus cascade.
	Milestone      *habit.StreakMilestone
	MilestoneAward *AwardXPResult

	// ExtraLifeAwarded is set when this completion earned the habit's one-shot life.
	ExtraLifeAwarded bool
	ExtraLives       int

	// BadgesAwarded are badges earned by the re-evaluation after the completion.
	BadgesAwarded []badge.Definition
}

// CompleteHabitConfig contains configuration for completions.
type CompleteHabitConfig struct {
	// Rules are base XP and the extra-life streak threshold.
	Rules habit.Rules

	// Location defines the calendar day boundary.
	Location *time.Location
}

// DefaultCompleteHabitConfig returns default configuration.
func DefaultCompleteHabitConfig() CompleteHabitConfig {
	return CompleteHabitConfig{
		Rules:    habit.DefaultRules(),
		Location: time.UTC,
	}
}

// CompleteHabitHandler handles habit completions.
type CompleteHabitHandler struct {
	habits     habit.Repository
	locker     shared.Locker
	award      *AwardXPHandler
	extraLives *ExtraLifeHandler
	badges     *BadgeHandler
	publisher  shared.EventPublisher
	clock      Clock
	logger     *slog.Logger
	config     CompleteHabitConfig
}

// NewCompleteHabitHandler creates a new CompleteHabitHandler.
func NewCompleteHabitHandler(
	habits habit.Repository,
	locker shared.Locker,
	award *AwardXPHandler,
	extraLives *ExtraLifeHandler,
	badges *BadgeHandler,
	publisher shared.EventPublisher,
	clock Clock,
	logger *slog.Logger,
	config CompleteHabitConfig,
) *CompleteHabitHandler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &CompleteHabitHandler{
		habits:     habits,
		locker:     locker,
		award:      award,
		extraLives: extraLives,
		badges:     badges,
		publisher:  publisherOrDefault(publisher),
		clock:      clockOrDefault(clock),
		logger:     loggerOrDefault(logger, "complete_habit"),
		config:     config,
	}
}

// Handle executes the completion. On a same-day repeat it returns a populated
// result together with shared.ErrHabitCompletedToday.
//
// The log row, the habit's streak counters and the user's xp, level and
// extra-life balance are computed up front and saved in one repository call
// under the habit and user locks. A lost version check leaves both records
// untouched, so the caller can simply retry. Clan forwarding, level rewards
// and badges run after that save and report failures in SideEffectErrors.
func (h *CompleteHabitHandler) Handle(ctx context.Context, cmd CompleteHabitCommand) (*CompleteHabitResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := h.clock()
	today := cmd.On
	if today.IsZero() {
		today = shared.DateOf(now, h.config.Location)
	}

	result := &CompleteHabitResult{UserID: cmd.UserID, HabitID: cmd.HabitID, On: today}

	err := withLock(ctx, h.locker, shared.HabitLockKey(cmd.HabitID, cmd.UserID), func() error {
		hb, err := h.habits.GetByID(ctx, cmd.HabitID)
		if err != nil {
			return fmt.Errorf("complete_habit: failed to get habit: %w", err)
		}
		if !hb.BelongsTo(cmd.UserID) {
			return fmt.Errorf("complete_habit: %w", shared.ErrHabitNotOwned)
		}

		done, err := h.habits.HasCompletion(ctx, hb.ID, today)
		if err != nil {
			return fmt.Errorf("complete_habit: failed to check completion log: %w", err)
		}
		if done || hb.CompletedOn(today) {
			h.fillExisting(result, hb)
			return shared.ErrHabitCompletedToday
		}

		existing := hb.Clone()
		out, err := hb.Complete(today, h.config.Rules, now)
		if err != nil {
			if shared.IsNoOp(err) {
				h.fillExisting(result, existing)
			}
			return err
		}

		return withLock(ctx, h.locker, shared.UserLockKey(cmd.UserID), func() error {
			err := h.commit(ctx, cmd, hb, out, now, result)
			if shared.IsNoOp(err) {
				h.fillExisting(result, existing)
			}
			return err
		})
	})
	if err != nil {
		if shared.IsNoOp(err) {
			return result, err
		}
		return nil, err
	}

	if h.badges != nil {
		evaluated, err := h.badges.Handle(ctx, EvaluateBadgesCommand{UserID: cmd.UserID})
		if err != nil {
			h.logger.Error("badge evaluation failed", "user_id", cmd.UserID, "error", err)
		} else {
			result.BadgesAwarded = evaluated.Awarded
		}
	}

	publishAll(h.logger, h.publisher, shared.NewHabitCompletedEvent(
		cmd.UserID, cmd.HabitID, result.NewStreak, result.BestStreak, result.XPEarned, today, now))

	return result, nil
}

// commit applies the completion XP, the streak milestone bonus and the
// extra life to the user, in that order, and saves the user together with
// the habit and its log row. The caller holds the habit and user locks.
func (h *CompleteHabitHandler) commit(ctx context.Context, cmd CompleteHabitCommand, hb *habit.Habit, out habit.Outcome, now time.Time, result *CompleteHabitResult) error {
	u, corrected, err := user.Load(ctx, h.award.users, cmd.UserID)
	if err != nil {
		return fmt.Errorf("complete_habit: failed to get user: %w", err)
	}
	if corrected {
		h.logger.Warn("user level recomputed from xp", "user_id", u.ID, "error", shared.ErrLevelDesync)
	}

	var xpGrant, bonusGrant user.Grant
	if out.XPEarned > 0 {
		xpGrant = u.ApplyXP(out.XPEarned, now)
	}
	if out.Milestone != nil {
		bonusGrant = u.ApplyXP(out.Milestone.Bonus, now)
	}
	if out.ExtraLifeEarned {
		u.GrantExtraLife(now)
	}

	err = h.habits.RecordCompletion(ctx, hb, habit.Completion{
		ID:          uuid.NewString(),
		HabitID:     hb.ID,
		UserID:      cmd.UserID,
		On:          result.On,
		XPEarned:    out.XPEarned,
		Notes:       cmd.Notes,
		CompletedAt: now,
	}, u)
	if err != nil {
		if shared.IsNoOp(err) {
			return err
		}
		return fmt.Errorf("complete_habit: failed to record completion: %w", err)
	}

	result.PreviousStreak = out.PreviousStreak
	result.NewStreak = out.NewStreak
	result.BestStreak = out.BestStreak
	result.TotalCompletions = hb.TotalCompletions
	result.Transition = out.Transition
	result.XPEarned = out.XPEarned
	result.Milestone = out.Milestone

	h.logger.Info("habit completed",
		"user_id", cmd.UserID,
		"habit_id", hb.ID,
		"streak", out.NewStreak,
		"transition", out.Transition,
		"xp", out.XPEarned,
	)

	if out.XPEarned > 0 {
		result.Award = h.award.afterGrant(ctx, u, AwardXPCommand{
			UserID: cmd.UserID,
			Amount: out.XPEarned,
			Reason: "habit_complete:" + hb.ID,
		}, xpGrant, true, now)
	}
	if out.Milestone != nil {
		result.MilestoneAward = h.award.afterGrant(ctx, u, AwardXPCommand{
			UserID: cmd.UserID,
			Amount: out.Milestone.Bonus,
			Reason: out.Milestone.Reason,
		}, bonusGrant, true, now)
	}
	if out.ExtraLifeEarned {
		result.ExtraLifeAwarded = true
		result.ExtraLives = u.ExtraLives
		if h.extraLives != nil {
			h.extraLives.announceGrant(cmd.UserID, hb.ID, out.NewStreak, u.ExtraLives)
		}
	}
	return nil
}

func (h *CompleteHabitHandler) fillExisting(result *CompleteHabitResult, hb *habit.Habit) {
	result.AlreadyCompletedToday = true
	result.PreviousStreak = hb.Streak
	result.NewStreak = hb.Streak
	result.BestStreak = hb.BestStreak
	result.TotalCompletions = hb.TotalCompletions
}
