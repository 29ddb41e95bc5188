package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXTRA LIFE COMMANDS
// Reports missed days, redeems an extra life to protect a broken streak, and
// grants the one-shot life earned by a long streak.
// ══════════════════════════════════════════════════════════════════════════════

// CheckMissedCommand asks for a missed-day report.
type CheckMissedCommand struct {
	UserID string

	// On is "today". Zero means the handler's clock in its configured zone.
	On shared.Date
}

// Validate validates the command.
func (c CheckMissedCommand) Validate() error {
	return required("check_missed", "user_id", c.UserID)
}

// RedeemExtraLifeCommand spends one extra life on a habit with a gap.
type RedeemExtraLifeCommand struct {
	UserID  string
	HabitID string

	// RestoreDate is the missed day being restored. Zero means yesterday.
	RestoreDate shared.Date

	// On is "today". Zero means the handler's clock in its configured zone.
	On shared.Date
}

// Validate validates the command.
func (c RedeemExtraLifeCommand) Validate() error {
	if err := required("redeem_extra_life", "user_id", c.UserID); err != nil {
		return err
	}
	return required("redeem_extra_life", "habit_id", c.HabitID)
}

// RedeemExtraLifeResult reports a successful redemption.
type RedeemExtraLifeResult struct {
	UserID       string
	HabitID      string
	RestoredDate shared.Date

	// PreservedStreak is the streak the next completion will continue.
	PreservedStreak int

	// RemainingLives is the user's balance after the spend.
	RemainingLives int
}

// ScanMissedResult summarizes one user's missed-day scan.
type ScanMissedResult struct {
	UserID  string
	Reports []habit.MissedDayReport

	// Marked counts habits whose stored missed-day count changed.
	Marked int
}

// ExtraLifeConfig contains configuration for extra-life handling.
type ExtraLifeConfig struct {
	// Location defines the calendar day boundary.
	Location *time.Location
}

// DefaultExtraLifeConfig returns default configuration.
func DefaultExtraLifeConfig() ExtraLifeConfig {
	return ExtraLifeConfig{Location: time.UTC}
}

// ExtraLifeHandler handles the extra-life ledger.
type ExtraLifeHandler struct {
	users     user.Repository
	habits    habit.Repository
	locker    shared.Locker
	publisher shared.EventPublisher
	clock     Clock
	logger    *slog.Logger
	config    ExtraLifeConfig
}

// NewExtraLifeHandler creates a new ExtraLifeHandler.
func NewExtraLifeHandler(
	users user.Repository,
	habits habit.Repository,
	locker shared.Locker,
	publisher shared.EventPublisher,
	clock Clock,
	logger *slog.Logger,
	config ExtraLifeConfig,
) *ExtraLifeHandler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &ExtraLifeHandler{
		users:     users,
		habits:    habits,
		locker:    locker,
		publisher: publisherOrDefault(publisher),
		clock:     clockOrDefault(clock),
		logger:    loggerOrDefault(logger, "extra_life"),
		config:    config,
	}
}

func (h *ExtraLifeHandler) today(on shared.Date) shared.Date {
	if !on.IsZero() {
		return on
	}
	return shared.DateOf(h.clock(), h.config.Location)
}

// CheckMissed lists habits with at least one missed day. Read-only.
func (h *ExtraLifeHandler) CheckMissed(ctx context.Context, cmd CheckMissedCommand) ([]habit.MissedDayReport, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	u, err := h.users.GetByID(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("check_missed: failed to get user: %w", err)
	}
	habits, err := h.habits.ListByUser(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("check_missed: failed to list habits: %w", err)
	}

	return habit.CheckMissed(habits, u.ExtraLives, h.today(cmd.On)), nil
}

// Redeem spends one life so the next completion continues the streak.
// Fails without any change when the user has no lives, the habit is already
// redeemed, or the streak is not broken.
func (h *ExtraLifeHandler) Redeem(ctx context.Context, cmd RedeemExtraLifeCommand) (*RedeemExtraLifeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	today := h.today(cmd.On)

	var result *RedeemExtraLifeResult
	err := withLock(ctx, h.locker, shared.HabitLockKey(cmd.HabitID, cmd.UserID), func() error {
		return withLock(ctx, h.locker, shared.UserLockKey(cmd.UserID), func() error {
			hb, err := h.habits.GetByID(ctx, cmd.HabitID)
			if err != nil {
				return fmt.Errorf("redeem_extra_life: failed to get habit: %w", err)
			}
			if !hb.BelongsTo(cmd.UserID) {
				return fmt.Errorf("redeem_extra_life: %w", shared.ErrHabitNotOwned)
			}

			u, _, err := user.Load(ctx, h.users, cmd.UserID)
			if err != nil {
				return fmt.Errorf("redeem_extra_life: failed to get user: %w", err)
			}

			now := h.clock()
			restored, err := hb.Redeem(u.ExtraLives, cmd.RestoreDate, today, now)
			if err != nil {
				return fmt.Errorf("redeem_extra_life: %w", err)
			}
			if err := u.ConsumeExtraLife(now); err != nil {
				return fmt.Errorf("redeem_extra_life: %w", err)
			}

			if err := h.habits.SaveRedemption(ctx, hb, u); err != nil {
				return fmt.Errorf("redeem_extra_life: failed to save redemption: %w", err)
			}

			result = &RedeemExtraLifeResult{
				UserID:          u.ID,
				HabitID:         hb.ID,
				RestoredDate:    restored,
				PreservedStreak: hb.Streak,
				RemainingLives:  u.ExtraLives,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("extra life used",
		"user_id", result.UserID,
		"habit_id", result.HabitID,
		"restored", result.RestoredDate.String(),
		"remaining", result.RemainingLives,
	)
	publishAll(h.logger, h.publisher, shared.NewExtraLifeUsedEvent(
		result.UserID, result.HabitID, result.RestoredDate, result.RemainingLives, h.clock()))

	return result, nil
}

// announceGrant reports the life earned by habitID's streak. The balance
// itself is saved by the completion that earned it.
func (h *ExtraLifeHandler) announceGrant(userID, habitID string, streak, lives int) {
	h.logger.Info("extra life awarded", "user_id", userID, "habit_id", habitID, "streak", streak, "lives", lives)
	publishAll(h.logger, h.publisher, shared.NewExtraLifeAwardedEvent(userID, habitID, streak, lives, h.clock()))
}

// ScanMissed stores the missed-day count on each of the user's habits and
// emits a streak-broken event the first time a gap is seen.
func (h *ExtraLifeHandler) ScanMissed(ctx context.Context, userID string, on shared.Date) (*ScanMissedResult, error) {
	if err := required("scan_missed", "user_id", userID); err != nil {
		return nil, err
	}
	today := h.today(on)

	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("scan_missed: failed to get user: %w", err)
	}
	habits, err := h.habits.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("scan_missed: failed to list habits: %w", err)
	}

	result := &ScanMissedResult{UserID: userID, Reports: habit.CheckMissed(habits, u.ExtraLives, today)}

	for _, listed := range habits {
		var broken *habit.MissedDayReport
		err := withLock(ctx, h.locker, shared.HabitLockKey(listed.ID, userID), func() error {
			hb, err := h.habits.GetByID(ctx, listed.ID)
			if err != nil {
				return err
			}
			before := hb.MissedDays
			if !hb.MarkMissed(today, h.clock()) {
				return nil
			}
			if err := h.habits.Update(ctx, hb); err != nil {
				return err
			}
			result.Marked++
			if before == 0 && hb.MissedDays > 0 {
				if r, ok := hb.CheckMissed(today, u.ExtraLives); ok {
					broken = &r
				}
			}
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("scan_missed: habit %s: %w", listed.ID, err)
		}
		if broken != nil {
			publishAll(h.logger, h.publisher, shared.NewStreakBrokenEvent(
				userID, broken.HabitID, broken.DaysMissed, broken.CurrentStreak, broken.CanRedeem, h.clock()))
		}
	}

	return result, nil
}
