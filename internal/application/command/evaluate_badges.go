package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE BADGES COMMAND
// Compares a user's aggregated progress against the catalog and awards every
// badge whose requirement is met. Awards are idempotent: the (user, badge)
// pair is unique in storage, so repeated evaluation never duplicates rows.
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateBadgesCommand asks for a badge check.
type EvaluateBadgesCommand struct {
	// UserID is the user to evaluate.
	UserID string

	// Types restricts the check to these categories. Empty means all.
	Types []badge.Type
}

// Validate validates the command.
func (c EvaluateBadgesCommand) Validate() error {
	if err := required("evaluate_badges", "user_id", c.UserID); err != nil {
		return err
	}
	for _, t := range c.Types {
		if !t.IsValid() {
			return fmt.Errorf("evaluate_badges: %w: %q", shared.ErrInvalidBadgeType, t)
		}
	}
	return nil
}

// EvaluateBadgesResult lists badges awarded by this call.
type EvaluateBadgesResult struct {
	UserID string

	// Awarded are newly earned badges in catalog order.
	Awarded []badge.Definition

	// XPReward is the sum of the awarded badges' rewards. Reported only.
	XPReward int64
}

// AwardBadgeCommand awards one catalog badge explicitly, e.g. a special badge
// decided by an outer layer.
type AwardBadgeCommand struct {
	UserID string

	// Badge is the badge name ("Perfectionist") or its ID ("perfectionist").
	Badge string
}

// Validate validates the command.
func (c AwardBadgeCommand) Validate() error {
	if err := required("award_badge", "user_id", c.UserID); err != nil {
		return err
	}
	return required("award_badge", "badge", c.Badge)
}

// AwardOutcome reports an explicit award.
type AwardOutcome struct {
	Badge badge.Definition

	// AlreadyEarned is true when the user had the badge; nothing changed.
	AlreadyEarned bool
}

// BadgeHandler handles badge evaluation and explicit awards.
type BadgeHandler struct {
	users     user.Repository
	habits    habit.Repository
	clans     clan.Repository
	badges    badge.Repository
	publisher shared.EventPublisher
	clock     Clock
	logger    *slog.Logger
}

// NewBadgeHandler creates a new BadgeHandler.
func NewBadgeHandler(
	users user.Repository,
	habits habit.Repository,
	clans clan.Repository,
	badges badge.Repository,
	publisher shared.EventPublisher,
	clock Clock,
	logger *slog.Logger,
) *BadgeHandler {
	return &BadgeHandler{
		users:     users,
		habits:    habits,
		clans:     clans,
		badges:    badges,
		publisher: publisherOrDefault(publisher),
		clock:     clockOrDefault(clock),
		logger:    loggerOrDefault(logger, "evaluate_badges"),
	}
}

// Handle runs a full or category-filtered evaluation.
func (h *BadgeHandler) Handle(ctx context.Context, cmd EvaluateBadgesCommand) (*EvaluateBadgesResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	snap, err := h.Snapshot(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	awarded, err := h.CheckSnapshot(ctx, cmd.UserID, snap, cmd.Types...)
	if err != nil {
		return nil, err
	}

	result := &EvaluateBadgesResult{UserID: cmd.UserID, Awarded: awarded}
	for _, d := range awarded {
		result.XPReward += d.XPReward
	}
	return result, nil
}

// Snapshot aggregates the user's progress for badge checks.
func (h *BadgeHandler) Snapshot(ctx context.Context, userID string) (badge.Snapshot, error) {
	u, corrected, err := user.Load(ctx, h.users, userID)
	if err != nil {
		return badge.Snapshot{}, fmt.Errorf("evaluate_badges: failed to get user: %w", err)
	}
	if corrected {
		h.logger.Warn("user level recomputed from xp", "user_id", userID, "error", shared.ErrLevelDesync)
	}

	habits, err := h.habits.ListByUser(ctx, userID)
	if err != nil {
		return badge.Snapshot{}, fmt.Errorf("evaluate_badges: failed to list habits: %w", err)
	}

	snap := badge.Snapshot{Level: u.Level, InClan: u.HasClan()}
	for _, hb := range habits {
		if hb.Streak > snap.MaxStreak {
			snap.MaxStreak = hb.Streak
		}
		snap.TotalCompletions += hb.TotalCompletions
	}

	if u.HasClan() {
		m, err := h.clans.GetMembership(ctx, u.ClanID, userID)
		switch {
		case err == nil:
			snap.ClanContribution = m.XPContributed
		case shared.IsNotFound(err):
			h.logger.Warn("user references a clan without membership", "user_id", userID, "clan_id", u.ClanID)
		default:
			return badge.Snapshot{}, fmt.Errorf("evaluate_badges: failed to get membership: %w", err)
		}
	}

	return snap, nil
}

// CheckSnapshot awards every eligible badge for snap, restricted to types.
// Badges earned concurrently by another caller are skipped silently.
func (h *BadgeHandler) CheckSnapshot(ctx context.Context, userID string, snap badge.Snapshot, types ...badge.Type) ([]badge.Definition, error) {
	earned, err := h.badges.ListEarned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("evaluate_badges: failed to list earned badges: %w", err)
	}

	var awarded []badge.Definition
	for _, d := range badge.Eligible(snap, badge.NewEarnedSet(earned), types...) {
		ok, err := h.award(ctx, userID, d)
		if err != nil {
			return awarded, err
		}
		if ok {
			awarded = append(awarded, d)
		}
	}
	return awarded, nil
}

// AwardSpecific awards one badge regardless of its requirement.
func (h *BadgeHandler) AwardSpecific(ctx context.Context, cmd AwardBadgeCommand) (*AwardOutcome, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	d, ok := badge.ByName(cmd.Badge)
	if !ok {
		d, ok = badge.ByID(cmd.Badge)
	}
	if !ok {
		return nil, fmt.Errorf("award_badge: %w: %q", shared.ErrBadgeNotFound, cmd.Badge)
	}

	if _, err := h.users.GetByID(ctx, cmd.UserID); err != nil {
		return nil, fmt.Errorf("award_badge: failed to get user: %w", err)
	}

	awarded, err := h.award(ctx, cmd.UserID, d)
	if err != nil {
		return nil, err
	}
	return &AwardOutcome{Badge: d, AlreadyEarned: !awarded}, nil
}

// award returns false when the badge was already earned.
func (h *BadgeHandler) award(ctx context.Context, userID string, d badge.Definition) (bool, error) {
	now := h.clock()
	err := h.badges.Award(ctx, badge.UserBadge{
		ID:       uuid.NewString(),
		UserID:   userID,
		BadgeID:  d.ID,
		EarnedAt: now,
	})
	if err != nil {
		if shared.IsNoOp(err) {
			return false, nil
		}
		return false, fmt.Errorf("evaluate_badges: failed to award %s: %w", d.ID, err)
	}

	h.logger.Info("badge earned", "user_id", userID, "badge", d.ID, "rarity", d.Rarity)
	publishAll(h.logger, h.publisher,
		shared.NewBadgeEarnedEvent(userID, d.Name, string(d.Type), string(d.Rarity), d.XPReward, now))
	return true, nil
}
