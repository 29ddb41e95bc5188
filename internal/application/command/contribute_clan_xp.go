package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTRIBUTE CLAN XP COMMAND
// Adds a member's XP grant to the clan total and to the member's ledger in one
// atomic save, so the ledger always partitions the clan total. Every grant is
// additive; nothing is batched or deduplicated.
// ══════════════════════════════════════════════════════════════════════════════

// ContributeClanXPCommand contains one contribution.
type ContributeClanXPCommand struct {
	ClanID string
	UserID string
	Amount int64
}

// Validate validates the command.
func (c ContributeClanXPCommand) Validate() error {
	if err := required("contribute_clan_xp", "clan_id", c.ClanID); err != nil {
		return err
	}
	if err := required("contribute_clan_xp", "user_id", c.UserID); err != nil {
		return err
	}
	if c.Amount < 0 {
		return fmt.Errorf("contribute_clan_xp: amount cannot be negative: %w", shared.ErrNegativeValue)
	}
	return nil
}

// ContributeClanXPResult reports the clan after the contribution.
type ContributeClanXPResult struct {
	ClanID             string
	NewClanTotal       int64
	MemberContribution int64
	OldClanLevel       int
	NewClanLevel       int
	LeveledUp          bool

	// BadgesAwarded are clan badges the contributing member earned.
	BadgesAwarded []badge.Definition
}

// ContributeClanXPHandler handles clan contributions.
type ContributeClanXPHandler struct {
	clans     clan.Repository
	locker    shared.Locker
	badges    *BadgeHandler
	publisher shared.EventPublisher
	clock     Clock
	logger    *slog.Logger
}

// NewContributeClanXPHandler creates a new ContributeClanXPHandler.
func NewContributeClanXPHandler(
	clans clan.Repository,
	locker shared.Locker,
	badges *BadgeHandler,
	publisher shared.EventPublisher,
	clock Clock,
	logger *slog.Logger,
) *ContributeClanXPHandler {
	return &ContributeClanXPHandler{
		clans:     clans,
		locker:    locker,
		badges:    badges,
		publisher: publisherOrDefault(publisher),
		clock:     clockOrDefault(clock),
		logger:    loggerOrDefault(logger, "contribute_clan_xp"),
	}
}

// Handle executes the contribution.
func (h *ContributeClanXPHandler) Handle(ctx context.Context, cmd ContributeClanXPCommand) (*ContributeClanXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var (
		res    clan.Contribution
		events []shared.Event
	)
	err := withLock(ctx, h.locker, shared.ClanLockKey(cmd.ClanID), func() error {
		c, err := h.clans.GetByID(ctx, cmd.ClanID)
		if err != nil {
			return fmt.Errorf("contribute_clan_xp: failed to get clan: %w", err)
		}
		if c.Reconcile() {
			h.logger.Warn("clan level recomputed from total xp", "clan_id", c.ID)
		}

		m, err := h.clans.GetMembership(ctx, cmd.ClanID, cmd.UserID)
		if err != nil {
			return fmt.Errorf("contribute_clan_xp: failed to get membership: %w", err)
		}

		now := h.clock()
		res, err = c.Contribute(m, cmd.Amount, now)
		if err != nil {
			return fmt.Errorf("contribute_clan_xp: %w", err)
		}

		if err := h.clans.SaveContribution(ctx, c, m); err != nil {
			return fmt.Errorf("contribute_clan_xp: failed to save contribution: %w", err)
		}

		events = append(events, shared.NewClanXPContributedEvent(
			c.ID, cmd.UserID, res.Amount, res.NewTotal, res.MemberTotal, res.NewLevel, now))
		if res.LeveledUp() {
			events = append(events, shared.NewClanLevelUpEvent(c.ID, res.OldLevel, res.NewLevel, cmd.UserID, now))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &ContributeClanXPResult{
		ClanID:             cmd.ClanID,
		NewClanTotal:       res.NewTotal,
		MemberContribution: res.MemberTotal,
		OldClanLevel:       res.OldLevel,
		NewClanLevel:       res.NewLevel,
		LeveledUp:          res.LeveledUp(),
	}

	if res.LeveledUp() {
		h.logger.Info("clan leveled up", "clan_id", cmd.ClanID, "old_level", res.OldLevel, "new_level", res.NewLevel)
	}
	publishAll(h.logger, h.publisher, events...)

	// Clan badges track the member's running contribution, so they are checked
	// after every contribution and not only on a clan level-up.
	if h.badges != nil {
		snap := badge.Snapshot{InClan: true, ClanContribution: res.MemberTotal}
		awarded, err := h.badges.CheckSnapshot(ctx, cmd.UserID, snap, badge.TypeClan)
		if err != nil {
			h.logger.Error("clan badge check failed", "user_id", cmd.UserID, "clan_id", cmd.ClanID, "error", err)
		}
		result.BadgesAwarded = awarded
	}

	return result, nil
}
