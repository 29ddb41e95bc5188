package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOIN CLAN COMMAND
// Adds a user to a clan with an empty contribution ledger. A user belongs to
// at most one clan and a clan accepts at most MaxMembers members.
// ══════════════════════════════════════════════════════════════════════════════

// JoinClanCommand contains the data to join a clan.
type JoinClanCommand struct {
	ClanID string
	UserID string
}

// Validate validates the command.
func (c JoinClanCommand) Validate() error {
	if err := required("join_clan", "clan_id", c.ClanID); err != nil {
		return err
	}
	return required("join_clan", "user_id", c.UserID)
}

// JoinClanResult contains the result of joining.
type JoinClanResult struct {
	ClanID      string
	UserID      string
	Role        clan.Role
	MemberCount int

	// BadgesAwarded are social badges earned by joining.
	BadgesAwarded []badge.Definition
}

// JoinClanHandler handles clan membership.
type JoinClanHandler struct {
	users     user.Repository
	clans     clan.Repository
	locker    shared.Locker
	badges    *BadgeHandler
	publisher shared.EventPublisher
	clock     Clock
	logger    *slog.Logger
}

// NewJoinClanHandler creates a new JoinClanHandler.
func NewJoinClanHandler(
	users user.Repository,
	clans clan.Repository,
	locker shared.Locker,
	badges *BadgeHandler,
	publisher shared.EventPublisher,
	clock Clock,
	logger *slog.Logger,
) *JoinClanHandler {
	return &JoinClanHandler{
		users:     users,
		clans:     clans,
		locker:    locker,
		badges:    badges,
		publisher: publisherOrDefault(publisher),
		clock:     clockOrDefault(clock),
		logger:    loggerOrDefault(logger, "join_clan"),
	}
}

// Handle executes the join under the user's and then the clan's lock.
func (h *JoinClanHandler) Handle(ctx context.Context, cmd JoinClanCommand) (*JoinClanResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *JoinClanResult
	err := withLock(ctx, h.locker, shared.UserLockKey(cmd.UserID), func() error {
		return withLock(ctx, h.locker, shared.ClanLockKey(cmd.ClanID), func() error {
			u, _, err := user.Load(ctx, h.users, cmd.UserID)
			if err != nil {
				return fmt.Errorf("join_clan: failed to get user: %w", err)
			}
			if u.HasClan() {
				return fmt.Errorf("join_clan: %w", shared.ErrAlreadyInClan)
			}

			c, err := h.clans.GetByID(ctx, cmd.ClanID)
			if err != nil {
				return fmt.Errorf("join_clan: failed to get clan: %w", err)
			}

			now := h.clock()
			m, err := c.AddMember(u.ID, now)
			if err != nil {
				return fmt.Errorf("join_clan: %w", err)
			}
			if err := u.JoinClan(c.ID, now); err != nil {
				return fmt.Errorf("join_clan: %w", err)
			}

			if err := h.clans.AddMember(ctx, c, m, u); err != nil {
				return fmt.Errorf("join_clan: failed to save membership: %w", err)
			}

			result = &JoinClanResult{
				ClanID:      c.ID,
				UserID:      u.ID,
				Role:        m.Role,
				MemberCount: c.MemberCount,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("user joined clan", "user_id", cmd.UserID, "clan_id", cmd.ClanID, "members", result.MemberCount)
	publishAll(h.logger, h.publisher,
		shared.NewClanMemberJoinedEvent(cmd.ClanID, cmd.UserID, result.MemberCount, h.clock()))

	if h.badges != nil {
		awarded, err := h.badges.CheckSnapshot(ctx, cmd.UserID, badge.Snapshot{InClan: true}, badge.TypeSocial)
		if err != nil {
			h.logger.Error("social badge check failed", "user_id", cmd.UserID, "error", err)
		}
		result.BadgesAwarded = awarded
	}

	return result, nil
}
