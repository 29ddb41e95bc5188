package command

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/shared"
)

func TestEvaluateBadges_IsIdempotent(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	f.registerUser(t, "u1", 6200, 0)

	res, err := f.badges.Handle(ctx, EvaluateBadgesCommand{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, res.Awarded, 2)
	assert.Equal(t, "Novice", res.Awarded[0].Name)
	assert.Equal(t, "Expert", res.Awarded[1].Name)
	assert.Equal(t, res.Awarded[0].XPReward+res.Awarded[1].XPReward, res.XPReward)

	for i := 0; i < 3; i++ {
		res, err = f.badges.Handle(ctx, EvaluateBadgesCommand{UserID: "u1"})
		require.NoError(t, err)
		assert.Empty(t, res.Awarded)
	}
	assert.Equal(t, 2, f.store.BadgeCount("u1"))
	assert.Equal(t, 2, f.pub.count(shared.EventBadgeEarned))

	// Badge rewards are reported, not granted.
	assert.Equal(t, int64(6200), f.getUser(t, "u1").XP)
}

func TestEvaluateBadges_InvalidType(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	_, err := f.badges.Handle(context.Background(), EvaluateBadgesCommand{UserID: "u1", Types: []badge.Type{"karma"}})
	assert.True(t, shared.IsValidation(err))
}

func TestAwardSpecific(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	f.registerUser(t, "u1", 0, 0)

	out, err := f.badges.AwardSpecific(ctx, AwardBadgeCommand{UserID: "u1", Badge: badge.Perfectionist})
	require.NoError(t, err)
	assert.False(t, out.AlreadyEarned)
	assert.Equal(t, "perfectionist", out.Badge.ID)

	out, err = f.badges.AwardSpecific(ctx, AwardBadgeCommand{UserID: "u1", Badge: "perfectionist"})
	require.NoError(t, err)
	assert.True(t, out.AlreadyEarned)
	assert.Equal(t, 1, f.store.BadgeCount("u1"))

	_, err = f.badges.AwardSpecific(ctx, AwardBadgeCommand{UserID: "u1", Badge: "Nope"})
	assert.True(t, shared.IsNotFound(err))

	// Special badges are never awarded by evaluation.
	f.registerUser(t, "u2", 0, 0)
	res, err := f.badges.Handle(ctx, EvaluateBadgesCommand{UserID: "u2", Types: []badge.Type{badge.TypeSpecial}})
	require.NoError(t, err)
	assert.Empty(t, res.Awarded)
}

func TestJoinClan(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	f.registerUser(t, "owner", 0, 0)
	f.registerUser(t, "u1", 0, 0)
	f.registerUser(t, "u2", 0, 0)

	c, err := f.provision.CreateClan(ctx, CreateClanCommand{ClanID: "c1", Name: "Larks", OwnerID: "owner", MaxMembers: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, c.MemberCount)

	owner, err := f.store.Clans().GetMembership(ctx, "c1", "owner")
	require.NoError(t, err)
	assert.Equal(t, clan.RoleLeader, owner.Role)

	res, err := f.join.Handle(ctx, JoinClanCommand{ClanID: "c1", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.MemberCount)
	assert.Equal(t, clan.RoleMember, res.Role)
	require.Len(t, res.BadgesAwarded, 1)
	assert.Equal(t, badge.TeamPlayer, res.BadgesAwarded[0].Name)
	assert.Equal(t, "c1", f.getUser(t, "u1").ClanID)

	_, err = f.join.Handle(ctx, JoinClanCommand{ClanID: "c1", UserID: "u1"})
	assert.ErrorIs(t, err, shared.ErrAlreadyInClan)

	_, err = f.join.Handle(ctx, JoinClanCommand{ClanID: "c1", UserID: "u2"})
	assert.ErrorIs(t, err, shared.ErrClanFull)
	assert.Empty(t, f.getUser(t, "u2").ClanID)

	_, err = f.join.Handle(ctx, JoinClanCommand{ClanID: "nope", UserID: "u2"})
	assert.True(t, shared.IsNotFound(err))
}

func TestContributeClanXP_LevelUpAndBadges(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	f.registerUser(t, "owner", 0, 0)
	_, err := f.provision.CreateClan(ctx, CreateClanCommand{ClanID: "c1", Name: "Larks", OwnerID: "owner"})
	require.NoError(t, err)
	f.pub.reset()

	res, err := f.clan.Handle(ctx, ContributeClanXPCommand{ClanID: "c1", UserID: "owner", Amount: 499})
	require.NoError(t, err)
	assert.False(t, res.LeveledUp)
	assert.Empty(t, res.BadgesAwarded)

	res, err = f.clan.Handle(ctx, ContributeClanXPCommand{ClanID: "c1", UserID: "owner", Amount: 1})
	require.NoError(t, err)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 1, res.OldClanLevel)
	assert.Equal(t, 2, res.NewClanLevel)
	assert.Equal(t, int64(500), res.NewClanTotal)
	require.Len(t, res.BadgesAwarded, 1)
	assert.Equal(t, "Clan Contributor", res.BadgesAwarded[0].Name)

	assert.Equal(t, 2, f.pub.count(shared.EventClanXPContributed))
	assert.Equal(t, 1, f.pub.count(shared.EventClanLevelUp))

	_, err = f.clan.Handle(ctx, ContributeClanXPCommand{ClanID: "c1", UserID: "stranger", Amount: 10})
	assert.True(t, shared.IsNotFound(err))
	_, err = f.clan.Handle(ctx, ContributeClanXPCommand{ClanID: "c1", UserID: "owner", Amount: -5})
	assert.True(t, shared.IsValidation(err))
}

func TestClanLedgerPartitionsTotalUnderConcurrency(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	f.registerUser(t, "owner", 0, 0)
	_, err := f.provision.CreateClan(ctx, CreateClanCommand{ClanID: "c1", Name: "Larks", OwnerID: "owner"})
	require.NoError(t, err)

	members := []string{"owner"}
	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("m%d", i)
		f.registerUser(t, id, 0, 0)
		_, err := f.join.Handle(ctx, JoinClanCommand{ClanID: "c1", UserID: id})
		require.NoError(t, err)
		members = append(members, id)
	}

	var g errgroup.Group
	for _, id := range members {
		for i := 0; i < 10; i++ {
			g.Go(func() error {
				_, err := f.award.Handle(ctx, AwardXPCommand{UserID: id, Amount: 30, Reason: "race"})
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	c, err := f.store.Clans().GetByID(ctx, "c1")
	require.NoError(t, err)
	ledger, err := f.store.Clans().ListMembers(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, int64(5*10*30), c.TotalXP)
	assert.NoError(t, c.VerifyLedger(ledger))
	for _, m := range ledger {
		assert.Equal(t, int64(300), m.XPContributed, m.UserID)
	}
}
