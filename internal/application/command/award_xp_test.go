package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

func TestAwardXP_CrossingSingleLevel(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	f.registerUser(t, "u1", 199, 0)
	require.Equal(t, 1, f.getUser(t, "u1").Level)

	res, err := f.award.Handle(context.Background(), AwardXPCommand{UserID: "u1", Amount: 1, Reason: "test"})
	require.NoError(t, err)

	assert.Equal(t, int64(200), res.NewXP)
	assert.Equal(t, 1, res.OldLevel)
	assert.Equal(t, 2, res.NewLevel)
	assert.Equal(t, []int{2}, res.LevelsGained)
	assert.True(t, res.LeveledUp())

	u := f.getUser(t, "u1")
	assert.Equal(t, int64(200), u.XP)
	assert.Equal(t, 2, u.Level)
	assert.Equal(t, int64(200), u.TotalPoints)

	assert.Equal(t, 1, f.pub.count(shared.EventXPAwarded))
	assert.Equal(t, 1, f.pub.count(shared.EventLevelUp))
}

func TestAwardXP_MultipleLevelsInAscendingOrder(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	f.registerUser(t, "u1", 0, 0)

	res, err := f.award.Handle(context.Background(), AwardXPCommand{UserID: "u1", Amount: 1800, Reason: "import"})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3, 4, 5, 6}, res.LevelsGained)
	require.Len(t, res.LevelUps, 5)
	for i, lu := range res.LevelUps {
		assert.Equal(t, res.LevelsGained[i], lu.Level)
	}

	milestone := res.LevelUps[3]
	assert.Equal(t, 5, milestone.Level)
	assert.Equal(t, int64(50), milestone.Rewards.BonusXP)
	assert.False(t, milestone.BonusGranted)
	assert.Empty(t, res.BonusAwards)

	require.Len(t, res.BadgesAwarded, 1)
	assert.Equal(t, "Novice", res.BadgesAwarded[0].Name)

	// The bonus is reported only.
	assert.Equal(t, int64(1800), f.getUser(t, "u1").XP)
	assert.Equal(t, 1, f.pub.count(shared.EventMilestoneBonus))
}

func TestAwardXP_GrantMilestoneBonus(t *testing.T) {
	f := newFixture(t, AwardXPConfig{GrantMilestoneBonus: true})
	f.registerUser(t, "u1", 0, 0)

	res, err := f.award.Handle(context.Background(), AwardXPCommand{UserID: "u1", Amount: 1800, Reason: "import"})
	require.NoError(t, err)

	require.Len(t, res.BonusAwards, 1)
	assert.Equal(t, int64(50), res.BonusAwards[0].Amount)
	assert.Equal(t, "level_milestone_bonus_5", res.BonusAwards[0].Reason)
	assert.True(t, res.LevelUps[3].BonusGranted)

	u := f.getUser(t, "u1")
	assert.Equal(t, int64(1850), u.XP)
	assert.Equal(t, int64(1850), u.TotalPoints)
}

func TestAwardXP_NegativeCorrectionClampsAtZero(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	f.registerUser(t, "u1", 450, 0)

	res, err := f.award.Handle(context.Background(), AwardXPCommand{UserID: "u1", Amount: -1000, Reason: "admin_correction"})
	require.NoError(t, err)

	assert.True(t, res.Clamped)
	assert.Equal(t, int64(0), res.NewXP)
	assert.Equal(t, 3, res.OldLevel)
	assert.Equal(t, 1, res.NewLevel)
	assert.Empty(t, res.LevelsGained)

	u := f.getUser(t, "u1")
	assert.Equal(t, int64(0), u.XP)
	assert.Equal(t, int64(450), u.TotalPoints)
}

func TestAwardXP_ConcurrentGrantsAreNotLost(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	f.registerUser(t, "u1", 0, 0)

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := f.award.Handle(context.Background(), AwardXPCommand{UserID: "u1", Amount: 50, Reason: "race"})
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(100), f.getUser(t, "u1").XP)

	var many errgroup.Group
	for i := 0; i < 40; i++ {
		many.Go(func() error {
			_, err := f.award.Handle(context.Background(), AwardXPCommand{UserID: "u1", Amount: 25, Reason: "race"})
			return err
		})
	}
	require.NoError(t, many.Wait())

	u := f.getUser(t, "u1")
	assert.Equal(t, int64(1100), u.XP)
	assert.NoError(t, u.Validate())
}

func TestAwardXP_ForwardsOriginalAmountToClan(t *testing.T) {
	f := newFixture(t, AwardXPConfig{GrantMilestoneBonus: true})
	ctx := context.Background()
	f.registerUser(t, "owner", 0, 0)
	_, err := f.provision.CreateClan(ctx, CreateClanCommand{ClanID: "c1", Name: "Larks", OwnerID: "owner"})
	require.NoError(t, err)

	res, err := f.award.Handle(ctx, AwardXPCommand{UserID: "owner", Amount: 1800, Reason: "import"})
	require.NoError(t, err)
	require.NotNil(t, res.Clan)

	// The granted level-5 bonus is not forwarded.
	assert.Equal(t, int64(1800), res.Clan.NewClanTotal)
	assert.Equal(t, int64(1800), res.Clan.MemberContribution)
	assert.True(t, res.Clan.LeveledUp)

	c, err := f.store.Clans().GetByID(ctx, "c1")
	require.NoError(t, err)
	members, err := f.store.Clans().ListMembers(ctx, "c1")
	require.NoError(t, err)
	assert.NoError(t, c.VerifyLedger(members))
	assert.Equal(t, 3, c.Level)

	// Negative corrections never reach the clan.
	res, err = f.award.Handle(ctx, AwardXPCommand{UserID: "owner", Amount: -10, Reason: "admin_correction"})
	require.NoError(t, err)
	assert.Nil(t, res.Clan)
}

func TestAwardXP_TelemetryFailureDoesNotFailGrant(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	f.registerUser(t, "u1", 0, 0)
	f.pub.err = errors.New("collector down")

	res, err := f.award.Handle(context.Background(), AwardXPCommand{UserID: "u1", Amount: 300, Reason: "test"})
	require.NoError(t, err)
	assert.Empty(t, res.SideEffectErrors)
	assert.Equal(t, int64(300), f.getUser(t, "u1").XP)
}

func TestAwardXP_PersistenceFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	f.registerUser(t, "u1", 150, 0)
	f.store.FailNext(errors.New("connection reset"))

	_, err := f.award.Handle(context.Background(), AwardXPCommand{UserID: "u1", Amount: 100, Reason: "test"})
	require.Error(t, err)

	u := f.getUser(t, "u1")
	assert.Equal(t, int64(150), u.XP)
	assert.Equal(t, 1, u.Level)
	assert.Equal(t, 0, f.pub.count(shared.EventXPAwarded))
}

func TestAwardXP_CorrectsStoredLevelDesync(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	f.registerUser(t, "u1", 250, 0)
	f.setUser(t, "u1", func(u *user.Progress) { u.Level = 9 })

	res, err := f.award.Handle(context.Background(), AwardXPCommand{UserID: "u1", Amount: 10, Reason: "test"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.OldLevel)
	assert.Equal(t, 2, res.NewLevel)
	assert.Empty(t, res.LevelsGained)
	assert.NoError(t, f.getUser(t, "u1").Validate())
}

func TestAwardXP_Validation(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())

	tests := []struct {
		name string
		cmd  AwardXPCommand
	}{
		{"missing user", AwardXPCommand{Amount: 1, Reason: "r"}},
		{"missing reason", AwardXPCommand{UserID: "u1", Amount: 1}},
		{"zero amount", AwardXPCommand{UserID: "u1", Reason: "r"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.award.Handle(context.Background(), tt.cmd)
			assert.True(t, shared.IsValidation(err))
		})
	}

	_, err := f.award.Handle(context.Background(), AwardXPCommand{UserID: "ghost", Amount: 1, Reason: "r"})
	assert.True(t, shared.IsNotFound(err))
}

func TestAwardXP_LevelBadgesAwardedOnce(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	f.registerUser(t, "u1", 0, 0)

	_, err := f.award.Handle(ctx, AwardXPCommand{UserID: "u1", Amount: 6200, Reason: "import"})
	require.NoError(t, err)

	earned, err := f.store.Badges().ListEarned(ctx, "u1")
	require.NoError(t, err)
	set := badge.NewEarnedSet(earned)
	assert.True(t, set.Has("novice"))
	assert.True(t, set.Has("expert"))
	assert.False(t, set.Has("elite"))

	res, err := f.badges.Handle(ctx, EvaluateBadgesCommand{UserID: "u1", Types: []badge.Type{badge.TypeLevel}})
	require.NoError(t, err)
	assert.Empty(t, res.Awarded)
	assert.Equal(t, 2, f.store.BadgeCount("u1"))
}
