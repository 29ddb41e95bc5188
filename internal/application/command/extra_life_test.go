package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/shared"
)

func brokenHabit(t *testing.T, f *fixture, lives int) {
	t.Helper()
	f.registerUser(t, "u1", 0, lives)
	f.createHabit(t, "h1", "u1", habit.DifficultyMedium)
	f.setHabit(t, "h1", func(h *habit.Habit) {
		h.Streak, h.BestStreak, h.TotalCompletions = 20, 20, 20
		h.LastCompleted = f.today().AddDays(-3)
	})
}

func TestRedeem_NoLivesLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	brokenHabit(t, f, 0)
	before := f.getHabit(t, "h1")

	_, err := f.lives.Redeem(context.Background(), RedeemExtraLifeCommand{UserID: "u1", HabitID: "h1"})
	assert.ErrorIs(t, err, shared.ErrNoExtraLivesAvailable)

	after := f.getHabit(t, "h1")
	assert.Equal(t, before.Version, after.Version)
	assert.False(t, after.UsedExtraLife)
	assert.Equal(t, 0, f.getUser(t, "u1").ExtraLives)
	assert.Equal(t, 0, f.pub.count(shared.EventExtraLifeUsed))
}

func TestRedeem_PreservesStreakOnNextCompletion(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	brokenHabit(t, f, 2)

	res, err := f.lives.Redeem(ctx, RedeemExtraLifeCommand{UserID: "u1", HabitID: "h1"})
	require.NoError(t, err)
	assert.Equal(t, f.today().AddDays(-1), res.RestoredDate)
	assert.Equal(t, 1, res.RemainingLives)
	assert.Equal(t, 20, res.PreservedStreak)
	assert.Equal(t, 1, f.pub.count(shared.EventExtraLifeUsed))

	_, err = f.lives.Redeem(ctx, RedeemExtraLifeCommand{UserID: "u1", HabitID: "h1"})
	assert.ErrorIs(t, err, shared.ErrAlreadyRedeemed)
	assert.Equal(t, 1, f.getUser(t, "u1").ExtraLives)

	done, err := f.complete.Handle(ctx, CompleteHabitCommand{UserID: "u1", HabitID: "h1"})
	require.NoError(t, err)
	assert.Equal(t, habit.TransitionRedeemed, done.Transition)
	assert.Equal(t, 21, done.NewStreak)
	assert.False(t, f.getHabit(t, "h1").UsedExtraLife)
}

func TestRedeem_RestoreDateBounds(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	brokenHabit(t, f, 1)

	for _, d := range []shared.Date{f.today(), f.today().AddDays(-3), f.today().AddDays(-5)} {
		_, err := f.lives.Redeem(ctx, RedeemExtraLifeCommand{UserID: "u1", HabitID: "h1", RestoreDate: d})
		assert.ErrorIs(t, err, shared.ErrValueOutOfRange, d.String())
	}

	res, err := f.lives.Redeem(ctx, RedeemExtraLifeCommand{UserID: "u1", HabitID: "h1", RestoreDate: f.today().AddDays(-2)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.RemainingLives)
}

func TestRedeem_RequiresBrokenStreak(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	f.registerUser(t, "u1", 0, 1)
	f.createHabit(t, "h1", "u1", habit.DifficultyMedium)
	f.setHabit(t, "h1", func(h *habit.Habit) {
		h.Streak, h.BestStreak = 3, 3
		h.LastCompleted = f.today().AddDays(-1)
	})

	_, err := f.lives.Redeem(context.Background(), RedeemExtraLifeCommand{UserID: "u1", HabitID: "h1"})
	assert.ErrorIs(t, err, shared.ErrNothingToRedeem)
	assert.Equal(t, 1, f.getUser(t, "u1").ExtraLives)
}

func TestCheckMissed(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	brokenHabit(t, f, 1)
	f.createHabit(t, "h2", "u1", habit.DifficultyEasy)
	f.setHabit(t, "h2", func(h *habit.Habit) {
		h.Streak, h.BestStreak = 4, 4
		h.LastCompleted = f.today().AddDays(-1)
	})

	reports, err := f.lives.CheckMissed(ctx, CheckMissedCommand{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "h1", reports[0].HabitID)
	assert.Equal(t, 2, reports[0].DaysMissed)
	assert.Equal(t, 20, reports[0].CurrentStreak)
	assert.True(t, reports[0].CanRedeem)
}

func TestScanMissed_EmitsStreakBrokenOnce(t *testing.T) {
	f := newFixture(t, DefaultAwardXPConfig())
	ctx := context.Background()
	brokenHabit(t, f, 0)

	res, err := f.lives.ScanMissed(ctx, "u1", shared.Date{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Marked)
	require.Len(t, res.Reports, 1)
	assert.False(t, res.Reports[0].CanRedeem)
	assert.Equal(t, 2, f.getHabit(t, "h1").MissedDays)
	assert.Equal(t, 1, f.pub.count(shared.EventStreakBroken))

	res, err = f.lives.ScanMissed(ctx, "u1", shared.Date{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Marked)
	assert.Equal(t, 1, f.pub.count(shared.EventStreakBroken))

	f.advanceDays(1)
	res, err = f.lives.ScanMissed(ctx, "u1", shared.Date{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Marked)
	assert.Equal(t, 3, f.getHabit(t, "h1").MissedDays)
	assert.Equal(t, 1, f.pub.count(shared.EventStreakBroken))
}
