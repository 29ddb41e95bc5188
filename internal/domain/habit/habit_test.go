package habit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

var now = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func day(d int) shared.Date {
	return shared.NewDate(2026, time.May, d)
}

func newHabit(t *testing.T, difficulty Difficulty) *Habit {
	t.Helper()
	h, err := NewHabit(NewHabitParams{ID: "h1", UserID: "u1", Title: "Read", Difficulty: difficulty, Now: now})
	require.NoError(t, err)
	return h
}

func TestCalculateXP(t *testing.T) {
	tests := []struct {
		name       string
		difficulty Difficulty
		streak     int
		want       int64
	}{
		{"easy first day", DifficultyEasy, 1, 10},
		{"medium first day", DifficultyMedium, 1, 15},
		{"hard streak 20", DifficultyHard, 20, 22},
		{"medium streak 10", DifficultyMedium, 10, 15},
		{"medium streak 30", DifficultyMedium, 30, 17},
		{"hard capped bonus", DifficultyHard, 500, 30},
		{"easy streak 99", DifficultyEasy, 99, 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateXP(DefaultBaseXP, tt.difficulty, tt.streak))
		})
	}

	assert.Equal(t, 0.10, StreakBonus(20))
	assert.Equal(t, 0.5, StreakBonus(1000))
	assert.Equal(t, int64(0), CalculateXP(0, DifficultyHard, 5))
}

func TestParseDifficulty(t *testing.T) {
	d, err := ParseDifficulty("")
	require.NoError(t, err)
	assert.Equal(t, DifficultyMedium, d)

	d, err = ParseDifficulty(" HARD ")
	require.NoError(t, err)
	assert.Equal(t, DifficultyHard, d)

	_, err = ParseDifficulty("extreme")
	assert.True(t, shared.IsValidation(err))
}

func TestComplete_FirstConsecutiveAndReset(t *testing.T) {
	h := newHabit(t, DifficultyEasy)
	assert.Equal(t, StateNoHistory, h.State(day(1)))

	out, err := h.Complete(day(1), DefaultRules(), now)
	require.NoError(t, err)
	assert.Equal(t, TransitionFirst, out.Transition)
	assert.Equal(t, 1, h.Streak)

	out, err = h.Complete(day(2), DefaultRules(), now)
	require.NoError(t, err)
	assert.Equal(t, TransitionContinued, out.Transition)
	assert.Equal(t, 2, h.Streak)
	assert.Equal(t, 2, h.BestStreak)

	assert.Equal(t, StateBroken, h.State(day(5)))
	out, err = h.Complete(day(5), DefaultRules(), now)
	require.NoError(t, err)
	assert.Equal(t, TransitionReset, out.Transition)
	assert.Equal(t, 3, out.Gap)
	assert.Equal(t, 1, h.Streak)
	assert.Equal(t, 2, h.BestStreak)
	assert.Equal(t, 3, h.TotalCompletions)
	assert.NoError(t, h.Validate())
}

func TestComplete_SameDayIsNoOp(t *testing.T) {
	h := newHabit(t, DifficultyMedium)
	_, err := h.Complete(day(1), DefaultRules(), now)
	require.NoError(t, err)

	before := *h
	_, err = h.Complete(day(1), DefaultRules(), now)
	assert.ErrorIs(t, err, shared.ErrAlreadyCompletedToday)
	assert.Equal(t, before, *h)
}

func TestComplete_RejectsPastDate(t *testing.T) {
	h := newHabit(t, DifficultyMedium)
	_, err := h.Complete(day(5), DefaultRules(), now)
	require.NoError(t, err)

	_, err = h.Complete(day(3), DefaultRules(), now)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, 1, h.TotalCompletions)
}

func TestComplete_Milestones(t *testing.T) {
	h := newHabit(t, DifficultyEasy)
	h.Streak, h.BestStreak, h.LastCompleted = 6, 6, day(1)

	out, err := h.Complete(day(2), DefaultRules(), now)
	require.NoError(t, err)
	require.NotNil(t, out.Milestone)
	assert.Equal(t, int64(25), out.Milestone.Bonus)
	assert.Equal(t, "weekly_streak_bonus", out.Milestone.Reason)

	out, err = h.Complete(day(3), DefaultRules(), now)
	require.NoError(t, err)
	assert.Nil(t, out.Milestone)
}

func TestComplete_ExtraLifeOneShot(t *testing.T) {
	h := newHabit(t, DifficultyEasy)
	h.Streak, h.BestStreak, h.LastCompleted = 99, 99, day(1)

	out, err := h.Complete(day(2), DefaultRules(), now)
	require.NoError(t, err)
	assert.Equal(t, 100, out.NewStreak)
	assert.True(t, out.ExtraLifeEarned)
	assert.True(t, h.ExtraLifeGranted)

	// Повторное достижение 100 на той же привычке жизнь не даёт.
	h.Streak, h.LastCompleted = 99, day(10)
	out, err = h.Complete(day(11), DefaultRules(), now)
	require.NoError(t, err)
	assert.False(t, out.ExtraLifeEarned)
}

func TestRedeem(t *testing.T) {
	h := newHabit(t, DifficultyEasy)
	h.Streak, h.BestStreak, h.TotalCompletions, h.LastCompleted = 12, 12, 12, day(1)

	_, err := h.Redeem(0, shared.Date{}, day(4), now)
	assert.ErrorIs(t, err, shared.ErrNoExtraLivesAvailable)
	assert.False(t, h.UsedExtraLife)

	restored, err := h.Redeem(1, shared.Date{}, day(4), now)
	require.NoError(t, err)
	assert.Equal(t, day(3), restored)
	assert.True(t, h.UsedExtraLife)
	assert.Equal(t, 12, h.Streak, "redemption does not advance the streak")

	_, err = h.Redeem(1, shared.Date{}, day(4), now)
	assert.ErrorIs(t, err, shared.ErrAlreadyRedeemed)

	out, err := h.Complete(day(4), DefaultRules(), now)
	require.NoError(t, err)
	assert.Equal(t, TransitionRedeemed, out.Transition)
	assert.Equal(t, 13, h.Streak)
	assert.False(t, h.UsedExtraLife)
	assert.True(t, h.ExtraLifeDate.IsZero())
}

func TestRedeem_RequiresBrokenStreak(t *testing.T) {
	h := newHabit(t, DifficultyEasy)
	_, err := h.Redeem(3, shared.Date{}, day(4), now)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	h.LastCompleted, h.Streak, h.BestStreak = day(3), 1, 1
	_, err = h.Redeem(3, shared.Date{}, day(4), now)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	h.LastCompleted = day(1)
	_, err = h.Redeem(3, day(1), day(4), now)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestCheckMissed(t *testing.T) {
	a := newHabit(t, DifficultyEasy)
	a.LastCompleted, a.Streak, a.BestStreak = day(1), 5, 5

	b := newHabit(t, DifficultyEasy)
	b.ID, b.LastCompleted, b.Streak, b.BestStreak = "h2", day(9), 3, 3

	c := newHabit(t, DifficultyEasy)
	c.ID = "h3"

	reports := CheckMissed([]*Habit{a, b, c}, 2, day(10))
	require.Len(t, reports, 1)
	assert.Equal(t, "h1", reports[0].HabitID)
	assert.Equal(t, 8, reports[0].DaysMissed)
	assert.Equal(t, 5, reports[0].CurrentStreak)
	assert.True(t, reports[0].CanRedeem)

	reports = CheckMissed([]*Habit{a}, 0, day(10))
	require.Len(t, reports, 1)
	assert.False(t, reports[0].CanRedeem)

	a.UsedExtraLife = true
	reports = CheckMissed([]*Habit{a}, 2, day(10))
	require.Len(t, reports, 1)
	assert.True(t, reports[0].AlreadyRedeemed)
	assert.False(t, reports[0].CanRedeem)
}

func TestMarkMissed(t *testing.T) {
	h := newHabit(t, DifficultyEasy)
	h.LastCompleted, h.Streak, h.BestStreak = day(1), 5, 5

	assert.True(t, h.MarkMissed(day(5), now))
	assert.Equal(t, 3, h.MissedDays)
	assert.False(t, h.MarkMissed(day(5), now))
}
