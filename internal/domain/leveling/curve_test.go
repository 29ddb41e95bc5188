package leveling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCurve_LevelFromXP(t *testing.T) {
	tests := []struct {
		xp    int64
		level int
	}{
		{-50, 1},
		{0, 1},
		{199, 1},
		{200, 2},
		{399, 2},
		{400, 3},
		{49999, 19},
		{50000, 20},
		{59999, 20},
		{60000, 21},
		{150000, 30},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.level, User.LevelFromXP(tt.xp), "xp=%d", tt.xp)
	}
}

func TestCurve_RoundTripTabulatedLevels(t *testing.T) {
	for _, c := range []*Curve{User, Clan} {
		for level := 1; level <= c.MaxTabulatedLevel()+5; level++ {
			assert.Equal(t, level, c.LevelFromXP(c.XPForLevel(level)), "level=%d", level)
		}
	}
}

func TestCurve_Monotonic(t *testing.T) {
	prev := 0
	for xp := int64(0); xp <= 80000; xp += 37 {
		l := User.LevelFromXP(xp)
		require.GreaterOrEqual(t, l, prev, "xp=%d", xp)
		prev = l
	}
}

func TestCurve_XPForLevelExtrapolates(t *testing.T) {
	assert.Equal(t, int64(0), User.XPForLevel(0))
	assert.Equal(t, int64(0), User.XPForLevel(1))
	assert.Equal(t, int64(200), User.XPForLevel(2))
	assert.Equal(t, int64(50000), User.XPForLevel(20))
	assert.Equal(t, int64(60000), User.XPForLevel(21))
	assert.Equal(t, int64(80000), User.XPForLevel(23))

	assert.Equal(t, int64(125000), Clan.XPForLevel(20))
	assert.Equal(t, int64(150000), Clan.XPForLevel(21))
	assert.Equal(t, int64(25000), Clan.Gap())
}

func TestCurve_Progress(t *testing.T) {
	p := User.Progress(300)
	assert.Equal(t, 2, p.CurrentLevel)
	assert.Equal(t, 3, p.NextLevel)
	assert.Equal(t, int64(100), p.XPIntoLevel)
	assert.Equal(t, int64(100), p.XPNeededForNext)
	assert.Equal(t, int64(200), p.XPRequiredForLevel)
	assert.Equal(t, 50.0, p.PercentComplete)

	p = User.Progress(0)
	assert.Equal(t, 1, p.CurrentLevel)
	assert.Equal(t, 0.0, p.PercentComplete)

	p = User.Progress(-10)
	assert.Equal(t, int64(0), p.CurrentXP)

	p = User.Progress(133)
	assert.Equal(t, 66.5, p.PercentComplete)
}

func TestCurve_ProgressPercentInRange(t *testing.T) {
	for xp := int64(-100); xp <= 200000; xp += 113 {
		pct := User.Progress(xp).PercentComplete
		require.GreaterOrEqual(t, pct, 0.0, "xp=%d", xp)
		require.LessOrEqual(t, pct, 100.0, "xp=%d", xp)

		pct = Clan.Progress(xp).PercentComplete
		require.GreaterOrEqual(t, pct, 0.0, "xp=%d", xp)
		require.LessOrEqual(t, pct, 100.0, "xp=%d", xp)
	}
}

func TestCurve_LevelsCrossed(t *testing.T) {
	assert.Equal(t, []int{2}, User.LevelsCrossed(199, 200))
	assert.Equal(t, []int{2, 3, 4}, User.LevelsCrossed(0, 850))
	assert.Nil(t, User.LevelsCrossed(200, 399))
	assert.Nil(t, User.LevelsCrossed(500, 100))
}

func TestNewCurve_Validation(t *testing.T) {
	_, err := NewCurve([]int64{0})
	assert.Error(t, err)

	_, err = NewCurve([]int64{10, 20})
	assert.Error(t, err)

	_, err = NewCurve([]int64{0, 100, 100})
	assert.Error(t, err)

	c, err := NewCurve([]int64{0, 10, 30})
	require.NoError(t, err)
	assert.Equal(t, int64(20), c.Gap())
	assert.Equal(t, 4, c.LevelFromXP(50))

	assert.Panics(t, func() { MustCurve(nil) })
}

func TestRewardsFor(t *testing.T) {
	r := RewardsFor(3)
	assert.False(t, r.IsMilestone())
	assert.Empty(t, r.Title)

	r = RewardsFor(5)
	assert.True(t, r.IsMilestone())
	assert.Equal(t, int64(50), r.BonusXP)
	assert.Equal(t, "Level 5 Master", r.BadgeLabel)

	r = RewardsFor(10)
	assert.Equal(t, int64(100), r.BonusXP)
	assert.Equal(t, "Apprentice", r.Title)
	assert.Equal(t, []string{"Custom avatar frames"}, r.Unlocks)

	r = RewardsFor(20)
	assert.Equal(t, "Master", r.Title)
	assert.Equal(t, int64(200), r.BonusXP)
}
