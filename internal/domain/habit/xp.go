package habit

// DefaultBaseXP - базовый XP за одно выполнение.
const DefaultBaseXP int64 = 10

const (
	// streakBonusStep - каждые 10 дней серии дают +5%.
	streakBonusStep = 10
	streakBonusPct  = 5

	// streakBonusCapPct - бонус серии не превышает 50%.
	streakBonusCapPct = 50
)

// StreakBonusPercent возвращает бонус серии в процентах: 5% за каждые
// полные 10 дней, но не более 50%.
func StreakBonusPercent(streak int) int64 {
	if streak <= 0 {
		return 0
	}
	pct := int64(streak/streakBonusStep) * streakBonusPct
	if pct > streakBonusCapPct {
		return streakBonusCapPct
	}
	return pct
}

// StreakBonus возвращает бонус серии как долю (0.10 для 10%).
func StreakBonus(streak int) float64 {
	return float64(StreakBonusPercent(streak)) / 100
}

// CalculateXP считает floor(base * multiplier * (1 + streakBonus)).
// Считается в целых сотых, чтобы не терять единицу на округлении float.
func CalculateXP(base int64, difficulty Difficulty, streak int) int64 {
	if base <= 0 {
		return 0
	}
	num := base * difficulty.multiplierPercent() * (100 + StreakBonusPercent(streak))
	return num / 10000
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK MILESTONES
// ══════════════════════════════════════════════════════════════════════════════

// StreakMilestone - разовый бонус за достижение длины серии.
type StreakMilestone struct {
	Days   int
	Bonus  int64
	Reason string
}

var streakMilestones = []StreakMilestone{
	{Days: 7, Bonus: 25, Reason: "weekly_streak_bonus"},
	{Days: 30, Bonus: 100, Reason: "monthly_streak_bonus"},
	{Days: 100, Bonus: 500, Reason: "century_streak_bonus"},
	{Days: 365, Bonus: 1000, Reason: "yearly_streak_bonus"},
}

// MilestoneFor возвращает веху, если серия ровно равна её длине.
func MilestoneFor(streak int) (StreakMilestone, bool) {
	for _, m := range streakMilestones {
		if m.Days == streak {
			return m, true
		}
	}
	return StreakMilestone{}, false
}

// Milestones возвращает копию таблицы вех.
func Milestones() []StreakMilestone {
	out := make([]StreakMilestone, len(streakMilestones))
	copy(out, streakMilestones)
	return out
}
