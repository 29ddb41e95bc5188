// Package quest содержит фиксированный каталог ежедневных и еженедельных
// заданий и правила продвижения по ним. Награда за задание начисляется
// через обычный каскад XP.
package quest

import (
	"time"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Type - периодичность задания.
type Type string

const (
	TypeDaily  Type = "daily"
	TypeWeekly Type = "weekly"
)

// Criterion - показатель, по которому засчитывается прогресс.
type Criterion string

const (
	// CriterionCompletions - выполнения привычек за период.
	CriterionCompletions Criterion = "completions"

	// CriterionMorningCompletions - выполнения до полудня.
	CriterionMorningCompletions Criterion = "morning_completions"

	// CriterionAllHabitsComplete - все привычки выполнены сегодня.
	CriterionAllHabitsComplete Criterion = "all_habits_complete"

	// CriterionMaintainStreaks - все живые серии продлены сегодня.
	CriterionMaintainStreaks Criterion = "maintain_streaks"

	// CriterionClanXP - XP, переданный клану за период.
	CriterionClanXP Criterion = "clan_xp"
)

// MorningCutoff - час, до которого выполнение считается утренним.
const MorningCutoff = 12

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Definition - неизменяемая запись каталога.
type Definition struct {
	ID          string
	Title       string
	Description string
	Type        Type
	Criterion   Criterion

	// Requirement - значение показателя, при котором задание выполнено.
	Requirement int

	// XPReward - награда, начисляемая через каскад XP.
	XPReward int64
}

var daily = []Definition{
	{ID: "morning-momentum", Title: "Morning Momentum", Description: "Complete 3 habits before noon", Type: TypeDaily, Criterion: CriterionMorningCompletions, Requirement: 3, XPReward: 50},
	{ID: "perfect-day", Title: "Perfect Day", Description: "Complete all your habits today", Type: TypeDaily, Criterion: CriterionAllHabitsComplete, Requirement: 1, XPReward: 75},
	{ID: "streak-keeper", Title: "Streak Keeper", Description: "Maintain all your streaks today", Type: TypeDaily, Criterion: CriterionMaintainStreaks, Requirement: 1, XPReward: 30},
}

var weekly = []Definition{
	{ID: "weekly-warrior", Title: "Weekly Warrior", Description: "Complete 20 habits this week", Type: TypeWeekly, Criterion: CriterionCompletions, Requirement: 20, XPReward: 200},
	{ID: "clan-hero", Title: "Clan Hero", Description: "Contribute 500 XP to your clan this week", Type: TypeWeekly, Criterion: CriterionClanXP, Requirement: 500, XPReward: 150},
}

// DailyQuests возвращает копию ежедневной части каталога.
func DailyQuests() []Definition {
	return append([]Definition(nil), daily...)
}

// WeeklyQuests возвращает копию еженедельной части каталога.
func WeeklyQuests() []Definition {
	return append([]Definition(nil), weekly...)
}

// Catalog возвращает весь каталог: сначала ежедневные задания.
func Catalog() []Definition {
	return append(DailyQuests(), weekly...)
}

// Lookup ищет определение по ID.
func Lookup(id string) (Definition, bool) {
	for _, d := range Catalog() {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// PeriodStart возвращает первый день периода, в который попадает day:
// сам день для ежедневных заданий и понедельник для еженедельных.
func PeriodStart(t Type, day shared.Date) shared.Date {
	if t != TypeWeekly {
		return day
	}
	offset := (int(day.Time().Weekday()) + 6) % 7
	return day.AddDays(-offset)
}

// PeriodEnd возвращает последний день периода, начатого в start.
func PeriodEnd(t Type, start shared.Date) shared.Date {
	if t == TypeWeekly {
		return start.AddDays(6)
	}
	return start
}

// IsMorning сообщает, засчитывается ли выполнение в at как утреннее.
func IsMorning(at time.Time, loc *time.Location) bool {
	if loc != nil {
		at = at.In(loc)
	}
	return at.Hour() < MorningCutoff
}
