package quest

import (
	"fmt"
	"time"

	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/shared"
)

// Status - состояние задания пользователя.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

// DayState - снимок привычек пользователя на день.
type DayState struct {
	Habits         int
	CompletedToday int

	// LiveStreaks - привычки с непрерванной серией, KeptStreaks - те из них,
	// что уже выполнены сегодня.
	LiveStreaks int
	KeptStreaks int
}

// DayStateOf считает снимок по привычкам на дату today.
func DayStateOf(habits []*habit.Habit, today shared.Date) DayState {
	var s DayState
	for _, h := range habits {
		s.Habits++
		done := h.CompletedOn(today)
		if done {
			s.CompletedToday++
		}
		if h.Streak > 0 && h.State(today) == habit.StateActive {
			s.LiveStreaks++
			if done {
				s.KeptStreaks++
			}
		}
	}
	return s
}

// AllComplete - все привычки выполнены сегодня.
func (s DayState) AllComplete() bool {
	return s.Habits > 0 && s.CompletedToday == s.Habits
}

// StreaksKept - все живые серии продлены сегодня.
func (s DayState) StreaksKept() bool {
	return s.LiveStreaks > 0 && s.KeptStreaks == s.LiveStreaks
}

// Activity - приращения показателей от одного действия пользователя.
type Activity struct {
	Completions        int
	MorningCompletions int
	ClanXP             int64

	// Day - снимок привычек; nil, если действие не касается привычек.
	Day *DayState
}

// IsZero сообщает, что действие ничего не меняет.
func (a Activity) IsZero() bool {
	return a.Completions == 0 && a.MorningCompletions == 0 && a.ClanXP == 0 && a.Day == nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USER QUEST
// ══════════════════════════════════════════════════════════════════════════════

// UserQuest - задание каталога, выданное пользователю на период.
// Тройка (UserID, QuestID, PeriodStart) уникальна.
type UserQuest struct {
	ID      string
	UserID  string
	QuestID string
	Type    Type

	// PeriodStart - первый день периода; задание истекает после PeriodEnd.
	PeriodStart shared.Date

	Status   Status
	Progress int

	// Requirement и XPReward копируются из каталога при выдаче.
	Requirement int
	XPReward    int64

	CompletedAt time.Time
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Assign выдаёт задание def пользователю на период, содержащий today.
func Assign(id, userID string, def Definition, today shared.Date, now time.Time) (*UserQuest, error) {
	if err := shared.ValidateID("quest", "user id", userID); err != nil {
		return nil, err
	}
	if _, ok := Lookup(def.ID); !ok {
		return nil, fmt.Errorf("assign %q: %w", def.ID, shared.ErrUnknownQuest)
	}
	return &UserQuest{
		ID:          id,
		UserID:      userID,
		QuestID:     def.ID,
		Type:        def.Type,
		PeriodStart: PeriodStart(def.Type, today),
		Status:      StatusActive,
		Requirement: def.Requirement,
		XPReward:    def.XPReward,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// PeriodEnd возвращает последний день периода.
func (q *UserQuest) PeriodEnd() shared.Date {
	return PeriodEnd(q.Type, q.PeriodStart)
}

// IsActive сообщает, что задание ещё можно продвигать.
func (q *UserQuest) IsActive() bool {
	return q.Status == StatusActive
}

// Covers сообщает, относится ли day к периоду задания.
func (q *UserQuest) Covers(day shared.Date) bool {
	return !day.Before(q.PeriodStart) && !day.After(q.PeriodEnd())
}

// Expire закрывает активное задание, чей период закончился до today.
func (q *UserQuest) Expire(today shared.Date, now time.Time) bool {
	if !q.IsActive() || !today.After(q.PeriodEnd()) {
		return false
	}
	q.Status = StatusExpired
	q.UpdatedAt = now
	return true
}

// Apply засчитывает действие по критерию def. Возвращает true, если
// прогресс изменился. Прогресс не превышает Requirement.
func (q *UserQuest) Apply(def Definition, a Activity, now time.Time) bool {
	if !q.IsActive() {
		return false
	}
	next := q.Progress
	switch def.Criterion {
	case CriterionCompletions:
		next += a.Completions
	case CriterionMorningCompletions:
		next += a.MorningCompletions
	case CriterionClanXP:
		next += int(a.ClanXP)
	case CriterionAllHabitsComplete:
		if a.Day != nil && a.Day.AllComplete() {
			next = q.Requirement
		}
	case CriterionMaintainStreaks:
		if a.Day != nil && a.Day.StreaksKept() {
			next = q.Requirement
		}
	}
	return q.set(next, now)
}

// SetProgress задаёт прогресс явно. Меньшее значение игнорируется:
// прогресс только растёт.
func (q *UserQuest) SetProgress(value int, now time.Time) (bool, error) {
	if value < 0 {
		return false, fmt.Errorf("quest progress %d: %w", value, shared.ErrNegativeValue)
	}
	if !q.IsActive() {
		return false, shared.ErrQuestClosed
	}
	return q.set(value, now), nil
}

func (q *UserQuest) set(value int, now time.Time) bool {
	if value > q.Requirement {
		value = q.Requirement
	}
	if value <= q.Progress {
		return false
	}
	q.Progress = value
	q.UpdatedAt = now
	return true
}

// GoalReached сообщает, что активное задание можно закрывать с наградой.
func (q *UserQuest) GoalReached() bool {
	return q.IsActive() && q.Progress >= q.Requirement
}

// MarkCompleted закрывает задание. Награду начисляет вызывающий.
func (q *UserQuest) MarkCompleted(now time.Time) {
	q.Status = StatusCompleted
	q.CompletedAt = now
	q.UpdatedAt = now
}

// Clone возвращает независимую копию.
func (q *UserQuest) Clone() *UserQuest {
	c := *q
	return &c
}
