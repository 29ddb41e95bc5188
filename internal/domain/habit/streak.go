package habit

import (
	"time"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// State - состояние серии относительно даты.
type State string

const (
	// StateNoHistory - привычка ни разу не выполнялась.
	StateNoHistory State = "no_history"

	// StateActive - последнее выполнение сегодня или вчера.
	StateActive State = "active"

	// StateBroken - пропущен минимум один день.
	StateBroken State = "broken"
)

// Transition - переход, применённый при выполнении.
type Transition string

const (
	TransitionFirst     Transition = "first"
	TransitionContinued Transition = "continued"
	TransitionRedeemed  Transition = "redeemed"
	TransitionReset     Transition = "reset"
)

// Rules - параметры расчёта выполнения.
type Rules struct {
	// BaseXP - базовый XP за выполнение.
	BaseXP int64

	// ExtraLifeThreshold - длина серии, за которую выдаётся жизнь.
	ExtraLifeThreshold int
}

// DefaultRules возвращает правила по умолчанию.
func DefaultRules() Rules {
	return Rules{BaseXP: DefaultBaseXP, ExtraLifeThreshold: 100}
}

// Gap возвращает количество дней между последним выполнением и today.
// Второе значение false, если выполнений не было.
func (h *Habit) Gap(today shared.Date) (int, bool) {
	if h.LastCompleted.IsZero() {
		return 0, false
	}
	return today.DaysSince(h.LastCompleted), true
}

// State возвращает состояние серии на дату today.
func (h *Habit) State(today shared.Date) State {
	gap, ok := h.Gap(today)
	switch {
	case !ok:
		return StateNoHistory
	case gap <= 1:
		return StateActive
	default:
		return StateBroken
	}
}

// CompletedOn сообщает, выполнена ли привычка в указанный день.
func (h *Habit) CompletedOn(day shared.Date) bool {
	return !h.LastCompleted.IsZero() && h.LastCompleted.Equal(day)
}

// Outcome - результат выполнения привычки.
type Outcome struct {
	// PreviousStreak - серия до выполнения.
	PreviousStreak int

	// NewStreak - серия после выполнения.
	NewStreak int

	// BestStreak - лучшая серия после выполнения.
	BestStreak int

	// Gap - дней с прошлого выполнения (0 для первого).
	Gap int

	// Transition - применённый переход.
	Transition Transition

	// XPEarned - XP за выполнение.
	XPEarned int64

	// Milestone - веха серии, если она достигнута этим выполнением.
	Milestone *StreakMilestone

	// ExtraLifeEarned - этим выполнением заработана дополнительная жизнь.
	ExtraLifeEarned bool
}

// Complete применяет выполнение на дату today.
//
// Повторное выполнение в тот же день возвращает ErrHabitCompletedToday
// без изменений. Пропуск в два и более дня сбрасывает серию на 1, если
// только на привычке не активировано искупление - тогда серия продолжается.
// Флаг искупления снимается любым новым выполнением.
func (h *Habit) Complete(today shared.Date, rules Rules, now time.Time) (Outcome, error) {
	if today.IsZero() {
		return Outcome{}, shared.NewDomainError("habit", "Complete", shared.ErrInvalidInput, "completion date is required")
	}
	if h.CompletedOn(today) {
		return Outcome{}, shared.ErrHabitCompletedToday
	}

	out := Outcome{PreviousStreak: h.Streak}

	gap, hasHistory := h.Gap(today)
	switch {
	case !hasHistory:
		out.NewStreak = 1
		out.Transition = TransitionFirst
	case gap < 0:
		return Outcome{}, shared.NewDomainError("habit", "Complete", shared.ErrInvalidInput, "completion date precedes last completion")
	case gap == 1:
		out.NewStreak = h.Streak + 1
		out.Transition = TransitionContinued
	case h.UsedExtraLife:
		out.NewStreak = h.Streak + 1
		out.Transition = TransitionRedeemed
	default:
		out.NewStreak = 1
		out.Transition = TransitionReset
	}
	out.Gap = gap

	best := h.BestStreak
	if out.NewStreak > best {
		best = out.NewStreak
	}
	out.BestStreak = best

	rules = rules.withDefaults()
	out.XPEarned = CalculateXP(rules.BaseXP, h.Difficulty, out.NewStreak)

	if m, ok := MilestoneFor(out.NewStreak); ok {
		out.Milestone = &m
	}

	if out.NewStreak >= rules.ExtraLifeThreshold && !h.ExtraLifeGranted {
		out.ExtraLifeEarned = true
		h.ExtraLifeGranted = true
	}

	h.Streak = out.NewStreak
	h.BestStreak = best
	h.TotalCompletions++
	h.LastCompleted = today
	h.UsedExtraLife = false
	h.ExtraLifeDate = shared.Date{}
	h.MissedDays = 0
	h.UpdatedAt = now

	return out, nil
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.BaseXP <= 0 {
		r.BaseXP = d.BaseXP
	}
	if r.ExtraLifeThreshold <= 0 {
		r.ExtraLifeThreshold = d.ExtraLifeThreshold
	}
	return r
}
