package habit

import (
	"time"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXTRA LIFE LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// MissedDayReport - отчёт о пропуске по одной привычке.
type MissedDayReport struct {
	// HabitID - привычка с пропуском.
	HabitID string `json:"habit_id"`

	// Title - название привычки.
	Title string `json:"habit_title"`

	// LastCompleted - дата последнего выполнения.
	LastCompleted shared.Date `json:"last_completed"`

	// DaysMissed - количество пропущенных дней.
	DaysMissed int `json:"days_missed"`

	// CurrentStreak - серия, которая будет потеряна без искупления.
	CurrentStreak int `json:"current_streak"`

	// AlreadyRedeemed - искупление уже активировано.
	AlreadyRedeemed bool `json:"already_redeemed"`

	// CanRedeem - есть жизни и искупление ещё не активировано.
	CanRedeem bool `json:"can_use_extra_life"`

	// ExtraLivesAvailable - жизней у пользователя.
	ExtraLivesAvailable int `json:"extra_lives_available"`
}

// CheckMissed возвращает отчёт, если между последним выполнением и today
// пропущен хотя бы один день.
func (h *Habit) CheckMissed(today shared.Date, extraLives int) (MissedDayReport, bool) {
	gap, ok := h.Gap(today)
	if !ok || gap < 2 {
		return MissedDayReport{}, false
	}

	return MissedDayReport{
		HabitID:             h.ID,
		Title:               h.Title,
		LastCompleted:       h.LastCompleted,
		DaysMissed:          gap - 1,
		CurrentStreak:       h.Streak,
		AlreadyRedeemed:     h.UsedExtraLife,
		CanRedeem:           extraLives > 0 && !h.UsedExtraLife,
		ExtraLivesAvailable: extraLives,
	}, true
}

// CheckMissed собирает отчёты по всем привычкам пользователя.
func CheckMissed(habits []*Habit, extraLives int, today shared.Date) []MissedDayReport {
	reports := make([]MissedDayReport, 0)
	for _, h := range habits {
		if r, ok := h.CheckMissed(today, extraLives); ok {
			reports = append(reports, r)
		}
	}
	return reports
}

// MarkMissed фиксирует пропущенные дни.
// Возвращает true, если значение изменилось.
func (h *Habit) MarkMissed(today shared.Date, now time.Time) bool {
	missed := 0
	if gap, ok := h.Gap(today); ok && gap >= 2 && !h.UsedExtraLife {
		missed = gap - 1
	}
	if missed == h.MissedDays {
		return false
	}
	h.MissedDays = missed
	h.UpdatedAt = now
	return true
}

// Redeem активирует искупление пропуска: следующее выполнение продолжит
// серию вместо сброса. Сама серия не меняется.
//
// extraLives - текущий запас жизней владельца; списание выполняет вызывающий.
// restore - восстанавливаемая дата; нулевая означает вчерашний день.
func (h *Habit) Redeem(extraLives int, restore, today shared.Date, now time.Time) (shared.Date, error) {
	if extraLives <= 0 {
		return shared.Date{}, shared.ErrNoLivesLeft
	}
	if h.UsedExtraLife {
		return shared.Date{}, shared.ErrHabitRedeemed
	}

	gap, ok := h.Gap(today)
	if !ok || gap < 2 {
		return shared.Date{}, shared.ErrNothingToRedeem
	}

	if restore.IsZero() {
		restore = today.AddDays(-1)
	}
	if !restore.After(h.LastCompleted) || !restore.Before(today) {
		return shared.Date{}, shared.NewDomainError("habit", "Redeem", shared.ErrValueOutOfRange,
			"restore date must fall between the last completion and today")
	}

	h.UsedExtraLife = true
	h.ExtraLifeDate = restore
	h.MissedDays = 0
	h.UpdatedAt = now

	return restore, nil
}
