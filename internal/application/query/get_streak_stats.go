package query

import (
	"context"
	"sort"
	"time"

	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STREAK STATS QUERY
// Статистика серий по всем привычкам пользователя.
// ══════════════════════════════════════════════════════════════════════════════

// GetStreakStatsQuery содержит параметры запроса.
type GetStreakStatsQuery struct {
	// UserID - пользователь.
	UserID string

	// Location - часовой пояс для определения "сегодня" (по умолчанию UTC).
	Location *time.Location
}

// HabitStreakDTO - серия одной привычки.
type HabitStreakDTO struct {
	HabitID          string      `json:"habit_id"`
	Title            string      `json:"title"`
	Difficulty       string      `json:"difficulty"`
	Streak           int         `json:"streak"`
	BestStreak       int         `json:"best_streak"`
	TotalCompletions int         `json:"total_completions"`
	LastCompleted    shared.Date `json:"last_completed"`

	// State - "no_history", "active" или "broken" на сегодня.
	State string `json:"state"`

	// CompletedToday - привычка уже выполнена сегодня.
	CompletedToday bool `json:"completed_today"`

	// ExtraLifePending - искупление активировано и ждёт следующего выполнения.
	ExtraLifePending bool `json:"extra_life_pending"`
}

// StreakStatsDTO - сводка серий.
type StreakStatsDTO struct {
	// UserID - пользователь.
	UserID string `json:"user_id"`

	// TotalStreakDays - сумма текущих серий.
	TotalStreakDays int `json:"total_streak_days"`

	// ActiveHabits - привычки с ненулевой серией.
	ActiveHabits int `json:"active_habits"`

	// LongestStreak - лучшая серия среди привычек.
	LongestStreak int `json:"longest_streak"`

	// ExtraLives - доступные жизни.
	ExtraLives int `json:"extra_lives"`

	// Habits - привычки, отсортированные по текущей серии.
	Habits []HabitStreakDTO `json:"habits"`

	// Today - дата, относительно которой рассчитаны состояния.
	Today shared.Date `json:"today"`
}

// GetStreakStatsHandler обрабатывает запрос статистики серий.
type GetStreakStatsHandler struct {
	users  user.Repository
	habits habit.Repository
	clock  Clock
}

// NewGetStreakStatsHandler создаёт обработчик.
func NewGetStreakStatsHandler(users user.Repository, habits habit.Repository, clock Clock) *GetStreakStatsHandler {
	return &GetStreakStatsHandler{users: users, habits: habits, clock: clockOrDefault(clock)}
}

// Handle выполняет запрос.
func (h *GetStreakStatsHandler) Handle(ctx context.Context, q GetStreakStatsQuery) (*StreakStatsDTO, error) {
	p, err := loadProfile(ctx, "get_streak_stats", h.users, h.habits, nil, q.UserID)
	if err != nil {
		return nil, err
	}

	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	today := shared.DateOf(h.clock(), loc)

	dto := &StreakStatsDTO{
		UserID:     q.UserID,
		ExtraLives: p.user.ExtraLives,
		Habits:     make([]HabitStreakDTO, 0, len(p.habits)),
		Today:      today,
	}

	for _, hb := range p.habits {
		dto.TotalStreakDays += hb.Streak
		if hb.Streak > 0 {
			dto.ActiveHabits++
		}
		if hb.BestStreak > dto.LongestStreak {
			dto.LongestStreak = hb.BestStreak
		}
		dto.Habits = append(dto.Habits, HabitStreakDTO{
			HabitID:          hb.ID,
			Title:            hb.Title,
			Difficulty:       string(hb.Difficulty),
			Streak:           hb.Streak,
			BestStreak:       hb.BestStreak,
			TotalCompletions: hb.TotalCompletions,
			LastCompleted:    hb.LastCompleted,
			State:            string(hb.State(today)),
			CompletedToday:   hb.CompletedOn(today),
			ExtraLifePending: hb.UsedExtraLife,
		})
	}

	sort.SliceStable(dto.Habits, func(i, j int) bool {
		if dto.Habits[i].Streak != dto.Habits[j].Streak {
			return dto.Habits[i].Streak > dto.Habits[j].Streak
		}
		return dto.Habits[i].HabitID < dto.Habits[j].HabitID
	})

	return dto, nil
}
