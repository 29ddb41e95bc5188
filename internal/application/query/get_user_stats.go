package query

import (
	"context"
	"fmt"
	"time"

	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/leveling"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER STATS QUERY
// Сводка прогресса пользователя: XP, уровень, жизни, клан, значки, серии.
// ══════════════════════════════════════════════════════════════════════════════

// GetUserStatsQuery содержит параметры запроса.
type GetUserStatsQuery struct {
	// UserID - пользователь.
	UserID string
}

// UserStatsDTO - сводка прогресса пользователя.
type UserStatsDTO struct {
	// UserID - пользователь.
	UserID string `json:"user_id"`

	// XP - текущий XP.
	XP int64 `json:"xp"`

	// Level - уровень, производный от XP.
	Level int `json:"level"`

	// Progress - прогресс внутри уровня.
	Progress leveling.Progress `json:"progress"`

	// TotalPoints - весь когда-либо начисленный XP.
	TotalPoints int64 `json:"total_points"`

	// ExtraLives - доступные дополнительные жизни.
	ExtraLives int `json:"extra_lives"`

	// ClanID - клан пользователя.
	ClanID string `json:"clan_id,omitempty"`

	// ClanContribution - вклад в XP клана.
	ClanContribution int64 `json:"clan_contribution"`

	// BadgesEarned - количество полученных значков.
	BadgesEarned int `json:"badges_earned"`

	// HabitCount - количество привычек.
	HabitCount int `json:"habit_count"`

	// TotalCompletions - выполнения по всем привычкам.
	TotalCompletions int `json:"total_completions"`

	// CurrentStreak - лучшая из текущих серий.
	CurrentStreak int `json:"current_streak"`

	// LongestStreak - лучшая серия за всё время.
	LongestStreak int `json:"longest_streak"`

	// GeneratedAt - время формирования ответа.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetUserStatsHandler обрабатывает запрос сводки.
type GetUserStatsHandler struct {
	users  user.Repository
	habits habit.Repository
	clans  clan.Repository
	badges badge.Repository
	clock  Clock
}

// NewGetUserStatsHandler создаёт обработчик.
func NewGetUserStatsHandler(users user.Repository, habits habit.Repository, clans clan.Repository, badges badge.Repository, clock Clock) *GetUserStatsHandler {
	return &GetUserStatsHandler{
		users:  users,
		habits: habits,
		clans:  clans,
		badges: badges,
		clock:  clockOrDefault(clock),
	}
}

// Handle выполняет запрос.
func (h *GetUserStatsHandler) Handle(ctx context.Context, q GetUserStatsQuery) (*UserStatsDTO, error) {
	p, err := loadProfile(ctx, "get_user_stats", h.users, h.habits, h.clans, q.UserID)
	if err != nil {
		return nil, err
	}

	earned, err := h.badges.ListEarned(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_user_stats: failed to list badges: %w", err)
	}

	u := p.user
	dto := &UserStatsDTO{
		UserID:       u.ID,
		XP:           u.XP,
		Level:        u.Level,
		Progress:     u.LevelProgress(),
		TotalPoints:  u.TotalPoints,
		ExtraLives:   u.ExtraLives,
		ClanID:       u.ClanID,
		BadgesEarned: len(earned),
		HabitCount:   len(p.habits),
		GeneratedAt:  h.clock().UTC(),
	}
	if p.membership != nil {
		dto.ClanContribution = p.membership.XPContributed
	}

	for _, hb := range p.habits {
		dto.TotalCompletions += hb.TotalCompletions
		if hb.Streak > dto.CurrentStreak {
			dto.CurrentStreak = hb.Streak
		}
		if hb.BestStreak > dto.LongestStreak {
			dto.LongestStreak = hb.BestStreak
		}
	}

	return dto, nil
}
