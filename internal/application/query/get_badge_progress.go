package query

import (
	"context"
	"fmt"
	"time"

	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET BADGE PROGRESS QUERY
// Разбивка каталога значков: полученные, "в процессе" и закрытые.
// ══════════════════════════════════════════════════════════════════════════════

// GetBadgeProgressQuery содержит параметры запроса.
type GetBadgeProgressQuery struct {
	// UserID - пользователь.
	UserID string
}

// BadgeDTO - значок каталога.
type BadgeDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Type        string `json:"type"`
	Rarity      string `json:"rarity"`
	Requirement int64  `json:"requirement"`
	XPReward    int64  `json:"xp_reward"`

	// EarnedAt - время получения, только для полученных.
	EarnedAt *time.Time `json:"earned_at,omitempty"`

	// Current - текущий показатель, только для неполученных.
	Current int64 `json:"current,omitempty"`

	// PercentComplete - прогресс к порогу, только для неполученных.
	PercentComplete float64 `json:"percent_complete,omitempty"`
}

// BadgeProgressDTO - ответ запроса.
type BadgeProgressDTO struct {
	UserID     string     `json:"user_id"`
	Earned     []BadgeDTO `json:"earned"`
	InProgress []BadgeDTO `json:"in_progress"`
	Locked     []BadgeDTO `json:"locked"`

	// TotalBadges - размер каталога.
	TotalBadges int `json:"total_badges"`
}

// GetBadgeProgressHandler обрабатывает запрос прогресса значков.
type GetBadgeProgressHandler struct {
	users  user.Repository
	habits habit.Repository
	clans  clan.Repository
	badges badge.Repository
}

// NewGetBadgeProgressHandler создаёт обработчик.
func NewGetBadgeProgressHandler(users user.Repository, habits habit.Repository, clans clan.Repository, badges badge.Repository) *GetBadgeProgressHandler {
	return &GetBadgeProgressHandler{users: users, habits: habits, clans: clans, badges: badges}
}

// Handle выполняет запрос.
func (h *GetBadgeProgressHandler) Handle(ctx context.Context, q GetBadgeProgressQuery) (*BadgeProgressDTO, error) {
	p, err := loadProfile(ctx, "get_badge_progress", h.users, h.habits, h.clans, q.UserID)
	if err != nil {
		return nil, err
	}

	earned, err := h.badges.ListEarned(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_badge_progress: failed to list badges: %w", err)
	}

	view := badge.BuildProgress(p.snapshot(), badge.NewEarnedSet(earned))

	dto := &BadgeProgressDTO{
		UserID:      q.UserID,
		Earned:      make([]BadgeDTO, 0, len(view.Earned)),
		InProgress:  make([]BadgeDTO, 0, len(view.InProgress)),
		Locked:      make([]BadgeDTO, 0, len(view.Locked)),
		TotalBadges: len(badge.Catalog()),
	}
	for _, e := range view.Earned {
		b := badgeDTO(e.Definition)
		at := e.EarnedAt
		b.EarnedAt = &at
		dto.Earned = append(dto.Earned, b)
	}
	for _, pd := range view.InProgress {
		dto.InProgress = append(dto.InProgress, pendingDTO(pd))
	}
	for _, pd := range view.Locked {
		dto.Locked = append(dto.Locked, pendingDTO(pd))
	}

	return dto, nil
}

func badgeDTO(d badge.Definition) BadgeDTO {
	return BadgeDTO{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
		Type:        string(d.Type),
		Rarity:      string(d.Rarity),
		Requirement: d.Requirement,
		XPReward:    d.XPReward,
	}
}

func pendingDTO(p badge.Pending) BadgeDTO {
	b := badgeDTO(p.Definition)
	b.Current = p.Current
	b.PercentComplete = p.PercentComplete
	return b
}
