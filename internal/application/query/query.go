// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/habituate/progression-engine/internal/domain/badge"
	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/habit"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/domain/user"
)

// Clock возвращает текущее время. Запросы не читают time.Now напрямую,
// чтобы тесты могли фиксировать "сегодня".
type Clock func() time.Time

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE LOADER
// Общая выборка для запросов по одному пользователю.
// ══════════════════════════════════════════════════════════════════════════════

// profile - прогресс пользователя, его привычки и участие в клане.
type profile struct {
	user       *user.Progress
	habits     []*habit.Habit
	membership *clan.Membership
}

// loadProfile читает прогресс без записи. Если сохранённый уровень
// разошёлся с XP, в ответе используется пересчитанное значение.
func loadProfile(ctx context.Context, op string, users user.Repository, habits habit.Repository, clans clan.Repository, userID string) (*profile, error) {
	if err := shared.ValidateID("query", "user_id", userID); err != nil {
		return nil, err
	}

	u, err := users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get user: %w", op, err)
	}
	u.Reconcile()

	list, err := habits.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list habits: %w", op, err)
	}

	p := &profile{user: u, habits: list}
	if u.HasClan() && clans != nil {
		m, err := clans.GetMembership(ctx, u.ClanID, userID)
		switch {
		case err == nil:
			p.membership = m
		case shared.IsNotFound(err):
			// Клан удалён или участие ещё не записано - вклад считается нулевым.
		default:
			return nil, fmt.Errorf("%s: failed to get membership: %w", op, err)
		}
	}
	return p, nil
}

// snapshot собирает показатели для проверки значков.
func (p *profile) snapshot() badge.Snapshot {
	s := badge.Snapshot{Level: p.user.Level, InClan: p.user.HasClan()}
	for _, h := range p.habits {
		if h.Streak > s.MaxStreak {
			s.MaxStreak = h.Streak
		}
		s.TotalCompletions += h.TotalCompletions
	}
	if p.membership != nil {
		s.ClanContribution = p.membership.XPContributed
	}
	return s
}
