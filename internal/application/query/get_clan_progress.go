package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habituate/progression-engine/internal/domain/clan"
	"github.com/habituate/progression-engine/internal/domain/leveling"
	"github.com/habituate/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CLAN PROGRESS QUERY
// Прогресс клана и лучшие участники по вкладу.
// ══════════════════════════════════════════════════════════════════════════════

// GetClanProgressQuery содержит параметры запроса.
type GetClanProgressQuery struct {
	// ClanID - клан.
	ClanID string

	// TopN - количество лучших участников (по умолчанию 10, максимум 50).
	TopN int
}

// Validate проверяет корректность параметров запроса.
func (q *GetClanProgressQuery) Validate() error {
	if err := shared.ValidateID("query", "clan_id", q.ClanID); err != nil {
		return err
	}
	if q.TopN < 0 {
		return errors.New("top_n cannot be negative")
	}
	if q.TopN == 0 {
		q.TopN = 10
	}
	if q.TopN > clan.DefaultMaxMembers {
		q.TopN = clan.DefaultMaxMembers
	}
	return nil
}

// ContributorDTO - участник клана и его вклад.
type ContributorDTO struct {
	// Position - место по вкладу, начиная с 1.
	Position int `json:"position"`

	UserID        string    `json:"user_id"`
	Role          string    `json:"role"`
	XPContributed int64     `json:"xp_contributed"`
	JoinedAt      time.Time `json:"joined_at"`

	// SharePercent - доля вклада в TotalXP клана.
	SharePercent float64 `json:"share_percent"`
}

// ClanProgressDTO - прогресс клана.
type ClanProgressDTO struct {
	ClanID      string `json:"clan_id"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	TotalXP     int64  `json:"total_xp"`
	Level       int    `json:"level"`
	MemberCount int    `json:"member_count"`
	MaxMembers  int    `json:"max_members"`

	// Progress - прогресс к следующему уровню клана.
	Progress leveling.Progress `json:"progress"`

	// TopContributors - участники по убыванию вклада.
	TopContributors []ContributorDTO `json:"top_contributors"`

	// LedgerConsistent - вклады участников в сумме дают TotalXP.
	LedgerConsistent bool `json:"ledger_consistent"`
}

// GetClanProgressHandler обрабатывает запрос прогресса клана.
type GetClanProgressHandler struct {
	clans clan.Repository
}

// NewGetClanProgressHandler создаёт обработчик.
func NewGetClanProgressHandler(clans clan.Repository) *GetClanProgressHandler {
	return &GetClanProgressHandler{clans: clans}
}

// Handle выполняет запрос.
func (h *GetClanProgressHandler) Handle(ctx context.Context, q GetClanProgressQuery) (*ClanProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetClanProgress", shared.ErrValidation, err.Error(), err)
	}

	c, err := h.clans.GetByID(ctx, q.ClanID)
	if err != nil {
		return nil, fmt.Errorf("get_clan_progress: failed to get clan: %w", err)
	}
	c.Reconcile()

	members, err := h.clans.ListMembers(ctx, q.ClanID)
	if err != nil {
		return nil, fmt.Errorf("get_clan_progress: failed to list members: %w", err)
	}

	dto := &ClanProgressDTO{
		ClanID:           c.ID,
		Name:             c.Name,
		Icon:             c.Icon,
		TotalXP:          c.TotalXP,
		Level:            c.Level,
		MemberCount:      c.MemberCount,
		MaxMembers:       c.MaxMembers,
		Progress:         c.LevelProgress(),
		LedgerConsistent: c.VerifyLedger(members) == nil,
	}

	top := clan.TopContributors(members, q.TopN)
	dto.TopContributors = make([]ContributorDTO, len(top))
	for i, m := range top {
		dto.TopContributors[i] = ContributorDTO{
			Position:      i + 1,
			UserID:        m.UserID,
			Role:          string(m.Role),
			XPContributed: m.XPContributed,
			JoinedAt:      m.JoinedAt,
			SharePercent:  sharePercent(m.XPContributed, c.TotalXP),
		}
	}

	return dto, nil
}

// sharePercent возвращает долю part в total с точностью 0.01.
func sharePercent(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(part) / float64(total) * 100
	return float64(int64(pct*100+0.5)) / 100
}
