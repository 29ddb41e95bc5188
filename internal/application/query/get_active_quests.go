package query

import (
	"context"
	"fmt"
	"time"

	"github.com/habituate/progression-engine/internal/domain/quest"
	"github.com/habituate/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACTIVE QUESTS QUERY
// Текущие задания пользователя вместе с описанием из каталога.
// ══════════════════════════════════════════════════════════════════════════════

// GetActiveQuestsQuery содержит параметры запроса.
type GetActiveQuestsQuery struct {
	UserID string

	// Location - часовой пояс для определения "сегодня" (по умолчанию UTC).
	Location *time.Location
}

// QuestDTO - задание пользователя.
type QuestDTO struct {
	ID          string      `json:"id"`
	QuestID     string      `json:"quest_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Type        string      `json:"quest_type"`
	Criterion   string      `json:"requirement_type"`
	Status      string      `json:"status"`
	Progress    int         `json:"progress"`
	Requirement int         `json:"requirement"`
	XPReward    int64       `json:"xp_reward"`
	PeriodStart shared.Date `json:"period_start"`
	ExpiresOn   shared.Date `json:"expires_on"`
}

// ActiveQuestsDTO - активные задания, разделённые по периодичности.
type ActiveQuestsDTO struct {
	UserID string      `json:"user_id"`
	Today  shared.Date `json:"today"`
	Daily  []QuestDTO  `json:"daily"`
	Weekly []QuestDTO  `json:"weekly"`
}

// GetActiveQuestsHandler обрабатывает запрос.
type GetActiveQuestsHandler struct {
	quests quest.Repository
	clock  Clock
}

// NewGetActiveQuestsHandler создаёт обработчик.
func NewGetActiveQuestsHandler(quests quest.Repository, clock Clock) *GetActiveQuestsHandler {
	return &GetActiveQuestsHandler{quests: quests, clock: clockOrDefault(clock)}
}

// Handle возвращает активные задания текущих периодов. Задания прошедших
// периодов, ещё не закрытые командой, не попадают в ответ.
func (h *GetActiveQuestsHandler) Handle(ctx context.Context, q GetActiveQuestsQuery) (*ActiveQuestsDTO, error) {
	if err := shared.ValidateID("query", "user_id", q.UserID); err != nil {
		return nil, err
	}
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	today := shared.DateOf(h.clock(), loc)

	list, err := h.quests.ListByUser(ctx, q.UserID, quest.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("get_active_quests: failed to list quests: %w", err)
	}

	dto := &ActiveQuestsDTO{UserID: q.UserID, Today: today, Daily: []QuestDTO{}, Weekly: []QuestDTO{}}
	for _, uq := range list {
		if !uq.Covers(today) {
			continue
		}
		def, _ := quest.Lookup(uq.QuestID)
		item := QuestDTO{
			ID:          uq.ID,
			QuestID:     uq.QuestID,
			Title:       def.Title,
			Description: def.Description,
			Type:        string(uq.Type),
			Criterion:   string(def.Criterion),
			Status:      string(uq.Status),
			Progress:    uq.Progress,
			Requirement: uq.Requirement,
			XPReward:    uq.XPReward,
			PeriodStart: uq.PeriodStart,
			ExpiresOn:   uq.PeriodEnd(),
		}
		if uq.Type == quest.TypeWeekly {
			dto.Weekly = append(dto.Weekly, item)
		} else {
			dto.Daily = append(dto.Daily, item)
		}
	}
	return dto, nil
}
