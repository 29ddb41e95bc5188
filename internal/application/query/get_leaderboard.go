package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habituate/progression-engine/internal/domain/leaderboard"
	"github.com/habituate/progression-engine/internal/domain/leveling"
	"github.com/habituate/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Получает страницу рейтинга пользователей или кланов.
// Рейтинг - проекция, обновляемая обработчиком событий прогресса.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса лидерборда.
type GetLeaderboardQuery struct {
	// Board - "users" или "clans" (пустая строка = users).
	Board string

	// Limit - количество записей (по умолчанию 20, максимум 100).
	Limit int

	// Offset - смещение для пагинации.
	Offset int

	// ForID - если задан, в ответ добавляется позиция этого участника.
	ForID string
}

// Validate проверяет корректность параметров запроса.
func (q *GetLeaderboardQuery) Validate() error {
	if _, err := leaderboard.ParseBoard(q.Board); err != nil {
		return err
	}
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		return errors.New("offset cannot be negative")
	}
	return nil
}

// LeaderboardEntryDTO - DTO для записи лидерборда.
type LeaderboardEntryDTO struct {
	// Rank - позиция в рейтинге (начиная с 1).
	Rank int `json:"rank"`

	// ID - пользователь или клан.
	ID string `json:"id"`

	// XP - очки рейтинга.
	XP int64 `json:"xp"`

	// Level - уровень, производный от XP по кривой пользователя или клана.
	Level int `json:"level"`
}

// GetLeaderboardResult содержит результат запроса лидерборда.
type GetLeaderboardResult struct {
	// Board - вид рейтинга.
	Board string `json:"board"`

	// Entries - записи лидерборда.
	Entries []LeaderboardEntryDTO `json:"entries"`

	// TotalCount - общее количество участников.
	TotalCount int `json:"total_count"`

	// Self - позиция участника ForID, nil если не запрошена или участника нет.
	Self *LeaderboardEntryDTO `json:"self,omitempty"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`

	// HasMore - есть ли ещё записи после текущей страницы.
	HasMore bool `json:"has_more"`

	// Page - текущая страница (1-based).
	Page int `json:"page"`

	// PageSize - размер страницы.
	PageSize int `json:"page_size"`
}

// GetLeaderboardHandler обрабатывает запросы на получение лидерборда.
type GetLeaderboardHandler struct {
	ranking leaderboard.Ranking
	clock   Clock
}

// NewGetLeaderboardHandler создаёт новый обработчик запроса лидерборда.
func NewGetLeaderboardHandler(ranking leaderboard.Ranking, clock Clock) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{ranking: ranking, clock: clockOrDefault(clock)}
}

// Handle выполняет запрос на получение лидерборда.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, query GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrValidation, err.Error(), err)
	}
	board, _ := leaderboard.ParseBoard(query.Board)

	entries, err := h.ranking.Top(ctx, board, query.Offset, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: failed to read ranking: %w", err)
	}

	total, err := h.ranking.Count(ctx, board)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: failed to count ranking: %w", err)
	}

	result := &GetLeaderboardResult{
		Board:       board.String(),
		Entries:     make([]LeaderboardEntryDTO, len(entries)),
		TotalCount:  total,
		GeneratedAt: h.clock().UTC(),
		HasMore:     leaderboard.Page{Entries: entries, Total: total, Offset: query.Offset}.HasMore(),
		Page:        query.Offset/query.Limit + 1,
		PageSize:    query.Limit,
	}
	for i, e := range entries {
		result.Entries[i] = toEntryDTO(board, e)
	}

	if query.ForID != "" {
		self, err := h.ranking.Rank(ctx, board, query.ForID)
		if err != nil {
			return nil, fmt.Errorf("get_leaderboard: failed to get rank: %w", err)
		}
		if self.Rank > 0 {
			dto := toEntryDTO(board, self)
			result.Self = &dto
		}
	}

	return result, nil
}

// toEntryDTO конвертирует запись рейтинга в DTO.
func toEntryDTO(board leaderboard.Board, e leaderboard.Entry) LeaderboardEntryDTO {
	curve := leveling.User
	if board == leaderboard.BoardClans {
		curve = leveling.Clan
	}
	return LeaderboardEntryDTO{
		Rank:  e.Rank,
		ID:    e.ID,
		XP:    e.Score,
		Level: curve.LevelFromXP(e.Score),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

// FormatRankEmoji возвращает эмодзи для позиции в рейтинге.
func FormatRankEmoji(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		if rank <= 10 {
			return "🏆"
		}
		return fmt.Sprintf("#%d", rank)
	}
}
