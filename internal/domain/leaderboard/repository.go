package leaderboard

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// RANKING INTERFACE
// Реализации: infrastructure/persistence/redis (sorted sets)
// и infrastructure/persistence/memory.
// ══════════════════════════════════════════════════════════════════════════════

// Ranking хранит очки участников и отвечает на запросы о позициях.
type Ranking interface {
	// SetScore записывает очки участника. Повторная запись заменяет значение.
	SetScore(ctx context.Context, board Board, id string, score int64) error

	// Top возвращает страницу рейтинга с проставленными рангами.
	Top(ctx context.Context, board Board, offset, limit int) ([]Entry, error)

	// Rank возвращает позицию участника.
	// Если участника нет в рейтинге, возвращает Entry с Rank == 0 и nil.
	Rank(ctx context.Context, board Board, id string) (Entry, error)

	// Count возвращает количество участников рейтинга.
	Count(ctx context.Context, board Board) (int, error)

	// Replace атомарно заменяет весь рейтинг. Используется при перестроении
	// проекции из хранилища.
	Replace(ctx context.Context, board Board, scores map[string]int64) error
}
