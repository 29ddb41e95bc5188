// Package eventhandler содержит обработчики доменных событий.
// Обработчики обновляют проекции (рейтинги) по событиям прогресса
// и никогда не меняют сам прогресс.
package eventhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/habituate/progression-engine/internal/domain/leaderboard"
	"github.com/habituate/progression-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS CHANGED HANDLER
// Переносит новые значения XP пользователей и кланов в рейтинги.
// ═══════════════════════════════════════════════════════════════════════════

// OnProgressChangedHandler обновляет рейтинги по событиям XP.
type OnProgressChangedHandler struct {
	ranking leaderboard.Ranking
	logger  *slog.Logger
	config  ProgressChangedConfig
}

// ProgressChangedConfig содержит конфигурацию обработчика.
type ProgressChangedConfig struct {
	// WriteTimeout - ограничение на одну запись в рейтинг.
	WriteTimeout time.Duration
}

// DefaultProgressChangedConfig возвращает конфигурацию по умолчанию.
func DefaultProgressChangedConfig() ProgressChangedConfig {
	return ProgressChangedConfig{WriteTimeout: 2 * time.Second}
}

// NewOnProgressChangedHandler создаёт обработчик.
func NewOnProgressChangedHandler(ranking leaderboard.Ranking, logger *slog.Logger, config ProgressChangedConfig) *OnProgressChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultProgressChangedConfig().WriteTimeout
	}
	return &OnProgressChangedHandler{
		ranking: ranking,
		logger:  logger.With("handler", "on_progress_changed"),
		config:  config,
	}
}

// Register подписывает обработчик на события XP.
func (h *OnProgressChangedHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{shared.EventXPAwarded, shared.EventClanXPContributed} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// Handle обрабатывает событие.
// Реализует интерфейс shared.EventHandler.
func (h *OnProgressChangedHandler) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.WriteTimeout)
	defer cancel()

	switch e := event.(type) {
	case shared.XPAwardedEvent:
		return h.set(ctx, leaderboard.BoardUsers, e.UserID, e.NewXP)
	case shared.ClanXPContributedEvent:
		return h.set(ctx, leaderboard.BoardClans, e.ClanID, e.ClanTotalXP)
	}

	// События от других экземпляров приходят без конкретного типа.
	p := event.Payload()
	switch event.EventType() {
	case shared.EventXPAwarded:
		return h.setFromPayload(ctx, leaderboard.BoardUsers, p, "user_id", "new_xp")
	case shared.EventClanXPContributed:
		return h.setFromPayload(ctx, leaderboard.BoardClans, p, "clan_id", "clan_total_xp")
	}

	h.logger.Debug("ignoring event", "event_type", event.EventType())
	return nil
}

func (h *OnProgressChangedHandler) setFromPayload(ctx context.Context, board leaderboard.Board, p map[string]interface{}, idKey, scoreKey string) error {
	id, _ := p[idKey].(string)
	score, ok := payloadInt(p[scoreKey])
	if id == "" || !ok {
		h.logger.Warn("malformed event payload", "board", board, "payload", p)
		return nil
	}
	return h.set(ctx, board, id, score)
}

// payloadInt читает целое из полезной нагрузки: исходное значение,
// json.Number или float64 после декодирования JSON.
func payloadInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func (h *OnProgressChangedHandler) set(ctx context.Context, board leaderboard.Board, id string, score int64) error {
	if err := h.ranking.SetScore(ctx, board, id, score); err != nil {
		h.logger.Error("failed to update leaderboard",
			"board", board,
			"id", id,
			"score", score,
			"error", err,
		)
		return fmt.Errorf("update %s leaderboard: %w", board, err)
	}
	return nil
}
