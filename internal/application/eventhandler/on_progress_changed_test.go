package eventhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habituate/progression-engine/internal/domain/leaderboard"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/infrastructure/persistence/memory"
)

type failingRanking struct{ leaderboard.Ranking }

func (failingRanking) SetScore(context.Context, leaderboard.Board, string, int64) error {
	return errors.New("redis down")
}

type captureSubscriber struct {
	types []shared.EventType
}

func (c *captureSubscriber) Subscribe(t shared.EventType, _ shared.EventHandler) error {
	c.types = append(c.types, t)
	return nil
}

func (c *captureSubscriber) SubscribeAll(shared.EventHandler) error { return nil }

func TestOnProgressChanged_UpdatesBoards(t *testing.T) {
	ctx := context.Background()
	lb := memory.NewLeaderboard()
	h := NewOnProgressChangedHandler(lb, nil, DefaultProgressChangedConfig())
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, h.Handle(shared.NewXPAwardedEvent("u1", 50, "test", 250, 1, 2, at)))
	require.NoError(t, h.Handle(shared.NewXPAwardedEvent("u2", 10, "test", 10, 1, 1, at)))
	require.NoError(t, h.Handle(shared.NewClanXPContributedEvent("c1", "u1", 50, 750, 50, 2, at)))
	require.NoError(t, h.Handle(shared.NewLevelUpEvent("u1", 2, "", at)))

	e, err := lb.Rank(ctx, leaderboard.BoardUsers, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, e.Rank)
	assert.Equal(t, int64(250), e.Score)

	e, err = lb.Rank(ctx, leaderboard.BoardClans, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(750), e.Score)

	n, err := lb.Count(ctx, leaderboard.BoardUsers)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOnProgressChanged_ReportsWriteFailure(t *testing.T) {
	h := NewOnProgressChangedHandler(failingRanking{}, nil, ProgressChangedConfig{})
	err := h.Handle(shared.NewXPAwardedEvent("u1", 1, "test", 1, 1, 1, time.Now()))
	assert.ErrorContains(t, err, "redis down")
}

func TestOnProgressChanged_Register(t *testing.T) {
	sub := &captureSubscriber{}
	h := NewOnProgressChangedHandler(memory.NewLeaderboard(), nil, DefaultProgressChangedConfig())
	require.NoError(t, h.Register(sub))
	assert.ElementsMatch(t, []shared.EventType{shared.EventXPAwarded, shared.EventClanXPContributed}, sub.types)
}

type remoteEvent struct {
	t    shared.EventType
	data map[string]interface{}
}

func (e remoteEvent) EventType() shared.EventType     { return e.t }
func (e remoteEvent) AggregateID() string             { return "" }
func (e remoteEvent) OccurredAt() time.Time           { return time.Time{} }
func (e remoteEvent) Payload() map[string]interface{} { return e.data }

func TestOnProgressChanged_DecodesRemotePayload(t *testing.T) {
	ctx := context.Background()
	lb := memory.NewLeaderboard()
	h := NewOnProgressChangedHandler(lb, nil, DefaultProgressChangedConfig())

	require.NoError(t, h.Handle(remoteEvent{shared.EventXPAwarded, map[string]interface{}{"user_id": "u9", "new_xp": json.Number("420")}}))
	require.NoError(t, h.Handle(remoteEvent{shared.EventClanXPContributed, map[string]interface{}{"clan_id": "c9", "clan_total_xp": float64(900)}}))
	require.NoError(t, h.Handle(remoteEvent{shared.EventXPAwarded, map[string]interface{}{"user_id": "bad"}}))

	e, err := lb.Rank(ctx, leaderboard.BoardUsers, "u9")
	require.NoError(t, err)
	assert.Equal(t, int64(420), e.Score)

	e, err = lb.Rank(ctx, leaderboard.BoardClans, "c9")
	require.NoError(t, err)
	assert.Equal(t, int64(900), e.Score)

	e, err = lb.Rank(ctx, leaderboard.BoardUsers, "bad")
	require.NoError(t, err)
	assert.Zero(t, e.Rank)
}
