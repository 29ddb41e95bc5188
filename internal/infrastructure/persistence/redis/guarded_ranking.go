package redis

import (
	"context"

	"github.com/habituate/progression-engine/internal/domain/leaderboard"
	"github.com/habituate/progression-engine/pkg/circuitbreaker"
)

// GuardedRanking runs every call to the wrapped ranking through a circuit
// breaker. While the breaker is open calls fail with
// circuitbreaker.ErrCircuitOpen without touching Redis.
type GuardedRanking struct {
	inner leaderboard.Ranking
	cb    *circuitbreaker.CircuitBreaker
}

var _ leaderboard.Ranking = (*GuardedRanking)(nil)

// NewGuardedRanking wraps inner with cb.
func NewGuardedRanking(inner leaderboard.Ranking, cb *circuitbreaker.CircuitBreaker) *GuardedRanking {
	return &GuardedRanking{inner: inner, cb: cb}
}

func (g *GuardedRanking) SetScore(ctx context.Context, board leaderboard.Board, id string, score int64) error {
	return g.cb.Execute(ctx, func(ctx context.Context) error {
		return g.inner.SetScore(ctx, board, id, score)
	})
}

func (g *GuardedRanking) Top(ctx context.Context, board leaderboard.Board, offset, limit int) ([]leaderboard.Entry, error) {
	var out []leaderboard.Entry
	err := g.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Top(ctx, board, offset, limit)
		return err
	})
	return out, err
}

func (g *GuardedRanking) Rank(ctx context.Context, board leaderboard.Board, id string) (leaderboard.Entry, error) {
	var out leaderboard.Entry
	err := g.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Rank(ctx, board, id)
		return err
	})
	return out, err
}

func (g *GuardedRanking) Count(ctx context.Context, board leaderboard.Board) (int, error) {
	var n int
	err := g.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		n, err = g.inner.Count(ctx, board)
		return err
	})
	return n, err
}

func (g *GuardedRanking) Replace(ctx context.Context, board leaderboard.Board, scores map[string]int64) error {
	return g.cb.Execute(ctx, func(ctx context.Context) error {
		return g.inner.Replace(ctx, board, scores)
	})
}
