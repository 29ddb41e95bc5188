package memory

import (
	"context"
	"sync"

	"github.com/habituate/progression-engine/internal/domain/leaderboard"
)

// Leaderboard is an in-process leaderboard.Ranking. Ordering matches the
// Redis sorted-set implementation.
type Leaderboard struct {
	mu     sync.RWMutex
	boards map[leaderboard.Board]map[string]int64
}

var _ leaderboard.Ranking = (*Leaderboard)(nil)

// NewLeaderboard creates an empty leaderboard.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{boards: make(map[leaderboard.Board]map[string]int64)}
}

// SetScore records the score of id on board.
func (l *Leaderboard) SetScore(ctx context.Context, board leaderboard.Board, id string, score int64) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.boards[board]
	if !ok {
		b = make(map[string]int64)
		l.boards[board] = b
	}
	b[id] = score
	return nil
}

// Top returns limit entries starting at offset.
func (l *Leaderboard) Top(ctx context.Context, board leaderboard.Board, offset, limit int) ([]leaderboard.Entry, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	all := l.sorted(board)
	if offset >= len(all) {
		return []leaderboard.Entry{}, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Rank returns the position of id, or a zero Rank if id is not on the board.
func (l *Leaderboard) Rank(ctx context.Context, board leaderboard.Board, id string) (leaderboard.Entry, error) {
	if err := ctxErr(ctx); err != nil {
		return leaderboard.Entry{}, err
	}
	for _, e := range l.sorted(board) {
		if e.ID == id {
			return e, nil
		}
	}
	return leaderboard.Entry{ID: id}, nil
}

// Count returns the number of members on board.
func (l *Leaderboard) Count(ctx context.Context, board leaderboard.Board) (int, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.boards[board]), nil
}

// Replace swaps the whole board for scores.
func (l *Leaderboard) Replace(ctx context.Context, board leaderboard.Board, scores map[string]int64) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	b := make(map[string]int64, len(scores))
	for id, score := range scores {
		b[id] = score
	}
	l.mu.Lock()
	l.boards[board] = b
	l.mu.Unlock()
	return nil
}

func (l *Leaderboard) sorted(board leaderboard.Board) []leaderboard.Entry {
	l.mu.RLock()
	entries := make([]leaderboard.Entry, 0, len(l.boards[board]))
	for id, score := range l.boards[board] {
		entries = append(entries, leaderboard.Entry{ID: id, Score: score})
	}
	l.mu.RUnlock()
	leaderboard.Sort(entries, 0)
	return entries
}
