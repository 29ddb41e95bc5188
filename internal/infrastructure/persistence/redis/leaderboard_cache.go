package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/habituate/progression-engine/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ErrInvalidBoard is returned for an unknown board.
var ErrInvalidBoard = errors.New("leaderboard_cache: invalid board")

// LeaderboardCache implements leaderboard.Ranking on Redis sorted sets.
//
// Architecture:
//   - Sorted Set "{prefix}leaderboard:{board}" stores id -> score
//
// ZREVRANGE orders equal scores by member descending; leaderboard.Sort does
// the same, so the memory and Redis rankings agree on ties.
type LeaderboardCache struct {
	cache *Cache
}

var _ leaderboard.Ranking = (*LeaderboardCache)(nil)

// NewLeaderboardCache creates a new LeaderboardCache instance.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

func (l *LeaderboardCache) key(board leaderboard.Board) (string, error) {
	if !board.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidBoard, board)
	}
	return l.cache.Key(PrefixLeaderboard, board.String()), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// SetScore updates or adds a single member. O(log N).
func (l *LeaderboardCache) SetScore(ctx context.Context, board leaderboard.Board, id string, score int64) error {
	if id == "" {
		return ErrCacheKeyEmpty
	}
	key, err := l.key(board)
	if err != nil {
		return err
	}
	return l.cache.Client().ZAdd(ctx, key, redis.Z{Score: float64(score), Member: id}).Err()
}

// Replace rebuilds the board in one MULTI/EXEC so readers never observe a
// half-written ranking.
func (l *LeaderboardCache) Replace(ctx context.Context, board leaderboard.Board, scores map[string]int64) error {
	key, err := l.key(board)
	if err != nil {
		return err
	}

	members := make([]redis.Z, 0, len(scores))
	for id, score := range scores {
		if id == "" {
			continue
		}
		members = append(members, redis.Z{Score: float64(score), Member: id})
	}

	pipe := l.cache.Client().TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Top returns limit entries starting at offset. O(log N + M).
func (l *LeaderboardCache) Top(ctx context.Context, board leaderboard.Board, offset, limit int) ([]leaderboard.Entry, error) {
	key, err := l.key(board)
	if err != nil {
		return nil, err
	}
	if offset < 0 || limit <= 0 {
		return []leaderboard.Entry{}, nil
	}

	zs, err := l.cache.Client().ZRevRangeWithScores(ctx, key, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s leaderboard: %w", board, err)
	}

	entries := make([]leaderboard.Entry, 0, len(zs))
	for i, z := range zs {
		entries = append(entries, leaderboard.Entry{
			ID:    memberString(z.Member),
			Score: int64(z.Score),
			Rank:  offset + i + 1,
		})
	}
	return entries, nil
}

// Rank returns the position of id, or a zero Rank if id is not on the board.
func (l *LeaderboardCache) Rank(ctx context.Context, board leaderboard.Board, id string) (leaderboard.Entry, error) {
	key, err := l.key(board)
	if err != nil {
		return leaderboard.Entry{}, err
	}

	pipe := l.cache.Client().Pipeline()
	rankCmd := pipe.ZRevRank(ctx, key, id)
	scoreCmd := pipe.ZScore(ctx, key, id)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return leaderboard.Entry{}, err
	}

	rank, err := rankCmd.Result()
	if errors.Is(err, redis.Nil) {
		return leaderboard.Entry{ID: id}, nil
	}
	if err != nil {
		return leaderboard.Entry{}, err
	}
	score, err := scoreCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return leaderboard.Entry{}, err
	}

	return leaderboard.Entry{ID: id, Score: int64(score), Rank: int(rank) + 1}, nil
}

// Count returns the number of members on board.
func (l *LeaderboardCache) Count(ctx context.Context, board leaderboard.Board) (int, error) {
	key, err := l.key(board)
	if err != nil {
		return 0, err
	}
	n, err := l.cache.Client().ZCard(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func memberString(m interface{}) string {
	switch v := m.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}
