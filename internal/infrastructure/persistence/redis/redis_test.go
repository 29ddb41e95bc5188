package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habituate/progression-engine/internal/domain/leaderboard"
	"github.com/habituate/progression-engine/internal/domain/shared"
	"github.com/habituate/progression-engine/internal/infrastructure/persistence/memory"
)

// newTestCache connects to REDIS_ADDR under a unique key prefix.
func newTestCache(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		_ = client.Close()
	})
	return NewCacheFromClient(client, prefix)
}

func TestCacheKey(t *testing.T) {
	c := NewCacheFromClient(nil, "")
	assert.Equal(t, "progression:lock:user:u1", c.Key(PrefixLock, shared.UserLockKey("u1")))
}

func TestLocker_SerializesHolders(t *testing.T) {
	cache := newTestCache(t)
	locker := NewLocker(cache, LockerConfig{RetryInterval: 5 * time.Millisecond})
	ctx := context.Background()

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "user:u1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocker_HonorsContext(t *testing.T) {
	cache := newTestCache(t)
	locker := NewLocker(cache, LockerConfig{RetryInterval: 5 * time.Millisecond})

	unlock, err := locker.Lock(context.Background(), "clan:c1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "clan:c1")
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))

	// Releasing twice is harmless.
	unlock()
	unlock()
	again, err := locker.Lock(context.Background(), "clan:c1")
	require.NoError(t, err)
	again()
}

func TestLeaderboardCache_MatchesMemoryOrdering(t *testing.T) {
	cache := newTestCache(t)
	board := NewLeaderboardCache(cache)
	mem := memory.NewLeaderboard()
	ctx := context.Background()

	scores := map[string]int64{"a": 50, "b": 90, "c": 70, "d": 70, "e": 10}
	for id, score := range scores {
		require.NoError(t, board.SetScore(ctx, leaderboard.BoardUsers, id, score))
		require.NoError(t, mem.SetScore(ctx, leaderboard.BoardUsers, id, score))
	}

	got, err := board.Top(ctx, leaderboard.BoardUsers, 1, 3)
	require.NoError(t, err)
	want, err := mem.Top(ctx, leaderboard.BoardUsers, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	e, err := board.Rank(ctx, leaderboard.BoardUsers, "c")
	require.NoError(t, err)
	assert.Equal(t, leaderboard.Entry{ID: "c", Score: 70, Rank: 3}, e)

	missing, err := board.Rank(ctx, leaderboard.BoardUsers, "zz")
	require.NoError(t, err)
	assert.Equal(t, 0, missing.Rank)

	n, err := board.Count(ctx, leaderboard.BoardUsers)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, board.Replace(ctx, leaderboard.BoardUsers, map[string]int64{"x": 1}))
	n, err = board.Count(ctx, leaderboard.BoardUsers)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, board.SetScore(ctx, "karma", "a", 1), ErrInvalidBoard)
}
