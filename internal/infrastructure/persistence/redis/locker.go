package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTED LOCK
// ══════════════════════════════════════════════════════════════════════════════

// releaseScript deletes the lock only while it still holds our token, so an
// expired holder never releases a lock re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockerConfig tunes the distributed lock.
type LockerConfig struct {
	// TTL bounds how long a crashed holder can block a key.
	TTL time.Duration

	// RetryInterval is the polling interval while the key is held elsewhere.
	RetryInterval time.Duration

	// ReleaseTimeout bounds the release round-trip.
	ReleaseTimeout time.Duration

	Logger *slog.Logger
}

// DefaultLockerConfig returns the default lock settings.
func DefaultLockerConfig() LockerConfig {
	return LockerConfig{
		TTL:            TTLDistributedLock,
		RetryInterval:  25 * time.Millisecond,
		ReleaseTimeout: 2 * time.Second,
	}
}

// Locker implements shared.Locker with SET NX PX and a token-checked release.
type Locker struct {
	cache  *Cache
	config LockerConfig
	logger *slog.Logger
}

var _ shared.Locker = (*Locker)(nil)

// NewLocker creates a distributed locker.
func NewLocker(cache *Cache, config LockerConfig) *Locker {
	def := DefaultLockerConfig()
	if config.TTL <= 0 {
		config.TTL = def.TTL
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = def.RetryInterval
	}
	if config.ReleaseTimeout <= 0 {
		config.ReleaseTimeout = def.ReleaseTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{cache: cache, config: config, logger: logger}
}

// Lock polls until key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, ErrCacheKeyEmpty
	}
	redisKey := l.cache.Key(PrefixLock, key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.config.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.cache.SetNX(ctx, redisKey, token, l.config.TTL)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, shared.WrapError("lock", "Acquire", shared.ErrServiceUnavailable, "acquire "+key, err)
		}
		if ok {
			return l.releaser(key, redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, shared.WrapError("lock", "Acquire", shared.ErrLockTimeout, "acquire "+key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) releaser(key, redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), l.config.ReleaseTimeout)
			defer cancel()

			n, err := releaseScript.Run(ctx, l.cache.Client(), []string{redisKey}, token).Int()
			switch {
			case err != nil:
				l.logger.Error("failed to release lock", "key", key, "error", err)
			case n == 0:
				l.logger.Warn("lock expired before release", "key", key, "ttl", l.config.TTL)
			}
		})
	}
}
