// Package redis implements the Redis-backed collaborators of the progression
// engine.
//
// Key components:
//   - Cache: connection handling and key helpers shared by the components below
//   - Locker: distributed per-key lock implementing shared.Locker
//   - LeaderboardCache: user and clan rankings on sorted sets
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the Redis connection settings. Zero values fall back to
// go-redis defaults, except DialTimeout which also bounds the startup PING.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// KeyPrefix namespaces every key; several deployments may share one
	// Redis. Defaults to DefaultKeyPrefix.
	KeyPrefix string
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

var (
	ErrCacheConnection = errors.New("cache: connection failed")
	ErrCacheKeyEmpty   = errors.New("cache: key cannot be empty")
	ErrCacheInvalidTTL = errors.New("cache: invalid TTL")
)

// Ключи: <prefix>leaderboard:<board>, <prefix>lock:<habit|user|clan key>.
const (
	DefaultKeyPrefix  = "progression:"
	PrefixLeaderboard = "leaderboard:"
	PrefixLock        = "lock:"

	// TTLDistributedLock is how long an abandoned lock survives its holder.
	TTLDistributedLock = 30 * time.Second
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache owns the Redis client and the key namespace.
type Cache struct {
	client *redis.Client
	prefix string
}

// NewCache connects to Redis and verifies the connection with a PING bounded
// by ctx and cfg.DialTimeout.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return NewCacheFromClient(client, cfg.KeyPrefix), nil
}

// NewCacheFromClient wraps an existing client.
func NewCacheFromClient(client *redis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Cache{client: client, prefix: prefix}
}

// Client returns the underlying Redis client for advanced operations.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Key joins the namespace and the given parts.
func (c *Cache) Key(parts ...string) string {
	key := c.prefix
	for _, p := range parts {
		key += p
	}
	return key
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetNX sets key only if it does not exist. Returns true if the key was set.
func (c *Cache) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		return false, ErrCacheInvalidTTL
	}
	return c.client.SetNX(ctx, key, value, ttl).Result()
}
