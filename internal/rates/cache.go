package rates

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps the last rate that was actually used, so a failed lookup can fall back to it.
type Cache interface {
	// Get returns the cached rate; ok is false when nothing is cached.
	Get(ctx context.Context) (rate float64, ok bool, err error)
	Set(ctx context.Context, rate float64) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu   sync.RWMutex
	rate float64
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get implements Cache.
func (c *MemoryCache) Get(ctx context.Context) (float64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate, c.rate > 0, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(ctx context.Context, rate float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = rate
	return nil
}

// RedisCache shares the last known rate between the API server, the CLI and workers.
type RedisCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisCache connects to addr and verifies the connection with PING.
func NewRedisCache(ctx context.Context, addr, password string, db int, key string, ttl time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("NewRedisCache: ping %s: %w", addr, err)
	}
	return &RedisCache{rdb: rdb, key: key, ttl: ttl}, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context) (float64, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("RedisCache.Get: %w", err)
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil || rate <= 0 {
		return 0, false, fmt.Errorf("RedisCache.Get: bad cached value %q", raw)
	}
	return rate, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, rate float64) error {
	val := strconv.FormatFloat(rate, 'f', -1, 64)
	if err := c.rdb.Set(ctx, c.key, val, c.ttl).Err(); err != nil {
		return fmt.Errorf("RedisCache.Set: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
