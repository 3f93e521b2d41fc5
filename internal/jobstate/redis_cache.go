package jobstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "job:last_run:"

// RedisCache keeps last-run days in Redis so the per-request "already ran
// today?" check does not touch the database.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a cache from a redis:// URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &RedisCache{rdb: redis.NewClient(opts), ttl: 24 * time.Hour}, nil
}

// Get returns the cached day for job. A missing key is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, job string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, cacheKeyPrefix+job).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set caches day for job until the TTL expires.
func (c *RedisCache) Set(ctx context.Context, job, day string) error {
	return c.rdb.Set(ctx, cacheKeyPrefix+job, day, c.ttl).Err()
}

// Close closes the Redis client connection
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
