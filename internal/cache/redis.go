package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores action scopes as Redis hashes with a sliding TTL, so
// abandoned multi-turn sequences expire on their own.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

// Get returns the value under field, with ok=false on a miss.
func (c *RedisCache) Get(ctx context.Context, scope Scope, field string) (string, bool, error) {
	val, err := c.rdb.HGet(ctx, scope.Key(), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get %s: %w", scope.Key(), err)
	}
	return val, true, nil
}

// Set stores the value and refreshes the scope TTL.
func (c *RedisCache) Set(ctx context.Context, scope Scope, field, value string) error {
	key := scope.Key()
	if err := c.rdb.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	if err := c.rdb.Expire(ctx, key, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache expire %s: %w", key, err)
	}
	return nil
}

// Clear drops the whole scope.
func (c *RedisCache) Clear(ctx context.Context, scope Scope) error {
	if err := c.rdb.Del(ctx, scope.Key()).Err(); err != nil {
		return fmt.Errorf("cache clear %s: %w", scope.Key(), err)
	}
	return nil
}

// Close shuts down the Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
