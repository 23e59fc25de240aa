package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func redisKey(key string) string {
	return fmt.Sprintf("genav:%s", key)
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, error) {
	var entry Entry
	err := c.rdb.Get(ctx, redisKey(key)).Scan(&entry)
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return &entry, nil
}

// Put stores an entry unless one already exists: SETNX makes first-write-wins
// atomic on the Redis side. Zero TTL skips the write entirely.
func (c *RedisCache) Put(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.rdb.SetNX(ctx, redisKey(key), entry, ttl).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
