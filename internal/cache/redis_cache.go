package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the Redis-backed Cache implementation (spec §4.10): a
// plain get/set-with-TTL shape plus an atomic INCR + PEXPIRE pair for the
// rate-limiting counter.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttlMs int64) error {
	return c.client.Set(ctx, key, value, time.Duration(ttlMs)*time.Millisecond).Err()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// incrScript increments key and (re)sets its TTL atomically, so a reader
// never observes an incremented counter with the previous (possibly
// expired) TTL still attached.
const incrScript = `
local n = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return n`

func (c *RedisCache) Incr(ctx context.Context, key string, ttlMs int64) (int64, error) {
	return c.client.Eval(ctx, incrScript, []string{key}, ttlMs).Int64()
}
