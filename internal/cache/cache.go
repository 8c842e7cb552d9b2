// Package cache implements the unified KV cache of spec §4.10: get/set/del
// with TTL, and an atomic incr(key, ttlMs) used by rate-limiting glue. The
// backend selects between an in-process map and Redis.
package cache

import (
	"context"

	"github.com/redis/go-redis/v9"

	omclock "github.com/openmemory/core/internal/clock"
)

// Cache is the uniform surface both backends satisfy.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttlMs int64) error
	Del(ctx context.Context, key string) error
	// Incr atomically increments key (creating it at 0 if absent), refreshes
	// its TTL to ttlMs, and returns the post-increment value.
	Incr(ctx context.Context, key string, ttlMs int64) (int64, error)
}

// NewAuto selects Redis when a client is available, else the in-process map
// backend (spec §4.10 "backend selects between in-process map and Redis").
func NewAuto(redisClient *redis.Client, clock omclock.Clock) Cache {
	if redisClient != nil {
		return NewRedisCache(redisClient)
	}
	return NewMemoryCache(clock)
}
