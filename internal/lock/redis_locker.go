package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker via SET key token NX PX ttlMs, the
// standard single-node Redis mutual-exclusion pattern (spec §4.10).
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func lockKey(key string) string { return "lock:" + key }

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttlMs int64) (string, error) {
	token := newToken()
	ok, err := l.client.SetNX(ctx, lockKey(key), token, time.Duration(ttlMs)*time.Millisecond).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// releaseScript deletes the key only if its value still matches token,
// making release safe against holder-change (a late release from an
// expired-then-reacquired lock must not evict the new holder).
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	return l.client.Eval(ctx, releaseScript, []string{lockKey(key)}, token).Err()
}
