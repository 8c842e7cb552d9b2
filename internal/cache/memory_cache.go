package cache

import (
	"context"
	"sync"

	omclock "github.com/openmemory/core/internal/clock"
)

type entry struct {
	value     []byte
	expiresAt int64
}

// MemoryCache is the in-process map backend spec §4.10 names as the
// default when Redis isn't configured.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]entry
	clock omclock.Clock
}

func NewMemoryCache(clock omclock.Clock) *MemoryCache {
	return &MemoryCache{items: make(map[string]entry), clock: clock}
}

func (c *MemoryCache) now() int64 { return c.clock.NowMillis() }

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if e.expiresAt <= c.now() {
		delete(c.items, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttlMs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry{value: value, expiresAt: c.now() + ttlMs}
	return nil
}

func (c *MemoryCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *MemoryCache) Incr(ctx context.Context, key string, ttlMs int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	var n int64
	if ok && e.expiresAt > c.now() {
		n = decodeInt64(e.value) + 1
	} else {
		n = 1
	}
	c.items[key] = entry{value: encodeInt64(n), expiresAt: c.now() + ttlMs}
	return n, nil
}

func encodeInt64(n int64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(n >> (8 * i))
	}
	return b
}

func decodeInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	var n int64
	for i := 0; i < 8; i++ {
		n |= int64(b[i]) << (8 * i)
	}
	return n
}
