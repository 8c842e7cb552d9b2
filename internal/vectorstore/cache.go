// The vector cache sits in front of every Store backend (spec §4.3): an
// LRU keyed by memory id, bounded by both entry count and total byte size,
// with hit/miss/evict counters and invalidation on write/delete.
package vectorstore

import (
	"container/list"
	"sync"

	"github.com/openmemory/core/internal/model"
)

// CacheEntry is the list of sector-vectors cached for one memory id.
type CacheEntry struct {
	MemoryID string
	Vectors  []*model.Vector
	bytes    int
}

func entryBytes(vectors []*model.Vector) int {
	n := 0
	for _, v := range vectors {
		n += len(v.Values)*4 + len(v.MemoryID) + 32
	}
	return n
}

// Cache is a process-wide LRU cache of per-memory vector sets, guarded by
// its own mutex (spec §5 "Vector cache: process-wide, guarded by its own
// monitor; cap enforced on every set").
type Cache struct {
	mu         sync.Mutex
	maxCount   int
	maxBytes   int
	curBytes   int
	ll         *list.List
	index      map[string]*list.Element

	Hits   int64
	Misses int64
	Evicts int64
}

func NewCache(maxCount, maxBytes int) *Cache {
	if maxCount <= 0 {
		maxCount = 10000
	}
	if maxBytes <= 0 {
		maxBytes = 64 * 1024 * 1024
	}
	return &Cache{
		maxCount: maxCount,
		maxBytes: maxBytes,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (c *Cache) Get(memoryID string) ([]*model.Vector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[memoryID]
	if !ok {
		c.Misses++
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.Hits++
	entry := el.Value.(*CacheEntry)
	return entry.Vectors, true
}

func (c *Cache) Set(memoryID string, vectors []*model.Vector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[memoryID]; ok {
		old := el.Value.(*CacheEntry)
		c.curBytes -= old.bytes
		c.ll.Remove(el)
		delete(c.index, memoryID)
	}
	entry := &CacheEntry{MemoryID: memoryID, Vectors: vectors, bytes: entryBytes(vectors)}
	el := c.ll.PushFront(entry)
	c.index[memoryID] = el
	c.curBytes += entry.bytes
	c.evictIfNeeded()
}

func (c *Cache) evictIfNeeded() {
	for c.ll.Len() > c.maxCount || c.curBytes > c.maxBytes {
		back := c.ll.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*CacheEntry)
		c.curBytes -= entry.bytes
		delete(c.index, entry.MemoryID)
		c.ll.Remove(back)
		c.Evicts++
	}
}

// Invalidate removes memoryID from the cache, used on every write/delete
// (spec §4.3 "Cache is invalidated on any write or delete of its key").
func (c *Cache) Invalidate(memoryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[memoryID]; ok {
		entry := el.Value.(*CacheEntry)
		c.curBytes -= entry.bytes
		c.ll.Remove(el)
		delete(c.index, memoryID)
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
