package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmemory/core/internal/model"
)

func TestCacheHitMiss(t *testing.T) {
	c := NewCache(10, 1<<20)
	_, ok := c.Get("m1")
	assert.False(t, ok)
	assert.EqualValues(t, 1, c.Misses)

	c.Set("m1", []*model.Vector{{MemoryID: "m1", Sector: model.SectorSemantic, Values: []float32{1, 2, 3}, Dim: 3}})
	v, ok := c.Get("m1")
	require.True(t, ok)
	assert.Len(t, v, 1)
	assert.EqualValues(t, 1, c.Hits)
}

func TestCacheEvictsByCount(t *testing.T) {
	c := NewCache(2, 1<<20)
	c.Set("a", []*model.Vector{{MemoryID: "a", Values: []float32{1}}})
	c.Set("b", []*model.Vector{{MemoryID: "b", Values: []float32{1}}})
	c.Set("c", []*model.Vector{{MemoryID: "c", Values: []float32{1}}})

	assert.LessOrEqual(t, c.Len(), 2)
	assert.EqualValues(t, 1, c.Evicts)
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(10, 1<<20)
	c.Set("m1", []*model.Vector{{MemoryID: "m1", Values: []float32{1, 2}}})
	c.Invalidate("m1")
	_, ok := c.Get("m1")
	assert.False(t, ok)
}
