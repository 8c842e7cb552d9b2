package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	omclock "github.com/openmemory/core/internal/clock"
)

func TestSetGetRoundTrip(t *testing.T) {
	clk := omclock.NewManual(time.Unix(1700000000, 0))
	c := NewMemoryCache(clk)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 1000))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestGetExpiresAfterTTL(t *testing.T) {
	clk := omclock.NewManual(time.Unix(1700000000, 0))
	c := NewMemoryCache(clk)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 100))
	clk.Advance(200 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDel(t *testing.T) {
	clk := omclock.NewManual(time.Unix(1700000000, 0))
	c := NewMemoryCache(clk)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 1000))
	require.NoError(t, c.Del(ctx, "k"))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIncrCountsUpAndResetsAfterExpiry(t *testing.T) {
	clk := omclock.NewManual(time.Unix(1700000000, 0))
	c := NewMemoryCache(clk)
	ctx := context.Background()

	n1, err := c.Incr(ctx, "rate:user1", 1000)
	require.NoError(t, err)
	require.Equal(t, int64(1), n1)

	n2, err := c.Incr(ctx, "rate:user1", 1000)
	require.NoError(t, err)
	require.Equal(t, int64(2), n2)

	clk.Advance(2 * time.Second)
	n3, err := c.Incr(ctx, "rate:user1", 1000)
	require.NoError(t, err)
	require.Equal(t, int64(1), n3, "counter should reset once its window expires")
}
