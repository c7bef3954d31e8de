package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClientGetSet(t *testing.T) {
	c := NewMemoryClient(10)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryClientExpiredEntryMisses(t *testing.T) {
	c := NewMemoryClient(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClientDelete(t *testing.T) {
	c := NewMemoryClient(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClientDeleteByPrefix(t *testing.T) {
	c := NewMemoryClient(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "faq:1", []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "faq:2", []byte("b"), time.Minute))
	require.NoError(t, c.Set(ctx, "session:1", []byte("c"), time.Minute))

	require.NoError(t, c.DeleteByPrefix(ctx, "faq:"))

	_, err := c.Get(ctx, "faq:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "faq:2")
	assert.ErrorIs(t, err, ErrCacheMiss)

	got, err := c.Get(ctx, "session:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), got)
}

func TestMemoryClientEvictsEarliestExpiry(t *testing.T) {
	c := NewMemoryClient(2)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 2*time.Minute))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 3*time.Minute))

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = c.Get(ctx, "b")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestMemoryClientCounter(t *testing.T) {
	c := NewMemoryClient(10)
	ctx := context.Background()

	n, err := c.Incr(ctx, "calls", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Incr(ctx, "calls", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := c.Count(ctx, "calls")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	got, err = c.Count(ctx, "absent")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestMemoryClientCounterRestartsAfterExpiry(t *testing.T) {
	c := NewMemoryClient(10)
	ctx := context.Background()

	_, err := c.Incr(ctx, "calls", -time.Second)
	require.NoError(t, err)

	got, err := c.Count(ctx, "calls")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	n, err := c.Incr(ctx, "calls", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "faq:approved", CacheKey("faq", "approved"))
	assert.Equal(t, "solo", CacheKey("solo"))
}

func TestDailyAIKey(t *testing.T) {
	day := time.Date(2026, 9, 1, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, "ai:daily:2026-09-01", DailyAIKey(day))
}
