package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Price float64 `json:"price"`
	Trend string  `json:"trend"`
}

func TestMemoryCacheRoundTripsTypedValues(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "ctx:DXY", snapshot{Price: 104.2, Trend: "DOWN"}, time.Minute))
	var got snapshot
	require.NoError(t, mc.Get(ctx, "ctx:DXY", &got))
	assert.Equal(t, snapshot{Price: 104.2, Trend: "DOWN"}, got)

	var s string
	require.NoError(t, mc.Set(ctx, "plain", "value", 0))
	require.NoError(t, mc.Get(ctx, "plain", &s))
	assert.Equal(t, "value", s)

	assert.ErrorIs(t, mc.Get(ctx, "absent", &s), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", "v", time.Second))
	now = now.Add(2 * time.Second)

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { now = now.Add(time.Millisecond); return now }

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.Equal(t, 2, mc.Len())
	assert.NoError(t, mc.Get(ctx, "a", &s))
	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
}

func TestIncrementWithinSetsWindowOnce(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	now := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	for want := int64(1); want <= 3; want++ {
		n, err := IncrementWithin(ctx, mc, "alerts:20240301", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	now = now.Add(time.Hour + time.Second)
	n, err := IncrementWithin(ctx, mc, "alerts:20240301", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, err := mc.TryLock(ctx, "lock:BTCUSDT", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "lock:BTCUSDT", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock:BTCUSDT"))
	ok, err = mc.TryLock(ctx, "lock:BTCUSDT", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLayeredCacheReadsThroughToL2(t *testing.T) {
	ctx := context.Background()
	l2 := NewMemoryCache()
	lc := NewLayeredCache(l2)
	defer lc.Close()

	require.NoError(t, l2.Set(ctx, "ctx", snapshot{Price: 1, Trend: "UP"}, time.Minute))

	var got snapshot
	require.NoError(t, lc.Get(ctx, "ctx", &got))
	assert.Equal(t, "UP", got.Trend)

	require.NoError(t, l2.Delete(ctx, "ctx"))
	got = snapshot{}
	require.NoError(t, lc.Get(ctx, "ctx", &got), "second read is served by L1")
	assert.Equal(t, 1.0, got.Price)

	n, err := lc.Increment(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "alerts:BTCUSDT:20240301", Key("alerts", "BTCUSDT", "20240301"))
	assert.Equal(t, "bars:5m:288", Key("bars", "5m", 288))
}
