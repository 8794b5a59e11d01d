package cache_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Ryuzii/FerraEura/internal/cache"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHonorsTTL(t *testing.T) {
	mock := clock.NewMock()
	c := cache.New[string, int](cache.Options{TTL: 30 * time.Second, Clock: mock})

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	mock.Add(29 * time.Second)
	_, ok = c.Get("a")
	assert.True(t, ok, "entry should still be fresh just before the TTL")

	mock.Add(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry must not be served at or past the TTL")
	assert.Equal(t, 0, c.Len(), "expired entry should be dropped on read")
}

func TestMaxSizeEvictsOldest(t *testing.T) {
	mock := clock.NewMock()
	c := cache.New[string, int](cache.Options{TTL: time.Minute, MaxSize: 2, Clock: mock})

	c.Set("first", 1)
	c.Set("second", 2)
	c.Set("third", 3)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("first")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get("third")
	assert.True(t, ok)
}

func TestPrune(t *testing.T) {
	mock := clock.NewMock()
	c := cache.New[int, string](cache.Options{TTL: time.Second, Clock: mock})

	for i := range 5 {
		c.Set(i, "x")
	}
	mock.Add(500 * time.Millisecond)
	c.Set(10, "fresh")
	mock.Add(600 * time.Millisecond)

	assert.Equal(t, 5, c.Prune())
	assert.Equal(t, 1, c.Len())
}

func TestGetOrCompute(t *testing.T) {
	c := cache.New[string, int](cache.Options{TTL: time.Minute})

	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}
	for range 3 {
		v, err := c.GetOrCompute("k", compute)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, err := c.GetOrCompute("other", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get("other")
	assert.False(t, ok, "failed computations are not cached")
}

func TestSweeperPrunes(t *testing.T) {
	mock := clock.NewMock()
	c := cache.New[string, int](cache.Options{TTL: time.Second, Clock: mock})
	c.Set("a", 1)

	c.StartSweeper(t.Context(), 10*time.Second)
	mock.Add(10 * time.Second)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)
}
