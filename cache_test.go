// File: envresolver/cache_test.go
package envresolver

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// versionedSource serves a value that changes with every load, so tests
// can tell cached data from fresh data.
type versionedSource struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (s *versionedSource) Name() string { return "versioned" }

func (s *versionedSource) Load(context.Context) (map[string]string, error) {
	n := s.calls.Add(1)
	if s.fail.Load() {
		return nil, fmt.Errorf("upstream unavailable")
	}
	return map[string]string{"KEY": fmt.Sprintf("v%d", n)}, nil
}

// backdate ages the cache cell so tests control staleness without sleeping.
func backdate(c *Cached, age time.Duration) {
	c.mu.Lock()
	c.loadedAt = time.Now().Add(-age)
	c.mu.Unlock()
}

// TestCacheWithinTTL tests that loads inside the TTL never touch the
// underlying source
func TestCacheWithinTTL(t *testing.T) {
	src := &versionedSource{}
	c := Cache(src, CacheOptions{TTL: time.Minute, MaxAge: time.Hour})

	for i := 0; i < 5; i++ {
		values, err := c.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "v1", values["KEY"])
	}
	assert.Equal(t, int64(1), src.calls.Load())

	assert.True(t, c.ServedFromCache())
}

func TestCacheFirstLoadIsNotAHit(t *testing.T) {
	c := Cache(&versionedSource{}, DefaultCacheOptions())
	_, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, c.ServedFromCache())
}

// TestCachePastMaxAge tests the synchronous reload past the hard bound
func TestCachePastMaxAge(t *testing.T) {
	src := &versionedSource{}
	c := Cache(src, CacheOptions{TTL: time.Minute, MaxAge: time.Hour})

	_, err := c.Load(context.Background())
	require.NoError(t, err)

	backdate(c, 2*time.Hour)
	values, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2", values["KEY"])
	assert.False(t, c.ServedFromCache())
	assert.Equal(t, int64(2), src.calls.Load())
}

// TestCacheStaleWhileRevalidate tests the stale window behavior
func TestCacheStaleWhileRevalidate(t *testing.T) {
	t.Run("ServesStaleAndRefreshes", func(t *testing.T) {
		src := &versionedSource{}
		c := Cache(src, CacheOptions{
			TTL:                  time.Minute,
			MaxAge:               time.Hour,
			StaleWhileRevalidate: true,
		})

		_, err := c.Load(context.Background())
		require.NoError(t, err)

		backdate(c, 10*time.Minute)
		values, err := c.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "v1", values["KEY"], "stale data served immediately")
		assert.True(t, c.ServedFromCache())

		// The background refresh lands shortly after.
		assert.Eventually(t, func() bool {
			return src.calls.Load() == 2
		}, time.Second, 5*time.Millisecond)

		assert.Eventually(t, func() bool {
			values, err := c.Load(context.Background())
			return err == nil && values["KEY"] == "v2"
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("DisabledReloadsSynchronously", func(t *testing.T) {
		src := &versionedSource{}
		c := Cache(src, CacheOptions{TTL: time.Minute, MaxAge: time.Hour})

		_, err := c.Load(context.Background())
		require.NoError(t, err)

		backdate(c, 10*time.Minute)
		values, err := c.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "v2", values["KEY"])
		assert.False(t, c.ServedFromCache())
	})

	t.Run("FailedRefreshKeepsServingStale", func(t *testing.T) {
		src := &versionedSource{}
		c := Cache(src, CacheOptions{
			TTL:                  time.Minute,
			MaxAge:               time.Hour,
			StaleWhileRevalidate: true,
		})

		_, err := c.Load(context.Background())
		require.NoError(t, err)

		src.fail.Store(true)
		backdate(c, 10*time.Minute)

		values, err := c.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "v1", values["KEY"])

		assert.Eventually(t, func() bool {
			return src.calls.Load() >= 2 && !c.refreshing.Load()
		}, time.Second, 5*time.Millisecond)

		// Still serving the last good value after the failed refresh.
		backdate(c, 10*time.Minute)
		values, err = c.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "v1", values["KEY"])
	})
}

// TestCacheSingleBackgroundRefresh tests that concurrent stale loads start
// at most one refresh
func TestCacheSingleBackgroundRefresh(t *testing.T) {
	src := &versionedSource{}
	c := Cache(src, CacheOptions{
		TTL:                  time.Minute,
		MaxAge:               time.Hour,
		StaleWhileRevalidate: true,
	})

	_, err := c.Load(context.Background())
	require.NoError(t, err)
	backdate(c, 10*time.Minute)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, _ = c.Load(context.Background())
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Eventually(t, func() bool {
		return !c.refreshing.Load()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), src.calls.Load(), "one initial load plus exactly one refresh")
}

// TestCacheName tests cache identity naming
func TestCacheName(t *testing.T) {
	src := &versionedSource{}
	assert.Equal(t, "versioned", Cache(src, DefaultCacheOptions()).Name())
	assert.Equal(t, "secrets", Cache(src, CacheOptions{Key: "secrets"}).Name())
}

// TestCacheOptionNormalization tests defaulting of cache parameters
func TestCacheOptionNormalization(t *testing.T) {
	c := Cache(&versionedSource{}, CacheOptions{})
	assert.Equal(t, DefaultCacheTTL, c.opts.TTL)
	assert.Equal(t, DefaultCacheMaxAge, c.opts.MaxAge)

	c = Cache(&versionedSource{}, CacheOptions{TTL: time.Hour, MaxAge: time.Minute})
	assert.Equal(t, time.Hour, c.opts.MaxAge, "max age never undercuts the TTL")
}

// TestCacheErrorPropagation tests that a cold-cache load failure surfaces
func TestCacheErrorPropagation(t *testing.T) {
	src := &versionedSource{}
	src.fail.Store(true)
	c := Cache(src, DefaultCacheOptions())

	_, err := c.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoData)

	// Recovery on the next call once the upstream is healthy again.
	src.fail.Store(false)
	values, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2", values["KEY"])
}
