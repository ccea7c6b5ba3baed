// File: envresolver/cache.go
package envresolver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CacheOptions configures the caching decorator.
type CacheOptions struct {
	// TTL is the window within which cached data is served with no I/O.
	TTL time.Duration

	// MaxAge is the hard upper bound on data age. Past it every Load
	// reloads synchronously, even if a background refresh is in flight.
	MaxAge time.Duration

	// StaleWhileRevalidate serves stale data between TTL and MaxAge while
	// kicking off a non-blocking background reload.
	StaleWhileRevalidate bool

	// Key overrides the wrapped source's name for cache identity and
	// provenance. Empty means use the underlying name.
	Key string

	// Logger receives background refresh failures. Defaults to a nop logger.
	Logger *zap.Logger
}

// DefaultCacheOptions returns the standard caching parameters.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		TTL:                  DefaultCacheTTL,
		MaxAge:               DefaultCacheMaxAge,
		StaleWhileRevalidate: true,
	}
}

// Cached decorates a source with time-bounded caching and optional
// stale-while-revalidate behavior. Callers wrap expensive sources (secret
// stores, remote endpoints) before handing them to the resolver; to the
// resolver a cached source looks like any other source.
//
// Each Cached instance owns exactly one cache cell. Wrapping the same
// source twice produces two independent caches.
type Cached struct {
	src  Source
	opts CacheOptions

	mu       sync.Mutex
	data     map[string]string
	loadedAt time.Time
	lastHit  bool

	// At most one background refresh per wrapper at any time.
	refreshing atomic.Bool
}

// Cache wraps a source with the caching decorator.
func Cache(src Source, opts CacheOptions) *Cached {
	if opts.TTL <= 0 {
		opts.TTL = DefaultCacheTTL
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultCacheMaxAge
	}
	if opts.MaxAge < opts.TTL {
		opts.MaxAge = opts.TTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Cached{src: src, opts: opts}
}

// Name implements the Source interface.
func (c *Cached) Name() string {
	if c.opts.Key != "" {
		return c.opts.Key
	}
	return c.src.Name()
}

// ServedFromCache reports whether the most recent Load returned cached
// data without a synchronous reload.
func (c *Cached) ServedFromCache() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHit
}

// Load implements the Source interface.
//
// State machine per call:
//   - no cache yet, or age > MaxAge: synchronous reload, caller blocks
//   - age <= TTL: cached data, no I/O
//   - TTL < age <= MaxAge, StaleWhileRevalidate: cached data now, plus at
//     most one background reload; on failure the stale data keeps serving
//   - TTL < age <= MaxAge, no StaleWhileRevalidate: synchronous reload
func (c *Cached) Load(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()

	if c.data == nil {
		c.mu.Unlock()
		return c.reload(ctx)
	}

	age := time.Since(c.loadedAt)
	switch {
	case age <= c.opts.TTL:
		defer c.mu.Unlock()
		c.lastHit = true
		return copyValues(c.data), nil

	case age <= c.opts.MaxAge && c.opts.StaleWhileRevalidate:
		defer c.mu.Unlock()
		c.lastHit = true
		stale := copyValues(c.data)
		c.startBackgroundRefresh()
		return stale, nil

	default:
		c.mu.Unlock()
		return c.reload(ctx)
	}
}

// reload fetches fresh data from the underlying source and replaces the
// cache. On failure the previous cache, if any, is left intact but not
// served: a synchronous reload is only attempted when staleness rules
// already forbid serving it.
func (c *Cached) reload(ctx context.Context) (map[string]string, error) {
	data, err := c.src.Load(ctx)
	if err != nil {
		c.mu.Lock()
		cold := c.data == nil
		c.lastHit = false
		c.mu.Unlock()
		if cold {
			return nil, fmt.Errorf("%w: source %q: %v", ErrNoData, c.Name(), err)
		}
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = copyValues(data)
	c.loadedAt = time.Now()
	c.lastHit = false
	return copyValues(c.data), nil
}

// startBackgroundRefresh kicks off one fire-and-forget reload unless one
// is already in flight. A failed refresh is discarded so the last good
// value keeps serving; the in-flight marker clears either way so a later
// call may retry. Callers must hold c.mu.
func (c *Cached) startBackgroundRefresh() {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer c.refreshing.Store(false)

		// The refresh outlives the call that triggered it: even if that
		// caller has moved on, a completed refresh benefits the next call.
		data, err := c.src.Load(context.Background())
		if err != nil {
			c.opts.Logger.Warn("background refresh failed, keeping stale data",
				zap.String("source", c.Name()), zap.Error(err))
			return
		}

		c.mu.Lock()
		c.data = copyValues(data)
		c.loadedAt = time.Now()
		c.mu.Unlock()
	}()
}

// copyValues returns a defensive copy so callers and the cache cell never
// alias the same map.
func copyValues(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
