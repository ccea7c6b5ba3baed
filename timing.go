// File: envresolver/timing.go
package envresolver

import "time"

// Core timing and capacity constants for production use.
// These define the default behavior of the source decorators and the
// audit tracker.
const (
	// Cache decorator defaults (ordered by freshness)
	DefaultCacheTTL    = 5 * time.Minute  // Serve from cache with no I/O
	DefaultCacheMaxAge = 30 * time.Minute // Hard staleness bound

	// Retry decorator defaults
	DefaultMaxRetries           = 3
	DefaultRetryInitialInterval = 100 * time.Millisecond
	DefaultRetryMaxInterval     = 5 * time.Second

	// Circuit breaker defaults
	DefaultBreakerTripCount = 5
	DefaultBreakerTimeout   = 60 * time.Second

	// Audit ring capacity; oldest events are evicted past this bound
	DefaultAuditCapacity = 1000
)
