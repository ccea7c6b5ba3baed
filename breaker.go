// File: envresolver/breaker.go
package envresolver

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerOptions configures the circuit-breaking decorator.
type BreakerOptions struct {
	// TripCount is the number of consecutive failures required to open
	// the circuit.
	TripCount uint32

	// Timeout is the period of the open state, after which the breaker
	// becomes half-open and lets a probe load through.
	Timeout time.Duration

	// Logger receives state-change notifications. Defaults to a nop logger.
	Logger *zap.Logger
}

// DefaultBreakerOptions returns the standard circuit-breaker parameters.
func DefaultBreakerOptions() BreakerOptions {
	return BreakerOptions{
		TripCount: DefaultBreakerTripCount,
		Timeout:   DefaultBreakerTimeout,
	}
}

// breakerSource decorates a source with a circuit breaker so a repeatedly
// failing remote source fails fast instead of stalling every resolution.
type breakerSource struct {
	src Source
	cb  *gobreaker.CircuitBreaker
}

// Breaker wraps a source with a circuit breaker.
func Breaker(src Source, opts BreakerOptions) Source {
	if opts.TripCount == 0 {
		opts.TripCount = DefaultBreakerTripCount
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    src.Name(),
		Timeout: opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.TripCount
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch to {
			case gobreaker.StateOpen:
				log.Error("source circuit opened", zap.String("source", name))
			case gobreaker.StateHalfOpen:
				log.Warn("source circuit half-open", zap.String("source", name))
			case gobreaker.StateClosed:
				log.Info("source circuit closed", zap.String("source", name))
			}
		},
	})

	return &breakerSource{src: src, cb: cb}
}

func (s *breakerSource) Name() string { return s.src.Name() }

func (s *breakerSource) Load(ctx context.Context) (map[string]string, error) {
	v, err := s.cb.Execute(func() (any, error) {
		return s.src.Load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}
