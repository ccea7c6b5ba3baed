// File: envresolver/retry.go
package envresolver

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryOptions configures the retrying decorator.
type RetryOptions struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64

	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration

	// MaxInterval caps the exponential backoff delay.
	MaxInterval time.Duration

	// Logger receives per-attempt failures. Defaults to a nop logger.
	Logger *zap.Logger
}

// DefaultRetryOptions returns the standard retry parameters.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: DefaultRetryInitialInterval,
		MaxInterval:     DefaultRetryMaxInterval,
	}
}

// retrySource decorates a source with exponential-backoff retries. It is
// stateless across calls; the backoff schedule is rebuilt per invocation.
type retrySource struct {
	src  Source
	opts RetryOptions
}

// Retry wraps a source so transient load failures are retried with
// exponential backoff before the final error propagates.
func Retry(src Source, opts RetryOptions) Source {
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultRetryInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultRetryMaxInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &retrySource{src: src, opts: opts}
}

func (s *retrySource) Name() string { return s.src.Name() }

func (s *retrySource) Load(ctx context.Context) (map[string]string, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.opts.InitialInterval
	exp.MaxInterval = s.opts.MaxInterval

	var values map[string]string
	op := func() error {
		var err error
		values, err = s.src.Load(ctx)
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.opts.Logger.Warn("source load failed, retrying",
			zap.String("source", s.src.Name()),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, s.opts.MaxRetries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return values, nil
}
