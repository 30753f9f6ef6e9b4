package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

type RetryConfig struct {
	MaxRetries int           // additional attempts after the first one
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap applied before jitter
	Jitter     bool          // scale every delay by a factor in [0.7, 1.3)

	// Rand returns a float in [0, 1). Defaults to math/rand.
	Rand func() float64
}

// DefaultConfig matches the outbound API client defaults.
func DefaultConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  600 * time.Millisecond,
		MaxDelay:   8 * time.Second,
		Jitter:     true,
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not retryable. WithRetry returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Backoff returns min(MaxDelay, BaseDelay*2^attempt), jittered when enabled.
func Backoff(config RetryConfig, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := config.BaseDelay
	for i := 0; i < attempt && delay < config.MaxDelay; i++ {
		delay *= 2
	}
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if !config.Jitter {
		return delay
	}
	rnd := config.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	return time.Duration(float64(delay) * (0.7 + 0.6*rnd()))
}

// WithRetry calls fn until it succeeds, returns a permanent error, or MaxRetries
// retries have been spent. fn receives the zero-based attempt number.
func WithRetry(ctx context.Context, config RetryConfig, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Backoff(config, attempt)):
		}
	}

	return lastErr
}
