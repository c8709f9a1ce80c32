// Package retry implements bounded exponential backoff for flaky side
// channels (cursor persistence, operator mail). It is deliberately not used
// on the polling path itself, which relies on the next scheduled tick.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrMaxRetriesExceeded is returned when all attempts have failed.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy controls retry behavior.
type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// RetryableFunc overrides the default "retry everything" classification.
	RetryableFunc func(error) bool
}

// DefaultPolicy returns a conservative policy for side-channel writes.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// Validate checks the policy for usable values.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.InitialInterval <= 0 {
		return fmt.Errorf("initial interval must be > 0, got %s", p.InitialInterval)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1, got %f", p.Multiplier)
	}
	return nil
}

func (p Policy) backoff(attempt int) time.Duration {
	d := p.InitialInterval
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.MaxInterval > 0 && d > p.MaxInterval {
			return p.MaxInterval
		}
	}
	if p.MaxInterval > 0 && d > p.MaxInterval {
		return p.MaxInterval
	}
	return d
}

func (p Policy) isRetryable(err error) bool {
	if p.RetryableFunc != nil {
		return p.RetryableFunc(err)
	}
	return true
}

// Do executes operation under the policy, waiting between attempts.
func Do(ctx context.Context, policy Policy, logger *zap.Logger, operation func() error) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 0 && logger != nil {
				logger.Info("operation succeeded after retries",
					zap.Int("attempt", attempt),
					zap.Int("max_retries", policy.MaxRetries))
			}
			return nil
		}

		if !policy.isRetryable(lastErr) {
			return lastErr
		}

		if attempt >= policy.MaxRetries {
			break
		}

		wait := policy.backoff(attempt + 1)
		if logger != nil {
			logger.Debug("retrying operation",
				zap.Error(lastErr),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", wait))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}
