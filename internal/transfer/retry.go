// internal/transfer/retry.go
package transfer

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy retries transient failures with exponential backoff.
// Permission and not-found errors are never retried.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	multiplier  float64
	jitter      bool
	logger      *zap.Logger
}

// RetryOption configures retry behavior.
type RetryOption func(*RetryPolicy)

// WithMaxAttempts sets the maximum number of attempts (including the first).
func WithMaxAttempts(n int) RetryOption {
	return func(p *RetryPolicy) {
		p.maxAttempts = n
	}
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		p.baseDelay = d
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		p.maxDelay = d
	}
}

// WithJitter enables jitter to prevent thundering herd.
func WithJitter(enabled bool) RetryOption {
	return func(p *RetryPolicy) {
		p.jitter = enabled
	}
}

// WithRetryLogger adds logging to retry attempts.
func WithRetryLogger(logger *zap.Logger) RetryOption {
	return func(p *RetryPolicy) {
		p.logger = logger
	}
}

// NewRetryPolicy creates a retry policy.
func NewRetryPolicy(opts ...RetryOption) *RetryPolicy {
	p := &RetryPolicy{
		maxAttempts: 3,
		baseDelay:   100 * time.Millisecond,
		maxDelay:    30 * time.Second,
		multiplier:  2.0,
		jitter:      true,
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Do runs fn until it succeeds, fails terminally, or attempts are
// exhausted. It returns the number of attempts made and the last error.
func (p *RetryPolicy) Do(ctx context.Context, fn func() error) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return attempt - 1, ctx.Err()
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				p.logger.Debug("operation succeeded after retry",
					zap.Int("attempt", attempt))
			}
			return attempt, nil
		}

		if !IsTransient(lastErr) {
			return attempt, lastErr
		}

		if attempt == p.maxAttempts {
			break
		}

		delay := p.delay(attempt - 1)
		p.logger.Debug("transient failure, retrying",
			zap.Error(lastErr),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", p.maxAttempts),
			zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
	}

	p.logger.Debug("retries exhausted",
		zap.Error(lastErr),
		zap.Int("attempts", p.maxAttempts))

	return p.maxAttempts, lastErr
}

// delay computes the backoff for the given zero-based attempt.
func (p *RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.baseDelay) * math.Pow(p.multiplier, float64(attempt))

	if d > float64(p.maxDelay) {
		d = float64(p.maxDelay)
	}

	if p.jitter {
		// Between 0.5x and 1.5x the computed delay.
		d *= 0.5 + rand.Float64()
	}

	return time.Duration(d)
}
