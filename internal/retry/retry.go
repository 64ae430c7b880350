// Package retry executes operations with bounded exponential backoff.
//
// It recovers from transient provider errors (rate limiting, brief
// unavailability) without involving the caller: a whitelisted error class is
// retried with doubling delays up to a cap, everything else propagates on
// first occurrence.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy bounds the retry loop for one operation.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Total attempts = MaxRetries + 1.
	MaxRetries int

	// InitialDelay is the sleep before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the exponentially growing delay.
	MaxDelay time.Duration

	// Retryable reports whether an error belongs to the retryable class.
	// A nil classifier retries nothing.
	Retryable func(error) bool

	// Logger records retry attempts. Nil disables logging.
	Logger *zap.Logger

	// sleep is swapped out by tests to observe the backoff schedule.
	sleep func(ctx context.Context, d time.Duration) error
}

// Do runs op up to MaxRetries+1 times. After failed attempt k (0-indexed) it
// sleeps min(InitialDelay*2^k, MaxDelay) before the next attempt. The final
// attempt's error is returned as-is, unwrapped. Errors outside the retryable
// class return immediately without sleeping.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var zero T

	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		result, err := op()
		if err == nil {
			if attempt > 0 {
				logger.Info("operation recovered after retries",
					zap.Int("attempts", attempt+1),
				)
			}
			return result, nil
		}
		lastErr = err

		if p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}
		if attempt == p.MaxRetries {
			break
		}

		delay := backoffDelay(p.InitialDelay, p.MaxDelay, attempt)
		logger.Warn("retryable error, backing off",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", p.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	logger.Warn("retries exhausted",
		zap.Int("total_attempts", p.MaxRetries+1),
		zap.Error(lastErr),
	)
	return zero, lastErr
}

// backoffDelay computes min(initial*2^attempt, max), guarding shift overflow.
func backoffDelay(initial, max time.Duration, attempt int) time.Duration {
	if attempt > 62 {
		return max
	}
	delay := initial << uint(attempt)
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
