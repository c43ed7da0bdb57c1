// Package retry applies a small declarative retry policy to sink calls.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned when every attempt failed; the last attempt's
// error is wrapped alongside it.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes how a call is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay seeds the backoff: the wait before attempt n (n >= 2)
	// is BaseDelay doubled per prior retry. A zero BaseDelay disables
	// waiting.
	BaseDelay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// A nil Retryable retries every error.
	Retryable func(error) bool
}

// DefaultPolicy matches the index sink requirement: 3 attempts with
// delays of 0, 2s and 4s before the respective tries.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

// Do runs fn until it succeeds, a non-retryable error occurs, the policy
// is exhausted, or ctx is cancelled. The attempt number passed to fn
// starts at 1.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}
	return errors.Join(ErrExhausted, lastErr)
}
