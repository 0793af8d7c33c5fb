package llms

import (
	"context"
	"time"
)

// RetryPolicy bundles the knobs governing retries of failed model
// calls in one place.
type RetryPolicy struct {
	MaxAttempts   int
	BaseWait      time.Duration
	BackoffFactor float64
	Classify      func(error) ErrorClass
}

// DefaultRetryPolicy returns a policy with 5 attempts, a 1s initial
// wait and a 5x backoff factor.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   5,
		BaseWait:      time.Second,
		BackoffFactor: 5,
		Classify:      ClassifyError,
	}
}

// NextWait computes the wait before the following attempt. A
// non-positive wait is bumped to two seconds before the backoff factor
// is applied, so the delay always actually grows.
func (p RetryPolicy) NextWait(wait time.Duration) time.Duration {
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return time.Duration(float64(wait) * p.BackoffFactor)
}

// Sleep waits for the given duration or until the context is done.
func (p RetryPolicy) Sleep(ctx context.Context, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
