package db

import (
	"context"
	"time"
)

// ReadRetry bounds the backoff applied to read-only store calls.
type ReadRetry struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultReadRetry() ReadRetry {
	return ReadRetry{Attempts: 3, BaseDelay: 25 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
}

// RetryRead runs fn until it succeeds, fails with a non-transient error, or
// attempts run out. Only safe for calls without side effects.
func RetryRead[T any](ctx context.Context, policy ReadRetry, fn func(context.Context) (T, error)) (T, error) {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := policy.BaseDelay

	var (
		out T
		err error
	)
	for i := 0; i < attempts; i++ {
		out, err = fn(ctx)
		if err == nil || !IsTransientErr(err) || i == attempts-1 {
			return out, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return out, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return out, err
}
