package gateway

import (
	"context"
	"time"
)

// RetryPolicy bounds repeated attempts against the payment gateway with a
// linearly increasing delay: attempt n waits Delay*n before running.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	sleep func(time.Duration)
}

// NoRetry makes a single attempt. Used by the synchronous reconciliation
// path, which surfaces failures to its caller instead of waiting.
var NoRetry = RetryPolicy{MaxAttempts: 1}

func NewRetryPolicy(maxAttempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Delay: delay}
}

// WithSleeper replaces the wait function, letting tests run the policy
// against a fake clock.
func (p RetryPolicy) WithSleeper(sleep func(time.Duration)) RetryPolicy {
	p.sleep = sleep
	return p
}

// Do runs fn until it succeeds or attempts are exhausted, returning the last
// error. Context cancellation aborts between attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			sleep(p.Delay * time.Duration(attempt-1))
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
