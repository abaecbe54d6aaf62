package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/zen-systems/intelgate/pkg/adapter"
)

// RetryPolicy bounds how a failing call is retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry, doubled per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential delay before jitter.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to adapter.IsTransient.
	Retryable func(error) bool

	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Jitter returns a factor in [0.5, 1.0]. Tests override it.
	Jitter func() float64
}

// DefaultRetryPolicy returns two retries with 200ms base and 2s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// Backoff returns the un-jittered delay before retry attempt k (0-indexed).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.BaseDelay
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if p.MaxDelay > 0 && backoff >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && backoff > p.MaxDelay {
		return p.MaxDelay
	}
	return backoff
}

func defaultJitter() float64 {
	return 0.5 + rand.Float64()*0.5 //nolint:gosec // jitter doesn't need crypto-strength randomness
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// retries are used up. The last error is returned as is. A cancelled ctx
// during a backoff sleep returns ctx.Err().
func Retry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	retryable := policy.Retryable
	if retryable == nil {
		retryable = adapter.IsTransient
	}
	jitter := policy.Jitter
	if jitter == nil {
		jitter = defaultJitter
	}

	var err error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err = fn(ctx)
		if err == nil || !retryable(err) || attempt == policy.MaxRetries {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		delay := time.Duration(float64(policy.Backoff(attempt)) * clampJitter(jitter()))
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, delay, err)
		}
		if sleepErr := sleepWithContext(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func clampJitter(j float64) float64 {
	if j < 0.5 {
		return 0.5
	}
	if j > 1 {
		return 1
	}
	return j
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
