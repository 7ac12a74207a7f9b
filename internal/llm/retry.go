package llm

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy configures retry behavior with exponential backoff.
type Policy struct {
	MaxRetries int           // retry attempts, not counting the initial call
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // ceiling for computed delays
	Multiplier float64       // exponential backoff factor
	Jitter     bool          // randomize delays to avoid thundering herds
	OnRetry    func(err error, attempt int, delay time.Duration)
}

// DefaultPolicy returns the policy the stages use.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Delay computes the backoff delay for attempt n (0-indexed).
func (p Policy) Delay(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if max := float64(p.MaxDelay); delay > max {
		delay = max
	}
	if p.Jitter {
		// +/- 50% jitter
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay)
}

// Do executes fn under the policy. Only retryable errors are retried; a
// rate-limit retry-after hint overrides the computed delay unless it exceeds
// MaxDelay, in which case the error is surfaced immediately.
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return zero, err
		}

		delay := policy.Delay(attempt)
		if hint := RetryAfterHint(err); hint > 0 {
			if hint > policy.MaxDelay {
				return zero, err
			}
			delay = hint
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, &CanceledError{ClientError: ClientError{Message: "canceled while waiting to retry", Cause: ctx.Err()}}
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}

	return zero, err
}

type retryingClient struct {
	inner  Client
	policy Policy
}

// WithRetry wraps a client so every Generate call runs under the policy.
func WithRetry(c Client, policy Policy) Client {
	return &retryingClient{inner: c, policy: policy}
}

func (c *retryingClient) Generate(ctx context.Context, req Request) (*Response, error) {
	return Do(ctx, c.policy, func(ctx context.Context) (*Response, error) {
		return c.inner.Generate(ctx, req)
	})
}
