package adapter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// PacedClient waits on a token bucket before each call so a backend is never
// driven faster than its configured request rate.
type PacedClient struct {
	inner   BackendClient
	limiter *rate.Limiter
}

// Paced wraps client with limiter. A nil limiter returns client unchanged.
func Paced(client BackendClient, limiter *rate.Limiter) BackendClient {
	if limiter == nil {
		return client
	}
	return &PacedClient{inner: client, limiter: limiter}
}

// NewLimiter builds a limiter from requests per second and burst. A
// non-positive rate means unlimited and yields nil.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// ID returns the wrapped backend identifier.
func (p *PacedClient) ID() string {
	return p.inner.ID()
}

// Invoke blocks until the limiter admits the call or ctx is done.
func (p *PacedClient) Invoke(ctx context.Context, prompt string, pc PromptContext) (*Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// Wait fails early when the deadline cannot accommodate the delay.
		return nil, &AdapterError{Backend: p.inner.ID(), Temporary: true, Err: fmt.Errorf("pacing: %w", err)}
	}
	return p.inner.Invoke(ctx, prompt, pc)
}
