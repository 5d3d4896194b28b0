package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimitedLLM struct {
	next    CoreLLM
	limiter *rate.Limiter
}

// RateLimitMiddleware paces requests with a token bucket of limit requests
// per second and the given burst. Every CoreLLM wrapped by the returned
// middleware shares the one bucket. A non-positive limit disables pacing.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, max(burst, 1))
	return func(next CoreLLM) CoreLLM {
		if limit <= 0 {
			return next
		}
		return &rateLimitedLLM{next: next, limiter: limiter}
	}
}

// Complete blocks until the bucket admits the request or ctx is done.
func (r *rateLimitedLLM) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Complete(ctx, req)
}

// Model implements CoreLLM.
func (r *rateLimitedLLM) Model() string { return r.next.Model() }

// Provider implements CoreLLM.
func (r *rateLimitedLLM) Provider() string { return r.next.Provider() }
