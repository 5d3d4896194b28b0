package llm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

type retryLLM struct {
	next       CoreLLM
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware retries transient failures up to maxRetries times with
// jittered exponential backoff capped at maxDelay. Authentication, bad
// request and open-circuit errors are returned at once.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		if maxRetries <= 0 {
			return next
		}
		return &retryLLM{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

// Complete implements CoreLLM.
func (r *retryLLM) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	var (
		lastErr  error
		attempts int
	)
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		attempts++
		resp, err := r.next.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) || ctx.Err() != nil || attempt == r.maxRetries {
			break
		}

		timer := time.NewTimer(r.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Completion{}, ctx.Err()
		case <-timer.C:
		}
	}
	return Completion{}, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

// delay returns baseDelay*2^attempt with jitter in [-25%, +25%].
func (r *retryLLM) delay(attempt int) time.Duration {
	attempt = min(max(attempt, 0), 30)
	d := r.baseDelay << attempt
	// #nosec G404 - jitter does not need a secure source
	d = d - d/4 + time.Duration(rand.Float64()*float64(d)/2)
	if r.maxDelay > 0 && d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

// Model implements CoreLLM.
func (r *retryLLM) Model() string { return r.next.Model() }

// Provider implements CoreLLM.
func (r *retryLLM) Provider() string { return r.next.Provider() }
