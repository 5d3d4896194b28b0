package llm

import (
	"context"
	"time"
)

type timeoutLLM struct {
	next    CoreLLM
	timeout time.Duration
}

// TimeoutMiddleware bounds each call, including any retries wrapped inside
// it, by timeout. A shorter deadline already on the context wins.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		if timeout <= 0 {
			return next
		}
		return &timeoutLLM{next: next, timeout: timeout}
	}
}

// Complete implements CoreLLM.
func (t *timeoutLLM) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, req)
}

// Model implements CoreLLM.
func (t *timeoutLLM) Model() string { return t.next.Model() }

// Provider implements CoreLLM.
func (t *timeoutLLM) Provider() string { return t.next.Provider() }
