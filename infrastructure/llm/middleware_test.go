package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/go-reward/internal/ports"
	"github.com/ahrav/go-reward/internal/testutils"
)

func floatPtr(v float64) *float64 { return &v }

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return &funcLLM{next: next, fn: func() { order = append(order, name) }}
		}
	}

	wrapped := Chain(newMockCoreLLM(), tag("outer"), nil, tag("inner"))
	_, err := wrapped.Complete(context.Background(), CompletionRequest{Prompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

type funcLLM struct {
	next CoreLLM
	fn   func()
}

func (f *funcLLM) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	f.fn()
	return f.next.Complete(ctx, req)
}
func (f *funcLLM) Model() string    { return f.next.Model() }
func (f *funcLLM) Provider() string { return f.next.Provider() }

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("completes within bound", func(t *testing.T) {
		mock := newMockCoreLLM()
		mock.delay = 5 * time.Millisecond

		resp, err := TimeoutMiddleware(time.Second)(mock).Complete(context.Background(), CompletionRequest{})
		require.NoError(t, err)
		assert.Equal(t, "1.0", resp.Text)
	})

	t.Run("slow call is cut off", func(t *testing.T) {
		mock := newMockCoreLLM()
		mock.delay = time.Second

		start := time.Now()
		_, err := TimeoutMiddleware(20*time.Millisecond)(mock).Complete(context.Background(), CompletionRequest{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("zero disables", func(t *testing.T) {
		mock := newMockCoreLLM()
		assert.Same(t, CoreLLM(mock), TimeoutMiddleware(0)(mock))
	})
}

func TestRetryMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		failFirst int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{name: "recovers from transient failures", failFirst: 2, wantCalls: 3},
		{name: "gives up after max retries", failFirst: 10, wantCalls: 4, wantErr: true},
		{
			name:      "authentication is not retried",
			failFirst: 10,
			err:       NewProviderError("mock", ErrorTypeAuthentication, 401, "", nil),
			wantCalls: 1,
			wantErr:   true,
		},
		{name: "open circuit is not retried", failFirst: 10, err: ErrCircuitOpen, wantCalls: 1, wantErr: true},
		{
			name:      "server errors are retried",
			failFirst: 1,
			err:       NewProviderError("mock", ErrorTypeServerError, 503, "", nil),
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockCoreLLM()
			mock.failFirst = tt.failFirst
			mock.err = tt.err

			wrapped := RetryMiddleware(3, time.Millisecond, 5*time.Millisecond)(mock)
			_, err := wrapped.Complete(context.Background(), CompletionRequest{})

			assert.Equal(t, tt.wantCalls, mock.callCount())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("stops when context is cancelled", func(t *testing.T) {
		mock := newMockCoreLLM()
		mock.failFirst = 10
		ctx, cancel := context.WithCancel(context.Background())

		wrapped := RetryMiddleware(5, 50*time.Millisecond, time.Second)(mock)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := wrapped.Complete(ctx, CompletionRequest{})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, mock.callCount())
	})

	t.Run("delay grows and is capped", func(t *testing.T) {
		r := &retryLLM{baseDelay: 100 * time.Millisecond, maxDelay: time.Second}
		d0 := r.delay(0)
		assert.GreaterOrEqual(t, d0, 75*time.Millisecond)
		assert.LessOrEqual(t, d0, 125*time.Millisecond)
		assert.Equal(t, time.Second, r.delay(10))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("paces requests beyond the burst", func(t *testing.T) {
		mock := newMockCoreLLM()
		wrapped := RateLimitMiddleware(20, 1)(mock)

		for range 3 {
			_, err := wrapped.Complete(context.Background(), CompletionRequest{})
			require.NoError(t, err)
		}

		// 20 rps leaves about 50ms between admitted requests.
		assert.GreaterOrEqual(t, mock.gap(0, 2), 80*time.Millisecond)
	})

	t.Run("wait honours the context", func(t *testing.T) {
		mock := newMockCoreLLM()
		wrapped := RateLimitMiddleware(0.1, 1)(mock)
		_, err := wrapped.Complete(context.Background(), CompletionRequest{})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = wrapped.Complete(ctx, CompletionRequest{})
		assert.Error(t, err)
		assert.Equal(t, 1, mock.callCount())
	})

	t.Run("zero limit disables", func(t *testing.T) {
		mock := newMockCoreLLM()
		assert.Same(t, CoreLLM(mock), RateLimitMiddleware(0, 0)(mock))
	})
}

type breakerEvents struct {
	mu     sync.Mutex
	trips  int
	states []CircuitBreakerState
}

func (b *breakerEvents) RecordState(s CircuitBreakerState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states = append(b.states, s)
}
func (b *breakerEvents) RecordTrip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trips++
}
func (b *breakerEvents) RecordSuccess() {}
func (b *breakerEvents) RecordFailure() {}

func TestCircuitBreaker(t *testing.T) {
	t.Run("opens after consecutive failures", func(t *testing.T) {
		// Given a breaker that trips after two failures
		mock := newMockCoreLLM()
		mock.failFirst = 100
		events := &breakerEvents{}
		wrapped := CircuitBreakerMiddleware(2, time.Hour, events)(mock)

		// When three calls are made
		for range 3 {
			_, _ = wrapped.Complete(context.Background(), CompletionRequest{})
		}

		// Then the third is rejected without reaching the provider
		assert.Equal(t, 2, mock.callCount())
		assert.Equal(t, 1, events.trips)
		assert.Equal(t, StateOpen, events.states[len(events.states)-1])
	})

	t.Run("probe after cooldown closes the circuit", func(t *testing.T) {
		cb := NewCircuitBreaker(1, time.Minute)
		now := time.Now()
		cb.now = func() time.Time { return now }

		require.Error(t, cb.Call(func() error { return errSimulated }))
		assert.Equal(t, StateOpen, cb.State())
		assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)

		now = now.Add(2 * time.Minute)
		require.NoError(t, cb.Call(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("failed probe reopens", func(t *testing.T) {
		cb := NewCircuitBreaker(3, time.Minute)
		now := time.Now()
		cb.now = func() time.Time { return now }
		for range 3 {
			_ = cb.Call(func() error { return errSimulated })
		}
		now = now.Add(2 * time.Minute)

		require.Error(t, cb.Call(func() error { return errSimulated }))
		assert.Equal(t, StateOpen, cb.State())
	})

	t.Run("only one probe while half open", func(t *testing.T) {
		cb := NewCircuitBreaker(1, time.Minute)
		now := time.Now()
		cb.now = func() time.Time { return now }
		_ = cb.Call(func() error { return errSimulated })
		now = now.Add(2 * time.Minute)

		release := make(chan struct{})
		done := make(chan error)
		go func() {
			done <- cb.Call(func() error { <-release; return nil })
		}()
		require.Eventually(t, func() bool { return cb.State() == StateHalfOpen }, time.Second, time.Millisecond)

		assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
		close(release)
		assert.NoError(t, <-done)
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("cancellation does not count", func(t *testing.T) {
		cb := NewCircuitBreaker(1, time.Minute)
		_ = cb.Call(func() error { return context.Canceled })
		assert.Equal(t, StateClosed, cb.State())
	})
}

func TestMetricsMiddleware(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		rec := &testutils.MetricsRecorder{}
		wrapped := MetricsMiddleware(rec)(newMockCoreLLM())

		_, err := wrapped.Complete(context.Background(), CompletionRequest{})
		require.NoError(t, err)

		assert.Equal(t, 1.0, rec.Total(MetricJudgeRequests, map[string]string{
			"provider": "mock", "model": "judge-model", "status": "success",
		}))
		assert.Len(t, rec.Samples(MetricJudgeLatency), 1)
		assert.Equal(t, 10.0, rec.Total(MetricJudgeTokens, map[string]string{"direction": "in"}))
		assert.Equal(t, 2.0, rec.Total(MetricJudgeTokens, map[string]string{"direction": "out"}))
	})

	t.Run("failure status comes from the error type", func(t *testing.T) {
		rec := &testutils.MetricsRecorder{}
		mock := newMockCoreLLM()
		mock.err = NewProviderError("mock", ErrorTypeRateLimit, 429, "", nil)
		wrapped := MetricsMiddleware(rec)(mock)

		_, err := wrapped.Complete(context.Background(), CompletionRequest{})
		require.Error(t, err)

		assert.Equal(t, 1.0, rec.Total(MetricJudgeRequests, map[string]string{"status": "rate_limit"}))
		assert.Empty(t, rec.Samples(MetricJudgeTokens))
	})

	t.Run("nil collector disables", func(t *testing.T) {
		mock := newMockCoreLLM()
		assert.Same(t, CoreLLM(mock), MetricsMiddleware(nil)(mock))
	})
}

func TestTracingMiddleware_PassesThrough(t *testing.T) {
	mock := newMockCoreLLM()
	mock.err = errSimulated
	wrapped := TracingMiddlewareWithProvider(noop.NewTracerProvider())(mock)

	_, err := wrapped.Complete(context.Background(), CompletionRequest{Prompt: "p"})

	assert.ErrorIs(t, err, errSimulated)
	assert.Equal(t, "mock", wrapped.Provider())
	assert.Equal(t, "judge-model", wrapped.Model())
}

func TestCacheMiddleware(t *testing.T) {
	t.Run("identical requests hit the cache", func(t *testing.T) {
		// Given a cached provider
		rec := &testutils.MetricsRecorder{}
		mock := newMockCoreLLM()
		wrapped := CacheMiddleware(8, rec)(mock)
		req := CompletionRequest{Prompt: "grade this", Temperature: floatPtr(0)}

		// When the same request is sent twice and a variant once
		first, err := wrapped.Complete(context.Background(), req)
		require.NoError(t, err)
		second, err := wrapped.Complete(context.Background(), req)
		require.NoError(t, err)
		req.Temperature = floatPtr(0.5)
		_, err = wrapped.Complete(context.Background(), req)
		require.NoError(t, err)

		// Then only distinct requests reach the provider
		assert.Equal(t, first, second)
		assert.Equal(t, 2, mock.callCount())
		assert.Equal(t, 1.0, rec.Total(MetricJudgeCacheHits, nil))
	})

	t.Run("failures are not cached", func(t *testing.T) {
		mock := newMockCoreLLM()
		mock.failFirst = 1
		wrapped := CacheMiddleware(8, nil)(mock)

		_, err := wrapped.Complete(context.Background(), CompletionRequest{Prompt: "p"})
		require.Error(t, err)
		_, err = wrapped.Complete(context.Background(), CompletionRequest{Prompt: "p"})
		require.NoError(t, err)
		assert.Equal(t, 2, mock.callCount())
	})

	t.Run("zero size disables", func(t *testing.T) {
		mock := newMockCoreLLM()
		assert.Same(t, CoreLLM(mock), CacheMiddleware(0, nil)(mock))
	})
}

func TestProviderError(t *testing.T) {
	classifier := ErrorClassifier{Provider: "openai"}

	tests := []struct {
		status    int
		wantType  ErrorType
		sentinel  error
		retryable bool
	}{
		{status: 401, wantType: ErrorTypeAuthentication, sentinel: ports.ErrAuthenticationFailed},
		{status: 429, wantType: ErrorTypeRateLimit, sentinel: ports.ErrRateLimited, retryable: true},
		{status: 400, wantType: ErrorTypeBadRequest},
		{status: 404, wantType: ErrorTypeNotFound},
		{status: 408, wantType: ErrorTypeTimeout, sentinel: ports.ErrTimeout, retryable: true},
		{status: 503, wantType: ErrorTypeServerError, sentinel: ports.ErrServiceUnavailable, retryable: true},
	}
	for _, tt := range tests {
		t.Run(tt.wantType.String(), func(t *testing.T) {
			err := classifier.ClassifyHTTPError(tt.status, "boom", errSimulated)
			assert.Equal(t, tt.wantType, err.Type)
			assert.Equal(t, tt.retryable, err.IsRetryable())
			assert.ErrorIs(t, err, errSimulated)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			assert.Contains(t, err.Error(), "openai error")
		})
	}

	t.Run("context errors", func(t *testing.T) {
		deadline := classifier.ClassifyContextError(context.DeadlineExceeded)
		assert.Equal(t, ErrorTypeTimeout, deadline.Type)
		cancelled := classifier.ClassifyContextError(context.Canceled)
		assert.False(t, isRetryable(cancelled))
	})

	t.Run("status labels", func(t *testing.T) {
		assert.Equal(t, "success", errorStatus(nil))
		assert.Equal(t, "circuit_open", errorStatus(ErrCircuitOpen))
		assert.Equal(t, "timeout", errorStatus(context.DeadlineExceeded))
		assert.Equal(t, "error", errorStatus(errors.New("x")))
	})
}
