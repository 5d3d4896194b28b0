package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/go-reward/internal/ports"
)

// ErrCircuitOpen is returned without contacting the provider while an
// endpoint's circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState is the state of a CircuitBreaker.
type CircuitBreakerState int

// Circuit breaker states.
const (
	// StateClosed lets every request through.
	StateClosed CircuitBreakerState = iota
	// StateOpen rejects requests until the cooldown expires.
	StateOpen
	// StateHalfOpen admits a single probe request.
	StateHalfOpen
)

// String returns the state name.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreakerMetrics observes breaker transitions and outcomes.
type CircuitBreakerMetrics interface {
	RecordState(state CircuitBreakerState)
	RecordTrip()
	RecordSuccess()
	RecordFailure()
}

// CircuitBreaker opens after maxFailures consecutive failures and admits a
// probe after cooldown. A failed probe reopens it; a successful one closes
// it. The lock is not held while the protected call runs.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	now         func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:       StateClosed,
		maxFailures: max(maxFailures, 1),
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Call runs fn unless the circuit is open.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return nil
	case StateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
		cb.probing = false
		return
	}
	// A cancelled caller says nothing about the endpoint's health.
	if errors.Is(err, context.Canceled) {
		if cb.state == StateHalfOpen {
			cb.probing = false
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.now()
		cb.probing = false
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

type circuitBreakerLLM struct {
	next    CoreLLM
	cb      *CircuitBreaker
	metrics CircuitBreakerMetrics
}

// CircuitBreakerMiddleware guards each wrapped CoreLLM with its own breaker.
// metrics may be nil.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration, metrics CircuitBreakerMetrics) Middleware {
	return func(next CoreLLM) CoreLLM {
		if maxFailures <= 0 {
			return next
		}
		return &circuitBreakerLLM{
			next:    next,
			cb:      NewCircuitBreaker(maxFailures, cooldown),
			metrics: metrics,
		}
	}
}

// Complete implements CoreLLM.
func (c *circuitBreakerLLM) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	var resp Completion
	err := c.cb.Call(func() error {
		var err error
		resp, err = c.next.Complete(ctx, req)
		return err
	})

	if c.metrics != nil {
		switch {
		case err == nil:
			c.metrics.RecordSuccess()
		case errors.Is(err, ErrCircuitOpen):
			c.metrics.RecordTrip()
		default:
			c.metrics.RecordFailure()
		}
		c.metrics.RecordState(c.cb.State())
	}
	return resp, err
}

// Model implements CoreLLM.
func (c *circuitBreakerLLM) Model() string { return c.next.Model() }

// Provider implements CoreLLM.
func (c *circuitBreakerLLM) Provider() string { return c.next.Provider() }

// collectorBreakerMetrics reports breaker activity through a
// ports.MetricsCollector, labelled by endpoint.
type collectorBreakerMetrics struct {
	collector ports.MetricsCollector
	labels    map[string]string
}

// NewCollectorBreakerMetrics adapts collector to CircuitBreakerMetrics.
func NewCollectorBreakerMetrics(collector ports.MetricsCollector, provider, model string) CircuitBreakerMetrics {
	return &collectorBreakerMetrics{
		collector: collector,
		labels:    map[string]string{"provider": provider, "model": model},
	}
}

func (m *collectorBreakerMetrics) RecordState(state CircuitBreakerState) {
	m.collector.RecordGauge(MetricCircuitState, float64(state), m.labels)
}

func (m *collectorBreakerMetrics) RecordTrip() {
	m.collector.RecordCounter(MetricCircuitTrips, 1, m.labels)
}

func (m *collectorBreakerMetrics) RecordSuccess() {}

func (m *collectorBreakerMetrics) RecordFailure() {}
