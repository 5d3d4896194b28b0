package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errSimulated = errors.New("simulated failure")

// mockCoreLLM is a configurable CoreLLM for middleware tests.
type mockCoreLLM struct {
	mu sync.Mutex

	text      string
	tokensIn  int
	tokensOut int
	err       error
	delay     time.Duration
	// failFirst makes the first n calls return err, or errSimulated when err
	// is nil.
	failFirst int

	calls    int
	requests []CompletionRequest
	stamps   []time.Time
}

func newMockCoreLLM() *mockCoreLLM {
	return &mockCoreLLM{text: "1.0", tokensIn: 10, tokensOut: 2}
}

func (m *mockCoreLLM) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.requests = append(m.requests, req)
	m.stamps = append(m.stamps, time.Now())
	delay, err := m.delay, m.err
	resp := Completion{Text: m.text, TokensIn: m.tokensIn, TokensOut: m.tokensOut}
	failing := call <= m.failFirst
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		}
	}
	if failing {
		if err == nil {
			err = errSimulated
		}
		return Completion{}, err
	}
	if err != nil && m.failFirst == 0 {
		return Completion{}, err
	}
	return resp, nil
}

func (m *mockCoreLLM) Model() string    { return "judge-model" }
func (m *mockCoreLLM) Provider() string { return "mock" }

func (m *mockCoreLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockCoreLLM) gap(i, j int) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stamps[j].Sub(m.stamps[i])
}
