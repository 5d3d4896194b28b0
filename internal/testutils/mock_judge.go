// Package testutils provides deterministic test doubles and fixtures for the
// reward engine.
package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

var _ ports.RemoteJudge = (*MockJudge)(nil)

// ErrNoReply is returned for endpoints without a scripted reply.
var ErrNoReply = errors.New("no scripted reply")

// MockJudge implements ports.RemoteJudge with replies scripted per endpoint
// URL. It records every request and is safe for concurrent use.
type MockJudge struct {
	mu       sync.Mutex
	replies  map[string]string
	failures map[string]error
	fallback *string
	requests []ports.JudgeRequest
}

// NewMockJudge creates a judge with no scripted replies.
func NewMockJudge() *MockJudge {
	return &MockJudge{
		replies:  make(map[string]string),
		failures: make(map[string]error),
	}
}

// Reply scripts the reply returned by the endpoint at url.
func (m *MockJudge) Reply(url, reply string) *MockJudge {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[url] = reply
	return m
}

// Fail makes the endpoint at url return err.
func (m *MockJudge) Fail(url string, err error) *MockJudge {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[url] = err
	return m
}

// Default scripts the reply for every endpoint without its own.
func (m *MockJudge) Default(reply string) *MockJudge {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &reply
	return m
}

// Query implements ports.RemoteJudge.
func (m *MockJudge) Query(ctx context.Context, req ports.JudgeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if err, ok := m.failures[req.Endpoint.URL]; ok {
		return "", err
	}
	if reply, ok := m.replies[req.Endpoint.URL]; ok {
		return reply, nil
	}
	if m.fallback != nil {
		return *m.fallback, nil
	}
	return "", fmt.Errorf("%w for %s", ErrNoReply, req.Endpoint.URL)
}

// Requests returns a copy of every request received so far.
func (m *MockJudge) Requests() []ports.JudgeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.JudgeRequest(nil), m.requests...)
}

// Calls returns the number of requests received so far.
func (m *MockJudge) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Boxed wraps answer in a well-formed response: a reasoning block followed
// by an answer block holding one boxed span.
func Boxed(answer string) string {
	return "<think>reasoning</think><answer>" + domain.BeginOfBox + answer + domain.EndOfBox + "</answer>"
}

// Unboxed wraps answer in a response without a boxed span.
func Unboxed(answer string) string {
	return "<think>reasoning</think><answer>" + answer + "</answer>"
}

// URLs returns n distinct judge endpoint URLs.
func URLs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("http://judge-%d.test/v1/chat/completions", i)
	}
	return out
}
