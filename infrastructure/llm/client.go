// Package llm is the remote judge client. Provider implementations
// (OpenAI-compatible, Anthropic, Google) sit behind the CoreLLM interface and
// are wrapped by a middleware chain that adds timeouts, retries, rate
// limiting, circuit breaking, metrics, tracing and response caching.
//
// Most callers use JudgeClient, which implements ports.RemoteJudge and builds
// one wrapped CoreLLM per judge endpoint on first use:
//
//	judge := llm.NewJudgeClient(llm.DefaultJudgeClientConfig(), collector, logger)
//	reply, err := judge.Query(ctx, ports.JudgeRequest{
//	    Endpoint: ports.Endpoint{Provider: "openai", URL: url, APIKey: key, Model: "judge"},
//	    Prompt:   prompt,
//	})
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CompletionRequest is one non-streaming completion call.
type CompletionRequest struct {
	Prompt string
	// MaxTokens caps the reply length. Zero selects DefaultMaxTokens.
	MaxTokens int
	// Temperature and TopP are left to the provider default when nil.
	Temperature *float64
	TopP        *float64
}

// Completion is a provider reply with its token usage.
type Completion struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// CoreLLM is the minimal surface a provider implements. Middleware wraps a
// CoreLLM and returns another one, so every layer sees the same contract.
type CoreLLM interface {
	// Complete sends one prompt and returns the first reply.
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)

	// Model returns the model the provider queries.
	Model() string

	// Provider returns the provider name, e.g. "openai".
	Provider() string
}

// ClientConfig configures one provider instance.
type ClientConfig struct {
	// APIKey authenticates requests. Local OpenAI-compatible servers that
	// ignore authentication still need a non-empty placeholder.
	APIKey string

	// Model is the model identifier sent with every request.
	Model string

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string

	// Timeout bounds the HTTP round trip. Zero leaves it to the caller's
	// context.
	Timeout time.Duration
}

// Middleware wraps a CoreLLM to add cross-cutting behavior.
type Middleware func(CoreLLM) CoreLLM

// Chain applies middleware so the first one listed is the outermost.
func Chain(core CoreLLM, middleware ...Middleware) CoreLLM {
	for i := len(middleware) - 1; i >= 0; i-- {
		if middleware[i] != nil {
			core = middleware[i](core)
		}
	}
	return core
}

// ProviderFactory creates a provider from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory makes a provider available to NewCoreLLM. Built-in
// providers register themselves in init.
func RegisterProviderFactory(provider string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[provider] = factory
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewCoreLLM creates the named provider and wraps it with middleware.
func NewCoreLLM(provider string, config ClientConfig, middleware ...Middleware) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factoriesMu.RLock()
	factory, ok := providerFactories[provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", provider, err)
	}
	return Chain(core, middleware...), nil
}
