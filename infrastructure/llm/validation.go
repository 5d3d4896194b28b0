package llm

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Parameter ranges shared by the providers.
const (
	// DefaultMaxTokens is used when a request does not set MaxTokens.
	DefaultMaxTokens = 1024
	// MaxTemperature accommodates providers that accept up to 2.0.
	MaxTemperature = 2.0
	// MaxTopP is the upper bound for nucleus sampling.
	MaxTopP = 1.0
	// MinTimeout and MaxTimeout bound a per-request HTTP timeout.
	MinTimeout = 1 * time.Second
	MaxTimeout = 10 * time.Minute
)

// chatCompletionsSuffix is stripped from OpenAI-compatible endpoint URLs so
// the SDK can append its own route.
const chatCompletionsSuffix = "/chat/completions"

// ValidateBaseURL checks that baseURL is an absolute http(s) URL. An empty
// string is valid and selects the provider default.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return parsed.String(), nil
}

// OpenAIBaseURL reduces a full chat completion endpoint such as
// http://host:8000/v1/chat/completions to the base URL the SDK expects.
func OpenAIBaseURL(endpoint string) string {
	trimmed := strings.TrimRight(endpoint, "/")
	return strings.TrimSuffix(trimmed, chatCompletionsSuffix)
}

// ValidateTimeout clamps timeout to [MinTimeout, MaxTimeout]. Zero or a
// negative value returns zero, meaning no client timeout.
func ValidateTimeout(timeout time.Duration) time.Duration {
	switch {
	case timeout <= 0:
		return 0
	case timeout < MinTimeout:
		return MinTimeout
	case timeout > MaxTimeout:
		return MaxTimeout
	}
	return timeout
}

// ClampFloat64 restricts val to [lo, hi].
func ClampFloat64(val, lo, hi float64) float64 {
	return min(max(val, lo), hi)
}
