package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/go-reward/internal/ports"
)

// Errors returned by providers and the judge client.
var (
	// ErrEmptyAPIKey indicates that an API key was required but not provided.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrEmptyResponse indicates that the provider returned no reply text.
	ErrEmptyResponse = fmt.Errorf("%w: empty reply text", ports.ErrInvalidResponse)
	// ErrNoResponseChoice indicates a chat reply without choices.
	ErrNoResponseChoice = fmt.Errorf("%w: no response choices", ports.ErrInvalidResponse)
	// ErrUnknownProvider indicates an endpoint naming an unregistered provider.
	ErrUnknownProvider = errors.New("unknown judge provider")
)

// ErrorType is the category of a provider failure.
type ErrorType int

const (
	// ErrorTypeUnknown is an error of undetermined category.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeAuthentication is a rejected API key.
	ErrorTypeAuthentication
	// ErrorTypeRateLimit is an exceeded provider quota.
	ErrorTypeRateLimit
	// ErrorTypeBadRequest is a malformed request or invalid parameter.
	ErrorTypeBadRequest
	// ErrorTypeNotFound is an unknown model or route.
	ErrorTypeNotFound
	// ErrorTypeServerError is a 5xx from the provider.
	ErrorTypeServerError
	// ErrorTypeContentPolicy is a request blocked by a safety filter.
	ErrorTypeContentPolicy
	// ErrorTypeNetwork is a client-side transport failure.
	ErrorTypeNetwork
	// ErrorTypeTimeout is an expired deadline.
	ErrorTypeTimeout
)

var errorTypeNames = map[ErrorType]string{
	ErrorTypeAuthentication: "authentication",
	ErrorTypeRateLimit:      "rate_limit",
	ErrorTypeBadRequest:     "bad_request",
	ErrorTypeNotFound:       "not_found",
	ErrorTypeServerError:    "server_error",
	ErrorTypeContentPolicy:  "content_policy",
	ErrorTypeNetwork:        "network",
	ErrorTypeTimeout:        "timeout",
}

// String returns the metric label for the type.
func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ProviderError is a provider failure normalized across SDKs.
type ProviderError struct {
	Type       ErrorType
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.Provider + " error"
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Type != ErrorTypeUnknown {
		msg += " [" + e.Type.String() + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the SDK error.
func (e *ProviderError) Unwrap() error { return e.Err }

// Is maps the error category onto the infrastructure sentinels in ports so
// callers can test with errors.Is without knowing the provider.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ports.ErrRateLimited:
		return e.Type == ErrorTypeRateLimit
	case ports.ErrServiceUnavailable:
		return e.Type == ErrorTypeServerError || e.Type == ErrorTypeNetwork
	case ports.ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ports.ErrAuthenticationFailed:
		return e.Type == ErrorTypeAuthentication
	}
	return false
}

// IsRetryable reports whether the failure is transient.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		Type:       errType,
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Err:        wrapped,
	}
}

// isRetryable reports whether a request that failed with err may be sent
// again. Errors that are not ProviderErrors are retried unless they come from
// the caller's context or an open circuit.
func isRetryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.IsRetryable()
	}
	return true
}

// errorStatus returns the metric label describing err.
func errorStatus(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, ErrCircuitOpen) {
		return "circuit_open"
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Type.String()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout.String()
	}
	return "error"
}

// ErrorClassifier turns status codes and context errors into ProviderErrors
// for one provider.
type ErrorClassifier struct {
	Provider string
}

// ClassifyHTTPError classifies err by HTTP status code.
func (ec *ErrorClassifier) ClassifyHTTPError(statusCode int, message string, err error) *ProviderError {
	errType := ErrorTypeUnknown
	switch {
	case statusCode == 401 || statusCode == 403:
		errType = ErrorTypeAuthentication
		message = ec.Provider + " authentication failed"
	case statusCode == 429:
		errType = ErrorTypeRateLimit
		message = ec.Provider + " rate limit exceeded"
	case statusCode == 404:
		errType = ErrorTypeNotFound
	case statusCode == 408:
		errType = ErrorTypeTimeout
	case statusCode >= 500:
		errType = ErrorTypeServerError
	case statusCode >= 400:
		errType = ErrorTypeBadRequest
	}
	return NewProviderError(ec.Provider, errType, statusCode, message, err)
}

// ClassifyContextError classifies a context error. A deadline is a timeout;
// a cancellation is reported as a network failure that is not retried
// because the context is already done.
func (ec *ErrorClassifier) ClassifyContextError(err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "context deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "request canceled", err)
	default:
		return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "", err)
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
