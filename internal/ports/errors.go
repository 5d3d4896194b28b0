package ports

import (
	"errors"
	"fmt"
	"time"
)

// Failure classes shared by remote judge adapters. Adapters wrap or match
// these so verifiers can tell transient failures from permanent ones without
// knowing the provider.
var (
	ErrRateLimited          = errors.New("rate limited")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrTimeout              = errors.New("operation timed out")
	ErrInvalidResponse      = errors.New("invalid response")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// ErrUnknownVerifier is reported for a verifier_type with no factory.
var ErrUnknownVerifier = errors.New("unknown verifier type")

// transient lists the failure classes worth another attempt.
var transient = []error{ErrRateLimited, ErrServiceUnavailable, ErrTimeout}

// JudgeError is a failed query against one remote judge endpoint.
type JudgeError struct {
	Model string
	URL   string
	Err   error

	// RetryAfter is the server's backoff hint, when it sent one.
	RetryAfter *time.Duration
}

// NewJudgeError wraps err with the endpoint that produced it.
func NewJudgeError(model, url string, err error) *JudgeError {
	return &JudgeError{Model: model, URL: url, Err: err}
}

func (e *JudgeError) Error() string {
	s := fmt.Sprintf("judge error: model=%s, url=%s, err=%v", e.Model, e.URL, e.Err)
	if e.RetryAfter == nil {
		return s
	}
	return fmt.Sprintf("%s, retry_after=%v", s, *e.RetryAfter)
}

func (e *JudgeError) Unwrap() error { return e.Err }

// IsRetryable reports whether the underlying failure is transient.
func (e *JudgeError) IsRetryable() bool {
	for _, class := range transient {
		if errors.Is(e.Err, class) {
			return true
		}
	}
	return false
}

// ConfigError is a construction-time failure tied to one configuration key,
// such as a datasource or a reward config name.
type ConfigError struct {
	ConfigKey string
	Err       error
}

// NewConfigError wraps err with the offending key.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{ConfigKey: key, Err: err}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
