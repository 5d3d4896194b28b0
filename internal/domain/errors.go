package domain

import (
	"errors"
	"fmt"
)

// Soft failure reasons. These never reach the caller as errors; they ride on
// a Verdict and are collapsed to the verifier floor by the orchestrator.
var (
	// ErrBadFormat indicates the response does not follow the
	// reasoning-then-answer structure.
	ErrBadFormat = errors.New("response does not match reasoning/answer structure")

	// ErrBadReference indicates the reference answer could not be validated
	// or extracted. This usually points at bad training data.
	ErrBadReference = errors.New("reference answer is malformed")

	// ErrNoSpan indicates no boxed span was found.
	ErrNoSpan = errors.New("no boxed span found")

	// ErrMultipleSpans indicates more than one top-level boxed span was found.
	ErrMultipleSpans = errors.New("multiple boxed spans found")

	// ErrMalformedSpan indicates a span failed the quote/bracket balance check
	// or could not be decoded into a structured value.
	ErrMalformedSpan = errors.New("boxed span is malformed")

	// ErrExtractionFailed is the generic reason for an absent extraction.
	ErrExtractionFailed = errors.New("answer extraction failed")

	// ErrLanguageMix indicates the language-mix gate vetoed the response.
	ErrLanguageMix = errors.New("response mixes long paragraphs of different languages")

	// ErrTypeMismatch indicates a judge received an answer shape it cannot score.
	ErrTypeMismatch = errors.New("answer shape not supported by judge")

	// ErrJudgeUnavailable indicates every remote judge endpoint failed.
	ErrJudgeUnavailable = errors.New("remote judge unavailable")
)

// Caller errors. These are returned before any work starts.
var (
	// ErrMixedDatasources indicates a batch carried more than one datasource.
	ErrMixedDatasources = errors.New("all requests in a batch must share one datasource")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// BatchError reports a length mismatch between parallel batch inputs.
type BatchError struct {
	// Field names the optional or required input list that is misaligned.
	Field string
	// Want is the expected length (the number of prompts).
	Want int
	// Got is the length actually supplied.
	Got int
}

// Error implements the error interface for BatchError.
func (e *BatchError) Error() string {
	return fmt.Sprintf("batch shape error: %s has %d entries, want %d", e.Field, e.Got, e.Want)
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets callers match validation failures with ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity}
}
