package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchError(t *testing.T) {
	err := &BatchError{Field: "gt_answers", Want: 3, Got: 2}

	assert.Equal(t, "batch shape error: gt_answers has 2 entries, want 3", err.Error())

	var target *BatchError
	wrapped := fmt.Errorf("evaluate: %w", err)
	assert.True(t, errors.As(wrapped, &target), "Should unwrap to BatchError")
	assert.Equal(t, "gt_answers", target.Field)
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("RewardSystemConfig")
		err.AddError("max_workers must be positive")

		assert.Equal(t, "validation error for RewardSystemConfig: max_workers must be positive", err.Error())
		assert.True(t, err.HasErrors(), "Should have errors")
		assert.Len(t, err.Errors, 1, "Should have one error")
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("reward_configs.math")
		err.AddError("tolerance must be positive")
		err.AddError("llm_judge_url is required")

		assert.Contains(t, err.Error(), "validation errors for reward_configs.math")
		assert.Len(t, err.Errors, 2, "Should have two errors")
	})

	t.Run("no errors", func(t *testing.T) {
		err := NewValidationError("Config")

		assert.False(t, err.HasErrors(), "Should not have errors")
		assert.Empty(t, err.Errors, "Errors slice should be empty")
	})

	t.Run("matches invalid configuration", func(t *testing.T) {
		err := NewValidationError("Config")
		err.AddError("bad")

		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})
}

func TestSoftFailuresAreDistinct(t *testing.T) {
	reasons := []error{
		ErrBadFormat, ErrBadReference, ErrNoSpan, ErrMultipleSpans, ErrMalformedSpan,
		ErrExtractionFailed, ErrLanguageMix, ErrTypeMismatch, ErrJudgeUnavailable,
	}
	for i, a := range reasons {
		for j, b := range reasons {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}
