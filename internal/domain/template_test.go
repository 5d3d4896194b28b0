package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var judgePlaceholders = []string{PlaceholderQuestion, PlaceholderPredict, PlaceholderLabel}

func TestNewJudgeTemplate(t *testing.T) {
	t.Run("missing placeholder", func(t *testing.T) {
		_, err := NewJudgeTemplate("Q: {question} A: {predict}", judgePlaceholders)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
		assert.Contains(t, err.Error(), "{label}")
	})

	t.Run("blank template", func(t *testing.T) {
		_, err := NewJudgeTemplate("  ", judgePlaceholders)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})
}

func TestJudgeTemplateRender(t *testing.T) {
	tmpl, err := NewJudgeTemplate(
		`Return JSON like {"score": 1}. Q={question} P={predict} L={label} {unknown}`,
		judgePlaceholders,
	)
	require.NoError(t, err)

	got := tmpl.Render(map[string]string{
		PlaceholderQuestion: "what is {label}?",
		PlaceholderPredict:  "4",
		PlaceholderLabel:    "four",
	})

	// Literal braces and unknown placeholders survive; substituted values are not re-expanded.
	assert.Equal(t, `Return JSON like {"score": 1}. Q=what is {label}? P=4 L=four {unknown}`, got)
}

func TestAnswerFromValue(t *testing.T) {
	assert.Equal(t, AnswerText, AnswerFromValue("x").Kind())
	assert.Equal(t, AnswerRecord, AnswerFromValue(map[string]any{"a": 1.0}).Kind())
	assert.Equal(t, AnswerBoxes, AnswerFromValue([]any{[]any{1.0, 2.0, 3.0, 4.0}}).Kind())
	assert.True(t, AnswerFromValue([]any{"x"}).IsAbsent())
	assert.True(t, AnswerFromValue(nil).IsAbsent())

	boxes, ok := AnswerFromValue([]any{[]any{1.0, 2.0}}).Boxes()
	require.True(t, ok)
	assert.Equal(t, [][]float64{{1, 2}}, boxes)
}

func TestAnswerImmutability(t *testing.T) {
	src := map[string]any{"action_type": "click"}
	a := RecordAnswer(src)
	src["action_type"] = "type"

	rec, ok := a.Record()
	require.True(t, ok)
	assert.Equal(t, "click", rec["action_type"])

	rec["action_type"] = "scroll"
	again, _ := a.Record()
	assert.Equal(t, "click", again["action_type"])
}
