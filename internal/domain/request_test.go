package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchDatasource(t *testing.T) {
	base := func() Batch {
		return Batch{
			Prompts:    []string{"p1", "p2"},
			Answers:    []string{"a1", "a2"},
			References: []string{"r1", "r2"},
		}
	}

	t.Run("defaults when no datasources", func(t *testing.T) {
		ds, err := base().Datasource()
		require.NoError(t, err)
		assert.Equal(t, DefaultDatasource, ds)
	})

	t.Run("shared datasource", func(t *testing.T) {
		b := base()
		b.Datasources = []string{"math", "math"}
		ds, err := b.Datasource()
		require.NoError(t, err)
		assert.Equal(t, "math", ds)
	})

	t.Run("mixed datasources", func(t *testing.T) {
		b := base()
		b.Datasources = []string{"math", "ocr"}
		_, err := b.Datasource()
		assert.ErrorIs(t, err, ErrMixedDatasources)
	})

	shapeTests := []struct {
		name  string
		mut   func(*Batch)
		field string
	}{
		{"short answers", func(b *Batch) { b.Answers = b.Answers[:1] }, "answers"},
		{"short references", func(b *Batch) { b.References = nil }, "gt_answers"},
		{"short uuids", func(b *Batch) { b.IDs = []string{"x"} }, "uuids"},
		{"long image files", func(b *Batch) { b.ImageFiles = []string{"a", "b", "c"} }, "image_files"},
		{"short lengths", func(b *Batch) { b.AnswerLengths = []int{} }, "answer_lengths"},
	}
	for _, tt := range shapeTests {
		t.Run(tt.name, func(t *testing.T) {
			b := base()
			tt.mut(&b)
			_, err := b.Datasource()

			var be *BatchError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.field, be.Field)
			assert.Equal(t, 2, be.Want)
		})
	}
}

func TestBatchRequests(t *testing.T) {
	// Given a batch with optional lists supplied
	b := Batch{
		Prompts:       []string{"p1", "p2"},
		Answers:       []string{"a1", "a2"},
		References:    []string{"r1", "r2"},
		Datasources:   []string{"chart", "chart"},
		IDs:           []string{"u1", "u2"},
		ImageFiles:    []string{"i1.png", ""},
		AnswerLengths: []int{10, 20},
	}

	// When it is expanded
	reqs, err := b.Requests()

	// Then every request carries its aligned fields
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, Request{
		Prompt: "p2", Answer: "a2", Reference: "r2", Datasource: "chart",
		ID: "u2", ImageFile: "", AnswerLength: 20,
	}, reqs[1])
}

func TestBatchRequests_DefaultsOptionalFields(t *testing.T) {
	b := Batch{Prompts: []string{"p"}, Answers: []string{"a"}, References: []string{"r"}}

	reqs, err := b.Requests()

	require.NoError(t, err)
	assert.Equal(t, DefaultAnswerLength, reqs[0].AnswerLength)
	assert.Equal(t, DefaultDatasource, reqs[0].Datasource)
	assert.Empty(t, reqs[0].ID)
}
