package verifiers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-reward/internal/testutils"
)

func TestOCRVerifier_Judge(t *testing.T) {
	tests := []struct {
		name       string
		upper      float64
		lower      float64
		ignoreCase bool
		candidate  string
		reference  string
		want       float64
	}{
		{"identical", 1, 0, false, "Hello World", "Hello World", 1},
		{"whitespace ignored", 1, 0, false, "Hel lo\nWorld", "HelloWorld", 1},
		{"case sensitive by default", 1, 0, false, "abcd", "ABCD", 0},
		{"case ignored when configured", 1, 0, true, "abcd", "ABCD", 1},
		{"partial similarity", 1, 0, false, "abce", "abcd", 0.75},
		{"at upper bound", 0.75, 0, false, "abce", "abcd", 1},
		{"at lower bound", 1, 0.75, false, "abce", "abcd", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultOCRConfig()
			cfg.UpperBound = tt.upper
			cfg.LowerBound = tt.lower
			cfg.IgnoreCase = tt.ignoreCase
			v, err := NewOCRVerifier("ocr", cfg, testDeps(nil))
			require.NoError(t, err)

			got := v.Judge(context.Background(), text(tt.candidate), text(tt.reference), "", "")
			require.NoError(t, got.Err)
			assert.InDelta(t, tt.want, got.Score, 1e-12)
		})
	}
}

func TestOCRVerifier_JudgeCanOnlyRaise(t *testing.T) {
	newVerifier := func(reply string) (*OCRVerifier, *testutils.MockJudge) {
		judge := testutils.NewMockJudge().Default(reply)
		cfg := DefaultOCRConfig()
		cfg.URLs = testutils.URLs(1)
		cfg.PromptTemplate = binaryTemplate
		v, err := NewOCRVerifier("ocr", cfg, testDeps(judge))
		require.NoError(t, err)
		return v, judge
	}

	t.Run("approval raises to one", func(t *testing.T) {
		v, judge := newVerifier("1.0")
		got := v.Judge(context.Background(), text("abce"), text("abcd"), "", "")
		assert.Equal(t, 1.0, got.Score)
		assert.Equal(t, 1, judge.Calls())
	})

	t.Run("rejection keeps similarity", func(t *testing.T) {
		v, _ := newVerifier("0.0")
		got := v.Judge(context.Background(), text("abce"), text("abcd"), "", "")
		assert.InDelta(t, 0.75, got.Score, 1e-12)
	})

	t.Run("judge failure keeps similarity", func(t *testing.T) {
		v, _ := newVerifier("gibberish")
		got := v.Judge(context.Background(), text("abce"), text("abcd"), "", "")
		require.NoError(t, got.Err)
		assert.InDelta(t, 0.75, got.Score, 1e-12)
	})

	t.Run("exact match skips judge", func(t *testing.T) {
		v, judge := newVerifier("0.0")
		got := v.Judge(context.Background(), text("abcd"), text("abcd"), "", "")
		assert.Equal(t, 1.0, got.Score)
		assert.Zero(t, judge.Calls())
	})
}

func TestOCRVerifier_Config(t *testing.T) {
	t.Run("lower above upper rejected", func(t *testing.T) {
		_, err := NewOCRVerifierFromConfig("ocr", map[string]any{
			"edit_distance_upper_bound": 0.5,
			"edit_distance_lower_bound": 0.8,
		}, testDeps(nil))
		assert.Error(t, err)
	})

	t.Run("string form", func(t *testing.T) {
		v, err := NewOCRVerifierFromConfig("ocr", map[string]any{"edit_distance_upper_bound": 0.9}, testDeps(nil))
		require.NoError(t, err)
		assert.Equal(t, "OCRVerifier(ocr, bounds=[0, 0.9])", v.(*OCRVerifier).String())
	})
}
