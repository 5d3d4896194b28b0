package verifiers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-reward/internal/domain"
)

func TestLanguageMixVerifier(t *testing.T) {
	chinese := strings.Repeat("这是一个很长的中文段落", 6)
	english := strings.TrimSpace(strings.Repeat("this paragraph is written in plain english ", 30))

	v, err := NewLanguageMixVerifier("mix", DefaultLanguageMixConfig())
	require.NoError(t, err)

	tests := []struct {
		name     string
		response string
		want     float64
	}{
		{"english only", english, 1},
		{"chinese only", chinese, 1},
		{"long paragraphs in both languages", chinese + "\n\n" + english, 0},
		{"short english aside", chinese + "\n\nsee figure one", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ans, err := v.ExtractAnswer(context.Background(), tt.response, "")
			require.NoError(t, err)

			got := v.Judge(context.Background(), ans, domain.Absent(), "", "")
			require.NoError(t, got.Err)
			assert.Equal(t, tt.want, got.Score)
		})
	}
}

func TestLanguageMixVerifier_Thresholds(t *testing.T) {
	v, err := NewLanguageMixVerifierFromConfig("mix", map[string]any{
		"min_chinese_chars": 5,
		"min_english_words": 5,
	}, testDeps(nil))
	require.NoError(t, err)

	mixed := v.(*LanguageMixVerifier).Mixed("这是中文段落测试\n\nthis is an english paragraph")
	assert.True(t, mixed)

	_, err = NewLanguageMixVerifierFromConfig("mix", map[string]any{"min_chinese_chars": 0}, testDeps(nil))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
