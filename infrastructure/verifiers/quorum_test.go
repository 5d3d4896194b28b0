package verifiers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/testutils"
)

func newTestPanel(t *testing.T, judge *testutils.MockJudge, n int) *Panel {
	t.Helper()
	settings := DefaultJudgeSettings()
	settings.URLs = testutils.URLs(n)
	settings.PromptTemplate = binaryTemplate
	p, err := newPanel("panel", settings, testDeps(judge), standardPlaceholders)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func TestPanel_Majority(t *testing.T) {
	urls := testutils.URLs(3)
	boom := errors.New("connection refused")

	tests := []struct {
		name    string
		script  func(*testutils.MockJudge)
		want    float64
		wantErr error
	}{
		{
			name: "two of three agree",
			script: func(m *testutils.MockJudge) {
				m.Reply(urls[0], "1.0").Reply(urls[1], "1.0").Reply(urls[2], "0.0")
			},
			want: 1,
		},
		{
			name: "one of three agrees",
			script: func(m *testutils.MockJudge) {
				m.Reply(urls[0], "1.0").Reply(urls[1], "0.0").Reply(urls[2], "0.0")
			},
			want: 0,
		},
		{
			name: "failed endpoints count against the answer",
			script: func(m *testutils.MockJudge) {
				m.Reply(urls[0], "1.0").Fail(urls[1], boom).Fail(urls[2], boom)
			},
			want: 0,
		},
		{
			name: "unparseable replies count against the answer",
			script: func(m *testutils.MockJudge) {
				m.Reply(urls[0], "1.0").Reply(urls[1], "1.0").Reply(urls[2], "no idea")
			},
			want: 1,
		},
		{
			name: "every endpoint failing is unavailable",
			script: func(m *testutils.MockJudge) {
				m.Fail(urls[0], boom).Fail(urls[1], boom).Fail(urls[2], boom)
			},
			wantErr: domain.ErrJudgeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a three-endpoint panel with scripted replies
			judge := testutils.NewMockJudge()
			tt.script(judge)
			p := newTestPanel(t, judge, 3)

			// When the panel votes
			v := p.Majority(context.Background(), judgeValues("q", "a", "b"), parseBinaryReply)

			// Then the verdict follows the strict majority over all endpoints
			assert.Equal(t, 3, judge.Calls())
			if tt.wantErr != nil {
				assert.ErrorIs(t, v.Err, tt.wantErr)
				return
			}
			require.NoError(t, v.Err)
			assert.Equal(t, tt.want, v.Score)
		})
	}
}

func TestPanel_Mean(t *testing.T) {
	urls := testutils.URLs(2)
	judge := testutils.NewMockJudge().
		Reply(urls[0], `{"score": 1}`).
		Fail(urls[1], errors.New("timeout"))
	p := newTestPanel(t, judge, 2)

	v := p.Mean(context.Background(), judgeValues("q", "a", "b"), parseScoreReply)

	require.NoError(t, v.Err)
	assert.Equal(t, 0.5, v.Score)
}

func TestPanel_RendersPromptAndSettings(t *testing.T) {
	// Given a panel with one endpoint
	judge := testutils.NewMockJudge().Default("1.0")
	p := newTestPanel(t, judge, 1)

	// When the panel is polled
	p.Majority(context.Background(), judgeValues("What is 2+2?", "4", "four"), parseBinaryReply)

	// Then the request carries the rendered prompt and sampling settings
	reqs := judge.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Question: What is 2+2?\nAnswer: 4\nReference: four\nReply 1.0 or 0.0.", reqs[0].Prompt)
	assert.Equal(t, DefaultJudgeMaxTokens, reqs[0].MaxTokens)
	assert.Equal(t, DefaultJudgeTemperature, reqs[0].Temperature)
	assert.Equal(t, DefaultJudgeModel, reqs[0].Endpoint.Model)
	assert.Equal(t, DefaultJudgeProvider, reqs[0].Endpoint.Provider)
}

func TestNewPanel(t *testing.T) {
	t.Run("disabled fallback yields no panel", func(t *testing.T) {
		settings := DefaultJudgeSettings()
		settings.Enabled = false
		settings.URLs = testutils.URLs(1)
		p, err := newPanel("p", settings, testDeps(nil), standardPlaceholders)
		require.NoError(t, err)
		assert.Nil(t, p)
		assert.Equal(t, 0, p.Size())
	})

	t.Run("no endpoints yields no panel", func(t *testing.T) {
		p, err := newPanel("p", DefaultJudgeSettings(), testDeps(nil), standardPlaceholders)
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("blank template reports unavailable", func(t *testing.T) {
		settings := DefaultJudgeSettings()
		settings.URLs = testutils.URLs(1)
		judge := testutils.NewMockJudge().Default("1.0")
		p, err := newPanel("p", settings, testDeps(judge), standardPlaceholders)
		require.NoError(t, err)

		v := p.Majority(context.Background(), judgeValues("q", "a", "b"), parseBinaryReply)
		assert.ErrorIs(t, v.Err, domain.ErrJudgeUnavailable)
		assert.Zero(t, judge.Calls())
	})

	t.Run("template missing a placeholder is rejected", func(t *testing.T) {
		settings := DefaultJudgeSettings()
		settings.URLs = testutils.URLs(1)
		settings.PromptTemplate = "Answer: {predict}"
		_, err := newPanel("p", settings, testDeps(nil), standardPlaceholders)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("model list must match urls", func(t *testing.T) {
		settings := DefaultJudgeSettings()
		settings.URLs = testutils.URLs(3)
		settings.Models = StringList{"a", "b"}
		settings.PromptTemplate = binaryTemplate
		_, err := newPanel("p", settings, testDeps(nil), standardPlaceholders)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})
}
