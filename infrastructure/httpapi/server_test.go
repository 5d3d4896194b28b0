package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-reward/internal/application"
	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeScorer scores every answer by its length parity and records the
// options of the last call.
type fakeScorer struct {
	err     error
	lastOpt application.EvaluateOptions
	last    domain.Batch
}

func (f *fakeScorer) Evaluate(_ context.Context, b domain.Batch, opts application.EvaluateOptions) (*application.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.last, f.lastOpt = b, opts
	res := &application.Result{}
	for i, a := range b.Answers {
		res.Rewards = append(res.Rewards, float64(len(a)%2))
		res.Extracted = append(res.Extracted, domain.TextAnswer(a))
		res.References = append(res.References, domain.TextAnswer(b.References[i]))
	}
	return res, nil
}

func (f *fakeScorer) ExtractAnswers(_ context.Context, answers, datasources []string) ([]domain.Answer, error) {
	if len(answers) != len(datasources) {
		return nil, &domain.BatchError{Field: "datasources", Want: len(answers), Got: len(datasources)}
	}
	out := make([]domain.Answer, len(answers))
	for i, a := range answers {
		out[i] = domain.TextAnswer(a + "@" + datasources[i])
	}
	return out, nil
}

func (f *fakeScorer) Kinds() []string { return []string{"math", "ocr"} }

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Rewards(t *testing.T) {
	t.Run("scores and echoes extractions on request", func(t *testing.T) {
		// Given a server over a scorer
		scorer := &fakeScorer{}
		h := NewServer(scorer, nil, nil).Handler()

		// When a batch is posted with extraction and logging enabled
		rec := do(t, h, http.MethodPost, "/v1/rewards", map[string]any{
			"prompts":           []string{"p1", "p2"},
			"answers":           []string{"a", "bb"},
			"gt_answers":        []string{"x", "y"},
			"datasources":       []string{"math", "math"},
			"log":               true,
			"current_iteration": 7,
			"return_extracted":  true,
		})

		// Then rewards come back index-aligned with the extractions
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Rewards    []float64 `json:"rewards"`
			Extracted  []any     `json:"extracted_answers"`
			References []any     `json:"extracted_gt_answers"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []float64{1, 0}, resp.Rewards)
		assert.Equal(t, []any{"a", "bb"}, resp.Extracted)
		assert.Equal(t, []any{"x", "y"}, resp.References)
		assert.Equal(t, application.EvaluateOptions{Log: true, Iteration: 7}, scorer.lastOpt)
		assert.Equal(t, []string{"math", "math"}, scorer.last.Datasources)
	})

	t.Run("extractions omitted by default", func(t *testing.T) {
		h := NewServer(&fakeScorer{}, nil, nil).Handler()
		rec := do(t, h, http.MethodPost, "/v1/rewards", map[string]any{
			"prompts": []string{"p"}, "answers": []string{"a"}, "gt_answers": []string{"g"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "extracted_answers")
	})

	t.Run("error statuses", func(t *testing.T) {
		tests := []struct {
			name string
			err  error
			want int
		}{
			{"shape", &domain.BatchError{Field: "answers", Want: 2, Got: 1}, http.StatusBadRequest},
			{"mixed", domain.ErrMixedDatasources, http.StatusBadRequest},
			{"unknown datasource", ports.NewConfigError("x", fmt.Errorf("%w: %q", application.ErrUnknownDatasource, "x")), http.StatusUnprocessableEntity},
			{"cancelled", context.Canceled, http.StatusServiceUnavailable},
			{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				h := NewServer(&fakeScorer{err: tt.err}, nil, nil).Handler()
				rec := do(t, h, http.MethodPost, "/v1/rewards", map[string]any{"prompts": []string{}})
				assert.Equal(t, tt.want, rec.Code)
				assert.Contains(t, rec.Body.String(), "error")
			})
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		h := NewServer(&fakeScorer{}, nil, nil).Handler()
		rec := do(t, h, http.MethodPost, "/v1/rewards", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Extract(t *testing.T) {
	h := NewServer(&fakeScorer{}, nil, nil).Handler()

	rec := do(t, h, http.MethodPost, "/v1/extract", ExtractRequest{
		Answers: []string{"a", "b"}, Datasources: []string{"math", "ocr"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"extracted_answers":["a@math","b@ocr"]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/extract", ExtractRequest{
		Answers: []string{"a", "b"}, Datasources: []string{"math"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/extract", map[string]any{"answers": []string{"a"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_AuxiliaryRoutes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("reward_requests_total 1\n"))
	})
	h := NewServer(&fakeScorer{}, metrics, nil).Handler()

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/kinds", nil)
	assert.JSONEq(t, `{"kinds":["math","ocr"]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reward_requests_total")

	noMetrics := NewServer(&fakeScorer{}, nil, nil).Handler()
	assert.Equal(t, http.StatusNotFound, do(t, noMetrics, http.MethodGet, "/metrics", nil).Code)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(&fakeScorer{}, nil, nil).Run(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
