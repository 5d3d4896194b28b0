package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-reward/infrastructure/verifiers"
	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/observability"
	"github.com/ahrav/go-reward/internal/ports"
	"github.com/ahrav/go-reward/internal/testutils"
)

// echoVerifier scores the integer in the boxed span as a percentage after
// sleeping inversely to it, so later requests tend to finish first. A
// non-integer span scores the undefined sentinel.
type echoVerifier struct {
	floor float64
	panic bool
}

func (echoVerifier) Kind() string { return "echo" }

func (v echoVerifier) MinReward() float64 { return v.floor }

func (echoVerifier) ExtractAnswer(_ context.Context, response, _ string) (domain.Answer, error) {
	span, err := domain.SingleSpan(response)
	if err != nil {
		return domain.Absent(), err
	}
	return domain.TextAnswer(span), nil
}

func (v echoVerifier) Judge(_ context.Context, extracted, _ domain.Answer, _, _ string) domain.Verdict {
	if v.panic {
		panic("judge exploded")
	}
	text, _ := extracted.Text()
	n, err := strconv.Atoi(text)
	if err != nil {
		return domain.UndefinedVerdict()
	}
	time.Sleep(time.Duration(20-n%20) * time.Millisecond)
	return domain.Scored(float64(n) / 100)
}

func echoFactory(v echoVerifier) ports.VerifierFactory {
	return func(string, map[string]any, ports.VerifierDeps) (ports.Verifier, error) { return v, nil }
}

type fixture struct {
	system  *RewardSystem
	audit   *testutils.MemoryAuditSink
	metrics *testutils.MetricsRecorder
}

func newFixture(t *testing.T, mix bool) fixture {
	t.Helper()
	cfg := mappedConfig(map[string]VerifierConfig{
		"math":        {Kind: verifiers.KindMath},
		"math_inf":    {Kind: verifiers.KindMath, Params: map[string]any{"min_reward": domain.Undefined}},
		"consistency": {Kind: verifiers.KindConsistency},
		"echo":        {Kind: "echo"},
		"explosive":   {Kind: "explosive"},
	})
	cfg.EnableMixVerifier = mix
	cfg.MaxWorkers = 4

	registry := NewVerifierRegistry(cfg, testVerifierDeps())
	require.NoError(t, registry.RegisterFactory("echo", echoFactory(echoVerifier{})))
	require.NoError(t, registry.RegisterFactory("explosive", echoFactory(echoVerifier{floor: -0.5, panic: true})))

	f := fixture{audit: testutils.NewMemoryAuditSink(), metrics: &testutils.MetricsRecorder{}}
	system, err := NewRewardSystem(cfg, RewardSystemDeps{
		Registry: registry,
		Audit:    f.audit,
		Metrics:  f.metrics,
		Logger:   observability.Discard(),
	})
	require.NoError(t, err)
	f.system = system
	return f
}

func batchOf(datasource string, answers, references []string) domain.Batch {
	b := domain.Batch{
		Prompts:     make([]string, len(answers)),
		Answers:     answers,
		References:  references,
		Datasources: make([]string, len(answers)),
	}
	for i := range answers {
		b.Prompts[i] = fmt.Sprintf("question %d", i)
		b.Datasources[i] = datasource
	}
	return b
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestRewardSystem_PerItemPipeline(t *testing.T) {
	f := newFixture(t, true)
	mixed := "<think>" + strings.Repeat("这是一个很长的中文段落", 6) + "\n\n" +
		strings.TrimSpace(strings.Repeat("this paragraph is written in plain english ", 30)) +
		"</think><answer>" + domain.BeginOfBox + "4" + domain.EndOfBox + "</answer>"

	tests := []struct {
		name          string
		answer        string
		reference     string
		want          float64
		wantExtracted bool
		wantReference bool
		outcome       string
	}{
		{"correct", testutils.Boxed("4"), testutils.Boxed("4"), 1, true, true, OutcomeScored},
		{"equivalent", testutils.Boxed(`\frac{8}{2}`), testutils.Boxed("4"), 1, true, true, OutcomeScored},
		{"wrong", testutils.Boxed("5"), testutils.Boxed("4"), 0, true, true, OutcomeScored},
		{"answer without reasoning", "<answer>4</answer>", testutils.Boxed("4"), 0, false, false, OutcomeBadFormat},
		{"reference with bad format", testutils.Boxed("4"), "4", 0, false, false, OutcomeBadReference},
		{"language mix", mixed, testutils.Boxed("4"), 0, false, false, OutcomeLanguageMix},
		{"reference without span", testutils.Boxed("4"), testutils.Unboxed("4"), 0, false, false, OutcomeBadReference},
		{"answer without span", testutils.Unboxed("4"), testutils.Boxed("4"), 0, false, true, OutcomeNoAnswer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.system.Evaluate(context.Background(),
				batchOf("math", []string{tt.answer}, []string{tt.reference}), EvaluateOptions{})
			require.NoError(t, err)
			require.Len(t, res.Rewards, 1)
			assert.Equal(t, tt.want, res.Rewards[0])
			assert.Equal(t, tt.wantExtracted, !res.Extracted[0].IsAbsent())
			assert.Equal(t, tt.wantReference, !res.References[0].IsAbsent())
		})
	}

	t.Run("outcomes are counted", func(t *testing.T) {
		for _, tt := range tests {
			assert.Positive(t, f.metrics.Total("reward_requests_total",
				map[string]string{"datasource": "math", "outcome": tt.outcome}), tt.outcome)
		}
	})
}

func TestRewardSystem_MixGateDisabled(t *testing.T) {
	f := newFixture(t, false)
	mixed := "<think>" + strings.Repeat("这是一个很长的中文段落", 6) + "\n\n" +
		strings.TrimSpace(strings.Repeat("this paragraph is written in plain english ", 30)) +
		"</think><answer>" + domain.BeginOfBox + "4" + domain.EndOfBox + "</answer>"

	rewards, err := f.system.Rewards(context.Background(),
		batchOf("math", []string{mixed}, []string{testutils.Boxed("4")}), EvaluateOptions{})

	require.NoError(t, err)
	assert.Equal(t, []float64{1}, rewards)
}

func TestRewardSystem_OrderPreserved(t *testing.T) {
	// Given more requests than workers, with judge latency falling by index
	f := newFixture(t, false)
	const n = 40
	answers := make([]string, n)
	for i := range answers {
		answers[i] = testutils.Boxed(strconv.Itoa(i))
	}

	// When the batch is scored
	res, err := f.system.Evaluate(context.Background(),
		batchOf("echo", answers, repeat(testutils.Boxed("0"), n)), EvaluateOptions{})

	// Then reward i belongs to request i
	require.NoError(t, err)
	require.Len(t, res.Rewards, n)
	for i, r := range res.Rewards {
		assert.InDelta(t, float64(i)/100, r, 1e-12)
		text, _ := res.Extracted[i].Text()
		assert.Equal(t, strconv.Itoa(i), text)
	}
}

func TestRewardSystem_Sentinels(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	t.Run("all undefined become zero", func(t *testing.T) {
		rewards, err := f.system.Rewards(ctx, batchOf("math_inf",
			[]string{"garbage", testutils.Unboxed("4")},
			repeat(testutils.Boxed("4"), 2)), EvaluateOptions{})
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0}, rewards)
	})

	t.Run("undefined take the lowest finite reward", func(t *testing.T) {
		rewards, err := f.system.Rewards(ctx, batchOf("echo",
			[]string{testutils.Boxed("70"), testutils.Boxed("x"), testutils.Boxed("30")},
			repeat(testutils.Boxed("0"), 3)), EvaluateOptions{})
		require.NoError(t, err)
		assert.Equal(t, []float64{0.7, 0.3, 0.3}, rewards)
	})
}

func TestRewardSystem_PanicScoresFloor(t *testing.T) {
	f := newFixture(t, false)

	rewards, err := f.system.Rewards(context.Background(),
		batchOf("explosive", []string{testutils.Boxed("1")}, []string{testutils.Boxed("1")}), EvaluateOptions{})

	require.NoError(t, err)
	assert.Equal(t, []float64{-0.5}, rewards)
	assert.Equal(t, 1.0, f.metrics.Total("reward_requests_total", map[string]string{"outcome": OutcomePanic}))
}

func TestRewardSystem_BatchVerifier(t *testing.T) {
	// Given a consistency group where the majority is right
	f := newFixture(t, false)
	answers := []string{testutils.Boxed("4"), testutils.Boxed("4"), testutils.Boxed("5"), "garbled"}

	// When the group is scored
	res, err := f.system.Evaluate(context.Background(),
		batchOf("consistency", answers, repeat(testutils.Boxed("4"), 4)), EvaluateOptions{})

	// Then the batch verdicts are used and the undefined one is normalized
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 0, 0}, res.Rewards)
	assert.True(t, res.Extracted[3].IsAbsent())
	text, ok := res.Extracted[2].Text()
	require.True(t, ok)
	assert.Equal(t, "5", text)
	for _, ref := range res.References {
		assert.False(t, ref.IsAbsent())
	}
}

func TestRewardSystem_CallerErrors(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	t.Run("misaligned lists", func(t *testing.T) {
		b := batchOf("math", []string{"a", "b"}, []string{"a"})
		_, err := f.system.Evaluate(ctx, b, EvaluateOptions{})
		var batchErr *domain.BatchError
		require.ErrorAs(t, err, &batchErr)
		assert.Equal(t, "gt_answers", batchErr.Field)
	})

	t.Run("mixed datasources", func(t *testing.T) {
		b := batchOf("math", repeat("a", 2), repeat("a", 2))
		b.Datasources[1] = "echo"
		_, err := f.system.Evaluate(ctx, b, EvaluateOptions{})
		assert.ErrorIs(t, err, domain.ErrMixedDatasources)
	})

	t.Run("unknown datasource", func(t *testing.T) {
		_, err := f.system.Evaluate(ctx, batchOf("poetry", repeat("a", 1), repeat("a", 1)), EvaluateOptions{})
		assert.ErrorIs(t, err, ErrUnknownDatasource)
	})

	t.Run("missing datasources use default", func(t *testing.T) {
		b := batchOf("math", repeat("a", 1), repeat("a", 1))
		b.Datasources = nil
		_, err := f.system.Evaluate(ctx, b, EvaluateOptions{})
		assert.ErrorIs(t, err, ErrUnknownDatasource)
		assert.Contains(t, err.Error(), domain.DefaultDatasource)
	})

	t.Run("empty batch", func(t *testing.T) {
		res, err := f.system.Evaluate(ctx, domain.Batch{}, EvaluateOptions{})
		require.NoError(t, err)
		assert.Empty(t, res.Rewards)
	})
}

func TestRewardSystem_Audit(t *testing.T) {
	ctx := context.Background()

	t.Run("partitions", func(t *testing.T) {
		// Given a call with one passing and one failing answer
		f := newFixture(t, false)
		b := batchOf("math", []string{testutils.Boxed("4"), testutils.Boxed("5")}, repeat(testutils.Boxed("4"), 2))
		b.IDs = []string{"id-0", ""}
		b.AnswerLengths = []int{12, 7}

		// When it is scored with logging on
		_, err := f.system.Evaluate(ctx, b, EvaluateOptions{Log: true, Iteration: 3})
		require.NoError(t, err)

		// Then the whole call is filed under pass@k and each record by sign
		pass := f.audit.Records("math", domain.PartitionPass)
		require.Len(t, pass, 2)
		assert.Empty(t, f.audit.Records("math", domain.PartitionNotPass))
		assert.Equal(t, 3, pass[0].CurrentIteration)
		assert.Equal(t, 1.0, pass[0].RewardSum)
		assert.Equal(t, 12, pass[0].AnswerLength)
		assert.Equal(t, "id-0", pass[0].UUID)
		assert.NotEmpty(t, pass[1].UUID)

		correct := f.audit.Records("math", domain.PartitionCorrect)
		incorrect := f.audit.Records("math", domain.PartitionIncorrect)
		require.Len(t, correct, 1)
		require.Len(t, incorrect, 1)
		assert.Equal(t, 1.0, correct[0].Reward)
		assert.Equal(t, 0.0, incorrect[0].Reward)
	})

	t.Run("logging off", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.system.Evaluate(ctx, batchOf("math", repeat(testutils.Boxed("4"), 1), repeat(testutils.Boxed("4"), 1)), EvaluateOptions{})
		require.NoError(t, err)
		assert.Empty(t, f.audit.Records("math", domain.PartitionPass))
	})

	t.Run("sink failure keeps rewards", func(t *testing.T) {
		f := newFixture(t, false)
		f.audit.FailWith(errors.New("disk full"))
		rewards, err := f.system.Rewards(ctx, batchOf("math", repeat(testutils.Boxed("4"), 1), repeat(testutils.Boxed("4"), 1)), EvaluateOptions{Log: true})
		require.NoError(t, err)
		assert.Equal(t, []float64{1}, rewards)
	})
}

func TestRewardSystem_ExtractAnswers(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	got, err := f.system.ExtractAnswers(ctx,
		[]string{testutils.Boxed("42"), "no span here"},
		[]string{"math", "echo"})
	require.NoError(t, err)
	text, _ := got[0].Text()
	assert.Equal(t, "42", text)
	assert.True(t, got[1].IsAbsent())

	_, err = f.system.ExtractAnswers(ctx, []string{"a"}, nil)
	var batchErr *domain.BatchError
	assert.ErrorAs(t, err, &batchErr)

	_, err = f.system.ExtractAnswers(ctx, []string{"a"}, []string{"poetry"})
	assert.ErrorIs(t, err, ErrUnknownDatasource)
}

func TestNewRewardSystem(t *testing.T) {
	_, err := NewRewardSystem(nil, RewardSystemDeps{})
	assert.ErrorIs(t, err, ErrNilRegistry)

	rs, err := NewRewardSystem(nil, RewardSystemDeps{Registry: NewVerifierRegistry(nil, testVerifierDeps())})
	require.NoError(t, err)
	assert.NotNil(t, rs.mixGate)
	assert.Contains(t, rs.Kinds(), verifiers.KindMath)
}
