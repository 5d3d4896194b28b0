package verifiers

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

var _ ports.BatchVerifier = (*ConsistencyVerifier)(nil)

// DefaultAgreementWeight is the share of the reward given for agreeing with
// the group majority.
const DefaultAgreementWeight = 0.2

// ConsistencyConfig configures the cross-sample consistency verifier.
type ConsistencyConfig struct {
	RuleConfig `yaml:",inline"`

	// InnerKind is the rule verifier kind that decides correctness.
	InnerKind string `yaml:"inner_verifier_type" json:"inner_verifier_type"`

	// AgreementWeight blends correctness with agreement:
	// (1-w)*correct + w*agrees.
	AgreementWeight float64 `yaml:"agreement_weight" json:"agreement_weight" validate:"gte=0,lte=1"`
}

// DefaultConsistencyConfig returns the consistency defaults.
func DefaultConsistencyConfig() ConsistencyConfig {
	return ConsistencyConfig{
		RuleConfig:      DefaultRuleConfig(),
		InnerKind:       KindMath,
		AgreementWeight: DefaultAgreementWeight,
	}
}

// ConsistencyVerifier scores every sample of a rollout group against the
// reference and against the group's majority answer. It must see the whole
// group, so it is dispatched as a batch. Samples without an extractable
// answer score the undefined sentinel and are resolved by batch
// normalization.
type ConsistencyVerifier struct {
	name   string
	config ConsistencyConfig
	inner  *RuleVerifier
	tracer trace.Tracer
}

// NewConsistencyVerifier creates a consistency verifier.
func NewConsistencyVerifier(name string, config ConsistencyConfig, deps ports.VerifierDeps) (*ConsistencyVerifier, error) {
	if name == "" {
		return nil, ErrEmptyVerifierName
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	kind := strings.ToLower(config.InnerKind)
	if !slices.Contains(RuleKinds, kind) {
		return nil, fmt.Errorf("%w: inner_verifier_type %q, want one of %v",
			domain.ErrInvalidConfiguration, config.InnerKind, RuleKinds)
	}
	inner, err := NewRuleVerifier(name, kind, config.RuleConfig, deps)
	if err != nil {
		return nil, err
	}
	return &ConsistencyVerifier{
		name:   name,
		config: config,
		inner:  inner,
		tracer: otel.Tracer("reward-verifier"),
	}, nil
}

// NewConsistencyVerifierFromConfig decodes params over the defaults.
func NewConsistencyVerifierFromConfig(name string, params map[string]any, deps ports.VerifierDeps) (ports.Verifier, error) {
	config := DefaultConsistencyConfig()
	if err := decodeParams(params, &config); err != nil {
		return nil, err
	}
	return NewConsistencyVerifier(name, config, deps)
}

// Kind returns the verifier kind tag.
func (v *ConsistencyVerifier) Kind() string { return KindConsistency }

// MinReward returns the configured floor.
func (v *ConsistencyVerifier) MinReward() float64 { return v.config.MinReward }

// ExtractAnswer delegates to the inner verifier.
func (v *ConsistencyVerifier) ExtractAnswer(ctx context.Context, response, question string) (domain.Answer, error) {
	return v.inner.ExtractAnswer(ctx, response, question)
}

// Judge scores correctness alone, for callers outside a batch.
func (v *ConsistencyVerifier) Judge(ctx context.Context, extracted, reference domain.Answer, question, image string) domain.Verdict {
	return v.inner.Judge(ctx, extracted, reference, question, image)
}

// JudgeBatch scores the group.
func (v *ConsistencyVerifier) JudgeBatch(ctx context.Context, reqs []domain.Request) ([]domain.Verdict, error) {
	ctx, span := v.tracer.Start(ctx, "ConsistencyVerifier.JudgeBatch",
		spanAttrs(v.name, KindConsistency), trace.WithAttributes(attribute.Int("batch.size", len(reqs))))
	defer span.End()

	answers := make([]domain.Answer, len(reqs))
	for i, r := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ans, err := v.inner.ExtractAnswer(ctx, r.Answer, r.Prompt)
		if err != nil {
			ans = domain.Absent()
		}
		answers[i] = ans
	}
	majority := majorityAnswer(answers)

	w := v.config.AgreementWeight
	out := make([]domain.Verdict, len(reqs))
	for i, r := range reqs {
		if answers[i].IsAbsent() {
			out[i] = domain.UndefinedVerdict()
			continue
		}
		ref, err := v.inner.ExtractAnswer(ctx, r.Reference, r.Prompt)
		if err != nil {
			out[i] = domain.Failed(fmt.Errorf("%w: %w", domain.ErrBadReference, err))
			continue
		}
		correct := v.inner.Judge(ctx, answers[i], ref, r.Prompt, r.ImageFile)
		if !correct.OK() {
			out[i] = correct
			continue
		}
		agrees := 0.0
		if text, _ := answers[i].Text(); strings.TrimSpace(text) == majority {
			agrees = 1
		}
		out[i] = domain.Scored((1-w)*correct.Score + w*agrees)
	}
	return out, nil
}

// majorityAnswer returns the most frequent trimmed text answer. Ties go to
// the answer seen first.
func majorityAnswer(answers []domain.Answer) string {
	counts := make(map[string]int, len(answers))
	var order []string
	for _, a := range answers {
		text, ok := a.Text()
		if !ok {
			continue
		}
		text = strings.TrimSpace(text)
		if counts[text] == 0 {
			order = append(order, text)
		}
		counts[text]++
	}
	best, bestN := "", 0
	for _, t := range order {
		if counts[t] > bestN {
			best, bestN = t, counts[t]
		}
	}
	return best
}
