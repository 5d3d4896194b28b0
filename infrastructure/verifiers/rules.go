package verifiers

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

var _ ports.Verifier = (*RuleVerifier)(nil)

// RuleKinds lists the verifier kinds served by RuleVerifier.
var RuleKinds = []string{
	KindMath, KindMultiImage, KindMMSI, KindVQA, KindLiberalArts, KindLongDoc,
	KindPhysics, KindChemistry, KindChart, KindBiology, KindGeography, KindCounting,
}

// RuleConfig configures a rule-based verifier.
type RuleConfig struct {
	BaseConfig    `yaml:",inline"`
	JudgeSettings `yaml:",inline"`

	// Tolerance bounds the relative error accepted for numeric answers.
	Tolerance float64 `yaml:"sympy_tolerance" json:"sympy_tolerance" validate:"gt=0,lt=1"`

	// AnswerExtractionRegex replaces the default reasoning/answer split.
	// Group 1 is the reasoning and group 2 the answer.
	AnswerExtractionRegex string `yaml:"answer_extraction_regex" json:"answer_extraction_regex"`
}

// DefaultRuleConfig returns the rule verifier defaults.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		BaseConfig:    DefaultBaseConfig(),
		JudgeSettings: DefaultJudgeSettings(),
		Tolerance:     DefaultTolerance,
	}
}

// RuleVerifier judges textual answers with a fixed sequence of rule stages
// that ends in an optional remote-judge fallback. The stage list depends on
// the kind: math answers go through symbolic equivalence, science answers
// with units go straight to the judge, chart answers treat years exactly,
// and so on.
//
// RuleVerifier is immutable after construction and safe for concurrent use.
type RuleVerifier struct {
	name      string
	kind      string
	config    RuleConfig
	extractor boxedExtractor
	stages    []stage
	reject    domain.Verdict
	panel     *Panel
	tracer    trace.Tracer
}

// NewRuleVerifier creates a rule verifier of the given kind.
func NewRuleVerifier(name, kind string, config RuleConfig, deps ports.VerifierDeps) (*RuleVerifier, error) {
	if name == "" {
		return nil, ErrEmptyVerifierName
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	segment, err := compileAnswerPattern(config.AnswerExtractionRegex)
	if err != nil {
		return nil, err
	}
	panel, err := newPanel(name, config.JudgeSettings, deps, standardPlaceholders)
	if err != nil {
		return nil, err
	}

	v := &RuleVerifier{
		name:      name,
		kind:      kind,
		config:    config,
		extractor: boxedExtractor{strict: config.StrictBoxedExtraction, segment: segment},
		panel:     panel,
		tracer:    otel.Tracer("reward-verifier"),
	}
	if err := v.assemble(deps.Algebra); err != nil {
		return nil, err
	}
	return v, nil
}

// assemble picks the stage list for the kind.
func (v *RuleVerifier) assemble(alg ports.AlgebraEvaluator) error {
	floor := domain.Scored(v.config.MinReward)
	zero := domain.Scored(0)
	tol := v.config.Tolerance
	fallback := remoteFallback(v.panel)

	needsAlgebra := v.kind != KindBiology && v.kind != KindCounting
	if needsAlgebra && alg == nil {
		return fmt.Errorf("%s verifier %q: %w", v.kind, v.name, ErrNoAlgebra)
	}

	switch v.kind {
	case KindMath, KindMultiImage, KindMMSI, KindVQA, KindLiberalArts, KindLongDoc:
		v.reject = floor
		v.stages = []stage{
			normalizeQuantities(),
			exactMatch(identity),
			symbolicMatch(alg, tol, floor),
			fallback,
		}
	case KindPhysics, KindChemistry:
		units := physicsUnits
		if v.kind == KindChemistry {
			units = chemistryUnits
		}
		v.reject = zero
		v.stages = []stage{
			exactMatch(strings.TrimSpace),
			unitRouting(units, judgeOr(v.panel, zero)),
			realNumberMatch(alg, tol, true, false, zero),
			fallback,
		}
	case KindChart:
		v.reject = floor
		v.stages = []stage{
			exactMatch(identity),
			realNumberMatch(alg, tol, true, true, floor),
			fallback,
		}
	case KindBiology:
		v.reject = floor
		v.stages = []stage{
			exactMatch(strings.TrimSpace),
			genotypeMatch(),
			fallback,
		}
	case KindGeography:
		v.reject = zero
		v.stages = []stage{
			exactMatch(foldTrim),
			listMatch(),
			realNumberMatch(alg, tol, false, false, zero),
			fallback,
		}
	case KindCounting:
		v.reject = floor
		v.stages = []stage{
			exactMatch(identity),
			integerMatch(),
			fallback,
		}
	default:
		return fmt.Errorf("%w: %q is not a rule verifier kind", ports.ErrUnknownVerifier, v.kind)
	}
	return nil
}

// judgeOr consults the panel, or decides reject when the fallback is off.
func judgeOr(panel *Panel, reject domain.Verdict) stage {
	ask := remoteFallback(panel)
	return func(ctx context.Context, c *textCase) (domain.Verdict, bool) {
		if v, ok := ask(ctx, c); ok {
			return v, true
		}
		return reject, true
	}
}

// Kind returns the verifier kind tag.
func (v *RuleVerifier) Kind() string { return v.kind }

// MinReward returns the configured floor.
func (v *RuleVerifier) MinReward() float64 { return v.config.MinReward }

// ExtractAnswer returns the single boxed span of the answer segment.
func (v *RuleVerifier) ExtractAnswer(_ context.Context, response, _ string) (domain.Answer, error) {
	return v.extractor.extract(response)
}

// Judge runs the stage list on two textual answers.
func (v *RuleVerifier) Judge(ctx context.Context, extracted, reference domain.Answer, question, image string) domain.Verdict {
	ctx, span := v.tracer.Start(ctx, "RuleVerifier.Judge", spanAttrs(v.name, v.kind))
	defer span.End()

	cand, ref, err := textPair(extracted, reference)
	if err != nil {
		verdict := domain.Failed(err)
		finishSpan(span, verdict, false)
		return verdict
	}

	c := &textCase{candidate: cand, reference: ref, question: question, image: image}
	verdict := runStages(ctx, c, v.stages, v.reject)
	finishSpan(span, verdict, c.usedJudge)
	return verdict
}

// RuleFactory returns the registry factory for a rule verifier kind.
func RuleFactory(kind string) ports.VerifierFactory {
	return func(name string, params map[string]any, deps ports.VerifierDeps) (ports.Verifier, error) {
		config := DefaultRuleConfig()
		if err := decodeParams(params, &config); err != nil {
			return nil, err
		}
		return NewRuleVerifier(name, kind, config, deps)
	}
}
