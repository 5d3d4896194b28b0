package verifiers

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

var _ ports.Verifier = (*OCRVerifier)(nil)

// OCRConfig configures the OCR transcription verifier.
type OCRConfig struct {
	BaseConfig    `yaml:",inline"`
	JudgeSettings `yaml:",inline"`

	// UpperBound is the similarity at or above which a transcription counts
	// as correct.
	UpperBound float64 `yaml:"edit_distance_upper_bound" json:"edit_distance_upper_bound" validate:"gte=0,lte=1,gtefield=LowerBound"`

	// LowerBound is the similarity at or below which a transcription scores 0.
	LowerBound float64 `yaml:"edit_distance_lower_bound" json:"edit_distance_lower_bound" validate:"gte=0,lte=1"`

	// IgnoreCase lowercases both transcriptions before comparison.
	IgnoreCase bool `yaml:"ignore_case" json:"ignore_case"`
}

// DefaultOCRConfig returns the OCR verifier defaults.
func DefaultOCRConfig() OCRConfig {
	return OCRConfig{
		BaseConfig:    DefaultBaseConfig(),
		JudgeSettings: DefaultJudgeSettings(),
		UpperBound:    1.0,
		LowerBound:    0.0,
	}
}

// OCRVerifier scores transcriptions by normalized edit distance with all
// whitespace removed. Scores strictly between the bounds may be raised to
// 1.0 by the remote judge but are never lowered by it.
type OCRVerifier struct {
	name      string
	config    OCRConfig
	extractor boxedExtractor
	panel     *Panel
	tracer    trace.Tracer
}

// NewOCRVerifier creates an OCR verifier.
func NewOCRVerifier(name string, config OCRConfig, deps ports.VerifierDeps) (*OCRVerifier, error) {
	if name == "" {
		return nil, ErrEmptyVerifierName
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	panel, err := newPanel(name, config.JudgeSettings, deps, standardPlaceholders)
	if err != nil {
		return nil, err
	}
	return &OCRVerifier{
		name:      name,
		config:    config,
		extractor: boxedExtractor{strict: config.StrictBoxedExtraction},
		panel:     panel,
		tracer:    otel.Tracer("reward-verifier"),
	}, nil
}

// NewOCRVerifierFromConfig decodes params over the defaults.
func NewOCRVerifierFromConfig(name string, params map[string]any, deps ports.VerifierDeps) (ports.Verifier, error) {
	config := DefaultOCRConfig()
	if err := decodeParams(params, &config); err != nil {
		return nil, err
	}
	return NewOCRVerifier(name, config, deps)
}

// Kind returns the verifier kind tag.
func (v *OCRVerifier) Kind() string { return KindOCR }

// MinReward returns the configured floor.
func (v *OCRVerifier) MinReward() float64 { return v.config.MinReward }

// ExtractAnswer returns the single boxed span of the answer segment.
func (v *OCRVerifier) ExtractAnswer(_ context.Context, response, _ string) (domain.Answer, error) {
	return v.extractor.extract(response)
}

// Judge compares two transcriptions.
func (v *OCRVerifier) Judge(ctx context.Context, extracted, reference domain.Answer, question, _ string) domain.Verdict {
	ctx, span := v.tracer.Start(ctx, "OCRVerifier.Judge", spanAttrs(v.name, KindOCR))
	defer span.End()

	cand, ref, err := textPair(extracted, reference)
	if err != nil {
		verdict := domain.Failed(err)
		finishSpan(span, verdict, false)
		return verdict
	}
	cand, ref = v.normalize(cand), v.normalize(ref)

	sim := EditSimilarity(cand, ref)
	span.SetAttributes(attribute.Float64("ocr.similarity", sim))

	var verdict domain.Verdict
	usedJudge := false
	switch {
	case sim >= v.config.UpperBound:
		verdict = domain.Scored(1)
	case sim <= v.config.LowerBound:
		verdict = domain.Scored(0)
	case v.panel.Size() > 0:
		usedJudge = true
		if jv := v.panel.Majority(ctx, judgeValues(question, cand, ref), parseBinaryReply); jv.OK() && jv.Score == 1 {
			verdict = domain.Scored(1)
		} else {
			verdict = domain.Scored(sim)
		}
	default:
		verdict = domain.Scored(sim)
	}
	finishSpan(span, verdict, usedJudge)
	return verdict
}

func (v *OCRVerifier) normalize(s string) string {
	if v.config.IgnoreCase {
		s = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(s), "")
}

// String implements fmt.Stringer for logs.
func (v *OCRVerifier) String() string {
	return fmt.Sprintf("OCRVerifier(%s, bounds=[%g, %g])", v.name, v.config.LowerBound, v.config.UpperBound)
}
