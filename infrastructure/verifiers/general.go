package verifiers

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

var _ ports.Verifier = (*GeneralVerifier)(nil)

// GeneralConfig configures the open-ended answer verifier.
type GeneralConfig struct {
	BaseConfig    `yaml:",inline"`
	JudgeSettings `yaml:",inline"`

	// AnswerExtractionRegex locates the answer in the raw response. The
	// named group "answer" wins over the last capturing group.
	AnswerExtractionRegex string `yaml:"answer_extraction_regex" json:"answer_extraction_regex"`
}

// DefaultGeneralConfig returns the general verifier defaults.
func DefaultGeneralConfig() GeneralConfig {
	return GeneralConfig{
		BaseConfig:    DefaultBaseConfig(),
		JudgeSettings: DefaultJudgeSettings(),
	}
}

// GeneralVerifier delegates everything but exact matches to the remote
// judge, which must answer with a boxed Correct or Incorrect.
type GeneralVerifier struct {
	name      string
	config    GeneralConfig
	extractor patternExtractor
	panel     *Panel
	tracer    trace.Tracer
}

// NewGeneralVerifier creates a general verifier. The judge endpoint and a
// template carrying {question}, {predict} and {label} are required.
func NewGeneralVerifier(name string, config GeneralConfig, deps ports.VerifierDeps) (*GeneralVerifier, error) {
	if name == "" {
		return nil, ErrEmptyVerifierName
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if len(config.URLs) == 0 || len(config.APIKeys) == 0 {
		return nil, errors.Join(domain.ErrInvalidConfiguration,
			errors.New("general verifier requires llm_api_key and llm_judge_url"))
	}
	if _, err := domain.NewJudgeTemplate(config.PromptTemplate, standardPlaceholders); err != nil {
		return nil, err
	}
	pattern, err := compileAnswerPattern(config.AnswerExtractionRegex)
	if err != nil {
		return nil, err
	}
	settings := config.JudgeSettings
	settings.Enabled = true
	panel, err := newPanel(name, settings, deps, standardPlaceholders)
	if err != nil {
		return nil, err
	}
	return &GeneralVerifier{
		name:      name,
		config:    config,
		extractor: patternExtractor{pattern: pattern},
		panel:     panel,
		tracer:    otel.Tracer("reward-verifier"),
	}, nil
}

// NewGeneralVerifierFromConfig decodes params over the defaults.
func NewGeneralVerifierFromConfig(name string, params map[string]any, deps ports.VerifierDeps) (ports.Verifier, error) {
	config := DefaultGeneralConfig()
	if err := decodeParams(params, &config); err != nil {
		return nil, err
	}
	return NewGeneralVerifier(name, config, deps)
}

// Kind returns the verifier kind tag.
func (v *GeneralVerifier) Kind() string { return KindGeneral }

// MinReward returns the configured floor.
func (v *GeneralVerifier) MinReward() float64 { return v.config.MinReward }

// ExtractAnswer applies the configured pattern to the raw response.
func (v *GeneralVerifier) ExtractAnswer(_ context.Context, response, _ string) (domain.Answer, error) {
	return v.extractor.extract(response)
}

// Judge asks the remote judge for a Correct or Incorrect verdict. An
// Incorrect majority scores the floor.
func (v *GeneralVerifier) Judge(ctx context.Context, extracted, reference domain.Answer, question, _ string) domain.Verdict {
	ctx, span := v.tracer.Start(ctx, "GeneralVerifier.Judge", spanAttrs(v.name, KindGeneral))
	defer span.End()

	cand, ref, err := textPair(extracted, reference)
	if err != nil {
		verdict := domain.Failed(err)
		finishSpan(span, verdict, false)
		return verdict
	}
	if cand == ref {
		verdict := domain.Scored(1)
		finishSpan(span, verdict, false)
		return verdict
	}

	verdict := v.panel.Majority(ctx, judgeValues(question, cand, ref), parseVerdictReply)
	if verdict.OK() && verdict.Score == 0 {
		verdict = domain.Scored(v.config.MinReward)
	}
	finishSpan(span, verdict, true)
	return verdict
}
