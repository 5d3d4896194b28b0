package verifiers

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

var _ ports.Verifier = (*LanguageMixVerifier)(nil)

// LanguageMixConfig configures the long-paragraph language mixing check.
type LanguageMixConfig struct {
	BaseConfig `yaml:",inline"`

	// MinChineseChars is the CJK character count that makes a paragraph
	// substantially Chinese.
	MinChineseChars int `yaml:"min_chinese_chars" json:"min_chinese_chars" validate:"gte=1"`

	// MinEnglishWords is the word count that makes a paragraph
	// substantially English.
	MinEnglishWords int `yaml:"min_english_words" json:"min_english_words" validate:"gte=1"`
}

// DefaultLanguageMixConfig returns the language mix defaults.
func DefaultLanguageMixConfig() LanguageMixConfig {
	return LanguageMixConfig{
		BaseConfig:      DefaultBaseConfig(),
		MinChineseChars: domain.MinChineseChars,
		MinEnglishWords: domain.MinEnglishWords,
	}
}

// LanguageMixVerifier scores 0 when a response contains both a long Chinese
// paragraph and a long English paragraph, and 1 otherwise. The orchestrator
// runs it as a veto ahead of the domain verifier.
type LanguageMixVerifier struct {
	name   string
	config LanguageMixConfig
	tracer trace.Tracer
}

// NewLanguageMixVerifier creates a language mix verifier.
func NewLanguageMixVerifier(name string, config LanguageMixConfig) (*LanguageMixVerifier, error) {
	if name == "" {
		return nil, ErrEmptyVerifierName
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return &LanguageMixVerifier{name: name, config: config, tracer: otel.Tracer("reward-verifier")}, nil
}

// NewLanguageMixVerifierFromConfig decodes params over the defaults.
func NewLanguageMixVerifierFromConfig(name string, params map[string]any, _ ports.VerifierDeps) (ports.Verifier, error) {
	config := DefaultLanguageMixConfig()
	if err := decodeParams(params, &config); err != nil {
		return nil, err
	}
	return NewLanguageMixVerifier(name, config)
}

// Kind returns the verifier kind tag.
func (v *LanguageMixVerifier) Kind() string { return KindLanguageMix }

// MinReward returns the configured floor.
func (v *LanguageMixVerifier) MinReward() float64 { return v.config.MinReward }

// ExtractAnswer returns the raw response.
func (v *LanguageMixVerifier) ExtractAnswer(_ context.Context, response, _ string) (domain.Answer, error) {
	return domain.TextAnswer(response), nil
}

// Judge ignores the reference.
func (v *LanguageMixVerifier) Judge(ctx context.Context, extracted, _ domain.Answer, _, _ string) domain.Verdict {
	_, span := v.tracer.Start(ctx, "LanguageMixVerifier.Judge", spanAttrs(v.name, KindLanguageMix))
	defer span.End()

	text, ok := extracted.Text()
	if !ok {
		verdict := domain.Failed(fmt.Errorf("%w: got %s, want text", domain.ErrTypeMismatch, extracted.Kind()))
		finishSpan(span, verdict, false)
		return verdict
	}
	verdict := domain.Scored(1)
	if v.Mixed(text) {
		verdict = domain.Scored(0)
	}
	finishSpan(span, verdict, false)
	return verdict
}

// Mixed reports whether text mixes long paragraphs of both languages.
func (v *LanguageMixVerifier) Mixed(text string) bool {
	return domain.HasLongParagraphMixing(text, v.config.MinChineseChars, v.config.MinEnglishWords)
}
