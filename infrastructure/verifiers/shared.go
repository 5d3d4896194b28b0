// Package verifiers provides the concrete answer verifiers that implement
// ports.Verifier for the reward engine: rule-based math and science checks,
// text similarity, remote-judge fallbacks, and structured GUI action scoring.
package verifiers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

// Verifier kind tags. Tags are matched case-insensitively by the registry.
const (
	KindMath        = "math"
	KindMultiImage  = "multi_image"
	KindMMSI        = "mmsi"
	KindVQA         = "vqa"
	KindLiberalArts = "liberal_arts"
	KindLongDoc     = "long_doc"
	KindPhysics     = "physics"
	KindChemistry   = "chemistry"
	KindChart       = "chart"
	KindBiology     = "biology"
	KindGeography   = "geography"
	KindCounting    = "counting"
	KindGeneral     = "general"
	KindOCR         = "ocr"
	KindGeoQuest    = "geoquest"
	KindLanguageMix = "language_mix"
	KindFileBased   = "file_based"
	KindConsistency = "consistency"

	// Aliases of file_based with a preselected plugin.
	KindAndroidWorld = "androidworld"
	KindOSWorld      = "osworld"
	KindWebVoyager   = "webvoyager"
)

// Remote judge defaults shared by every verifier with a fallback.
const (
	DefaultJudgeModel       = "glm-4-flash"
	DefaultJudgeProvider    = "openai"
	DefaultJudgeMaxTokens   = 10
	DefaultJudgeTemperature = 0.1
	DefaultJudgeTopP        = 1.0
	DefaultTolerance        = 1e-5
)

var (
	// ErrEmptyVerifierName is returned when a verifier is created without a name.
	ErrEmptyVerifierName = errors.New("verifier name cannot be empty")

	// ErrNoAlgebra is returned when a math-family verifier is built without
	// an algebra evaluator.
	ErrNoAlgebra = errors.New("algebra evaluator is required")
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// StringList is a YAML field that accepts either a scalar or a sequence.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			*l = nil
			return nil
		}
		*l = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

// BaseConfig holds the fields every verifier understands.
type BaseConfig struct {
	// MinReward is the floor reported for requests that cannot be judged.
	// Negative infinity is allowed.
	MinReward float64 `yaml:"min_reward" json:"min_reward"`

	// StrictBoxedExtraction requires exactly one boxed span. When false an
	// answer without spans is taken whole.
	StrictBoxedExtraction bool `yaml:"strict_boxed_extraction" json:"strict_boxed_extraction"`
}

// DefaultBaseConfig returns the shared defaults.
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{MinReward: domain.DefaultFloor, StrictBoxedExtraction: true}
}

// JudgeSettings configures the remote-judge fallback of a verifier.
type JudgeSettings struct {
	// Enabled turns the fallback on. Without endpoints it has no effect.
	Enabled bool `yaml:"enable_llm_judge_fallback" json:"enable_llm_judge_fallback"`

	// Provider selects the judge client implementation for every endpoint.
	Provider string `yaml:"llm_provider" json:"llm_provider" validate:"omitempty,oneof=openai anthropic google"`

	// APIKeys, URLs and Models describe the endpoints. A single key or model
	// is shared by every URL; otherwise the lists must have equal length.
	APIKeys StringList `yaml:"llm_api_key" json:"-"`
	URLs    StringList `yaml:"llm_judge_url" json:"llm_judge_url" validate:"dive,url"`
	Models  StringList `yaml:"llm_model" json:"llm_model"`

	// PromptTemplate uses {question}, {predict} and {label} placeholders.
	PromptTemplate string `yaml:"llm_judge_prompt_template" json:"llm_judge_prompt_template"`

	MaxTokens   int     `yaml:"llm_max_tokens" json:"llm_max_tokens" validate:"gte=1"`
	Temperature float64 `yaml:"llm_temperature" json:"llm_temperature" validate:"gte=0,lte=2"`
	TopP        float64 `yaml:"llm_top_p" json:"llm_top_p" validate:"gt=0,lte=1"`
}

// DefaultJudgeSettings returns the fallback defaults.
func DefaultJudgeSettings() JudgeSettings {
	return JudgeSettings{
		Enabled:     true,
		Provider:    DefaultJudgeProvider,
		MaxTokens:   DefaultJudgeMaxTokens,
		Temperature: DefaultJudgeTemperature,
		TopP:        DefaultJudgeTopP,
	}
}

// Endpoints zips the configured keys, URLs and models.
func (s JudgeSettings) Endpoints() ([]ports.Endpoint, error) {
	n := len(s.URLs)
	if n == 0 {
		return nil, nil
	}
	keys, err := broadcast("llm_api_key", s.APIKeys, n, "")
	if err != nil {
		return nil, err
	}
	models, err := broadcast("llm_model", s.Models, n, DefaultJudgeModel)
	if err != nil {
		return nil, err
	}
	provider := s.Provider
	if provider == "" {
		provider = DefaultJudgeProvider
	}

	out := make([]ports.Endpoint, n)
	for i, url := range s.URLs {
		out[i] = ports.Endpoint{Provider: provider, URL: url, APIKey: keys[i], Model: models[i]}
	}
	return out, nil
}

func broadcast(field string, list StringList, n int, fallback string) ([]string, error) {
	switch len(list) {
	case 0:
		out := make([]string, n)
		for i := range out {
			out[i] = fallback
		}
		return out, nil
	case 1:
		out := make([]string, n)
		for i := range out {
			out[i] = list[0]
		}
		return out, nil
	case n:
		return list, nil
	default:
		return nil, fmt.Errorf("%s has %d entries for %d judge urls: %w",
			field, len(list), n, domain.ErrInvalidConfiguration)
	}
}

// decodeParams overlays params onto out, which must already hold defaults.
// Unknown keys are rejected.
func decodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	data, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w: %w", err, domain.ErrInvalidConfiguration)
	}
	return nil
}

// validateConfig runs struct tag validation and wraps failures.
func validateConfig(cfg any) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w: %w", err, domain.ErrInvalidConfiguration)
	}
	return nil
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// finishSpan records the verdict on span.
func finishSpan(span trace.Span, v domain.Verdict, usedJudge bool) {
	span.SetAttributes(attribute.Bool("no_llm_cost", !usedJudge))
	if v.Err != nil {
		span.RecordError(v.Err)
		span.SetStatus(codes.Error, v.Err.Error())
		return
	}
	span.SetAttributes(attribute.Float64("eval.score", v.Score))
}

func spanAttrs(name, kind string) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("verifier.name", name),
		attribute.String("verifier.kind", kind),
	)
}
