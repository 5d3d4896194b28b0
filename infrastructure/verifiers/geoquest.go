package verifiers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

var _ ports.Verifier = (*GeoQuestVerifier)(nil)

// Placeholders filled from a geoquest reference.
const (
	PlaceholderPlaceName = "place_name"
	PlaceholderAddress   = "address"
)

// MaxPlaceAnswerLength caps the length, in runes, of a place answer.
const MaxPlaceAnswerLength = 50

// GeoQuestConfig configures the place-identification verifier.
type GeoQuestConfig struct {
	BaseConfig    `yaml:",inline"`
	JudgeSettings `yaml:",inline"`
}

// DefaultGeoQuestConfig returns the geoquest defaults. Place grading uses a
// long, sampled judge reply.
func DefaultGeoQuestConfig() GeoQuestConfig {
	settings := DefaultJudgeSettings()
	settings.MaxTokens = 4096
	settings.Temperature = 0.8
	settings.TopP = 0.6
	return GeoQuestConfig{BaseConfig: DefaultBaseConfig(), JudgeSettings: settings}
}

// placeReference is the JSON form of a geoquest reference answer.
type placeReference struct {
	PlaceName string `json:"place_name"`
	Address   string `json:"address"`
}

// GeoQuestVerifier grades a named place against a reference place by asking
// every judge endpoint for a {"score": x} reply and averaging the scores.
type GeoQuestVerifier struct {
	name      string
	config    GeoQuestConfig
	extractor boxedExtractor
	panel     *Panel
	tracer    trace.Tracer
}

// NewGeoQuestVerifier creates a geoquest verifier. At least one judge
// endpoint and a template with a {predict} placeholder are required.
func NewGeoQuestVerifier(name string, config GeoQuestConfig, deps ports.VerifierDeps) (*GeoQuestVerifier, error) {
	if name == "" {
		return nil, ErrEmptyVerifierName
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if len(config.URLs) == 0 {
		return nil, errors.Join(domain.ErrInvalidConfiguration, errors.New("geoquest verifier requires llm_judge_url"))
	}
	if _, err := domain.NewJudgeTemplate(config.PromptTemplate, []string{domain.PlaceholderPredict}); err != nil {
		return nil, err
	}
	settings := config.JudgeSettings
	settings.Enabled = true
	panel, err := newPanel(name, settings, deps,
		[]string{domain.PlaceholderPredict}, PlaceholderPlaceName, PlaceholderAddress)
	if err != nil {
		return nil, err
	}
	return &GeoQuestVerifier{
		name:      name,
		config:    config,
		extractor: boxedExtractor{strict: config.StrictBoxedExtraction},
		panel:     panel,
		tracer:    otel.Tracer("reward-verifier"),
	}, nil
}

// NewGeoQuestVerifierFromConfig decodes params over the defaults.
func NewGeoQuestVerifierFromConfig(name string, params map[string]any, deps ports.VerifierDeps) (ports.Verifier, error) {
	config := DefaultGeoQuestConfig()
	if err := decodeParams(params, &config); err != nil {
		return nil, err
	}
	return NewGeoQuestVerifier(name, config, deps)
}

// Kind returns the verifier kind tag.
func (v *GeoQuestVerifier) Kind() string { return KindGeoQuest }

// MinReward returns the configured floor.
func (v *GeoQuestVerifier) MinReward() float64 { return v.config.MinReward }

// ExtractAnswer returns the single boxed span of the answer segment.
func (v *GeoQuestVerifier) ExtractAnswer(_ context.Context, response, _ string) (domain.Answer, error) {
	return v.extractor.extract(response)
}

// Judge averages the judge scores. Overlong answers score the floor.
func (v *GeoQuestVerifier) Judge(ctx context.Context, extracted, reference domain.Answer, _, _ string) domain.Verdict {
	ctx, span := v.tracer.Start(ctx, "GeoQuestVerifier.Judge", spanAttrs(v.name, KindGeoQuest))
	defer span.End()

	verdict, usedJudge := v.judge(ctx, extracted, reference)
	finishSpan(span, verdict, usedJudge)
	return verdict
}

func (v *GeoQuestVerifier) judge(ctx context.Context, extracted, reference domain.Answer) (domain.Verdict, bool) {
	cand, ok := extracted.Text()
	if !ok {
		return domain.Failed(fmt.Errorf("%w: candidate is %s, want text", domain.ErrTypeMismatch, extracted.Kind())), false
	}
	if len([]rune(cand)) > MaxPlaceAnswerLength {
		return domain.Scored(v.config.MinReward), false
	}
	place, err := placeFrom(reference)
	if err != nil {
		return domain.Failed(err), false
	}

	values := map[string]string{
		domain.PlaceholderPredict: cand,
		PlaceholderPlaceName:      place.PlaceName,
		PlaceholderAddress:        place.Address,
	}
	return v.panel.Mean(ctx, values, parseScoreReply), true
}

// placeFrom reads the reference place from a record or a JSON string.
func placeFrom(reference domain.Answer) (placeReference, error) {
	var place placeReference
	switch reference.Kind() {
	case domain.AnswerRecord:
		rec, _ := reference.Record()
		name, _ := rec["place_name"].(string)
		addr, _ := rec["address"].(string)
		place = placeReference{PlaceName: name, Address: addr}
	case domain.AnswerText:
		text, _ := reference.Text()
		if err := json.Unmarshal([]byte(text), &place); err != nil {
			return place, fmt.Errorf("%w: place reference is not JSON: %v", domain.ErrBadReference, err)
		}
	default:
		return place, fmt.Errorf("%w: place reference is %s", domain.ErrTypeMismatch, reference.Kind())
	}
	if place.PlaceName == "" && place.Address == "" {
		return place, fmt.Errorf("%w: place reference has no place_name or address", domain.ErrBadReference)
	}
	return place, nil
}
