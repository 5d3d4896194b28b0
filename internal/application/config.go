// Package application wires verifier configuration, the verifier registry and
// the reward orchestrator together.
package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-reward/infrastructure/llm"
	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

// Configuration defaults.
const (
	DefaultRewardLogDir = "logs"
	DefaultMaxWorkers   = 128
)

// verifierTypeKey is the tag field of a verifier configuration.
const verifierTypeKey = "verifier_type"

// RewardSystemConfig is the root configuration document of the reward
// engine. It maps datasources to named verifier configurations.
type RewardSystemConfig struct {
	// RewardLogDir is the root directory of the JSONL audit logs.
	RewardLogDir string `yaml:"reward_log_dir" json:"reward_log_dir" validate:"required"`

	// EnableMixVerifier turns on the language-mix gate for every request.
	EnableMixVerifier bool `yaml:"enable_mix_verifier" json:"enable_mix_verifier"`

	// MaxWorkers caps the per-item worker pool of one orchestration call.
	MaxWorkers int `yaml:"max_workers" json:"max_workers" validate:"gte=1,lte=4096"`

	// DatasourceRewardConfigMapping maps a datasource name to the name of
	// an entry in RewardConfigs.
	DatasourceRewardConfigMapping map[string]string `yaml:"datasource_reward_config_mapping" json:"datasource_reward_config_mapping" validate:"dive,keys,required,endkeys,required"`

	// RewardConfigs holds the named verifier configurations.
	RewardConfigs map[string]VerifierConfig `yaml:"reward_configs" json:"reward_configs" validate:"dive,keys,required,endkeys"`

	// JudgeClient tunes the shared remote judge client.
	JudgeClient llm.JudgeClientConfig `yaml:"judge_client" json:"judge_client"`
}

// DefaultRewardSystemConfig returns a configuration with no datasources and
// every scalar at its default.
func DefaultRewardSystemConfig() RewardSystemConfig {
	return RewardSystemConfig{
		RewardLogDir:                  DefaultRewardLogDir,
		EnableMixVerifier:             true,
		MaxWorkers:                    DefaultMaxWorkers,
		DatasourceRewardConfigMapping: map[string]string{},
		RewardConfigs:                 map[string]VerifierConfig{},
		JudgeClient:                   llm.DefaultJudgeClientConfig(),
	}
}

// VerifierConfig is one tagged verifier configuration. Kind is the
// case-folded verifier_type tag; Params holds every other field and is
// decoded strictly by the factory of that kind.
type VerifierConfig struct {
	Kind   string         `json:"verifier_type" validate:"required,verifier_kind"`
	Params map[string]any `json:"params,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler. The tag may use any casing,
// so "AndroidWorld" and "androidworld" select the same kind.
func (c *VerifierConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: verifier config must be a mapping", node.Line)
	}
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	tag, ok := raw[verifierTypeKey].(string)
	if !ok || strings.TrimSpace(tag) == "" {
		return fmt.Errorf("line %d: %s is required", node.Line, verifierTypeKey)
	}
	delete(raw, verifierTypeKey)

	c.Kind = domain.Fold(strings.TrimSpace(tag))
	c.Params = raw
	return nil
}

// MarshalYAML implements yaml.Marshaler so a parsed document can be
// written back out.
func (c VerifierConfig) MarshalYAML() (any, error) {
	out := make(map[string]any, len(c.Params)+1)
	for k, v := range c.Params {
		out[k] = v
	}
	out[verifierTypeKey] = c.Kind
	return out, nil
}

// ConfigLoader parses and validates reward configuration documents against
// a fixed set of verifier kinds.
type ConfigLoader struct {
	validator *validator.Validate
	kinds     []string
}

// NewConfigLoader creates a loader that accepts the given verifier kinds.
func NewConfigLoader(kinds []string) (*ConfigLoader, error) {
	v := validator.New()
	known := slices.Clone(kinds)
	slices.Sort(known)
	if err := registerCustomValidators(v, known); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &ConfigLoader{validator: v, kinds: known}, nil
}

// LoadFromFile reads and validates the configuration at path.
func (l *ConfigLoader) LoadFromFile(path string) (*RewardSystemConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, ports.NewConfigError(path, fmt.Errorf("failed to read file: %w", err))
	}
	return l.Parse(data)
}

// LoadFromReader reads and validates a configuration document from r.
func (l *ConfigLoader) LoadFromReader(r io.Reader) (*RewardSystemConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ports.NewConfigError("reader", fmt.Errorf("failed to read data: %w", err))
	}
	return l.Parse(data)
}

// Parse decodes data over the defaults and validates the result. Unknown
// top-level fields are rejected. An empty document yields the defaults.
func (l *ConfigLoader) Parse(data []byte) (*RewardSystemConfig, error) {
	cfg := DefaultRewardSystemConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, ports.NewConfigError("document",
			fmt.Errorf("YAML decode failed: %w: %w", err, domain.ErrInvalidConfiguration))
	}
	if cfg.DatasourceRewardConfigMapping == nil {
		cfg.DatasourceRewardConfigMapping = map[string]string{}
	}
	if cfg.RewardConfigs == nil {
		cfg.RewardConfigs = map[string]VerifierConfig{}
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct tag validation followed by the cross-reference
// checks that tags cannot express.
func (l *ConfigLoader) Validate(cfg *RewardSystemConfig) error {
	if err := l.validator.Struct(cfg); err != nil {
		return ports.NewConfigError("document", describeValidation(err, l.kinds))
	}

	verr := domain.NewValidationError("datasource_reward_config_mapping")
	for _, ds := range sortedKeys(cfg.DatasourceRewardConfigMapping) {
		name := cfg.DatasourceRewardConfigMapping[ds]
		if _, ok := cfg.RewardConfigs[name]; !ok {
			verr.AddError(fmt.Sprintf("datasource %q refers to unknown reward config %q", ds, name))
		}
	}
	if verr.HasErrors() {
		return ports.NewConfigError("datasource_reward_config_mapping", verr)
	}
	return nil
}

// Kinds returns the verifier kinds the loader accepts, sorted.
func (l *ConfigLoader) Kinds() []string { return slices.Clone(l.kinds) }

// describeValidation turns validator field errors into one aggregated
// ValidationError.
func describeValidation(err error, kinds []string) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", err, domain.ErrInvalidConfiguration)
	}
	verr := domain.NewValidationError("reward config")
	unknownKind := false
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "verifier_kind":
			unknownKind = true
			verr.AddError(fmt.Sprintf("%s: %q is not a known verifier type, want one of %v",
				fe.Namespace(), fe.Value(), kinds))
		default:
			verr.AddError(fmt.Sprintf("%s: failed %q check", fe.Namespace(), fe.Tag()))
		}
	}
	if unknownKind {
		return fmt.Errorf("%w: %w", ports.ErrUnknownVerifier, verr)
	}
	return verr
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// LoadConfig reads and validates the configuration at path, accepting the
// built-in verifier kinds.
func LoadConfig(path string) (*RewardSystemConfig, error) {
	loader, err := NewConfigLoader(BuiltinKinds())
	if err != nil {
		return nil, err
	}
	return loader.LoadFromFile(path)
}

// ParseConfig parses and validates a configuration document, accepting the
// built-in verifier kinds.
func ParseConfig(data []byte) (*RewardSystemConfig, error) {
	loader, err := NewConfigLoader(BuiltinKinds())
	if err != nil {
		return nil, err
	}
	return loader.Parse(data)
}
