package verifiers

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

var _ ports.Verifier = (*PluginVerifier)(nil)

// Plugin adds an answer domain without touching the core. Plugins are
// shared by concurrent callers and must not mutate themselves.
type Plugin interface {
	Extract(ctx context.Context, response, question string) (domain.Answer, error)
	Judge(ctx context.Context, extracted, reference domain.Answer, question, image string) (float64, error)
}

// Compiled-in plugin names.
const (
	PluginAndroidWorld = "androidworld"
	PluginOSWorld      = "osworld"
	PluginWebVoyager   = "webvoyager"
)

// builtinPlugins is the static plugin table.
var builtinPlugins = map[string]func() Plugin{
	PluginAndroidWorld: func() Plugin { return androidWorld{} },
	PluginOSWorld:      func() Plugin { return osWorld{} },
	PluginWebVoyager:   func() Plugin { return webVoyager{} },
}

// PluginNames lists the compiled-in plugins.
func PluginNames() []string {
	return slices.Sorted(maps.Keys(builtinPlugins))
}

// DefaultPluginTimeout bounds one call to an out-of-process plugin.
const DefaultPluginTimeout = 30 * time.Second

// PluginConfig configures a file_based verifier. Exactly one of Plugin and
// Command selects the implementation. The legacy path fields are accepted
// and resolve to a compiled-in plugin by file name, so AndroidWorld.py
// selects the androidworld plugin.
type PluginConfig struct {
	BaseConfig `yaml:",inline"`

	// Plugin names a compiled-in plugin.
	Plugin string `yaml:"plugin" json:"plugin"`

	// Command is an executable and its arguments speaking the JSON plugin
	// protocol on stdin and stdout.
	Command []string `yaml:"command" json:"command"`

	// Timeout bounds each out-of-process call.
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`

	ExtractAnswerFilePath string `yaml:"extract_answer_file_path" json:"extract_answer_file_path"`
	ExtractAnswerFuncName string `yaml:"extract_answer_func_name" json:"extract_answer_func_name"`
	JudgeFuncPath         string `yaml:"judge_func_path" json:"judge_func_path"`
	JudgeFuncName         string `yaml:"judge_func_name" json:"judge_func_name"`
	LoadOnce              bool   `yaml:"load_once" json:"load_once"`
}

// DefaultPluginConfig returns the file_based defaults.
func DefaultPluginConfig() PluginConfig {
	return PluginConfig{
		BaseConfig: DefaultBaseConfig(),
		Timeout:    DefaultPluginTimeout,
		LoadOnce:   true,
	}
}

// resolvePlugin returns the plugin name selected by the config, if any.
func (c PluginConfig) resolvePlugin() string {
	if c.Plugin != "" {
		return strings.ToLower(c.Plugin)
	}
	for _, path := range []string{c.ExtractAnswerFilePath, c.JudgeFuncPath} {
		if path == "" {
			continue
		}
		base := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		if _, ok := builtinPlugins[base]; ok {
			return base
		}
	}
	return ""
}

// PluginVerifier adapts a Plugin to ports.Verifier.
type PluginVerifier struct {
	name   string
	kind   string
	plugin string
	config PluginConfig
	impl   Plugin
	tracer trace.Tracer
}

// NewPluginVerifier creates a verifier backed by a compiled-in or
// out-of-process plugin.
func NewPluginVerifier(name, kind string, config PluginConfig) (*PluginVerifier, error) {
	if name == "" {
		return nil, ErrEmptyVerifierName
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	pluginName := config.resolvePlugin()
	var impl Plugin
	switch {
	case pluginName != "" && len(config.Command) > 0:
		return nil, errors.Join(domain.ErrInvalidConfiguration,
			errors.New("plugin and command are mutually exclusive"))
	case len(config.Command) > 0:
		timeout := config.Timeout
		if timeout == 0 {
			timeout = DefaultPluginTimeout
		}
		impl = &commandPlugin{argv: slices.Clone(config.Command), timeout: timeout}
		pluginName = "command"
	case pluginName != "":
		build, ok := builtinPlugins[pluginName]
		if !ok {
			return nil, fmt.Errorf("%w: unknown plugin %q, want one of %v",
				domain.ErrInvalidConfiguration, pluginName, PluginNames())
		}
		impl = build()
	default:
		return nil, errors.Join(domain.ErrInvalidConfiguration,
			errors.New("file_based verifier needs a plugin or a command"))
	}

	return &PluginVerifier{
		name:   name,
		kind:   kind,
		plugin: pluginName,
		config: config,
		impl:   impl,
		tracer: otel.Tracer("reward-verifier"),
	}, nil
}

// PluginFactory returns the registry factory for file_based and its
// aliases. A non-empty preset selects the plugin when the config names none.
func PluginFactory(kind, preset string) ports.VerifierFactory {
	return func(name string, params map[string]any, _ ports.VerifierDeps) (ports.Verifier, error) {
		config := DefaultPluginConfig()
		if err := decodeParams(params, &config); err != nil {
			return nil, err
		}
		if preset != "" && config.resolvePlugin() == "" && len(config.Command) == 0 {
			config.Plugin = preset
		}
		return NewPluginVerifier(name, kind, config)
	}
}

// Kind returns the verifier kind tag.
func (v *PluginVerifier) Kind() string { return v.kind }

// MinReward returns the configured floor.
func (v *PluginVerifier) MinReward() float64 { return v.config.MinReward }

// Plugin returns the name of the plugin serving this verifier.
func (v *PluginVerifier) Plugin() string { return v.plugin }

// ExtractAnswer delegates to the plugin.
func (v *PluginVerifier) ExtractAnswer(ctx context.Context, response, question string) (domain.Answer, error) {
	ans, err := v.impl.Extract(ctx, response, question)
	if err != nil {
		return domain.Absent(), err
	}
	if ans.IsAbsent() {
		return ans, domain.ErrExtractionFailed
	}
	return ans, nil
}

// Judge delegates to the plugin. Plugin errors become failed verdicts.
func (v *PluginVerifier) Judge(ctx context.Context, extracted, reference domain.Answer, question, image string) domain.Verdict {
	ctx, span := v.tracer.Start(ctx, "PluginVerifier.Judge", spanAttrs(v.name, v.kind),
		trace.WithAttributes(attribute.String("verifier.plugin", v.plugin)))
	defer span.End()

	score, err := v.impl.Judge(ctx, extracted, reference, question, image)
	verdict := domain.Scored(score)
	if err != nil {
		verdict = domain.Failed(fmt.Errorf("plugin %s: %w", v.plugin, err))
	}
	finishSpan(span, verdict, false)
	return verdict
}
