package application

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-reward/infrastructure/verifiers"
	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

// ErrUnknownDatasource is returned for a datasource with no entry in the
// datasource mapping.
var ErrUnknownDatasource = errors.New("no reward config for datasource")

// Verify interface compliance at compile time.
var _ ports.VerifierRegistry = (*VerifierRegistry)(nil)

// instanceKey identifies one cached verifier.
type instanceKey struct {
	datasource string
	kind       string
}

// VerifierRegistry resolves datasources to verifier instances. It owns the
// static factory table and a cache of built verifiers keyed by
// (datasource, kind). Instances are built lazily and then only read.
type VerifierRegistry struct {
	// factories maps case-folded kind tags to their constructors.
	factories map[string]ports.VerifierFactory
	// mapping and configs are copied from the configuration at construction.
	mapping map[string]string
	configs map[string]VerifierConfig
	// deps is handed to every factory call.
	deps ports.VerifierDeps

	// mu protects factories and instances.
	mu        sync.RWMutex
	instances map[instanceKey]ports.Verifier
	// sf collapses concurrent first-use builds of the same instance.
	sf singleflight.Group
}

// NewVerifierRegistry creates a registry over cfg with the built-in
// verifier kinds registered.
func NewVerifierRegistry(cfg *RewardSystemConfig, deps ports.VerifierDeps) *VerifierRegistry {
	r := &VerifierRegistry{
		factories: verifiers.Factories(),
		mapping:   map[string]string{},
		configs:   map[string]VerifierConfig{},
		deps:      deps,
		instances: make(map[instanceKey]ports.Verifier),
	}
	if cfg != nil {
		r.mapping = maps.Clone(cfg.DatasourceRewardConfigMapping)
		r.configs = maps.Clone(cfg.RewardConfigs)
	}
	return r
}

// RegisterFactory adds or replaces the factory for kind. It must be called
// before the first Verifier lookup of that kind.
func (r *VerifierRegistry) RegisterFactory(kind string, factory ports.VerifierFactory) error {
	if kind == "" {
		return fmt.Errorf("verifier kind cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[domain.Fold(kind)] = factory
	return nil
}

// Verifier returns the verifier serving datasource, building and caching it
// on first use. Construction failures are not cached.
func (r *VerifierRegistry) Verifier(ctx context.Context, datasource string) (ports.Verifier, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, ok := r.mapping[datasource]
	if !ok {
		return nil, ports.NewConfigError(datasource, fmt.Errorf("%w: %q", ErrUnknownDatasource, datasource))
	}
	cfg := r.configs[name]
	key := instanceKey{datasource: datasource, kind: cfg.Kind}

	if v, ok := r.cached(key); ok {
		return v, nil
	}

	v, err, _ := r.sf.Do(datasource+"\x00"+cfg.Kind, func() (any, error) {
		if v, ok := r.cached(key); ok {
			return v, nil
		}
		v, err := r.build(datasource, name, cfg)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.instances[key] = v
		r.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ports.Verifier), nil
}

// Build constructs an uncached verifier of kind with params. It serves
// callers that need a verifier outside the datasource mapping, such as the
// language-mix gate.
func (r *VerifierRegistry) Build(name, kind string, params map[string]any) (ports.Verifier, error) {
	return r.build(name, name, VerifierConfig{Kind: domain.Fold(kind), Params: params})
}

func (r *VerifierRegistry) build(datasource, configName string, cfg VerifierConfig) (ports.Verifier, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, ports.NewConfigError(configName, fmt.Errorf("%w: %q", ports.ErrUnknownVerifier, cfg.Kind))
	}

	v, err := factory(datasource, maps.Clone(cfg.Params), r.deps)
	if err != nil {
		return nil, ports.NewConfigError(configName,
			fmt.Errorf("failed to create %s verifier for %q: %w", cfg.Kind, datasource, err))
	}
	return v, nil
}

func (r *VerifierRegistry) cached(key instanceKey) (ports.Verifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.instances[key]
	return v, ok
}

// Warmup builds the verifier of every mapped datasource so configuration
// errors surface at startup. All failures are reported together.
func (r *VerifierRegistry) Warmup(ctx context.Context) error {
	var errs []error
	for _, ds := range r.Datasources() {
		if _, err := r.Verifier(ctx, ds); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Kinds returns every registered verifier kind, sorted.
func (r *VerifierRegistry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Datasources returns every mapped datasource, sorted.
func (r *VerifierRegistry) Datasources() []string {
	return sortedKeys(r.mapping)
}

// HasDatasource reports whether datasource has a mapping entry.
func (r *VerifierRegistry) HasDatasource(datasource string) bool {
	_, ok := r.mapping[datasource]
	return ok
}

// BuiltinKinds returns the verifier kinds compiled into the binary, sorted.
func BuiltinKinds() []string {
	return slices.Sorted(maps.Keys(verifiers.Factories()))
}
