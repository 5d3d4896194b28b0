package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-reward/internal/observability"
	"github.com/ahrav/go-reward/internal/ports"
)

// Defaults for JudgeClientConfig.
const (
	DefaultJudgeTimeout           = 120 * time.Second
	DefaultJudgeMaxRetries        = 2
	DefaultJudgeRetryBaseDelay    = 500 * time.Millisecond
	DefaultJudgeRetryMaxDelay     = 5 * time.Second
	DefaultJudgeBreakerFailures   = 5
	DefaultJudgeBreakerCooldown   = 30 * time.Second
	DefaultJudgeProvider          = ProviderOpenAI
	defaultJudgeRateBurstFallback = 1
)

// JudgeClientConfig holds process-wide settings for remote judge calls. The
// endpoints themselves come from each verifier's configuration.
type JudgeClientConfig struct {
	// Timeout bounds a single attempt. Zero disables the bound.
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`

	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries     int           `yaml:"max_retries" json:"max_retries" validate:"gte=0,lte=10"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" json:"retry_base_delay" validate:"gte=0"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay" json:"retry_max_delay" validate:"gte=0"`

	// RateLimit caps requests per second to each endpoint. Zero disables it.
	RateLimit float64 `yaml:"llm_rate_limit" json:"llm_rate_limit" validate:"gte=0"`
	RateBurst int     `yaml:"llm_rate_burst" json:"llm_rate_burst" validate:"gte=0"`

	// BreakerFailures consecutive failures open an endpoint's circuit for
	// BreakerCooldown. Zero disables the breaker.
	BreakerFailures int           `yaml:"circuit_breaker_failures" json:"circuit_breaker_failures" validate:"gte=0"`
	BreakerCooldown time.Duration `yaml:"circuit_breaker_cooldown" json:"circuit_breaker_cooldown" validate:"gte=0"`

	// CacheSize is the per-endpoint reply cache capacity. Zero disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size" validate:"gte=0"`
}

// DefaultJudgeClientConfig returns the settings used when the configuration
// omits judge_client.
func DefaultJudgeClientConfig() JudgeClientConfig {
	return JudgeClientConfig{
		Timeout:         DefaultJudgeTimeout,
		MaxRetries:      DefaultJudgeMaxRetries,
		RetryBaseDelay:  DefaultJudgeRetryBaseDelay,
		RetryMaxDelay:   DefaultJudgeRetryMaxDelay,
		BreakerFailures: DefaultJudgeBreakerFailures,
		BreakerCooldown: DefaultJudgeBreakerCooldown,
	}
}

// Verify interface compliance at compile time.
var _ ports.RemoteJudge = (*JudgeClient)(nil)

// JudgeClient implements ports.RemoteJudge. It lazily builds one middleware
// wrapped CoreLLM per distinct endpoint and reuses it for later calls, so
// rate limits, breakers and caches are per endpoint.
type JudgeClient struct {
	config    JudgeClientConfig
	collector ports.MetricsCollector
	logger    *observability.Logger

	mu      sync.Mutex
	clients map[ports.Endpoint]CoreLLM
}

// NewJudgeClient creates a judge client. collector and logger may be nil.
func NewJudgeClient(config JudgeClientConfig, collector ports.MetricsCollector, logger *observability.Logger) *JudgeClient {
	if logger == nil {
		logger = observability.Discard()
	}
	return &JudgeClient{
		config:    config,
		collector: collector,
		logger:    logger,
		clients:   make(map[ports.Endpoint]CoreLLM),
	}
}

// Query sends req.Prompt to req.Endpoint and returns the reply text. Every
// failure is a *ports.JudgeError naming the endpoint.
func (j *JudgeClient) Query(ctx context.Context, req ports.JudgeRequest) (string, error) {
	endpoint := normalizeEndpoint(req.Endpoint)

	core, err := j.client(endpoint)
	if err != nil {
		return "", ports.NewJudgeError(endpoint.Model, endpoint.URL, err)
	}

	completion := CompletionRequest{Prompt: req.Prompt, MaxTokens: req.MaxTokens}
	if req.Temperature >= 0 {
		temperature := req.Temperature
		completion.Temperature = &temperature
	}
	if req.TopP > 0 {
		topP := req.TopP
		completion.TopP = &topP
	}

	resp, err := core.Complete(ctx, completion)
	if err != nil {
		return "", ports.NewJudgeError(endpoint.Model, endpoint.URL, err)
	}
	return resp.Text, nil
}

func (j *JudgeClient) client(endpoint ports.Endpoint) (CoreLLM, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if core, ok := j.clients[endpoint]; ok {
		return core, nil
	}

	core, err := NewCoreLLM(endpoint.Provider, ClientConfig{
		APIKey:  endpoint.APIKey,
		Model:   endpoint.Model,
		BaseURL: endpoint.URL,
	}, j.middleware(endpoint)...)
	if err != nil {
		return nil, err
	}

	j.logger.Debug("judge endpoint client created",
		"provider", endpoint.Provider,
		"url", endpoint.URL,
		"model", endpoint.Model,
		"api_key", observability.SanitizeAPIKey(endpoint.APIKey))
	j.clients[endpoint] = core
	return core, nil
}

// middleware returns the chain for one endpoint, outermost first. Retries
// sit inside the breaker so an exhausted retry loop counts as one failure,
// and each attempt gets its own timeout and rate limit token.
func (j *JudgeClient) middleware(endpoint ports.Endpoint) []Middleware {
	cfg := j.config
	var breakerMetrics CircuitBreakerMetrics
	if j.collector != nil {
		breakerMetrics = NewCollectorBreakerMetrics(j.collector, endpoint.Provider, endpoint.Model)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = max(int(cfg.RateLimit), defaultJudgeRateBurstFallback)
	}

	return []Middleware{
		TracingMiddleware(),
		MetricsMiddleware(j.collector),
		CacheMiddleware(cfg.CacheSize, j.collector),
		CircuitBreakerMiddleware(cfg.BreakerFailures, cfg.BreakerCooldown, breakerMetrics),
		RetryMiddleware(cfg.MaxRetries, cfg.RetryBaseDelay, cfg.RetryMaxDelay),
		TimeoutMiddleware(cfg.Timeout),
		RateLimitMiddleware(rate.Limit(cfg.RateLimit), burst),
	}
}

// Endpoints returns the number of endpoint clients built so far.
func (j *JudgeClient) Endpoints() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.clients)
}

func normalizeEndpoint(e ports.Endpoint) ports.Endpoint {
	e.Provider = strings.ToLower(strings.TrimSpace(e.Provider))
	if e.Provider == "" {
		e.Provider = DefaultJudgeProvider
	}
	e.URL = strings.TrimSpace(e.URL)
	if e.Provider == ProviderOpenAI {
		e.URL = OpenAIBaseURL(e.URL)
	}
	return e
}

// String describes the configuration for startup logs.
func (c JudgeClientConfig) String() string {
	return fmt.Sprintf("timeout=%s retries=%d rate=%.2f/s breaker=%d/%s cache=%d",
		c.Timeout, c.MaxRetries, c.RateLimit, c.BreakerFailures, c.BreakerCooldown, c.CacheSize)
}
