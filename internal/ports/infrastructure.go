package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-reward/internal/domain"
)

// Endpoint identifies one remote judging model.
type Endpoint struct {
	// Provider selects the client implementation, e.g. "openai".
	Provider string `json:"provider" yaml:"provider"`
	// URL is the chat completion endpoint or API base URL.
	URL string `json:"url" yaml:"url"`
	// APIKey authenticates against the endpoint.
	APIKey string `json:"-" yaml:"api_key"`
	// Model is the judging model identifier.
	Model string `json:"model" yaml:"model"`
}

// JudgeRequest is a single non-streaming judging call.
type JudgeRequest struct {
	Endpoint    Endpoint
	Prompt      string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// RemoteJudge sends a formatted prompt to a scoring model and returns its raw
// reply text. Implementations apply their own request timeout; a failed call
// returns an error and an empty reply.
type RemoteJudge interface {
	Query(ctx context.Context, req JudgeRequest) (string, error)
}

// Expr is a parsed algebraic expression.
type Expr interface {
	// String returns the normalized source of the expression.
	String() string

	// Value returns the numeric value when the expression has no free
	// variables and is not a relation.
	Value() (float64, bool)

	// IsRelation reports whether the expression is an equation or inequality.
	IsRelation() bool
}

// AlgebraEvaluator is the computer-algebra service behind symbolic answer
// equivalence.
type AlgebraEvaluator interface {
	// Parse converts a math answer into an expression. Percent and degree
	// suffixes are expected to be normalized by the caller.
	Parse(s string) (Expr, error)

	// Equivalent reports whether two expressions are mathematically equal.
	// Relations are compared after moving every term to one side.
	Equivalent(a, b Expr) (bool, error)
}

// AuditSink appends reward records to a datasource-scoped append-only store.
// Concurrent appends to the same partition must not interleave.
type AuditSink interface {
	Append(ctx context.Context, datasource, partition string, records []domain.RewardRecord) error
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus, OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram, e.g. reward values.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
