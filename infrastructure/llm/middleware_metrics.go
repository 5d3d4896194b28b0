package llm

import (
	"context"
	"time"

	"github.com/ahrav/go-reward/internal/ports"
)

// Metric names emitted by the judge client.
const (
	MetricJudgeRequests  = "reward_judge_requests_total"
	MetricJudgeLatency   = "reward_judge_latency_seconds"
	MetricJudgeTokens    = "reward_judge_tokens_total"
	MetricCircuitState   = "reward_judge_circuit_state"
	MetricCircuitTrips   = "reward_judge_circuit_trips_total"
	MetricJudgeCacheHits = "reward_judge_cache_hits_total"
)

type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
}

// MetricsMiddleware records request counts by status, latency and token
// usage for each call.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		if collector == nil {
			return next
		}
		return &metricsLLM{next: next, collector: collector}
	}
}

// Complete implements CoreLLM.
func (m *metricsLLM) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	start := time.Now()
	resp, err := m.next.Complete(ctx, req)
	elapsed := time.Since(start)

	labels := map[string]string{
		"provider": m.next.Provider(),
		"model":    m.next.Model(),
	}
	m.collector.RecordHistogram(MetricJudgeLatency, elapsed.Seconds(), labels)

	status := map[string]string{
		"provider": labels["provider"],
		"model":    labels["model"],
		"status":   errorStatus(err),
	}
	m.collector.RecordCounter(MetricJudgeRequests, 1, status)

	if err == nil {
		m.collector.RecordCounter(MetricJudgeTokens, float64(resp.TokensIn), withDirection(labels, "in"))
		m.collector.RecordCounter(MetricJudgeTokens, float64(resp.TokensOut), withDirection(labels, "out"))
	}
	return resp, err
}

func withDirection(labels map[string]string, direction string) map[string]string {
	out := map[string]string{"direction": direction}
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// Model implements CoreLLM.
func (m *metricsLLM) Model() string { return m.next.Model() }

// Provider implements CoreLLM.
func (m *metricsLLM) Provider() string { return m.next.Provider() }
