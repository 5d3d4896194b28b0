// Package middleware provides the Prometheus implementation of
// ports.MetricsCollector shared by the reward orchestrator and the judge
// client.
package middleware

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrav/go-reward/infrastructure/llm"
	"github.com/ahrav/go-reward/internal/ports"
)

// Metric names routed to dedicated vectors. Anything else lands in the
// generic operation vectors keyed by metric name.
const (
	metricRequests     = "reward_requests_total"
	metricValue        = "reward_value"
	metricJudgeReqs    = llm.MetricJudgeRequests
	metricJudgeLatency = llm.MetricJudgeLatency
	metricJudgeTokens  = llm.MetricJudgeTokens
	metricCircuitState = llm.MetricCircuitState
	metricCircuitTrips = llm.MetricCircuitTrips
	metricCacheHits    = llm.MetricJudgeCacheHits
)

// rewardBuckets covers the usual [-1, 1] reward range at 0.1 steps.
var rewardBuckets = prometheus.LinearBuckets(-1, 0.1, 21)

// PrometheusMetrics implements ports.MetricsCollector using Prometheus.
type PrometheusMetrics struct {
	gatherer prometheus.Gatherer

	requests     *prometheus.CounterVec
	rewardValue  *prometheus.HistogramVec
	judgeReqs    *prometheus.CounterVec
	judgeLatency *prometheus.HistogramVec
	judgeTokens  *prometheus.CounterVec
	circuitState *prometheus.GaugeVec
	circuitTrips *prometheus.CounterVec
	cacheHits    *prometheus.CounterVec

	latency    *prometheus.HistogramVec
	operations *prometheus.CounterVec
	gauges     *prometheus.GaugeVec
	histograms *prometheus.HistogramVec
}

// NewPrometheusMetrics registers the reward metrics with reg. Passing a
// fresh prometheus.NewRegistry keeps tests and multiple instances isolated.
func NewPrometheusMetrics(reg *prometheus.Registry) *PrometheusMetrics {
	factory := promauto.With(reg)
	endpoint := []string{"provider", "model"}

	return &PrometheusMetrics{
		gatherer: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metricRequests,
			Help: "Graded requests by datasource and outcome.",
		}, []string{"datasource", "outcome"}),
		rewardValue: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricValue,
			Help:    "Distribution of final reward values.",
			Buckets: rewardBuckets,
		}, []string{"datasource"}),
		judgeReqs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metricJudgeReqs,
			Help: "Remote judge calls by endpoint and status.",
		}, []string{"provider", "model", "status"}),
		judgeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricJudgeLatency,
			Help:    "Remote judge call latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, endpoint),
		judgeTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metricJudgeTokens,
			Help: "Tokens exchanged with remote judges.",
		}, []string{"provider", "model", "direction"}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricCircuitState,
			Help: "Judge circuit breaker state (0 closed, 1 open, 2 half open).",
		}, endpoint),
		circuitTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metricCircuitTrips,
			Help: "Judge calls rejected by an open circuit.",
		}, endpoint),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metricCacheHits,
			Help: "Judge calls served from the reply cache.",
		}, endpoint),

		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reward_operation_duration_seconds",
			Help:    "Duration of reward engine operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "datasource"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reward_operations_total",
			Help: "Other counters reported by the reward engine.",
		}, []string{"metric"}),
		gauges: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reward_system_state",
			Help: "Other gauges reported by the reward engine.",
		}, []string{"metric"}),
		histograms: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reward_observations",
			Help:    "Other observations reported by the reward engine.",
			Buckets: prometheus.DefBuckets,
		}, []string{"metric"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.gatherer, promhttp.HandlerOpts{})
}

// RecordLatency implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.latency.WithLabelValues(operation, label(labels, "datasource")).Observe(duration.Seconds())
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case metricRequests:
		pm.requests.WithLabelValues(label(labels, "datasource"), label(labels, "outcome")).Add(value)
	case metricJudgeReqs:
		pm.judgeReqs.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Add(value)
	case metricJudgeTokens:
		pm.judgeTokens.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "direction")).Add(value)
	case metricCircuitTrips:
		pm.circuitTrips.WithLabelValues(label(labels, "provider"), label(labels, "model")).Add(value)
	case metricCacheHits:
		pm.cacheHits.WithLabelValues(label(labels, "provider"), label(labels, "model")).Add(value)
	default:
		pm.operations.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	if metric == metricCircuitState {
		pm.circuitState.WithLabelValues(label(labels, "provider"), label(labels, "model")).Set(value)
		return
	}
	pm.gauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case metricValue:
		pm.rewardValue.WithLabelValues(label(labels, "datasource")).Observe(value)
	case metricJudgeLatency:
		pm.judgeLatency.WithLabelValues(label(labels, "provider"), label(labels, "model")).Observe(value)
	default:
		pm.histograms.WithLabelValues(metric).Observe(value)
	}
}

// label returns labels[key], or "unknown" when it is missing or empty.
func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
