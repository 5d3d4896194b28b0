package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-reward/internal/domain"
)

// Test that our interfaces can be implemented correctly

// mockRemoteJudge implements RemoteJudge with canned replies per model.
type mockRemoteJudge struct{ replies map[string]string }

func (m *mockRemoteJudge) Query(_ context.Context, req JudgeRequest) (string, error) {
	reply, ok := m.replies[req.Endpoint.Model]
	if !ok {
		return "", NewJudgeError(req.Endpoint.Model, req.Endpoint.URL, ErrServiceUnavailable)
	}
	return reply, nil
}

// mockAuditSink implements AuditSink in memory.
type mockAuditSink struct {
	mu      sync.Mutex
	records map[string][]domain.RewardRecord
}

func (m *mockAuditSink) Append(_ context.Context, datasource, partition string, recs []domain.RewardRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := datasource + "/" + partition
	m.records[key] = append(m.records[key], recs...)
	return nil
}

// mockMetricsCollector implements MetricsCollector interface
type mockMetricsCollector struct {
	latencies  []time.Duration
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// newMockMetricsCollector creates a new mock metrics collector for testing.
func newMockMetricsCollector() *mockMetricsCollector {
	return &mockMetricsCollector{
		latencies:  []time.Duration{},
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *mockMetricsCollector) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	m.latencies = append(m.latencies, duration)
}

func (m *mockMetricsCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	m.counters[metric] += value
}

func (m *mockMetricsCollector) RecordGauge(metric string, value float64, labels map[string]string) {
	m.gauges[metric] = value
}

func (m *mockMetricsCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.histograms[metric] = append(m.histograms[metric], value)
}

// stubVerifier implements Verifier and BatchVerifier.
type stubVerifier struct{}

func (stubVerifier) Kind() string       { return "stub" }
func (stubVerifier) MinReward() float64 { return 0 }
func (stubVerifier) ExtractAnswer(_ context.Context, response, _ string) (domain.Answer, error) {
	return domain.TextAnswer(response), nil
}
func (stubVerifier) Judge(_ context.Context, extracted, reference domain.Answer, _, _ string) domain.Verdict {
	if extracted.String() == reference.String() {
		return domain.Scored(1)
	}
	return domain.Scored(0)
}
func (stubVerifier) JudgeBatch(_ context.Context, reqs []domain.Request) ([]domain.Verdict, error) {
	return make([]domain.Verdict, len(reqs)), nil
}

func TestInterfaces_Implementation(t *testing.T) {
	var _ RemoteJudge = (*mockRemoteJudge)(nil)
	var _ AuditSink = (*mockAuditSink)(nil)
	var _ MetricsCollector = (*mockMetricsCollector)(nil)
	var _ BatchVerifier = stubVerifier{}

	ctx := context.Background()

	judge := &mockRemoteJudge{replies: map[string]string{"glm-4-flash": "1.0"}}
	reply, err := judge.Query(ctx, JudgeRequest{Endpoint: Endpoint{Model: "glm-4-flash"}, Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "1.0", reply)

	_, err = judge.Query(ctx, JudgeRequest{Endpoint: Endpoint{Model: "missing"}})
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	var v Verifier = stubVerifier{}
	got, err := v.ExtractAnswer(ctx, "x", "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Judge(ctx, got, domain.TextAnswer("x"), "", "").Score)
}

func TestAuditSink_ConcurrentAppends(t *testing.T) {
	sink := &mockAuditSink{records: make(map[string][]domain.RewardRecord)}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = sink.Append(ctx, "math", domain.PartitionCorrect, []domain.RewardRecord{{Reward: float64(i)}})
		}(i)
	}
	wg.Wait()

	assert.Len(t, sink.records["math/"+domain.PartitionCorrect], 16)
}

func TestMetricsCollector_Recording(t *testing.T) {
	metrics := newMockMetricsCollector()
	labels := map[string]string{"datasource": "math"}

	metrics.RecordLatency("judge", 100*time.Millisecond, labels)
	assert.Len(t, metrics.latencies, 1, "RecordLatency() should record one duration")

	metrics.RecordCounter("reward_requests_total", 1, labels)
	metrics.RecordCounter("reward_requests_total", 2, labels)
	assert.Equal(t, float64(3), metrics.counters["reward_requests_total"], "RecordCounter() sum mismatch")

	metrics.RecordGauge("circuit_state", 1, labels)
	metrics.RecordGauge("circuit_state", 0, labels)
	assert.Equal(t, float64(0), metrics.gauges["circuit_state"], "RecordGauge() value mismatch")

	metrics.RecordHistogram("reward_value", 0.5, labels)
	metrics.RecordHistogram("reward_value", 1, labels)
	assert.Len(t, metrics.histograms["reward_value"], 2, "RecordHistogram() should record two values")
}
