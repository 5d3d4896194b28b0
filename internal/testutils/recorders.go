package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

var (
	_ ports.AuditSink        = (*MemoryAuditSink)(nil)
	_ ports.MetricsCollector = (*MetricsRecorder)(nil)
)

// MemoryAuditSink keeps appended audit records in memory, keyed by
// datasource and partition.
type MemoryAuditSink struct {
	mu      sync.Mutex
	records map[string]map[string][]domain.RewardRecord
	err     error
}

// NewMemoryAuditSink creates an empty sink.
func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{records: make(map[string]map[string][]domain.RewardRecord)}
}

// FailWith makes every later Append return err.
func (s *MemoryAuditSink) FailWith(err error) *MemoryAuditSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Append implements ports.AuditSink.
func (s *MemoryAuditSink) Append(_ context.Context, datasource, partition string, records []domain.RewardRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.records[datasource] == nil {
		s.records[datasource] = make(map[string][]domain.RewardRecord)
	}
	s.records[datasource][partition] = append(s.records[datasource][partition], records...)
	return nil
}

// Records returns a copy of the records filed under datasource and partition.
func (s *MemoryAuditSink) Records(datasource, partition string) []domain.RewardRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RewardRecord(nil), s.records[datasource][partition]...)
}

// MetricSample is one recorded metric observation.
type MetricSample struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// MetricsRecorder implements ports.MetricsCollector by remembering every
// observation.
type MetricsRecorder struct {
	mu      sync.Mutex
	samples []MetricSample
}

// RecordLatency implements ports.MetricsCollector.
func (m *MetricsRecorder) RecordLatency(operation string, d time.Duration, labels map[string]string) {
	m.add(operation, d.Seconds(), labels)
}

// RecordCounter implements ports.MetricsCollector.
func (m *MetricsRecorder) RecordCounter(metric string, value float64, labels map[string]string) {
	m.add(metric, value, labels)
}

// RecordGauge implements ports.MetricsCollector.
func (m *MetricsRecorder) RecordGauge(metric string, value float64, labels map[string]string) {
	m.add(metric, value, labels)
}

// RecordHistogram implements ports.MetricsCollector.
func (m *MetricsRecorder) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.add(metric, value, labels)
}

func (m *MetricsRecorder) add(name string, value float64, labels map[string]string) {
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, MetricSample{Name: name, Value: value, Labels: copied})
}

// Samples returns every observation recorded under name.
func (m *MetricsRecorder) Samples(name string) []MetricSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MetricSample
	for _, s := range m.samples {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Total sums the values recorded under name whose labels include every
// entry of match.
func (m *MetricsRecorder) Total(name string, match map[string]string) float64 {
	var total float64
	for _, s := range m.Samples(name) {
		ok := true
		for k, v := range match {
			if s.Labels[k] != v {
				ok = false
				break
			}
		}
		if ok {
			total += s.Value
		}
	}
	return total
}
