package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// metricsClient is the default in-memory metrics implementation. It keeps
// the recorded values so tests and health endpoints can inspect them.
type metricsClient struct {
	enabled bool
	labels  map[string]string

	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// MetricsOptions contains configuration options for creating a metrics client
type MetricsOptions struct {
	Enabled bool
	Labels  map[string]string
}

// NewMetricsClient creates a new metrics client with default options
func NewMetricsClient() MetricsClient {
	return NewMetricsClientWithOptions(MetricsOptions{
		Enabled: true,
		Labels:  map[string]string{},
	})
}

// NewMetricsClientWithOptions creates a new metrics client with specific options
func NewMetricsClientWithOptions(options MetricsOptions) MetricsClient {
	return &metricsClient{
		enabled:    options.Enabled,
		labels:     options.Labels,
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// metricKey folds labels into a stable map key
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(labels[k])
	}
	return b.String()
}

// IncrementCounter increments a counter metric by a given value
func (m *metricsClient) IncrementCounter(name string, value float64) {
	if !m.enabled {
		return
	}
	m.RecordCounter(name, value, m.labels)
}

// IncrementCounterWithLabels increments a counter metric by a given value with custom labels
func (m *metricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
	if !m.enabled {
		return
	}
	effectiveLabels := m.labels
	if labels != nil {
		effectiveLabels = labels
	}
	m.RecordCounter(name, value, effectiveLabels)
}

// RecordDuration records a duration metric
func (m *metricsClient) RecordDuration(name string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.RecordHistogram(name, duration.Seconds(), m.labels)
}

// RecordEvent records an event metric
func (m *metricsClient) RecordEvent(source, eventType string) {
	if !m.enabled {
		return
	}

	labels := map[string]string{
		"source":     source,
		"event_type": eventType,
	}

	m.RecordCounter("events_total", 1.0, labels)
}

// RecordLatency records a latency metric
func (m *metricsClient) RecordLatency(operation string, duration time.Duration) {
	if !m.enabled {
		return
	}

	labels := map[string]string{
		"operation": operation,
	}

	m.RecordTimer(operation+"_latency", duration, labels)
}

// RecordCounter increments a counter metric
func (m *metricsClient) RecordCounter(name string, value float64, labels map[string]string) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	m.counters[metricKey(name, labels)] += value
	m.mu.Unlock()
}

// RecordGauge records a gauge metric
func (m *metricsClient) RecordGauge(name string, value float64, labels map[string]string) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	m.gauges[metricKey(name, labels)] = value
	m.mu.Unlock()
}

// RecordHistogram records a histogram metric
func (m *metricsClient) RecordHistogram(name string, value float64, labels map[string]string) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	key := metricKey(name, labels)
	m.histograms[key] = append(m.histograms[key], value)
	m.mu.Unlock()
}

// RecordTimer records a timer metric
func (m *metricsClient) RecordTimer(name string, duration time.Duration, labels map[string]string) {
	if !m.enabled {
		return
	}
	m.RecordHistogram(name+"_seconds", duration.Seconds(), labels)
}

// RecordCacheOperation records cache operation metrics
func (m *metricsClient) RecordCacheOperation(operation string, success bool, durationSeconds float64) {
	if !m.enabled {
		return
	}

	labels := map[string]string{
		"operation": operation,
		"success":   stringFromBool(success),
	}

	m.RecordCounter("cache_operations_total", 1.0, labels)
	m.RecordHistogram("cache_operation_duration_seconds", durationSeconds, labels)
}

// RecordAPIOperation records API operation metrics
func (m *metricsClient) RecordAPIOperation(endpoint string, method string, status string, durationSeconds float64) {
	if !m.enabled {
		return
	}

	labels := map[string]string{
		"endpoint": endpoint,
		"method":   method,
		"status":   status,
	}

	m.RecordCounter("api_requests_total", 1.0, labels)
	m.RecordHistogram("api_request_duration_seconds", durationSeconds, labels)
}

// RecordDatabaseOperation records database operation metrics
func (m *metricsClient) RecordDatabaseOperation(operation string, success bool, durationSeconds float64) {
	if !m.enabled {
		return
	}

	labels := map[string]string{
		"operation": operation,
		"success":   stringFromBool(success),
	}

	m.RecordCounter("database_operations_total", 1.0, labels)
	m.RecordHistogram("database_operation_duration_seconds", durationSeconds, labels)
}

// StartTimer starts a timer metric
func (m *metricsClient) StartTimer(name string, labels map[string]string) func() {
	if !m.enabled {
		return func() {}
	}

	startTime := time.Now()
	return func() {
		duration := time.Since(startTime)
		m.RecordTimer(name, duration, labels)
	}
}

// CounterValue returns the accumulated value of a counter. Intended for
// tests and health endpoints.
func (m *metricsClient) CounterValue(name string, labels map[string]string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[metricKey(name, labels)]
}

// Close closes the metrics client and returns any error
func (m *metricsClient) Close() error {
	return nil
}

// Helper function to convert bool to string
func stringFromBool(value bool) string {
	if value {
		return "true"
	}
	return "false"
}
