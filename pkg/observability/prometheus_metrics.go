package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetricsClient implements MetricsClient interface using Prometheus
type PrometheusMetricsClient struct {
	namespace string
	subsystem string

	// Metric collectors
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Common labels
	commonLabels prometheus.Labels
}

// NewPrometheusMetricsClient creates a new Prometheus metrics client
func NewPrometheusMetricsClient(namespace, subsystem string, commonLabels map[string]string) *PrometheusMetricsClient {
	labels := prometheus.Labels{}
	for k, v := range commonLabels {
		labels[k] = v
	}

	client := &PrometheusMetricsClient{
		namespace:    namespace,
		subsystem:    subsystem,
		counters:     make(map[string]*prometheus.CounterVec),
		gauges:       make(map[string]*prometheus.GaugeVec),
		histograms:   make(map[string]*prometheus.HistogramVec),
		commonLabels: labels,
	}

	client.registerDefaultMetrics()

	return client
}

// registerDefaultMetrics registers commonly used metrics
func (c *PrometheusMetricsClient) registerDefaultMetrics() {
	// API operation metrics
	c.getOrCreateCounter("api_requests_total", "Total API requests", []string{"endpoint", "method", "status"})
	c.getOrCreateHistogram("api_request_duration_seconds", "API request duration", []string{"endpoint", "method"}, prometheus.DefBuckets)

	// Cache operation metrics
	c.getOrCreateCounter("cache_operations_total", "Total cache operations", []string{"operation", "success"})
	c.getOrCreateHistogram("cache_operation_duration_seconds", "Cache operation duration", []string{"operation"}, prometheus.DefBuckets)

	// Database operation metrics
	c.getOrCreateCounter("database_operations_total", "Total database operations", []string{"operation", "success"})
	c.getOrCreateHistogram("database_operation_duration_seconds", "Database operation duration", []string{"operation"}, prometheus.DefBuckets)

	// Invalidation metrics
	c.getOrCreateCounter("invalidation_events_total", "Total invalidation events processed", []string{"event_type", "status"})
	c.getOrCreateGauge("invalidation_dead_letters", "Dead-lettered invalidation actions", []string{"event_type"})
}

// RecordCounter records a counter metric
func (c *PrometheusMetricsClient) RecordCounter(name string, value float64, labels map[string]string) {
	counter := c.getOrCreateCounter(name, fmt.Sprintf("Counter for %s", name), c.getLabelNames(labels))
	counter.With(c.mergeLabelValues(labels)).Add(value)
}

// RecordGauge records a gauge metric
func (c *PrometheusMetricsClient) RecordGauge(name string, value float64, labels map[string]string) {
	gauge := c.getOrCreateGauge(name, fmt.Sprintf("Gauge for %s", name), c.getLabelNames(labels))
	gauge.With(c.mergeLabelValues(labels)).Set(value)
}

// RecordHistogram records a histogram metric
func (c *PrometheusMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {
	histogram := c.getOrCreateHistogram(name, fmt.Sprintf("Histogram for %s", name), c.getLabelNames(labels), prometheus.DefBuckets)
	histogram.With(c.mergeLabelValues(labels)).Observe(value)
}

// RecordTimer records a timer metric as a histogram in seconds
func (c *PrometheusMetricsClient) RecordTimer(name string, duration time.Duration, labels map[string]string) {
	c.RecordHistogram(name+"_seconds", duration.Seconds(), labels)
}

// RecordEvent records an event occurrence
func (c *PrometheusMetricsClient) RecordEvent(source, eventType string) {
	c.RecordCounter("events_total", 1, map[string]string{
		"source":     source,
		"event_type": eventType,
	})
}

// RecordLatency records an operation latency
func (c *PrometheusMetricsClient) RecordLatency(operation string, duration time.Duration) {
	c.RecordHistogram("operation_latency_seconds", duration.Seconds(), map[string]string{
		"operation": operation,
	})
}

// IncrementCounter increments a counter by the given value
func (c *PrometheusMetricsClient) IncrementCounter(name string, value float64) {
	c.RecordCounter(name, value, nil)
}

// IncrementCounterWithLabels increments a counter with labels
func (c *PrometheusMetricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
	c.RecordCounter(name, value, labels)
}

// RecordDuration records a duration in seconds
func (c *PrometheusMetricsClient) RecordDuration(name string, duration time.Duration) {
	c.RecordHistogram(name, duration.Seconds(), nil)
}

// StartTimer starts a timer and returns a function to stop it
func (c *PrometheusMetricsClient) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		c.RecordHistogram(name, time.Since(start).Seconds(), labels)
	}
}

// RecordCacheOperation records a cache operation
func (c *PrometheusMetricsClient) RecordCacheOperation(operation string, success bool, durationSeconds float64) {
	c.IncrementCounterWithLabels("cache_operations_total", 1, map[string]string{
		"operation": operation,
		"success":   stringFromBool(success),
	})

	c.RecordHistogram("cache_operation_duration_seconds", durationSeconds, map[string]string{
		"operation": operation,
	})
}

// RecordAPIOperation records an API operation
func (c *PrometheusMetricsClient) RecordAPIOperation(endpoint string, method string, status string, durationSeconds float64) {
	c.IncrementCounterWithLabels("api_requests_total", 1, map[string]string{
		"endpoint": endpoint,
		"method":   method,
		"status":   status,
	})

	c.RecordHistogram("api_request_duration_seconds", durationSeconds, map[string]string{
		"endpoint": endpoint,
		"method":   method,
	})
}

// RecordDatabaseOperation records a database operation
func (c *PrometheusMetricsClient) RecordDatabaseOperation(operation string, success bool, durationSeconds float64) {
	c.IncrementCounterWithLabels("database_operations_total", 1, map[string]string{
		"operation": operation,
		"success":   stringFromBool(success),
	})

	c.RecordHistogram("database_operation_duration_seconds", durationSeconds, map[string]string{
		"operation": operation,
	})
}

// Close implements MetricsClient.Close
func (c *PrometheusMetricsClient) Close() error {
	return nil
}

// Helper methods

func (c *PrometheusMetricsClient) getOrCreateCounter(name, help string, labels []string) *prometheus.CounterVec {
	c.mu.RLock()
	if counter, exists := c.counters[name]; exists {
		c.mu.RUnlock()
		return counter
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if counter, exists := c.counters[name]; exists {
		return counter
	}

	counter := promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
	}, labels)

	c.counters[name] = counter
	return counter
}

func (c *PrometheusMetricsClient) getOrCreateGauge(name, help string, labels []string) *prometheus.GaugeVec {
	c.mu.RLock()
	if gauge, exists := c.gauges[name]; exists {
		c.mu.RUnlock()
		return gauge
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if gauge, exists := c.gauges[name]; exists {
		return gauge
	}

	gauge := promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
	}, labels)

	c.gauges[name] = gauge
	return gauge
}

func (c *PrometheusMetricsClient) getOrCreateHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	c.mu.RLock()
	if histogram, exists := c.histograms[name]; exists {
		c.mu.RUnlock()
		return histogram
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if histogram, exists := c.histograms[name]; exists {
		return histogram
	}

	histogram := promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)

	c.histograms[name] = histogram
	return histogram
}

func (c *PrometheusMetricsClient) getLabelNames(labels map[string]string) []string {
	if labels == nil {
		return []string{}
	}

	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	return names
}

func (c *PrometheusMetricsClient) mergeLabelValues(labels map[string]string) prometheus.Labels {
	merged := prometheus.Labels{}

	// Add common labels first
	for k, v := range c.commonLabels {
		merged[k] = v
	}

	// Override with specific labels
	for k, v := range labels {
		merged[k] = v
	}

	return merged
}

// PipelineMetrics provides pre-registered collectors for the request pipeline.
// The embedding server keeps one instance and feeds it from component
// snapshots on a fixed interval.
type PipelineMetrics struct {
	RequestsTotal      prometheus.Counter
	CacheHits          prometheus.Gauge
	CacheMisses        prometheus.Gauge
	CacheHitRate       prometheus.Gauge
	L1Hits             prometheus.Gauge
	RemoteHits         prometheus.Gauge
	CompressionSaves   prometheus.Gauge
	InvalidationEvents prometheus.Gauge
	DeadLetters        prometheus.Gauge
	SlowQueries        prometheus.Gauge
	RegressionEvents   prometheus.Gauge
	WarmupQueued       prometheus.Gauge
}

// NewPipelineMetrics creates the pipeline metric set under the given namespace
func NewPipelineMetrics(namespace string) *PipelineMetrics {
	return &PipelineMetrics{
		RequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Total requests seen by the optimizer chain",
		}),
		CacheHits: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cache_hits",
			Help:      "Cache hits since start",
		}),
		CacheMisses: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cache_misses",
			Help:      "Cache misses since start",
		}),
		CacheHitRate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cache_hit_rate",
			Help:      "Cache hit rate",
		}),
		L1Hits: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cache_l1_hits",
			Help:      "Hits served from the in-process LRU",
		}),
		RemoteHits: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cache_remote_hits",
			Help:      "Hits served from the shared store",
		}),
		CompressionSaves: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cache_compression_saves",
			Help:      "Values stored compressed",
		}),
		InvalidationEvents: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "invalidation_events",
			Help:      "Invalidation events processed since start",
		}),
		DeadLetters: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "invalidation_dead_letters",
			Help:      "Invalidation actions moved to the dead-letter log",
		}),
		SlowQueries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "slow_queries",
			Help:      "Slow queries recorded since start",
		}),
		RegressionEvents: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "query_regressions",
			Help:      "Query latency regressions detected since start",
		}),
		WarmupQueued: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "warmup_queued",
			Help:      "Warmup requests currently queued",
		}),
	}
}
