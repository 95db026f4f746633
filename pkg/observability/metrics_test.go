package observability

import (
	"testing"
	"time"
)

func TestMetricsClient_Enabled(t *testing.T) {
	metrics := NewMetricsClientWithOptions(MetricsOptions{
		Enabled: true,
		Labels:  map[string]string{"service": "test"},
	})

	if metrics.(*metricsClient).enabled != true {
		t.Error("Expected metrics client to be enabled")
	}

	if metrics.(*metricsClient).labels["service"] != "test" {
		t.Error("Expected metrics client to have labels set")
	}
}

func TestMetricsClient_Disabled(t *testing.T) {
	metrics := NewMetricsClientWithOptions(MetricsOptions{
		Enabled: false,
	})

	if metrics.(*metricsClient).enabled != false {
		t.Error("Expected metrics client to be disabled")
	}

	// Recording against a disabled client must not store anything
	metrics.RecordCounter("noop_counter", 1, nil)
	if got := metrics.(*metricsClient).CounterValue("noop_counter", nil); got != 0 {
		t.Errorf("Expected no counter value on disabled client, got %f", got)
	}
}

func TestMetricsClient_CounterAccumulates(t *testing.T) {
	metrics := NewMetricsClient()

	metrics.RecordCounter("cache_hits", 1, map[string]string{"namespace": "api:voting"})
	metrics.RecordCounter("cache_hits", 2, map[string]string{"namespace": "api:voting"})
	metrics.RecordCounter("cache_hits", 5, map[string]string{"namespace": "api:clan"})

	got := metrics.(*metricsClient).CounterValue("cache_hits", map[string]string{"namespace": "api:voting"})
	if got != 3 {
		t.Errorf("Expected accumulated counter 3, got %f", got)
	}

	got = metrics.(*metricsClient).CounterValue("cache_hits", map[string]string{"namespace": "api:clan"})
	if got != 5 {
		t.Errorf("Expected accumulated counter 5, got %f", got)
	}
}

func TestMetricsClient_RecordOperations(t *testing.T) {
	metrics := NewMetricsClient()

	// These must not panic and must accumulate under their well-known names
	metrics.RecordEvent("bus", "vote:cast")
	metrics.RecordLatency("lookup", 10*time.Millisecond)
	metrics.RecordCacheOperation("get", true, 0.01)
	metrics.RecordAPIOperation("/api/leaderboard", "GET", "200", 0.2)
	metrics.RecordDatabaseOperation("select", true, 0.05)
	metrics.RecordGauge("queue_depth", 7, nil)
	metrics.RecordHistogram("batch_size", 42, nil)
	metrics.IncrementCounter("plain", 1)
	metrics.IncrementCounterWithLabels("labeled", 1, map[string]string{"k": "v"})
	metrics.RecordDuration("elapsed", time.Second)

	stop := metrics.StartTimer("timed_section", nil)
	stop()

	client := metrics.(*metricsClient)
	if got := client.CounterValue("cache_operations_total", map[string]string{"operation": "get", "success": "true"}); got != 1 {
		t.Errorf("Expected cache operation counter 1, got %f", got)
	}
	if got := client.CounterValue("api_requests_total", map[string]string{"endpoint": "/api/leaderboard", "method": "GET", "status": "200"}); got != 1 {
		t.Errorf("Expected api request counter 1, got %f", got)
	}

	if err := metrics.Close(); err != nil {
		t.Errorf("Expected clean close, got %v", err)
	}
}

func TestNoOpMetricsClient(t *testing.T) {
	metrics := NewNoOpMetricsClient()

	// The no-op client accepts every call without effect
	metrics.RecordEvent("source", "event")
	metrics.RecordCounter("name", 1, nil)
	metrics.RecordCacheOperation("get", false, 0)
	stop := metrics.StartTimer("timer", nil)
	stop()

	if err := metrics.Close(); err != nil {
		t.Errorf("Expected nil from Close, got %v", err)
	}
}

func TestOrNoopMetrics(t *testing.T) {
	if OrNoopMetrics(nil) == nil {
		t.Error("Expected OrNoopMetrics(nil) to return a usable client")
	}

	real := NewMetricsClient()
	if OrNoopMetrics(real) != real {
		t.Error("Expected OrNoopMetrics to pass through a non-nil client")
	}
}
