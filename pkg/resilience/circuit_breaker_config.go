package resilience

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerServiceConfig defines circuit breaker configuration for a
// specific shared resource
type CircuitBreakerServiceConfig struct {
	Enabled             bool          `mapstructure:"enabled" json:"enabled"`
	MaxRequests         uint32        `mapstructure:"max_requests" json:"max_requests"`
	Interval            time.Duration `mapstructure:"interval" json:"interval"`
	Timeout             time.Duration `mapstructure:"timeout" json:"timeout"`
	FailureThreshold    float64       `mapstructure:"failure_threshold" json:"failure_threshold"`
	MinimumRequestCount uint32        `mapstructure:"minimum_request_count" json:"minimum_request_count"`
}

// DefaultCircuitBreakerConfigs provides default configurations for the shared
// resources the request pipeline depends on. The cache store trips fast and
// recovers fast: an open breaker only degrades to the uncached path.
var DefaultCircuitBreakerConfigs = map[string]CircuitBreakerServiceConfig{
	"cache_store": {
		Enabled:             true,
		MaxRequests:         5,
		Interval:            10 * time.Second,
		Timeout:             15 * time.Second,
		FailureThreshold:    0.5,
		MinimumRequestCount: 10,
	},
	"invalidation": {
		Enabled:             true,
		MaxRequests:         10,
		Interval:            10 * time.Second,
		Timeout:             30 * time.Second,
		FailureThreshold:    0.6,
		MinimumRequestCount: 10,
	},
	"database": {
		Enabled:             true,
		MaxRequests:         20,
		Interval:            10 * time.Second,
		Timeout:             30 * time.Second,
		FailureThreshold:    0.5,
		MinimumRequestCount: 20,
	},
}

// BuildConfig converts a service-level configuration into a breaker
// configuration. errFilter marks errors that should not count as failures
// (a cache miss is not a store failure).
func (c CircuitBreakerServiceConfig) BuildConfig(name string, errFilter func(error) bool) CircuitBreakerConfig {
	cfg := CircuitBreakerConfig{
		Name:        name,
		MaxRequests: c.MaxRequests,
		Interval:    c.Interval,
		Timeout:     c.Timeout,
	}

	threshold := c.FailureThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	minimum := c.MinimumRequestCount
	if minimum == 0 {
		minimum = 10
	}

	cfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.Requests < minimum {
			return false
		}
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return failureRatio >= threshold
	}

	if errFilter != nil {
		cfg.IsSuccessful = func(err error) bool {
			return err == nil || errFilter(err)
		}
	}

	return cfg
}

// ErrCircuitOpen is returned when a call is short-circuited by an open breaker
var ErrCircuitOpen = errors.New("circuit breaker open")
