package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mlg-clan/platform-core/pkg/observability"
	"github.com/mlg-clan/platform-core/pkg/resilience"
	"github.com/mlg-clan/platform-core/pkg/retry"
)

// ResilientConfig tunes the failure handling around the remote store
type ResilientConfig struct {
	// MaxRetries is the number of attempts per operation
	MaxRetries int `mapstructure:"max_retries" json:"max_retries"`

	// RetryBaseDelay is the initial backoff between attempts
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" json:"retry_base_delay"`

	// DegradedThreshold is the number of consecutive failed operations
	// before the store flips to degraded mode
	DegradedThreshold int `mapstructure:"degraded_threshold" json:"degraded_threshold"`

	// ProbeMaxInterval caps the recovery probe backoff
	ProbeMaxInterval time.Duration `mapstructure:"probe_max_interval" json:"probe_max_interval"`

	// Breaker is the circuit breaker configuration for store calls
	Breaker resilience.CircuitBreakerServiceConfig `mapstructure:"breaker" json:"breaker"`
}

// DefaultResilientConfig returns the default failure-handling settings
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		MaxRetries:        3,
		RetryBaseDelay:    50 * time.Millisecond,
		DegradedThreshold: 5,
		ProbeMaxInterval:  30 * time.Second,
		Breaker:           resilience.DefaultCircuitBreakerConfigs["cache_store"],
	}
}

// ResilientStore wraps a Store with a circuit breaker, bounded retries, and
// degraded-mode recovery. While degraded, every call short-circuits to
// ErrStoreUnavailable and a background prober pings the store with
// exponential backoff until it answers again.
type ResilientStore struct {
	inner   Store
	breaker resilience.CircuitBreaker
	policy  retry.Policy

	degraded            atomic.Bool
	consecutiveFailures atomic.Int64
	degradedThreshold   int64
	probeMaxInterval    time.Duration

	probing sync.Mutex
	closed  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewResilientStore wraps inner with retry, circuit breaking, and degraded
// mode handling
func NewResilientStore(inner Store, cfg ResilientConfig, logger observability.Logger, metrics observability.MetricsClient) *ResilientStore {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 50 * time.Millisecond
	}
	if cfg.DegradedThreshold <= 0 {
		cfg.DegradedThreshold = 5
	}
	if cfg.ProbeMaxInterval <= 0 {
		cfg.ProbeMaxInterval = 30 * time.Second
	}

	breakerCfg := cfg.Breaker.BuildConfig("cache_store", func(err error) bool {
		// A miss is not a store failure
		return errors.Is(err, ErrNotFound)
	})

	return &ResilientStore{
		inner:             inner,
		breaker:           resilience.NewCircuitBreaker(breakerCfg),
		policy:            retry.NewExponentialBackoff(retry.Config{InitialInterval: cfg.RetryBaseDelay, MaxRetries: cfg.MaxRetries}),
		degradedThreshold: int64(cfg.DegradedThreshold),
		probeMaxInterval:  cfg.ProbeMaxInterval,
		closed:            make(chan struct{}),
		logger:            logger,
		metrics:           metrics,
	}
}

// execute runs op through retry and the breaker, tracking degraded mode
func (s *ResilientStore) execute(ctx context.Context, op func(ctx context.Context) error) error {
	if s.degraded.Load() {
		return ErrStoreUnavailable
	}

	var notFound bool
	err := s.policy.Execute(ctx, func(ctx context.Context) error {
		_, berr := s.breaker.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, op(ctx)
		})
		if errors.Is(berr, ErrNotFound) {
			// A miss is a successful outcome; do not retry it
			notFound = true
			return nil
		}
		return berr
	})
	if err == nil && notFound {
		err = ErrNotFound
	}

	switch {
	case err == nil, errors.Is(err, ErrNotFound):
		s.consecutiveFailures.Store(0)
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Caller-requested deadlines are honoured, not masked
		return err
	default:
		failures := s.consecutiveFailures.Add(1)
		if failures >= s.degradedThreshold && s.degraded.CompareAndSwap(false, true) {
			s.logger.Warn("store entering degraded mode", map[string]interface{}{
				"consecutive_failures": failures,
			})
			s.metrics.IncrementCounter("store_degraded_transitions", 1)
			s.wg.Add(1)
			go s.probe()
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// probe pings the store with exponential backoff until it recovers
func (s *ResilientStore) probe() {
	defer s.wg.Done()

	s.probing.Lock()
	defer s.probing.Unlock()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = s.probeMaxInterval
	bo.MaxElapsedTime = 0 // probe until recovery or shutdown

	for {
		select {
		case <-s.closed:
			return
		case <-time.After(bo.NextBackOff()):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := s.inner.Ping(ctx)
		cancel()

		if err == nil {
			s.consecutiveFailures.Store(0)
			s.degraded.Store(false)
			s.logger.Info("store recovered from degraded mode", nil)
			s.metrics.IncrementCounter("store_recoveries", 1)
			return
		}
	}
}

// Degraded reports whether the store is currently short-circuiting calls
func (s *ResilientStore) Degraded() bool {
	return s.degraded.Load()
}

// Get retrieves a value with resilience handling
func (s *ResilientStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.execute(ctx, func(ctx context.Context) error {
		var opErr error
		value, opErr = s.inner.Get(ctx, key)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a value with resilience handling
func (s *ResilientStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.execute(ctx, func(ctx context.Context) error {
		return s.inner.Set(ctx, key, value, ttl)
	})
}

// MGet retrieves multiple keys with resilience handling
func (s *ResilientStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	var values [][]byte
	err := s.execute(ctx, func(ctx context.Context) error {
		var opErr error
		values, opErr = s.inner.MGet(ctx, keys)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Del deletes keys with resilience handling
func (s *ResilientStore) Del(ctx context.Context, keys ...string) (int, error) {
	var n int
	err := s.execute(ctx, func(ctx context.Context) error {
		var opErr error
		n, opErr = s.inner.Del(ctx, keys...)
		return opErr
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Scan iterates matching keys. Scans are not retried: the cursor is not
// restartable across attempts.
func (s *ResilientStore) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	if s.degraded.Load() {
		return ErrStoreUnavailable
	}
	return s.inner.Scan(ctx, pattern, fn)
}

// TTL returns the remaining lifetime of a key
func (s *ResilientStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	var d time.Duration
	err := s.execute(ctx, func(ctx context.Context) error {
		var opErr error
		d, opErr = s.inner.TTL(ctx, key)
		return opErr
	})
	if err != nil {
		return 0, err
	}
	return d, nil
}

// Info returns the underlying store info
func (s *ResilientStore) Info(ctx context.Context) (map[string]string, error) {
	info, err := s.inner.Info(ctx)
	if err != nil {
		return nil, err
	}
	info["degraded"] = fmt.Sprintf("%t", s.degraded.Load())
	return info, nil
}

// Ping verifies connectivity directly, bypassing degraded short-circuiting
func (s *ResilientStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close stops the recovery prober and closes the underlying store
func (s *ResilientStore) Close() error {
	s.once.Do(func() { close(s.closed) })
	s.wg.Wait()
	return s.inner.Close()
}
