package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})

	result, err := cb.Execute(func() (interface{}, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreaker_TripsOnFailureRatio(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:     "test",
		Interval: time.Minute,
		Timeout:  time.Minute,
	})

	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, boom
		})
		require.Error(t, err)
	}

	assert.True(t, cb.IsOpen())

	_, err := cb.Execute(func() (interface{}, error) {
		t.Fatal("must not be invoked while open")
		return nil, nil
	})
	assert.True(t, IsCircuitOpen(err))
}

func TestCircuitBreaker_ErrorFilterDoesNotTrip(t *testing.T) {
	notFound := errors.New("not found")
	cfg := DefaultCircuitBreakerConfigs["cache_store"].BuildConfig("cache_store", func(err error) bool {
		return errors.Is(err, notFound)
	})
	cb := NewCircuitBreaker(cfg)

	// Misses are not failures: the breaker must stay closed no matter how
	// many the store reports.
	for i := 0; i < 50; i++ {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, notFound
		})
		require.ErrorIs(t, err, notFound)
	}

	assert.False(t, cb.IsOpen())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:    "test",
		Timeout: 50 * time.Millisecond,
	})

	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, boom })
	}
	require.True(t, cb.IsOpen())

	// After the open timeout a probe succeeds and the breaker closes again.
	time.Sleep(80 * time.Millisecond)
	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerManager(t *testing.T) {
	mgr := NewCircuitBreakerManager(map[string]CircuitBreakerConfig{
		"cache_store": {},
	})

	cb, ok := mgr.Get("cache_store")
	require.True(t, ok)
	assert.Equal(t, "cache_store", cb.Name())

	_, ok = mgr.Get("unknown")
	assert.False(t, ok)

	// Execute lazily registers unknown breakers.
	result, err := mgr.Execute(context.Background(), "lazy", func() (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)

	_, ok = mgr.Get("lazy")
	assert.True(t, ok)
}
