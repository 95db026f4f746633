package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mlg-clan/platform-core/pkg/observability"
)

// Bulkhead errors
var (
	ErrBulkheadFull    = errors.New("bulkhead is full, cannot acquire resource")
	ErrBulkheadClosed  = errors.New("bulkhead is closed")
	ErrBulkheadTimeout = errors.New("timeout waiting for bulkhead resource")
)

// BulkheadConfig holds configuration for a bulkhead
type BulkheadConfig struct {
	// MaxConcurrentCalls is the maximum number of concurrent calls allowed
	MaxConcurrentCalls int

	// AcquireTimeout is the maximum time a call waits for a free slot.
	// Zero means wait only for the caller's context.
	AcquireTimeout time.Duration

	// EnableBackpressure rejects callers immediately when no slot is free
	// instead of waiting
	EnableBackpressure bool
}

// Bulkhead bounds concurrent work against a shared resource. The invalidation
// bus executes cache deletions through one so a flood of events cannot
// monopolize the store connection pool.
type Bulkhead struct {
	name   string
	config BulkheadConfig

	semaphore chan struct{}

	activeRequests    atomic.Int64
	totalRequests     atomic.Int64
	rejectedRequests  atomic.Int64
	completedRequests atomic.Int64
	timedOutRequests  atomic.Int64

	logger  observability.Logger
	metrics observability.MetricsClient

	closed atomic.Bool
}

// NewBulkhead creates a new bulkhead with the given configuration
func NewBulkhead(name string, config BulkheadConfig, logger observability.Logger, metrics observability.MetricsClient) *Bulkhead {
	// Apply defaults
	if config.MaxConcurrentCalls <= 0 {
		config.MaxConcurrentCalls = 10
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}

	return &Bulkhead{
		name:      name,
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrentCalls),
		logger:    logger,
		metrics:   metrics,
	}
}

// Execute executes the given operation with bulkhead protection
func (b *Bulkhead) Execute(ctx context.Context, operation func(context.Context) error) error {
	if b.closed.Load() {
		return ErrBulkheadClosed
	}

	b.totalRequests.Add(1)

	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()

	b.activeRequests.Add(1)
	defer b.activeRequests.Add(-1)

	err := operation(ctx)
	b.completedRequests.Add(1)
	return err
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	if b.config.EnableBackpressure {
		select {
		case b.semaphore <- struct{}{}:
			return nil
		default:
			b.rejectedRequests.Add(1)
			b.metrics.IncrementCounterWithLabels("bulkhead_rejected", 1, map[string]string{"name": b.name})
			return ErrBulkheadFull
		}
	}

	var timeout <-chan time.Time
	if b.config.AcquireTimeout > 0 {
		timer := time.NewTimer(b.config.AcquireTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case b.semaphore <- struct{}{}:
		return nil
	case <-timeout:
		b.timedOutRequests.Add(1)
		b.metrics.IncrementCounterWithLabels("bulkhead_timeout", 1, map[string]string{"name": b.name})
		return ErrBulkheadTimeout
	case <-ctx.Done():
		b.rejectedRequests.Add(1)
		return ctx.Err()
	}
}

func (b *Bulkhead) release() {
	<-b.semaphore
}

// BulkheadStats reports the current counters of a bulkhead
type BulkheadStats struct {
	Name              string
	ActiveRequests    int64
	TotalRequests     int64
	RejectedRequests  int64
	CompletedRequests int64
	TimedOutRequests  int64
}

// GetStats returns a snapshot of the bulkhead counters
func (b *Bulkhead) GetStats() BulkheadStats {
	return BulkheadStats{
		Name:              b.name,
		ActiveRequests:    b.activeRequests.Load(),
		TotalRequests:     b.totalRequests.Load(),
		RejectedRequests:  b.rejectedRequests.Load(),
		CompletedRequests: b.completedRequests.Load(),
		TimedOutRequests:  b.timedOutRequests.Load(),
	}
}

// Close marks the bulkhead closed. In-flight operations finish; new ones are
// rejected.
func (b *Bulkhead) Close() error {
	b.closed.Store(true)
	return nil
}
