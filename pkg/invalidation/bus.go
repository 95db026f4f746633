package invalidation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mlg-clan/platform-core/pkg/observability"
	"github.com/mlg-clan/platform-core/pkg/resilience"
	"github.com/mlg-clan/platform-core/pkg/retry"
)

// actionTimeout bounds a single invalidation action, retries included
const actionTimeout = 5 * time.Second

// Invalidator clears cache regions by pattern. The cache manager satisfies
// this directly.
type Invalidator interface {
	InvalidatePattern(ctx context.Context, namespace, pattern string) (int, error)
}

// Config holds the invalidation bus configuration
type Config struct {
	// BufferSize is the event queue depth; publishers never block, events
	// beyond the buffer are dropped and counted
	BufferSize int `mapstructure:"buffer_size" json:"buffer_size"`

	// InvalidationDelay is the short wait before a high-priority event
	// executes, letting the originating write settle
	InvalidationDelay time.Duration `mapstructure:"invalidation_delay" json:"invalidation_delay"`

	// BatchWindow is how long a batch accumulates before flushing
	BatchWindow time.Duration `mapstructure:"batch_window" json:"batch_window"`

	// MaxBatchSize flushes a batch early once this many events merged
	MaxBatchSize int `mapstructure:"max_batch_size" json:"max_batch_size"`

	// MaxRetries and RetryDelay shape the linear retry for failed actions;
	// the total retry budget for one action is MaxRetries × RetryDelay
	MaxRetries int           `mapstructure:"max_retries" json:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" json:"retry_delay"`

	// EnableFiltering drops repeat events per entity within FilterWindow
	EnableFiltering bool          `mapstructure:"enable_filtering" json:"enable_filtering"`
	FilterWindow    time.Duration `mapstructure:"filter_window" json:"filter_window"`

	// MaxConcurrentInvalidations bounds parallel pattern scans against the
	// store so invalidation bursts cannot starve request traffic
	MaxConcurrentInvalidations int `mapstructure:"max_concurrent_invalidations" json:"max_concurrent_invalidations"`

	// DeadLetterCapacity bounds the in-memory dead-letter log
	DeadLetterCapacity int `mapstructure:"dead_letter_capacity" json:"dead_letter_capacity"`

	// ShutdownTimeout caps how long Close waits for in-flight work
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig returns the default bus configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:                 1024,
		InvalidationDelay:          50 * time.Millisecond,
		BatchWindow:                time.Second,
		MaxBatchSize:               100,
		MaxRetries:                 3,
		RetryDelay:                 100 * time.Millisecond,
		EnableFiltering:            true,
		FilterWindow:               time.Second,
		MaxConcurrentInvalidations: 10,
		DeadLetterCapacity:         256,
		ShutdownTimeout:            5 * time.Second,
	}
}

// Stats is a point-in-time snapshot of bus counters
type Stats struct {
	Published       int64 `json:"published"`
	Dropped         int64 `json:"dropped"`
	Filtered        int64 `json:"filtered"`
	BatchesMerged   int64 `json:"batches_merged"`
	BatchesFlushed  int64 `json:"batches_flushed"`
	ActionsExecuted int64 `json:"actions_executed"`
	ActionsFailed   int64 `json:"actions_failed"`
	KeysInvalidated int64 `json:"keys_invalidated"`
	DeadLetters     int   `json:"dead_letters"`
}

// Bus routes domain events through filtering, batching, rule resolution, and
// cascade expansion down to pattern deletions against the cache. Publish is
// non-blocking; all cache work happens off the request path.
type Bus struct {
	cfg    Config
	rules  map[EventType]Rule
	graph  *CascadeGraph
	filter *EventFilter

	invalidator Invalidator
	batcher     *Batcher
	retrier     retry.Policy
	bulkhead    *resilience.Bulkhead
	dead        *deadLetterLog

	events  chan Event
	stopped chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup

	published       atomic.Int64
	dropped         atomic.Int64
	actionsExecuted atomic.Int64
	actionsFailed   atomic.Int64
	keysInvalidated atomic.Int64

	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewBus creates and starts an invalidation bus over the invalidator
func NewBus(invalidator Invalidator, cfg Config, logger observability.Logger, metrics observability.MetricsClient) *Bus {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.InvalidationDelay < 0 {
		cfg.InvalidationDelay = 0
	}
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = def.BatchWindow
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.FilterWindow <= 0 {
		cfg.FilterWindow = def.FilterWindow
	}
	if cfg.MaxConcurrentInvalidations <= 0 {
		cfg.MaxConcurrentInvalidations = def.MaxConcurrentInvalidations
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	b := &Bus{
		cfg:         cfg,
		rules:       DefaultRules(),
		graph:       DefaultCascadeGraph(),
		invalidator: invalidator,
		retrier:     retry.NewLinearBackoff(cfg.RetryDelay, cfg.MaxRetries),
		dead:        newDeadLetterLog(cfg.DeadLetterCapacity),
		events:      make(chan Event, cfg.BufferSize),
		stopped:     make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger,
		metrics:     metrics,
	}
	if cfg.EnableFiltering {
		b.filter = NewEventFilter(cfg.FilterWindow)
	}
	b.batcher = NewBatcher(cfg.BatchWindow, cfg.MaxBatchSize, b.flushBatch)
	b.bulkhead = resilience.NewBulkhead("invalidation", resilience.BulkheadConfig{
		MaxConcurrentCalls: cfg.MaxConcurrentInvalidations,
		AcquireTimeout:     actionTimeout,
	}, logger, metrics)

	go b.dispatch()
	return b
}

// Publish enqueues an event without blocking. It returns false when the bus
// is closed or the buffer is full; the event is then dropped and counted.
func (b *Bus) Publish(e Event) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.events <- e:
		b.published.Add(1)
		b.metrics.IncrementCounterWithLabels("invalidation_events", 1, map[string]string{"type": string(e.Type())})
		return true
	default:
		b.dropped.Add(1)
		b.logger.Warn("invalidation event dropped, buffer full", map[string]interface{}{
			"type":   string(e.Type()),
			"entity": e.EntityID(),
		})
		return false
	}
}

// dispatch consumes the event queue until Close, then drains what is left
func (b *Bus) dispatch() {
	defer close(b.done)
	for {
		select {
		case e := <-b.events:
			b.handle(e)
		case <-b.stopped:
			for {
				select {
				case e := <-b.events:
					b.handle(e)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) handle(e Event) {
	if b.filter != nil && !b.filter.Accept(e) {
		return
	}

	if e.HighPriority() {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if b.cfg.InvalidationDelay > 0 {
				timer := time.NewTimer(b.cfg.InvalidationDelay)
				select {
				case <-timer.C:
				case <-b.stopped:
					timer.Stop()
				}
			}
			b.execute(e.Type(), e.Bindings())
		}()
		return
	}

	b.batcher.Add(e)
}

// flushBatch executes the aggregate action set of one coalesced batch
func (b *Bus) flushBatch(eventType EventType, entityID string, bindings map[string][]string, count int) {
	b.logger.Debug("flushing invalidation batch", map[string]interface{}{
		"type":   string(eventType),
		"entity": entityID,
		"events": count,
	})
	b.execute(eventType, bindings)
}

// execute resolves the rule for the event type, expands cascades, and runs
// each distinct action
func (b *Bus) execute(eventType EventType, bindings map[string][]string) {
	rule, ok := b.rules[eventType]
	if !ok {
		return
	}

	initial := make([]resolvedAction, 0, len(rule.Actions))
	for _, action := range rule.Actions {
		initial = append(initial, resolve(action, bindings)...)
	}
	actions := b.graph.Expand(initial, bindings)

	for _, action := range actions {
		b.executeAction(eventType, action)
	}
}

// executeAction runs one pattern deletion through the bulkhead with linear
// retry; an action that exhausts its budget is dead-lettered, never re-queued
func (b *Bus) executeAction(eventType EventType, action resolvedAction) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	err := b.retrier.Execute(ctx, func(ctx context.Context) error {
		return b.bulkhead.Execute(ctx, func(ctx context.Context) error {
			removed, err := b.invalidator.InvalidatePattern(ctx, action.Namespace, action.globPattern())
			if err != nil {
				return err
			}
			b.keysInvalidated.Add(int64(removed))
			return nil
		})
	})
	if err != nil {
		b.actionsFailed.Add(1)
		b.metrics.IncrementCounter("invalidation_actions_failed", 1)
		b.dead.add(DeadLetterEntry{
			ID:        uuid.New(),
			EventType: eventType,
			Namespace: action.Namespace,
			Pattern:   action.Pattern,
			Error:     err.Error(),
			Attempts:  b.cfg.MaxRetries,
			FailedAt:  time.Now().UTC(),
		})
		b.logger.Error("invalidation action dead-lettered", map[string]interface{}{
			"type":      string(eventType),
			"namespace": action.Namespace,
			"pattern":   action.Pattern,
			"error":     err.Error(),
		})
		return
	}
	b.actionsExecuted.Add(1)
}

// DeadLetters returns a copy of the dead-letter log
func (b *Bus) DeadLetters() []DeadLetterEntry {
	return b.dead.snapshot()
}

// Stats returns a snapshot of the bus counters
func (b *Bus) Stats() Stats {
	var filtered int64
	if b.filter != nil {
		filtered = b.filter.Filtered()
	}
	merged, flushes := b.batcher.Stats()
	return Stats{
		Published:       b.published.Load(),
		Dropped:         b.dropped.Load(),
		Filtered:        filtered,
		BatchesMerged:   merged,
		BatchesFlushed:  flushes,
		ActionsExecuted: b.actionsExecuted.Load(),
		ActionsFailed:   b.actionsFailed.Load(),
		KeysInvalidated: b.keysInvalidated.Load(),
		DeadLetters:     len(b.dead.snapshot()),
	}
}

// Close stops intake, drains the queue, flushes pending batches exactly once,
// and waits up to ShutdownTimeout for in-flight actions
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.stopped)
	<-b.done

	b.batcher.FlushAll()

	waited := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(b.cfg.ShutdownTimeout):
		b.logger.Warn("invalidation shutdown timed out with actions in flight", nil)
	}

	return b.bulkhead.Close()
}
