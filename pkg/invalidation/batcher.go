package invalidation

import (
	"sync"
	"sync/atomic"
	"time"
)

// flushFunc receives a coalesced batch: the event type, the batching entity,
// the merged bindings of every event in the batch, and the event count.
type flushFunc func(eventType EventType, entityID string, bindings map[string][]string, count int)

// pendingBatch accumulates events sharing one batch key
type pendingBatch struct {
	eventType EventType
	entityID  string
	bindings  map[string][]string
	count     int
	timer     *time.Timer
}

// Batcher coalesces batchable events by (event type, entity) and releases
// each batch when its window elapses or it reaches the size cap. Bindings of
// merged events are unioned so one flush covers every affected pattern.
type Batcher struct {
	window  time.Duration
	maxSize int
	flush   flushFunc

	mu      sync.Mutex
	batches map[string]*pendingBatch
	closed  bool

	// flushLocks serializes flushes per batch key so one batch finishes
	// executing before the next batch for the same key starts
	flushLocks sync.Map

	wg      sync.WaitGroup
	merged  atomic.Int64
	flushes atomic.Int64
}

// NewBatcher creates a batcher releasing batches to flush
func NewBatcher(window time.Duration, maxSize int, flush flushFunc) *Batcher {
	if window <= 0 {
		window = time.Second
	}
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Batcher{
		window:  window,
		maxSize: maxSize,
		flush:   flush,
		batches: make(map[string]*pendingBatch),
	}
}

// Add merges the event into its pending batch, creating one when absent.
// Reaching the size cap flushes immediately on the caller's goroutine.
func (b *Batcher) Add(e Event) {
	key := string(e.Type()) + ":" + e.EntityID()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	batch, ok := b.batches[key]
	if !ok {
		batch = &pendingBatch{
			eventType: e.Type(),
			entityID:  e.EntityID(),
			bindings:  make(map[string][]string),
		}
		batch.timer = time.AfterFunc(b.window, func() { b.release(key) })
		b.batches[key] = batch
	} else {
		b.merged.Add(1)
	}
	mergeBindings(batch.bindings, e.Bindings())
	batch.count++
	full := batch.count >= b.maxSize
	b.mu.Unlock()

	if full {
		b.release(key)
	}
}

// release removes the batch for key and runs the flush callback. Only the
// caller that wins the map removal flushes; the timer and size paths cannot
// both fire for one batch.
func (b *Batcher) release(key string) {
	b.mu.Lock()
	batch, ok := b.batches[key]
	if ok {
		delete(b.batches, key)
		batch.timer.Stop()
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	lock, _ := b.flushLocks.LoadOrStore(key, &sync.Mutex{})
	keyLock := lock.(*sync.Mutex)

	b.wg.Add(1)
	defer b.wg.Done()

	keyLock.Lock()
	defer keyLock.Unlock()

	b.flushes.Add(1)
	b.flush(batch.eventType, batch.entityID, batch.bindings, batch.count)
}

// FlushAll releases every pending batch synchronously and stops intake.
// Called once on shutdown.
func (b *Batcher) FlushAll() {
	b.mu.Lock()
	b.closed = true
	keys := make([]string, 0, len(b.batches))
	for key := range b.batches {
		keys = append(keys, key)
	}
	b.mu.Unlock()

	for _, key := range keys {
		b.release(key)
	}
	b.wg.Wait()
}

// Stats returns the merged-event and flush counters
func (b *Batcher) Stats() (merged, flushes int64) {
	return b.merged.Load(), b.flushes.Load()
}

// mergeBindings unions src into dst without duplicating values
func mergeBindings(dst map[string][]string, src map[string][]string) {
	for name, values := range src {
		existing := dst[name]
		for _, v := range values {
			if !containsString(existing, v) {
				existing = append(existing, v)
			}
		}
		dst[name] = existing
	}
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
