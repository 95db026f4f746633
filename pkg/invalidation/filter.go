package invalidation

import (
	"sync"
	"sync/atomic"
	"time"
)

// filterCompactionLimit bounds the seen map before stale entries are swept
const filterCompactionLimit = 4096

// EventFilter drops repeat events for the same entity inside a short window.
// A burst of votes for one piece of content produces one invalidation pass,
// not fifty.
type EventFilter struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time

	filtered atomic.Int64
}

// NewEventFilter creates a filter with the given duplicate window
func NewEventFilter(window time.Duration) *EventFilter {
	if window <= 0 {
		window = time.Second
	}
	return &EventFilter{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// Accept reports whether the event should be processed. The first event for
// an entity within the window passes; the rest are dropped until it elapses.
func (f *EventFilter) Accept(e Event) bool {
	key := string(e.Type()) + ":" + e.EntityID()
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if last, ok := f.seen[key]; ok && now.Sub(last) < f.window {
		f.filtered.Add(1)
		return false
	}

	if len(f.seen) >= filterCompactionLimit {
		f.compactLocked(now)
	}
	f.seen[key] = now
	return true
}

// Filtered returns the number of events dropped as duplicates
func (f *EventFilter) Filtered() int64 {
	return f.filtered.Load()
}

func (f *EventFilter) compactLocked(now time.Time) {
	for key, last := range f.seen {
		if now.Sub(last) >= f.window {
			delete(f.seen, key)
		}
	}
}
