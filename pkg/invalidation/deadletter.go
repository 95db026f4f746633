package invalidation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DeadLetterEntry records an invalidation action that exhausted its retry
// budget. Entries are held in memory for operator inspection and replay.
type DeadLetterEntry struct {
	ID        uuid.UUID `json:"id"`
	EventType EventType `json:"event_type"`
	Namespace string    `json:"namespace"`
	Pattern   string    `json:"pattern"`
	Error     string    `json:"error"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}

// deadLetterLog is a bounded ring of failed actions; the oldest entry is
// dropped when capacity is reached
type deadLetterLog struct {
	mu       sync.Mutex
	entries  []DeadLetterEntry
	capacity int
}

func newDeadLetterLog(capacity int) *deadLetterLog {
	if capacity <= 0 {
		capacity = 256
	}
	return &deadLetterLog{capacity: capacity}
}

func (d *deadLetterLog) add(entry DeadLetterEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.entries) >= d.capacity {
		d.entries = d.entries[1:]
	}
	d.entries = append(d.entries, entry)
}

func (d *deadLetterLog) snapshot() []DeadLetterEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DeadLetterEntry(nil), d.entries...)
}
