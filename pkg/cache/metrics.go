package cache

import (
	"sync/atomic"
	"time"
)

// Metrics tracks cache manager activity with atomic counters
type Metrics struct {
	hits             atomic.Int64
	misses           atomic.Int64
	sets             atomic.Int64
	deletes          atomic.Int64
	errors           atomic.Int64
	compressionSaves atomic.Int64

	totalResponseMicros atomic.Int64
	operations          atomic.Int64
}

func (m *Metrics) recordDuration(d time.Duration) {
	m.totalResponseMicros.Add(d.Microseconds())
	m.operations.Add(1)
}

// MetricsSnapshot is a point-in-time copy of the manager counters
type MetricsSnapshot struct {
	Hits             int64   `json:"hits"`
	Misses           int64   `json:"misses"`
	Sets             int64   `json:"sets"`
	Deletes          int64   `json:"deletes"`
	Errors           int64   `json:"errors"`
	CompressionSaves int64   `json:"compression_saves"`
	HitRate          float64 `json:"hit_rate"`
	AvgResponseMs    float64 `json:"avg_response_ms"`
}

// Snapshot returns a copy of the current counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	hits := m.hits.Load()
	misses := m.misses.Load()

	snap := MetricsSnapshot{
		Hits:             hits,
		Misses:           misses,
		Sets:             m.sets.Load(),
		Deletes:          m.deletes.Load(),
		Errors:           m.errors.Load(),
		CompressionSaves: m.compressionSaves.Load(),
	}
	if total := hits + misses; total > 0 {
		snap.HitRate = float64(hits) / float64(total)
	}
	if ops := m.operations.Load(); ops > 0 {
		snap.AvgResponseMs = float64(m.totalResponseMicros.Load()) / float64(ops) / 1000
	}
	return snap
}
