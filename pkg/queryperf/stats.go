package queryperf

import (
	"math"
	"sort"
	"time"
)

// QueryRecord is one observed query execution
type QueryRecord struct {
	Hash       string     `json:"hash"`
	SQL        string     `json:"sql"`
	Class      QueryClass `json:"class"`
	ExecMillis float64    `json:"exec_millis"`
	At         time.Time  `json:"at"`
}

// SlowQuery is an SLA breach enriched with its hints
type SlowQuery struct {
	QueryRecord
	ThresholdMillis float64 `json:"threshold_millis"`
	VerySlow        bool    `json:"very_slow"`
	Hints           []Hint  `json:"hints,omitempty"`
}

// RegressionEvent reports a query shape whose mean latency degraded past the
// threshold relative to its baseline
type RegressionEvent struct {
	Hash           string    `json:"hash"`
	SQL            string    `json:"sql"`
	BaselineMillis float64   `json:"baseline_millis"`
	CurrentMillis  float64   `json:"current_millis"`
	Ratio          float64   `json:"ratio"`
	At             time.Time `json:"at"`
}

// AlertEvent fires when slow queries accumulate past the alert threshold
// within one window
type AlertEvent struct {
	SlowCount int           `json:"slow_count"`
	Window    time.Duration `json:"window"`
	At        time.Time     `json:"at"`
}

// queryStats accumulates per-hash history. The window holds the most recent
// samples used for regression comparison against the baseline.
type queryStats struct {
	hash        string
	sql         string
	class       QueryClass
	count       int64
	totalMillis float64
	maxMillis   float64
	baseline    float64
	baselineSet bool
	window      []float64
	lastSeen    time.Time
}

func (s *queryStats) mean() float64 {
	if s.count == 0 {
		return 0
	}
	return s.totalMillis / float64(s.count)
}

// ring is a bounded FIFO of query records; the oldest entry falls out first
type ring struct {
	entries  []QueryRecord
	capacity int
}

func newRing(capacity int) *ring {
	return &ring{capacity: capacity}
}

func (r *ring) add(rec QueryRecord) {
	if len(r.entries) >= r.capacity {
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, rec)
}

func (r *ring) snapshot() []QueryRecord {
	return append([]QueryRecord(nil), r.entries...)
}

// evictOlder drops entries recorded before cutoff
func (r *ring) evictOlder(cutoff time.Time) {
	kept := r.entries[:0]
	for _, e := range r.entries {
		if !e.At.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	r.entries = kept
}

// Percentile returns the p-th percentile of values using the nearest-rank
// method: the element at index ceil(p/100 × n) − 1 of the sorted slice
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
