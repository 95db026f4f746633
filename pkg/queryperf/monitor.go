package queryperf

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mlg-clan/platform-core/pkg/observability"
)

// Config holds the query monitor configuration
type Config struct {
	// EnableSampling admits fast queries with SamplingRate probability;
	// slow queries are always admitted
	EnableSampling bool    `mapstructure:"enable_sampling" json:"enable_sampling"`
	SamplingRate   float64 `mapstructure:"sampling_rate" json:"sampling_rate"`

	// BufferSize is the recording queue depth; recording never blocks the
	// caller, overflow is dropped and counted
	BufferSize int `mapstructure:"buffer_size" json:"buffer_size"`

	// RecentSize and SlowSize bound the retained query rings
	RecentSize int `mapstructure:"recent_size" json:"recent_size"`
	SlowSize   int `mapstructure:"slow_size" json:"slow_size"`

	// Regression settings: a baseline forms at MinSamples, then each full
	// window of samples is compared against it
	MinSamples          int     `mapstructure:"min_samples" json:"min_samples"`
	RegressionWindow    int     `mapstructure:"regression_window" json:"regression_window"`
	RegressionThreshold float64 `mapstructure:"regression_threshold" json:"regression_threshold"`

	// Alert settings: one alert per AlertThreshold slow queries within an
	// AlertWindow
	AlertWindow    time.Duration `mapstructure:"alert_window" json:"alert_window"`
	AlertThreshold int           `mapstructure:"alert_threshold" json:"alert_threshold"`

	// RetentionPeriod ages out recent queries, slow queries, and per-hash
	// history; the sweep runs every RetentionSweepInterval
	RetentionPeriod        time.Duration `mapstructure:"retention_period" json:"retention_period"`
	RetentionSweepInterval time.Duration `mapstructure:"retention_sweep_interval" json:"retention_sweep_interval"`
}

// DefaultConfig returns the default monitor configuration
func DefaultConfig() Config {
	return Config{
		EnableSampling:         true,
		SamplingRate:           0.1,
		BufferSize:             4096,
		RecentSize:             1000,
		SlowSize:               100,
		MinSamples:             10,
		RegressionWindow:       10,
		RegressionThreshold:    0.5,
		AlertWindow:            5 * time.Minute,
		AlertThreshold:         10,
		RetentionPeriod:        24 * time.Hour,
		RetentionSweepInterval: time.Hour,
	}
}

// ClassStats summarizes one query class in a snapshot
type ClassStats struct {
	Count      int64   `json:"count"`
	MeanMillis float64 `json:"mean_millis"`
	P95Millis  float64 `json:"p95_millis"`
	P99Millis  float64 `json:"p99_millis"`
}

// Report is a point-in-time view of the monitor's state
type Report struct {
	Recorded    int64                     `json:"recorded"`
	Dropped     int64                     `json:"dropped"`
	SlowQueries []SlowQuery               `json:"slow_queries"`
	Classes     map[QueryClass]ClassStats `json:"classes"`
	Regressions int64                     `json:"regressions"`
	Alerts      int64                     `json:"alerts"`
}

type recordMsg struct {
	sql      string
	duration time.Duration
	at       time.Time
}

// Monitor observes query executions off the request path. Callbacks fire on
// the worker goroutine and must not block.
type Monitor struct {
	cfg Config

	records chan recordMsg
	stopped chan struct{}
	done    chan struct{}
	closed  atomic.Bool

	mu      sync.RWMutex
	perHash map[string]*queryStats
	recent  *ring
	slow    []SlowQuery

	alertMu          sync.Mutex
	alertWindowStart time.Time
	alertWindowCount int

	recorded    atomic.Int64
	dropped     atomic.Int64
	regressions atomic.Int64
	alerts      atomic.Int64

	// OnSlowQuery, OnRegression, and OnAlert are invoked for the matching
	// events when set; assign them before any Record call
	OnSlowQuery  func(SlowQuery)
	OnRegression func(RegressionEvent)
	OnAlert      func(AlertEvent)

	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewMonitor creates and starts a query monitor
func NewMonitor(cfg Config, logger observability.Logger, metrics observability.MetricsClient) *Monitor {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	def := DefaultConfig()
	if cfg.SamplingRate <= 0 || cfg.SamplingRate > 1 {
		cfg.SamplingRate = def.SamplingRate
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.RecentSize <= 0 {
		cfg.RecentSize = def.RecentSize
	}
	if cfg.SlowSize <= 0 {
		cfg.SlowSize = def.SlowSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.RegressionWindow <= 0 {
		cfg.RegressionWindow = def.RegressionWindow
	}
	if cfg.RegressionThreshold <= 0 {
		cfg.RegressionThreshold = def.RegressionThreshold
	}
	if cfg.AlertWindow <= 0 {
		cfg.AlertWindow = def.AlertWindow
	}
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = def.AlertThreshold
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = def.RetentionPeriod
	}
	if cfg.RetentionSweepInterval <= 0 {
		cfg.RetentionSweepInterval = def.RetentionSweepInterval
	}

	m := &Monitor{
		cfg:     cfg,
		records: make(chan recordMsg, cfg.BufferSize),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
		perHash: make(map[string]*queryStats),
		recent:  newRing(cfg.RecentSize),
		logger:  logger,
		metrics: metrics,
	}
	go m.run()
	return m
}

// Record enqueues one query execution for analysis. It never blocks: when
// the buffer is full the observation is dropped and counted.
func (m *Monitor) Record(sql string, duration time.Duration) {
	select {
	case m.records <- recordMsg{sql: sql, duration: duration, at: time.Now().UTC()}:
	default:
		m.dropped.Add(1)
	}
}

// run is the analysis worker; it also owns the retention sweep
func (m *Monitor) run() {
	defer close(m.done)
	sweep := time.NewTicker(m.cfg.RetentionSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case msg := <-m.records:
			m.process(msg)
		case <-sweep.C:
			m.evictExpired()
		case <-m.stopped:
			for {
				select {
				case msg := <-m.records:
					m.process(msg)
				default:
					return
				}
			}
		}
	}
}

func (m *Monitor) process(msg recordMsg) {
	normalized := Normalize(msg.sql)
	hash := QueryHash(normalized)
	class := Classify(normalized)
	execMillis := float64(msg.duration) / float64(time.Millisecond)

	threshold := SLAFor(class)
	isSlow := msg.duration > threshold

	// Sampling admits a fraction of fast queries; slow ones always count
	if m.cfg.EnableSampling && !isSlow && rand.Float64() >= m.cfg.SamplingRate {
		return
	}
	m.recorded.Add(1)

	rec := QueryRecord{
		Hash:       hash,
		SQL:        normalized,
		Class:      class,
		ExecMillis: execMillis,
		At:         msg.at,
	}

	regression := m.updateStats(rec)

	m.metrics.RecordDatabaseOperation(string(class), true, msg.duration.Seconds())

	if isSlow {
		slow := SlowQuery{
			QueryRecord:     rec,
			ThresholdMillis: float64(threshold) / float64(time.Millisecond),
			VerySlow:        msg.duration >= verySlowThreshold,
			Hints:           HintsFor(normalized, execMillis, class),
		}
		m.recordSlow(slow)
	}

	if regression != nil {
		m.regressions.Add(1)
		m.metrics.IncrementCounter("query_regressions", 1)
		m.logger.Warn("query latency regression", map[string]interface{}{
			"hash":     regression.Hash,
			"baseline": regression.BaselineMillis,
			"current":  regression.CurrentMillis,
		})
		if m.OnRegression != nil {
			m.OnRegression(*regression)
		}
	}
}

// updateStats folds the record into the rings and per-hash history and
// returns a regression event when the current window degraded past the
// threshold
func (m *Monitor) updateStats(rec QueryRecord) *RegressionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recent.add(rec)

	stats, ok := m.perHash[rec.Hash]
	if !ok {
		stats = &queryStats{hash: rec.Hash, sql: rec.SQL, class: rec.Class}
		m.perHash[rec.Hash] = stats
	}
	stats.count++
	stats.totalMillis += rec.ExecMillis
	if rec.ExecMillis > stats.maxMillis {
		stats.maxMillis = rec.ExecMillis
	}
	stats.lastSeen = rec.At

	if !stats.baselineSet {
		if stats.count >= int64(m.cfg.MinSamples) {
			stats.baseline = stats.mean()
			stats.baselineSet = true
		}
		return nil
	}

	stats.window = append(stats.window, rec.ExecMillis)
	if len(stats.window) < m.cfg.RegressionWindow {
		return nil
	}

	var sum float64
	for _, v := range stats.window {
		sum += v
	}
	current := sum / float64(len(stats.window))
	stats.window = stats.window[:0]

	if stats.baseline <= 0 {
		stats.baseline = current
		return nil
	}
	ratio := (current - stats.baseline) / stats.baseline
	if ratio <= m.cfg.RegressionThreshold {
		return nil
	}

	// Degraded past the threshold: report once and adopt the new level
	event := &RegressionEvent{
		Hash:           stats.hash,
		SQL:            stats.sql,
		BaselineMillis: stats.baseline,
		CurrentMillis:  current,
		Ratio:          ratio,
		At:             rec.At,
	}
	stats.baseline = current
	return event
}

func (m *Monitor) recordSlow(slow SlowQuery) {
	m.mu.Lock()
	if len(m.slow) >= m.cfg.SlowSize {
		m.slow = m.slow[1:]
	}
	m.slow = append(m.slow, slow)
	m.mu.Unlock()

	m.metrics.IncrementCounterWithLabels("slow_queries", 1, map[string]string{
		"class": string(slow.Class),
	})
	m.logger.Warn("slow query", map[string]interface{}{
		"hash":        slow.Hash,
		"class":       string(slow.Class),
		"exec_millis": slow.ExecMillis,
		"very_slow":   slow.VerySlow,
	})
	if m.OnSlowQuery != nil {
		m.OnSlowQuery(slow)
	}

	m.checkAlert(slow.At)
}

// checkAlert counts slow queries within the sliding window and emits one
// alert per threshold crossing, resetting the counter afterwards
func (m *Monitor) checkAlert(at time.Time) {
	m.alertMu.Lock()
	if at.Sub(m.alertWindowStart) > m.cfg.AlertWindow {
		m.alertWindowStart = at
		m.alertWindowCount = 0
	}
	m.alertWindowCount++
	fire := m.alertWindowCount >= m.cfg.AlertThreshold
	var count int
	if fire {
		count = m.alertWindowCount
		m.alertWindowCount = 0
	}
	m.alertMu.Unlock()

	if !fire {
		return
	}
	m.alerts.Add(1)
	m.metrics.IncrementCounter("slow_query_alerts", 1)
	m.logger.Error("slow query alert threshold reached", map[string]interface{}{
		"count":  count,
		"window": m.cfg.AlertWindow.String(),
	})
	if m.OnAlert != nil {
		m.OnAlert(AlertEvent{SlowCount: count, Window: m.cfg.AlertWindow, At: at})
	}
}

// evictExpired ages out history older than the retention period
func (m *Monitor) evictExpired() {
	cutoff := time.Now().UTC().Add(-m.cfg.RetentionPeriod)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.recent.evictOlder(cutoff)

	kept := m.slow[:0]
	for _, s := range m.slow {
		if !s.At.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	m.slow = kept

	for hash, stats := range m.perHash {
		if stats.lastSeen.Before(cutoff) {
			delete(m.perHash, hash)
		}
	}
}

// Snapshot returns the current report: counters, slow queries, and per-class
// mean and percentile latencies computed over the recent ring
func (m *Monitor) Snapshot() Report {
	m.mu.RLock()
	recent := m.recent.snapshot()
	slow := append([]SlowQuery(nil), m.slow...)
	m.mu.RUnlock()

	byClass := make(map[QueryClass][]float64)
	for _, rec := range recent {
		byClass[rec.Class] = append(byClass[rec.Class], rec.ExecMillis)
	}

	classes := make(map[QueryClass]ClassStats, len(byClass))
	for class, values := range byClass {
		var sum float64
		for _, v := range values {
			sum += v
		}
		classes[class] = ClassStats{
			Count:      int64(len(values)),
			MeanMillis: sum / float64(len(values)),
			P95Millis:  Percentile(values, 95),
			P99Millis:  Percentile(values, 99),
		}
	}

	return Report{
		Recorded:    m.recorded.Load(),
		Dropped:     m.dropped.Load(),
		SlowQueries: slow,
		Classes:     classes,
		Regressions: m.regressions.Load(),
		Alerts:      m.alerts.Load(),
	}
}

// Close stops the worker after draining queued observations
func (m *Monitor) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(m.stopped)
	<-m.done
	return nil
}
