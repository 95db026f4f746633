package queryperf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EnableSampling = false
	cfg.RetentionSweepInterval = time.Hour
	return cfg
}

func TestMonitor_RecordsAndClassifies(t *testing.T) {
	m := NewMonitor(testConfig(), nil, nil)
	defer func() { require.NoError(t, m.Close()) }()

	m.Record("SELECT * FROM voting_results WHERE id = 1", 20*time.Millisecond)
	m.Record("SELECT * FROM clans WHERE id = 2", 30*time.Millisecond)

	require.Eventually(t, func() bool {
		return m.Snapshot().Recorded == 2
	}, 2*time.Second, 5*time.Millisecond)

	report := m.Snapshot()
	assert.Equal(t, int64(1), report.Classes[ClassVoting].Count)
	assert.Equal(t, int64(1), report.Classes[ClassClan].Count)
	assert.Empty(t, report.SlowQueries)
}

func TestMonitor_SlowQueryBreachesSLA(t *testing.T) {
	m := NewMonitor(testConfig(), nil, nil)
	defer func() { require.NoError(t, m.Close()) }()

	var mu sync.Mutex
	var seen []SlowQuery
	m.OnSlowQuery = func(s SlowQuery) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}

	// 150ms breaches the 100ms voting SLA but not the clan/other 1s SLA
	m.Record("SELECT * FROM voting_results WHERE content_id = 7", 150*time.Millisecond)
	m.Record("SELECT * FROM clans WHERE id = 2", 150*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	slow := seen[0]
	mu.Unlock()
	assert.Equal(t, ClassVoting, slow.Class)
	assert.Equal(t, 100.0, slow.ThresholdMillis)
	assert.False(t, slow.VerySlow)
}

func TestMonitor_TenSlowVotingQueriesOneAlert(t *testing.T) {
	m := NewMonitor(testConfig(), nil, nil)
	defer func() { require.NoError(t, m.Close()) }()

	var alertCount int
	var mu sync.Mutex
	m.OnAlert = func(a AlertEvent) {
		mu.Lock()
		alertCount++
		mu.Unlock()
	}

	for i := 0; i < 10; i++ {
		m.Record("SELECT * FROM voting_results WHERE content_id = 7", 200*time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return m.Snapshot().Alerts == 1
	}, 2*time.Second, 5*time.Millisecond)

	report := m.Snapshot()
	assert.Len(t, report.SlowQueries, 10)
	assert.Equal(t, int64(1), report.Alerts)
	mu.Lock()
	assert.Equal(t, 1, alertCount)
	mu.Unlock()

	// Nine more breaches stay under the threshold; no second alert
	for i := 0; i < 9; i++ {
		m.Record("SELECT * FROM voting_results WHERE content_id = 8", 200*time.Millisecond)
	}
	require.Eventually(t, func() bool {
		return m.Snapshot().Recorded == 19
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), m.Snapshot().Alerts)
}

func TestMonitor_RegressionDetectionAndRebaseline(t *testing.T) {
	m := NewMonitor(testConfig(), nil, nil)
	defer func() { require.NoError(t, m.Close()) }()

	var mu sync.Mutex
	var events []RegressionEvent
	m.OnRegression = func(e RegressionEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	const query = "SELECT * FROM widgets WHERE id = 3"

	// Baseline forms at 10 samples around 100ms
	for i := 0; i < 10; i++ {
		m.Record(query, 100*time.Millisecond)
	}
	// The next window doubles: ratio 1.0 > 0.5 threshold
	for i := 0; i < 10; i++ {
		m.Record(query, 200*time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	event := events[0]
	mu.Unlock()
	assert.InDelta(t, 100, event.BaselineMillis, 1)
	assert.InDelta(t, 200, event.CurrentMillis, 1)
	assert.InDelta(t, 1.0, event.Ratio, 0.05)

	// After re-baselining at 200ms a steady window is quiet
	for i := 0; i < 10; i++ {
		m.Record(query, 200*time.Millisecond)
	}
	require.Eventually(t, func() bool {
		return m.Snapshot().Recorded == 30
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Len(t, events, 1)
	mu.Unlock()
	assert.Equal(t, int64(1), m.Snapshot().Regressions)
}

func TestMonitor_CloseDrainsQueue(t *testing.T) {
	m := NewMonitor(testConfig(), nil, nil)
	for i := 0; i < 50; i++ {
		m.Record("SELECT * FROM clans WHERE id = 1", 10*time.Millisecond)
	}
	require.NoError(t, m.Close())
	assert.Equal(t, int64(50), m.Snapshot().Recorded)
}

func TestInstrumentedDB_RecordsQueries(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "sqlmock")

	m := NewMonitor(testConfig(), nil, nil)
	defer func() { require.NoError(t, m.Close()) }()
	idb := NewInstrumentedDB(db, m)
	defer idb.Close()

	mock.ExpectQuery("SELECT name FROM clans").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Reapers"))

	var name string
	require.NoError(t, idb.GetContext(context.Background(), &name, "SELECT name FROM clans WHERE id = 1"))
	assert.Equal(t, "Reapers", name)

	require.Eventually(t, func() bool {
		return m.Snapshot().Recorded == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), m.Snapshot().Classes[ClassClan].Count)
	require.NoError(t, mock.ExpectationsWereMet())
}
