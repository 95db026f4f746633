package queryperf

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// InstrumentedDB wraps an sqlx database so every call is timed and fed to
// the monitor. Query errors are still recorded; a failing slow query is as
// interesting as a succeeding one.
type InstrumentedDB struct {
	db      *sqlx.DB
	monitor *Monitor
}

// NewInstrumentedDB wraps db with query performance recording
func NewInstrumentedDB(db *sqlx.DB, monitor *Monitor) *InstrumentedDB {
	return &InstrumentedDB{db: db, monitor: monitor}
}

// DB exposes the underlying sqlx handle for migrations and pool tuning
func (i *InstrumentedDB) DB() *sqlx.DB {
	return i.db
}

func (i *InstrumentedDB) observe(query string, start time.Time) {
	i.monitor.Record(query, time.Since(start))
}

// QueryContext runs a query returning rows
func (i *InstrumentedDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := i.db.QueryContext(ctx, query, args...)
	i.observe(query, start)
	return rows, err
}

// QueryxContext runs a query returning sqlx rows
func (i *InstrumentedDB) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	start := time.Now()
	rows, err := i.db.QueryxContext(ctx, query, args...)
	i.observe(query, start)
	return rows, err
}

// GetContext scans a single row into dest
func (i *InstrumentedDB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := i.db.GetContext(ctx, dest, query, args...)
	i.observe(query, start)
	return err
}

// SelectContext scans all rows into dest
func (i *InstrumentedDB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := i.db.SelectContext(ctx, dest, query, args...)
	i.observe(query, start)
	return err
}

// QueryRowxContext runs a query expected to return at most one row
func (i *InstrumentedDB) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	start := time.Now()
	row := i.db.QueryRowxContext(ctx, query, args...)
	i.observe(query, start)
	return row
}

// NamedExecContext runs a named statement without returning rows
func (i *InstrumentedDB) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	start := time.Now()
	res, err := i.db.NamedExecContext(ctx, query, arg)
	i.observe(query, start)
	return res, err
}

// ExecContext runs a statement without returning rows
func (i *InstrumentedDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	res, err := i.db.ExecContext(ctx, query, args...)
	i.observe(query, start)
	return res, err
}

// Ping verifies the connection
func (i *InstrumentedDB) Ping(ctx context.Context) error {
	return i.db.PingContext(ctx)
}

// Close closes the underlying pool
func (i *InstrumentedDB) Close() error {
	return i.db.Close()
}
