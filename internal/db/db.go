// Package db is the SQLite backend: the ledger key-value table plus the audit
// and SQL trace tables, all in one file opened with the pure-Go driver.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Tracer receives one call per SQL statement the key-value store runs.
// *trace.Store satisfies it.
type Tracer interface {
	Record(ctx context.Context, op, query string, d time.Duration, err error)
}

type DB struct {
	*sql.DB
	tracer Tracer
}

func Open(path string) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serializes every transaction and keeps :memory: databases
	// shared between callers.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{DB: sqlDB}
	if err := db.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return db, nil
}

// SetTracer routes key-value statements to t. Call it before serving.
func (db *DB) SetTracer(t Tracer) {
	db.tracer = t
}

func (db *DB) migrate() error {
	_, err := db.Exec(schema)
	return err
}

func (db *DB) trace(ctx context.Context, op, query string, start time.Time, err error) {
	if db.tracer != nil {
		db.tracer.Record(ctx, op, query, time.Since(start), err)
	}
}
