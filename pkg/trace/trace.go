// Package trace records the SQL statements the SQLite ledger backend runs in
// a sql_traces table. Each row carries the ledger operation and caller that
// caused it, taken from the request context, so a slow statement can be
// traced back to the endpoint call.
//
// Usage:
//
//	store := trace.NewStore(sqlDB.DB)
//	store.Init()
//	defer store.Close()
//	sqlDB.SetTracer(store)
package trace

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/proofledger/pkg/kit"
)

// SlowThreshold is the duration above which a statement is logged at warn.
const SlowThreshold = 100 * time.Millisecond

// Entry is a single SQL trace record.
type Entry struct {
	TraceID    string `json:"trace_id,omitempty"`
	LedgerOp   string `json:"ledger_op,omitempty"`
	Caller     string `json:"caller,omitempty"`
	Op         string `json:"op"` // "Exec" or "Query"
	Query      string `json:"query"`
	DurationUs int64  `json:"duration_us"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp"` // unix microseconds
}

// Summary is what the integrity report shows about the trace table.
type Summary struct {
	Statements int64   `json:"statements"`
	Slowest    []Entry `json:"slowest"`
}

// Store persists SQL trace entries asynchronously.
type Store struct {
	db   *sql.DB
	ch   chan *Entry
	done chan struct{}
	once sync.Once
}

const Schema = `
CREATE TABLE IF NOT EXISTS sql_traces (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT,
	ledger_op TEXT,
	caller TEXT,
	op TEXT NOT NULL,
	query TEXT NOT NULL,
	duration_us INTEGER NOT NULL,
	error TEXT,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sql_traces_ts ON sql_traces(timestamp);
CREATE INDEX IF NOT EXISTS idx_sql_traces_tid ON sql_traces(trace_id) WHERE trace_id != '';
CREATE INDEX IF NOT EXISTS idx_sql_traces_op ON sql_traces(ledger_op);
CREATE INDEX IF NOT EXISTS idx_sql_traces_slow ON sql_traces(duration_us) WHERE duration_us > 100000;
`

func NewStore(db *sql.DB) *Store {
	s := &Store{
		db:   db,
		ch:   make(chan *Entry, 1024),
		done: make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// Record logs one statement run on behalf of the ledger operation in ctx.
func (s *Store) Record(ctx context.Context, op, query string, d time.Duration, err error) {
	e := &Entry{
		TraceID:    kit.GetTraceID(ctx),
		LedgerOp:   kit.GetOperation(ctx),
		Caller:     kit.GetUserID(ctx),
		Op:         op,
		Query:      query,
		DurationUs: d.Microseconds(),
		Timestamp:  time.Now().UnixMicro(),
	}

	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
		e.Error = err.Error()
	} else if d > SlowThreshold {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("component", "sql"),
		slog.String("op", op),
		slog.String("query", query),
		slog.Duration("duration", d),
	}
	if e.LedgerOp != "" {
		attrs = append(attrs, slog.String("ledger_op", e.LedgerOp))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	slog.LogAttrs(ctx, level, "sql statement", attrs...)

	select {
	case s.ch <- e:
	default:
		// Buffer full: drop rather than slow the ledger down.
	}
}

// Summarize counts persisted statements and returns the slowest ones.
func (s *Store) Summarize(ctx context.Context, slowest int) (Summary, error) {
	var sum Summary
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sql_traces`).Scan(&sum.Statements); err != nil {
		return sum, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(trace_id, ''), COALESCE(ledger_op, ''), COALESCE(caller, ''),
			op, query, duration_us, COALESCE(error, ''), timestamp
		FROM sql_traces ORDER BY duration_us DESC LIMIT ?`, slowest)
	if err != nil {
		return sum, err
	}
	defer rows.Close()
	sum.Slowest = []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TraceID, &e.LedgerOp, &e.Caller, &e.Op, &e.Query,
			&e.DurationUs, &e.Error, &e.Timestamp); err != nil {
			return sum, err
		}
		sum.Slowest = append(sum.Slowest, e)
	}
	return sum, rows.Err()
}

// Close flushes pending entries. The database stays open.
func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.ch)
		<-s.done
	})
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.done)
	batch := make([]*Entry, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("trace store: begin tx", "error", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO sql_traces (trace_id, ledger_op, caller, op, query, duration_us, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		slog.Error("trace store: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.TraceID, e.LedgerOp, e.Caller, e.Op, e.Query, e.DurationUs, e.Error, e.Timestamp); err != nil {
			slog.Error("trace store: insert", "error", err)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("trace store: commit", "error", err)
	}
}
