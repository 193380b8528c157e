package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/proofledger/internal/db"
)

const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id TEXT PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	action TEXT NOT NULL,
	transport TEXT NOT NULL DEFAULT 'http',
	user_id TEXT,
	request_id TEXT,
	height INTEGER NOT NULL DEFAULT 0,
	parameters TEXT,
	result TEXT,
	error_message TEXT,
	error_kind TEXT,
	duration_ms INTEGER,
	status TEXT NOT NULL DEFAULT 'success'
);
CREATE INDEX IF NOT EXISTS idx_audit_log_time ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
CREATE INDEX IF NOT EXISTS idx_audit_log_user ON audit_log(user_id);
`

// SQLiteLogger writes audit entries to the audit_log table asynchronously.
type SQLiteLogger struct {
	db   *sql.DB
	ch   chan *Entry
	done chan struct{}
	once sync.Once
}

func NewSQLiteLogger(sqlDB *sql.DB) *SQLiteLogger {
	l := &SQLiteLogger{
		db:   sqlDB,
		ch:   make(chan *Entry, 256),
		done: make(chan struct{}),
	}
	go l.flushLoop()
	return l
}

func (l *SQLiteLogger) Init() error {
	_, err := l.db.Exec(Schema)
	return err
}

func (l *SQLiteLogger) Log(_ context.Context, entry *Entry) error {
	fillDefaults(entry)
	return l.insert(entry)
}

func (l *SQLiteLogger) LogAsync(entry *Entry) {
	fillDefaults(entry)
	select {
	case l.ch <- entry:
	default:
		slog.Warn("audit buffer full, dropping entry", "action", entry.Action)
	}
}

func (l *SQLiteLogger) Close() error {
	l.once.Do(func() {
		close(l.ch)
		<-l.done
	})
	return nil
}

// Recent returns the newest entries first.
func (l *SQLiteLogger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT entry_id, timestamp, action, transport, COALESCE(user_id, ''), COALESCE(request_id, ''),
			height, COALESCE(parameters, ''), COALESCE(result, ''), COALESCE(error_message, ''),
			COALESCE(error_kind, ''), COALESCE(duration_ms, 0), status
		FROM audit_log ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.Action, &e.Transport, &e.UserID, &e.RequestID,
			&e.Height, &e.Parameters, &e.Result, &e.Error, &e.ErrorKind, &e.DurationMs, &e.Status); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = "aud_" + db.NewID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	if e.Status == "" {
		if e.Error != "" {
			e.Status = "error"
		} else {
			e.Status = "success"
		}
	}
	if e.Transport == "" {
		e.Transport = "http"
	}
}

func (l *SQLiteLogger) flushLoop() {
	defer close(l.done)
	batch := make([]*Entry, 0, 32)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-l.ch:
			if !ok {
				l.flushBatch(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= 32 {
				l.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (l *SQLiteLogger) flushBatch(batch []*Entry) {
	for _, e := range batch {
		if err := l.insert(e); err != nil {
			slog.Error("audit write failed", "error", err, "action", e.Action)
		}
	}
}

func (l *SQLiteLogger) insert(e *Entry) error {
	_, err := l.db.Exec(`
		INSERT INTO audit_log (entry_id, timestamp, action, transport, user_id, request_id, height,
			parameters, result, error_message, error_kind, duration_ms, status)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.EntryID, e.Timestamp, e.Action, e.Transport, e.UserID, e.RequestID, int64(e.Height),
		e.Parameters, e.Result, e.Error, e.ErrorKind, e.DurationMs, e.Status)
	return err
}

// SlogLogger writes entries to a structured logger. It is used when the
// ledger runs on a backend without a SQL database next to it.
type SlogLogger struct {
	Logger *slog.Logger
}

func (l SlogLogger) Log(ctx context.Context, e *Entry) error {
	fillDefaults(e)
	level := slog.LevelInfo
	if e.Status == "error" {
		level = slog.LevelError
	}
	l.Logger.LogAttrs(ctx, level, "audit",
		slog.String("entry_id", e.EntryID),
		slog.String("action", e.Action),
		slog.String("transport", e.Transport),
		slog.String("user_id", e.UserID),
		slog.String("request_id", e.RequestID),
		slog.Uint64("height", e.Height),
		slog.String("status", e.Status),
		slog.String("error_kind", e.ErrorKind),
		slog.Int64("duration_ms", e.DurationMs),
	)
	return nil
}

func (l SlogLogger) LogAsync(e *Entry) {
	_ = l.Log(context.Background(), e)
}

func (l SlogLogger) Close() error { return nil }
