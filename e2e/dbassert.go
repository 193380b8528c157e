package e2e

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// DBAssert reads the ledger file directly. It keeps one connection open.
type DBAssert struct {
	path string

	mu   sync.Mutex
	conn *sql.DB
}

func NewDBAssert(path string) *DBAssert {
	return &DBAssert{path: path}
}

func (d *DBAssert) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

func (d *DBAssert) db() (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return d.conn, nil
	}
	db, err := sql.Open("sqlite", "file:"+d.path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	d.conn = db
	return db, nil
}

// AssertKeyExists verifies a ledger key was committed.
func (d *DBAssert) AssertKeyExists(t *testing.T, key string) {
	t.Helper()
	db, err := d.db()
	if err != nil {
		t.Fatalf("opening ledger db: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ledger_kv WHERE key = ?`, key).Scan(&n); err != nil {
		t.Fatalf("querying %s: %v", key, err)
	}
	if n != 1 {
		t.Fatalf("key %s not found in ledger_kv", key)
	}
}

// CountPrefix counts ledger keys under prefix.
func (d *DBAssert) CountPrefix(t *testing.T, prefix string) int {
	t.Helper()
	db, err := d.db()
	if err != nil {
		t.Fatalf("opening ledger db: %v", err)
	}
	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM ledger_kv WHERE substr(key, 1, ?) = ?`, len(prefix), prefix).Scan(&n)
	if err != nil {
		t.Fatalf("counting %s: %v", prefix, err)
	}
	return n
}

// WaitAudit polls audit_log until an entry with action and status shows
// up. The trail is flushed asynchronously.
func (d *DBAssert) WaitAudit(t *testing.T, action, status string) {
	t.Helper()
	db, err := d.db()
	if err != nil {
		t.Fatalf("opening ledger db: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM audit_log WHERE action = ? AND status = ?`, action, status).Scan(&n)
		if err == nil && n > 0 {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("no audit entry %s/%s after 5s", action, status)
}
