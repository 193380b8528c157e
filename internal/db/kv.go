package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/proofledger/internal/kv"
)

const (
	getQuery  = `SELECT value FROM ledger_kv WHERE key = ?`
	putQuery  = `INSERT INTO ledger_kv (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	scanQuery = `SELECT key, value FROM ledger_kv WHERE key >= ? AND key < ? ORDER BY key`
	scanAll   = `SELECT key, value FROM ledger_kv WHERE key >= ? ORDER BY key`
)

var _ kv.Store = (*DB)(nil)

// View runs fn in a transaction that is always rolled back.
func (db *DB) View(ctx context.Context, fn func(kv.Reader) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	return fn(&sqlTx{ctx: ctx, tx: tx, db: db})
}

// Update runs fn in one SQLite transaction and commits only if fn succeeds.
func (db *DB) Update(ctx context.Context, fn func(kv.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{ctx: ctx, tx: tx, db: db}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlTx struct {
	ctx context.Context
	tx  *sql.Tx
	db  *DB
}

func (t *sqlTx) Get(key string) ([]byte, error) {
	start := time.Now()
	var v []byte
	err := t.tx.QueryRowContext(t.ctx, getQuery, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		t.db.trace(t.ctx, "Query", getQuery, start, nil)
		return nil, kv.ErrNotFound
	}
	t.db.trace(t.ctx, "Query", getQuery, start, err)
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return v, nil
}

func (t *sqlTx) Put(key string, value []byte) error {
	start := time.Now()
	_, err := t.tx.ExecContext(t.ctx, putQuery, key, value, time.Now().Unix())
	t.db.trace(t.ctx, "Exec", putQuery, start, err)
	if err != nil {
		return fmt.Errorf("sqlite put %s: %w", key, err)
	}
	return nil
}

// Scan reads the whole range before calling fn so that fn may issue further
// statements on the same connection.
func (t *sqlTx) Scan(prefix string, fn func(string, []byte) error) error {
	start := time.Now()
	query, args := scanQuery, []any{prefix, kv.PrefixEnd(prefix)}
	if args[1] == "" {
		query, args = scanAll, args[:1]
	}
	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		t.db.trace(t.ctx, "Query", query, start, err)
		return fmt.Errorf("sqlite scan %s: %w", prefix, err)
	}
	type pair struct {
		key   string
		value []byte
	}
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.key, &p.value); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite scan %s: %w", prefix, err)
		}
		pairs = append(pairs, p)
	}
	err = rows.Err()
	rows.Close()
	t.db.trace(t.ctx, "Query", query, start, err)
	if err != nil {
		return fmt.Errorf("sqlite scan %s: %w", prefix, err)
	}

	for _, p := range pairs {
		if err := fn(p.key, p.value); err != nil {
			if errors.Is(err, kv.ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}
