// Package kv defines the transactional key-value contract the ledger is written
// against, with in-memory, Redis and PostgreSQL implementations. The SQLite
// implementation lives in internal/db next to the audit and trace tables.
//
// Keys are plain strings. Values are opaque bytes. Backends must serialize
// Update transactions against each other and discard every write of a
// transaction whose function returns an error.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key has never been written.
	ErrNotFound = errors.New("kv: key not found")
	// ErrStop may be returned from a Scan callback to end iteration early.
	// Scan itself then returns nil.
	ErrStop = errors.New("kv: stop scan")
)

// Reader is the read side of a transaction.
type Reader interface {
	Get(key string) ([]byte, error)
	// Scan calls fn for every key starting with prefix, in ascending byte order.
	Scan(prefix string, fn func(key string, value []byte) error) error
}

// Tx is a read-write transaction. Reads observe the transaction's own writes.
type Tx interface {
	Reader
	Put(key string, value []byte) error
}

// Store is a transactional key-value backend.
type Store interface {
	// View runs fn against committed state. Memory, SQLite and PostgreSQL
	// give fn a snapshot; Redis reads live keys, so a long View may observe
	// an Update that commits while it runs. Walks that must see a single
	// state belong in an Update that writes nothing.
	View(ctx context.Context, fn func(Reader) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, or "" when no such key exists.
func PrefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
