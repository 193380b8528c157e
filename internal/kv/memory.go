package kv

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// Memory is a process-local Store. Update transactions hold an exclusive lock
// and stage writes in an overlay that is applied only when fn succeeds.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

var errClosed = errors.New("kv: store closed")

func (m *Memory) View(ctx context.Context, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errClosed
	}
	return fn(&memTx{base: m.data})
}

func (m *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	tx := &memTx{base: m.data, writes: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.writes {
		m.data[k] = v
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memTx struct {
	base   map[string][]byte
	writes map[string][]byte // nil for read-only views
}

func (t *memTx) Get(key string) ([]byte, error) {
	if v, ok := t.writes[key]; ok {
		return bytes.Clone(v), nil
	}
	if v, ok := t.base[key]; ok {
		return bytes.Clone(v), nil
	}
	return nil, ErrNotFound
}

func (t *memTx) Put(key string, value []byte) error {
	t.writes[key] = bytes.Clone(value)
	return nil
}

func (t *memTx) Scan(prefix string, fn func(string, []byte) error) error {
	seen := make(map[string]struct{})
	var keys []string
	for k := range t.base {
		if strings.HasPrefix(k, prefix) {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for k := range t.writes {
		if _, dup := seen[k]; !dup && strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := t.Get(k)
		if err := fn(k, v); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}
