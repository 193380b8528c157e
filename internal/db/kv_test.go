package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/proofledger/internal/kv"
	"github.com/hazyhaar/proofledger/internal/kv/kvtest"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStore(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		return openTest(t)
	})
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Update(ctx, func(tx kv.Tx) error {
		return tx.Put("k", []byte("v"))
	}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.View(ctx, func(r kv.Reader) error {
		v, err := r.Get("k")
		require.Equal(t, "v", string(v))
		return err
	}))
}

func TestMemoryDatabase(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Update(ctx, func(tx kv.Tx) error {
		return tx.Put("k", []byte("v"))
	}))
	require.NoError(t, db.View(ctx, func(r kv.Reader) error {
		_, err := r.Get("k")
		return err
	}))
}

type recordingTracer struct {
	mu  sync.Mutex
	ops []string
}

func (r *recordingTracer) Record(_ context.Context, op, _ string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func TestTracerSeesStatements(t *testing.T) {
	db := openTest(t)
	tr := &recordingTracer{}
	db.SetTracer(tr)

	ctx := context.Background()
	require.NoError(t, db.Update(ctx, func(tx kv.Tx) error {
		if err := tx.Put("a", []byte("1")); err != nil {
			return err
		}
		_, err := tx.Get("a")
		return err
	}))
	require.Equal(t, []string{"Exec", "Query"}, tr.ops)
}
