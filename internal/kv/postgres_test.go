package kv_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/proofledger/internal/kv"
	"github.com/hazyhaar/proofledger/internal/kv/kvtest"
)

// Set PROOFLEDGER_TEST_POSTGRES to a throwaway database URL to run these.
func TestPostgres(t *testing.T) {
	url := os.Getenv("PROOFLEDGER_TEST_POSTGRES")
	if url == "" {
		t.Skip("PROOFLEDGER_TEST_POSTGRES not set")
	}
	kvtest.Run(t, func(t *testing.T) kv.Store {
		ctx := context.Background()
		s, err := kv.OpenPostgres(ctx, url)
		require.NoError(t, err)
		_, err = s.Pool.Exec(ctx, `TRUNCATE ledger_kv`)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
