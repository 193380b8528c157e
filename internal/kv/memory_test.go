package kv_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/proofledger/internal/kv"
	"github.com/hazyhaar/proofledger/internal/kv/kvtest"
)

func TestMemory(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		return kv.NewMemory()
	})
}

func TestMemorySerializesUpdates(t *testing.T) {
	s := kv.NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, func(tx kv.Tx) error {
				v, err := tx.Get("n")
				if err != nil && err != kv.ErrNotFound {
					return err
				}
				return tx.Put("n", append(v, 'x'))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, s.View(ctx, func(r kv.Reader) error {
		v, err := r.Get("n")
		require.NoError(t, err)
		require.Len(t, v, 50)
		return nil
	}))
}

func TestMemoryClosed(t *testing.T) {
	s := kv.NewMemory()
	require.NoError(t, s.Close())
	err := s.Update(context.Background(), func(kv.Tx) error { return nil })
	require.Error(t, err)
}

func TestPrefixEnd(t *testing.T) {
	require.Equal(t, "sub0", kv.PrefixEnd("sub/"))
	require.Equal(t, "b", kv.PrefixEnd("a\xff"))
	require.Equal(t, "", kv.PrefixEnd("\xff\xff"))
}
