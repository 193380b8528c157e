// Package kvtest is a conformance suite every kv.Store backend runs.
package kvtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/proofledger/internal/kv"
)

// Run exercises the kv.Store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) kv.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.View(context.Background(), func(r kv.Reader) error {
			_, err := r.Get("absent")
			return err
		})
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("PutThenGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Update(ctx, func(tx kv.Tx) error {
			if err := tx.Put("a", []byte("1")); err != nil {
				return err
			}
			v, err := tx.Get("a")
			if err != nil {
				return err
			}
			require.Equal(t, []byte("1"), v)
			return nil
		}))
		require.NoError(t, s.View(ctx, func(r kv.Reader) error {
			v, err := r.Get("a")
			require.NoError(t, err)
			require.Equal(t, []byte("1"), v)
			return nil
		}))
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, v := range []string{"x", "y"} {
			v := v
			require.NoError(t, s.Update(ctx, func(tx kv.Tx) error {
				return tx.Put("k", []byte(v))
			}))
		}
		require.NoError(t, s.View(ctx, func(r kv.Reader) error {
			v, err := r.Get("k")
			require.NoError(t, err)
			require.Equal(t, []byte("y"), v)
			return nil
		}))
	})

	t.Run("FailedUpdateWritesNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		boom := errors.New("boom")
		err := s.Update(ctx, func(tx kv.Tx) error {
			if err := tx.Put("a", []byte("1")); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)
		err = s.View(ctx, func(r kv.Reader) error {
			_, err := r.Get("a")
			return err
		})
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("ScanPrefixOrdered", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Update(ctx, func(tx kv.Tx) error {
			for _, k := range []string{"sub/b/02", "sub/a/01", "sub/a/00", "subx", "reg/a"} {
				if err := tx.Put(k, []byte(k)); err != nil {
					return err
				}
			}
			return nil
		}))

		require.NoError(t, s.Update(ctx, func(tx kv.Tx) error {
			// uncommitted write must be visible to the transaction's own scan
			if err := tx.Put("sub/a/02", []byte("sub/a/02")); err != nil {
				return err
			}
			var got []string
			err := tx.Scan("sub/", func(k string, v []byte) error {
				require.Equal(t, k, string(v))
				got = append(got, k)
				return nil
			})
			require.NoError(t, err)
			require.Equal(t, []string{"sub/a/00", "sub/a/01", "sub/a/02", "sub/b/02"}, got)
			return nil
		}))
	})

	t.Run("ScanStop", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Update(ctx, func(tx kv.Tx) error {
			for _, k := range []string{"e/1", "e/2", "e/3"} {
				if err := tx.Put(k, nil); err != nil {
					return err
				}
			}
			return nil
		}))
		var n int
		require.NoError(t, s.View(ctx, func(r kv.Reader) error {
			return r.Scan("e/", func(string, []byte) error {
				n++
				if n == 2 {
					return kv.ErrStop
				}
				return nil
			})
		}))
		require.Equal(t, 2, n)
	})
}
