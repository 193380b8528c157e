package ledger_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/proofledger/internal/kv"
	"github.com/hazyhaar/proofledger/internal/ledger"
)

func TestCheckInvariantsReportsCorruption(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.registered(t, alice)
		key := f.submitted(t, alice, 5)
		f.requireConsistent(t)

		keys := f.Keys()
		orphan := ledger.SubmissionKey{Submitter: bob, Seq: 3}
		require.NoError(t, f.store.Update(ctx, func(tx kv.Tx) error {
			raw, _ := json.Marshal(map[string]uint64{"amount": 1})
			if err := tx.Put(keys.Claim(orphan), raw); err != nil {
				return err
			}
			raw, _ = json.Marshal(ledger.Verification{Verifier: owner, Vote: true})
			return tx.Put(keys.Verification(key), raw)
		}))

		violations, err := f.CheckInvariants(ctx)
		require.NoError(t, err)
		var names []string
		for _, v := range violations {
			names = append(names, v.Invariant)
		}
		require.ElementsMatch(t, []string{"claim-orphan", "pending-unverified"}, names)
	})
}

func TestVerifyWhileChallengedIsConsistent(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.registered(t, alice)
		key := f.submitted(t, alice, 5)

		require.NoError(t, f.Challenge(ctx, at(carol, 2), key, "early"))
		_, err := f.Verify(ctx, at(owner, 3), key, true)
		require.NoError(t, err)

		ch, ok, err := f.CurrentChallenge(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, ch.Open)
		f.requireConsistent(t)
	})
}

func TestCheckInvariantsReportsOrphanChallenge(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		orphan := ledger.SubmissionKey{Submitter: bob, Seq: 0}
		require.NoError(t, f.store.Update(ctx, func(tx kv.Tx) error {
			raw, _ := json.Marshal(ledger.Challenge{Challenger: carol, Open: true, Attempt: 1})
			return tx.Put(f.Keys().Challenge(orphan), raw)
		}))

		violations, err := f.CheckInvariants(ctx)
		require.NoError(t, err)
		require.Len(t, violations, 1)
		require.Equal(t, "challenge-orphan", violations[0].Invariant)
	})
}

func TestCheckInvariantsDuringWrites(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		checkWhileSubmitting(t, f.Ledger)
	})
	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		store := kv.NewRedis(client, kv.RedisOptions{LockKey: "test:lock", Retry: time.Millisecond})
		t.Cleanup(func() { store.Close() })
		l := ledger.New(store, ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		_, err := l.Init(context.Background(), ledger.DefaultParams(owner))
		require.NoError(t, err)
		checkWhileSubmitting(t, l)
	})
}

// checkWhileSubmitting runs the checker in a loop while another goroutine
// keeps submitting; every pass must see a consistent ledger.
func checkWhileSubmitting(t *testing.T, l *ledger.Ledger) {
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, at(alice, 1)))
	require.NoError(t, l.SetMaxSubmissions(ctx, at(owner, 1), 1000))

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 40; i++ {
			if _, err := l.SubmitProof(ctx, at(alice, 2), proof(5)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	for {
		v, err := l.CheckInvariants(ctx)
		require.NoError(t, err)
		require.Empty(t, v)
		select {
		case err := <-done:
			require.NoError(t, err)
			n, err := l.SubmissionCount(ctx, alice)
			require.NoError(t, err)
			require.Equal(t, uint64(40), n)
			return
		default:
			// Leave room for the writer's lease retry.
			time.Sleep(2 * time.Millisecond)
		}
	}
}
