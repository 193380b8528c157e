package ledger_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/proofledger/internal/db"
	"github.com/hazyhaar/proofledger/internal/kv"
	"github.com/hazyhaar/proofledger/internal/ledger"
)

const (
	owner = ledger.Identity("OWNER")
	alice = ledger.Identity("A")
	bob   = ledger.Identity("B")
	carol = ledger.Identity("C")
)

type recorder struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (r *recorder) Notify(_ context.Context, events []ledger.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *recorder) all() []ledger.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.Event(nil), r.events...)
}

type fixture struct {
	*ledger.Ledger
	store    kv.Store
	notified *recorder
}

var backends = map[string]func(t *testing.T) kv.Store{
	"memory": func(t *testing.T) kv.Store {
		return kv.NewMemory()
	},
	"sqlite": func(t *testing.T) kv.Store {
		s, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		return s
	},
}

// eachBackend runs fn once per store with a freshly initialized ledger.
func eachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			t.Cleanup(func() { store.Close() })
			rec := &recorder{}
			l := ledger.New(store,
				ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
				ledger.WithNotifier(rec),
			)
			created, err := l.Init(context.Background(), ledger.DefaultParams(owner))
			require.NoError(t, err)
			require.True(t, created)
			fn(t, &fixture{Ledger: l, store: store, notified: rec})
		})
	}
}

func at(id ledger.Identity, height uint64) ledger.Call {
	return ledger.Call{Caller: id, Height: height}
}

func proof(weight int64) ledger.ProofInput {
	return ledger.ProofInput{
		ProofHash: make([]byte, ledger.ProofHashSize),
		Weight:    weight,
		ProofType: ledger.ProofPhoto,
		Location:  "Backyard",
	}
}

func (f *fixture) registered(t *testing.T, ids ...ledger.Identity) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.Register(context.Background(), at(id, 1)))
	}
}

func (f *fixture) submitted(t *testing.T, id ledger.Identity, weight int64) ledger.SubmissionKey {
	t.Helper()
	seq, err := f.SubmitProof(context.Background(), at(id, 2), proof(weight))
	require.NoError(t, err)
	return ledger.SubmissionKey{Submitter: id, Seq: seq}
}

func requireKind(t *testing.T, err error, want ledger.Kind) {
	t.Helper()
	require.Error(t, err)
	got, ok := ledger.KindOf(err)
	require.True(t, ok, "not a ledger error: %v", err)
	require.Equal(t, want, got, "error: %v", err)
}

func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	v, err := f.CheckInvariants(context.Background())
	require.NoError(t, err)
	require.Empty(t, v)
}
