// Package ledger is the verifiable-contribution state machine: participants
// register and submit proofs, the oracle verifies them, anyone but the
// submitter may challenge a decision, the oracle resolves challenges, and
// verified submissions pay a one-time reward.
//
// Every mutating operation runs as a single kv.Store.Update transaction. A
// failed precondition returns *Error and the transaction is discarded, so no
// operation ever leaves a partial effect behind. Fee transfers and reward
// mints are appended to an event log in the same transaction; moving value is
// left to whoever consumes that log.
package ledger

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/proofledger/internal/kv"
)

// Notifier receives the events of a transaction after it committed.
type Notifier interface {
	Notify(ctx context.Context, events []Event)
}

type Ledger struct {
	store    kv.Store
	keys     Keys
	logger   *slog.Logger
	notifier Notifier
}

type Option func(*Ledger)

func WithLogger(l *slog.Logger) Option {
	return func(lg *Ledger) { lg.logger = l }
}

// WithNamespace prefixes every key so several ledgers can share a backend.
func WithNamespace(ns string) Option {
	return func(lg *Ledger) { lg.keys = NewKeys(ns) }
}

func WithNotifier(n Notifier) Option {
	return func(lg *Ledger) { lg.notifier = n }
}

func New(store kv.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		keys:   NewKeys(""),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Keys exposes the key layout, mainly for tooling that inspects the backend.
func (l *Ledger) Keys() Keys { return l.keys }

func (l *Ledger) update(ctx context.Context, op string, call Call, fn func(s *state) error) error {
	if call.Caller == "" {
		return fail(op, NotAuthorized)
	}
	var events []Event
	err := l.store.Update(ctx, func(tx kv.Tx) error {
		s := &state{r: tx, w: tx, keys: l.keys}
		if err := fn(s); err != nil {
			return err
		}
		events = s.events
		return nil
	})
	if err != nil {
		if k, ok := KindOf(err); ok {
			l.logger.Debug("ledger call rejected", "op", op, "caller", call.Caller, "height", call.Height, "kind", k)
		} else {
			l.logger.Error("ledger call failed", "op", op, "caller", call.Caller, "error", err)
		}
		return err
	}
	if l.notifier != nil && len(events) > 0 {
		l.notifier.Notify(ctx, events)
	}
	return nil
}

func (l *Ledger) view(ctx context.Context, fn func(s *state) error) error {
	return l.store.View(ctx, func(r kv.Reader) error {
		return fn(&state{r: r, keys: l.keys})
	})
}

// serialized reads inside a write transaction that writes nothing. Writers
// are excluded for the duration, so fn sees one committed state on every
// backend, including those whose View is not a snapshot.
func (l *Ledger) serialized(ctx context.Context, fn func(s *state) error) error {
	return l.store.Update(ctx, func(tx kv.Tx) error {
		return fn(&state{r: tx, keys: l.keys})
	})
}
