package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/proofledger/internal/kv"
)

// state is the typed view of one transaction. w is nil for read-only views.
type state struct {
	r      kv.Reader
	w      kv.Tx
	keys   Keys
	events []Event
}

func getJSON[T any](r kv.Reader, key string) (T, bool, error) {
	var v T
	raw, err := r.Get(key)
	if errors.Is(err, kv.ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if err := decode(key, raw, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}

func decode(key string, raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (s *state) put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.w.Put(key, raw)
}

func (s *state) params() (Params, error) {
	p, ok, err := getJSON[Params](s.r, s.keys.Config())
	if err != nil {
		return p, err
	}
	if !ok {
		return p, ErrNotInitialized
	}
	return p, nil
}

func (s *state) registration(id Identity) (Registration, bool, error) {
	return getJSON[Registration](s.r, s.keys.Registration(id))
}

func (s *state) count(id Identity) (uint64, error) {
	n, _, err := getJSON[uint64](s.r, s.keys.Count(id))
	return n, err
}

func (s *state) submission(key SubmissionKey) (Submission, bool, error) {
	return getJSON[Submission](s.r, s.keys.Submission(key))
}

func (s *state) verification(key SubmissionKey) (Verification, bool, error) {
	return getJSON[Verification](s.r, s.keys.Verification(key))
}

func (s *state) challenge(key SubmissionKey) (Challenge, bool, error) {
	return getJSON[Challenge](s.r, s.keys.Challenge(key))
}

func (s *state) claimed(key SubmissionKey) (bool, error) {
	_, ok, err := getJSON[claimRecord](s.r, s.keys.Claim(key))
	return ok, err
}

// emit appends an event to the log inside the current transaction.
func (s *state) emit(e Event) error {
	last, _, err := getJSON[uint64](s.r, s.keys.EventSeq())
	if err != nil {
		return err
	}
	e.Seq = last + 1
	if err := s.put(s.keys.Event(e.Seq), e); err != nil {
		return err
	}
	if err := s.put(s.keys.EventSeq(), e.Seq); err != nil {
		return err
	}
	s.events = append(s.events, e)
	return nil
}
