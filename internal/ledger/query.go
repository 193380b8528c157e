package ledger

import (
	"context"
	"errors"

	"github.com/hazyhaar/proofledger/internal/kv"
)

// Submission returns the submission at key. Absence is not an error.
func (l *Ledger) Submission(ctx context.Context, key SubmissionKey) (Submission, bool, error) {
	var (
		sub Submission
		ok  bool
	)
	err := l.view(ctx, func(s *state) error {
		var err error
		sub, ok, err = s.submission(key)
		return err
	})
	return sub, ok, err
}

// SubmissionCount returns how many proofs id has submitted, 0 if none.
func (l *Ledger) SubmissionCount(ctx context.Context, id Identity) (uint64, error) {
	var n uint64
	err := l.view(ctx, func(s *state) error {
		var err error
		n, err = s.count(id)
		return err
	})
	return n, err
}

func (l *Ledger) IsRewardClaimed(ctx context.Context, key SubmissionKey) (bool, error) {
	var claimed bool
	err := l.view(ctx, func(s *state) error {
		var err error
		claimed, err = s.claimed(key)
		return err
	})
	return claimed, err
}

// IsRegistered reports whether id holds an active registration.
func (l *Ledger) IsRegistered(ctx context.Context, id Identity) (bool, error) {
	reg, ok, err := l.Registration(ctx, id)
	return ok && reg.Active, err
}

func (l *Ledger) Registration(ctx context.Context, id Identity) (Registration, bool, error) {
	var (
		reg Registration
		ok  bool
	)
	err := l.view(ctx, func(s *state) error {
		var err error
		reg, ok, err = s.registration(id)
		return err
	})
	return reg, ok, err
}

func (l *Ledger) Verification(ctx context.Context, key SubmissionKey) (Verification, bool, error) {
	var (
		v  Verification
		ok bool
	)
	err := l.view(ctx, func(s *state) error {
		var err error
		v, ok, err = s.verification(key)
		return err
	})
	return v, ok, err
}

// CurrentChallenge returns the latest challenge attempt for key.
func (l *Ledger) CurrentChallenge(ctx context.Context, key SubmissionKey) (Challenge, bool, error) {
	var (
		ch Challenge
		ok bool
	)
	err := l.view(ctx, func(s *state) error {
		var err error
		ch, ok, err = s.challenge(key)
		return err
	})
	return ch, ok, err
}

// ChallengeHistory returns every attempt for key, oldest first, including
// the current one.
func (l *Ledger) ChallengeHistory(ctx context.Context, key SubmissionKey) ([]Challenge, error) {
	var out []Challenge
	err := l.view(ctx, func(s *state) error {
		err := s.r.Scan(s.keys.ChallengeHistoryOf(key), func(k string, raw []byte) error {
			var ch Challenge
			if err := decode(k, raw, &ch); err != nil {
				return err
			}
			out = append(out, ch)
			return nil
		})
		if err != nil {
			return err
		}
		cur, ok, err := s.challenge(key)
		if err != nil || !ok {
			return err
		}
		out = append(out, cur)
		return nil
	})
	return out, err
}

// Events returns up to limit events with a sequence greater than after.
func (l *Ledger) Events(ctx context.Context, after uint64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Event
	err := l.view(ctx, func(s *state) error {
		return s.r.Scan(s.keys.Events(), func(k string, raw []byte) error {
			var e Event
			if err := decode(k, raw, &e); err != nil {
				return err
			}
			if e.Seq <= after {
				return nil
			}
			out = append(out, e)
			if len(out) >= limit {
				return kv.ErrStop
			}
			return nil
		})
	})
	return out, err
}

// Submissions walks every submission in key order. Returning kv.ErrStop from
// fn ends the walk early without error. fn runs inside the read transaction
// and must not call back into the ledger.
func (l *Ledger) Submissions(ctx context.Context, fn func(Submission) error) error {
	return l.walkSubmissions(ctx, l.keys.Submissions(), fn)
}

// SubmissionsOf walks the submissions of one identity in sequence order.
func (l *Ledger) SubmissionsOf(ctx context.Context, id Identity, fn func(Submission) error) error {
	return l.walkSubmissions(ctx, l.keys.SubmissionsOf(id), fn)
}

func (l *Ledger) walkSubmissions(ctx context.Context, prefix string, fn func(Submission) error) error {
	err := l.view(ctx, func(s *state) error {
		return s.r.Scan(prefix, func(k string, raw []byte) error {
			var sub Submission
			if err := decode(k, raw, &sub); err != nil {
				return err
			}
			return fn(sub)
		})
	})
	if errors.Is(err, kv.ErrStop) {
		return nil
	}
	return err
}
