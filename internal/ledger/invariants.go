package ledger

import (
	"context"
	"fmt"
	"strings"
)

// Violation is one broken invariant found by CheckInvariants.
type Violation struct {
	Invariant string `json:"invariant"`
	Key       string `json:"key"`
	Detail    string `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s: %s", v.Invariant, v.Key, v.Detail)
}

// CheckInvariants walks the whole keyspace with writers held off and reports
// every record that breaks a ledger invariant. An empty result means the
// store is consistent.
func (l *Ledger) CheckInvariants(ctx context.Context) ([]Violation, error) {
	var out []Violation
	report := func(inv, key, format string, args ...any) {
		out = append(out, Violation{Invariant: inv, Key: key, Detail: fmt.Sprintf(format, args...)})
	}

	err := l.serialized(ctx, func(s *state) error {
		subs := map[SubmissionKey]Submission{}
		perUser := map[Identity][]uint64{}
		err := s.r.Scan(s.keys.Submissions(), func(k string, raw []byte) error {
			var sub Submission
			if err := decode(k, raw, &sub); err != nil {
				return err
			}
			key, err := s.keys.submissionKeyAt(s.keys.Submissions(), k)
			if err != nil {
				return err
			}
			if key != sub.Key() {
				report("submission-key", k, "record says %s", sub.Key())
			}
			subs[key] = sub
			perUser[key.Submitter] = append(perUser[key.Submitter], key.Seq)
			return nil
		})
		if err != nil {
			return err
		}

		counts := map[Identity]uint64{}
		err = s.r.Scan(s.keys.Counts(), func(k string, raw []byte) error {
			id, err := s.keys.identityAt(s.keys.Counts(), k)
			if err != nil {
				return err
			}
			var n uint64
			if err := decode(k, raw, &n); err != nil {
				return err
			}
			counts[id] = n
			return nil
		})
		if err != nil {
			return err
		}

		for id, seqs := range perUser {
			for i, seq := range seqs {
				if seq != uint64(i) {
					report("dense-sequence", string(id), "position %d holds sequence %d", i, seq)
					break
				}
			}
			if counts[id] != uint64(len(seqs)) {
				report("submission-count", string(id), "count %d, %d submissions stored", counts[id], len(seqs))
			}
		}
		for id, n := range counts {
			if _, ok := perUser[id]; !ok && n != 0 {
				report("submission-count", string(id), "count %d, no submissions stored", n)
			}
		}

		verified := map[SubmissionKey]bool{}
		err = s.r.Scan(s.keys.Verifications(), func(k string, _ []byte) error {
			key, err := s.keys.submissionKeyAt(s.keys.Verifications(), k)
			if err != nil {
				return err
			}
			verified[key] = true
			return nil
		})
		if err != nil {
			return err
		}
		for key := range verified {
			sub, ok := subs[key]
			switch {
			case !ok:
				report("verification-orphan", key.String(), "no submission")
			case sub.Status == StatusPending:
				report("pending-unverified", key.String(), "pending submission has a verification")
			}
		}

		err = s.r.Scan(s.keys.Challenges(), func(k string, raw []byte) error {
			var ch Challenge
			if err := decode(k, raw, &ch); err != nil {
				return err
			}
			key, err := s.keys.submissionKeyAt(s.keys.Challenges(), k)
			if err != nil {
				return err
			}
			// Verify has no status precondition, so an open challenge may
			// sit on a verified or rejected submission.
			if _, ok := subs[key]; ch.Open && !ok {
				report("challenge-orphan", key.String(), "open challenge without submission")
			}
			if key.Submitter == ch.Challenger {
				report("self-challenge", key.String(), "challenger is the submitter")
			}
			return nil
		})
		if err != nil {
			return err
		}

		err = s.r.Scan(s.keys.Claims(), func(k string, _ []byte) error {
			key, err := s.keys.submissionKeyAt(s.keys.Claims(), k)
			if err != nil {
				return err
			}
			if _, ok := subs[key]; !ok {
				report("claim-orphan", key.String(), "claim marker without submission")
			}
			return nil
		})
		if err != nil {
			return err
		}

		var next uint64 = 1
		err = s.r.Scan(s.keys.Events(), func(k string, raw []byte) error {
			var e Event
			if err := decode(k, raw, &e); err != nil {
				return err
			}
			if e.Seq != next {
				report("dense-events", strings.TrimPrefix(k, s.keys.Events()), "expected event %d, found %d", next, e.Seq)
			}
			next = e.Seq + 1
			return nil
		})
		if err != nil {
			return err
		}
		last, _, err := getJSON[uint64](s.r, s.keys.EventSeq())
		if err != nil {
			return err
		}
		if last != next-1 {
			report("dense-events", s.keys.EventSeq(), "counter %d, last event %d", last, next-1)
		}
		return nil
	})
	return out, err
}
