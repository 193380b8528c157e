package ledger

import (
	"context"
	"math"
	"unicode/utf8"
)

// expired keeps the original comparison: a record is out of window only when
// its timestamp lies more than window blocks ahead of now.
func expired(timestamp, now uint64, window int64) bool {
	limit := now + uint64(window)
	if limit < now {
		limit = math.MaxUint64
	}
	return timestamp > limit
}

// Verify records the oracle's decision on a submission. It may succeed only
// once per submission. The verification fee is emitted as a transfer from
// the oracle to the owner.
func (l *Ledger) Verify(ctx context.Context, call Call, key SubmissionKey, vote bool) (bool, error) {
	const op = "verify"
	err := l.update(ctx, op, call, func(s *state) error {
		sub, ok, err := s.submission(key)
		if err != nil {
			return err
		}
		if !ok {
			return fail(op, InvalidSubmissionID)
		}
		p, err := s.params()
		if err != nil {
			return err
		}
		if call.Caller != p.Oracle {
			return fail(op, InvalidOracle)
		}
		_, done, err := s.verification(key)
		if err != nil {
			return err
		}
		if done {
			return fail(op, AlreadyVerified)
		}
		if expired(sub.Timestamp, call.Height, p.SubmissionTimeoutBlocks) {
			return fail(op, SubmissionExpired)
		}

		if err := s.emit(Event{
			Kind:       EventTransfer,
			Amount:     uint64(p.VerificationFee),
			From:       call.Caller,
			To:         p.Owner,
			Submission: key,
			Height:     call.Height,
		}); err != nil {
			return err
		}
		if err := s.put(s.keys.Verification(key), Verification{
			Verifier:  call.Caller,
			Vote:      vote,
			Timestamp: call.Height,
		}); err != nil {
			return err
		}
		sub.Status = decided(vote)
		return s.put(s.keys.Submission(key), sub)
	})
	if err != nil {
		return false, err
	}
	l.logger.Info("submission verified", "submission", key, "vote", vote, "oracle", call.Caller)
	return vote, nil
}

// Challenge opens a dispute against a submission. The submitter cannot
// challenge their own submission, and only one challenge may be open at a
// time. A closed challenge is archived when a new one is opened.
func (l *Ledger) Challenge(ctx context.Context, call Call, key SubmissionKey, reason string) error {
	const op = "challenge"
	var attempt uint32
	err := l.update(ctx, op, call, func(s *state) error {
		sub, ok, err := s.submission(key)
		if err != nil {
			return err
		}
		if !ok {
			return fail(op, InvalidSubmissionID)
		}
		if call.Caller == key.Submitter {
			return fail(op, NotAuthorized)
		}
		prev, hadPrev, err := s.challenge(key)
		if err != nil {
			return err
		}
		if hadPrev && prev.Open {
			return fail(op, AlreadyChallenged)
		}
		p, err := s.params()
		if err != nil {
			return err
		}
		if expired(sub.Timestamp, call.Height, p.ChallengePeriodBlocks) {
			return fail(op, ChallengeExpired)
		}
		if utf8.RuneCountInString(reason) > MaxReasonLen {
			return fail(op, InvalidChallenge)
		}

		attempt = 1
		if hadPrev {
			if err := s.put(s.keys.ChallengeHistory(key, prev.Attempt), prev); err != nil {
				return err
			}
			attempt = prev.Attempt + 1
		}
		if err := s.put(s.keys.Challenge(key), Challenge{
			Challenger: call.Caller,
			Reason:     reason,
			Timestamp:  call.Height,
			Open:       true,
			Attempt:    attempt,
		}); err != nil {
			return err
		}
		sub.Status = StatusChallenged
		return s.put(s.keys.Submission(key), sub)
	})
	if err == nil {
		l.logger.Info("submission challenged", "submission", key, "challenger", call.Caller, "attempt", attempt)
	}
	return err
}

// ResolveChallenge closes the open challenge and sets the submission's status
// from resolvedVote, overriding the original verification.
func (l *Ledger) ResolveChallenge(ctx context.Context, call Call, key SubmissionKey, resolvedVote bool) (bool, error) {
	const op = "resolve-challenge"
	err := l.update(ctx, op, call, func(s *state) error {
		ch, ok, err := s.challenge(key)
		if err != nil {
			return err
		}
		if !ok {
			return fail(op, InvalidChallenge)
		}
		p, err := s.params()
		if err != nil {
			return err
		}
		if call.Caller != p.Oracle {
			return fail(op, InvalidOracle)
		}
		if !ch.Open {
			return fail(op, InvalidStatus)
		}

		vote := resolvedVote
		ch.Open = false
		ch.ResolvedBy = call.Caller
		ch.ResolvedVote = &vote
		ch.ResolvedAt = call.Height
		if err := s.put(s.keys.Challenge(key), ch); err != nil {
			return err
		}
		sub, ok, err := s.submission(key)
		if err != nil || !ok {
			return err
		}
		sub.Status = decided(resolvedVote)
		return s.put(s.keys.Submission(key), sub)
	})
	if err != nil {
		return false, err
	}
	l.logger.Info("challenge resolved", "submission", key, "vote", resolvedVote, "oracle", call.Caller)
	return resolvedVote, nil
}
