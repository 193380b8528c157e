package ledger

import (
	"context"
	"unicode/utf8"
)

// Register records the caller as an active participant. Registration is
// permanent; a second call fails with AlreadyRegistered.
func (l *Ledger) Register(ctx context.Context, call Call) error {
	const op = "register"
	err := l.update(ctx, op, call, func(s *state) error {
		_, exists, err := s.registration(call.Caller)
		if err != nil {
			return err
		}
		if exists {
			return fail(op, AlreadyRegistered)
		}
		return s.put(s.keys.Registration(call.Caller), Registration{
			RegisteredAt: call.Height,
			Active:       true,
		})
	})
	if err == nil {
		l.logger.Info("participant registered", "identity", call.Caller, "height", call.Height)
	}
	return err
}

// SubmitProof stores a new Pending submission and returns its sequence
// number, which is the caller's submission count before the call.
func (l *Ledger) SubmitProof(ctx context.Context, call Call, in ProofInput) (uint64, error) {
	const op = "submit-proof"
	var seq uint64
	err := l.update(ctx, op, call, func(s *state) error {
		reg, ok, err := s.registration(call.Caller)
		if err != nil {
			return err
		}
		if !ok || !reg.Active {
			return fail(op, UserNotRegistered)
		}
		p, err := s.params()
		if err != nil {
			return err
		}
		count, err := s.count(call.Caller)
		if err != nil {
			return err
		}
		if count >= uint64(p.MaxSubmissionsPerUser) {
			return fail(op, MaxSubmissionsExceeded)
		}
		if len(in.ProofHash) != ProofHashSize {
			return fail(op, InvalidProof)
		}
		if in.Weight <= 0 || in.Weight > MaxWeight {
			return fail(op, InvalidWeight)
		}
		if !in.ProofType.Valid() {
			return fail(op, InvalidProofType)
		}
		if n := utf8.RuneCountInString(in.Location); n < 1 || n > MaxLocationLen {
			return fail(op, InvalidLocation)
		}

		sub := Submission{
			Submitter: call.Caller,
			Seq:       count,
			Weight:    in.Weight,
			Timestamp: call.Height,
			Status:    StatusPending,
			ProofType: in.ProofType,
			Location:  in.Location,
		}
		copy(sub.ProofHash[:], in.ProofHash)
		if err := s.put(s.keys.Submission(sub.Key()), sub); err != nil {
			return err
		}
		if err := s.put(s.keys.Count(call.Caller), count+1); err != nil {
			return err
		}
		seq = count
		return nil
	})
	if err != nil {
		return 0, err
	}
	l.logger.Info("proof submitted", "submitter", call.Caller, "seq", seq, "weight", in.Weight, "proof_type", in.ProofType)
	return seq, nil
}
