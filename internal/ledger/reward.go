package ledger

import "context"

// ClaimReward pays the caller's own verified submission exactly once. The
// reward is weight times the reward rate in force at claim time.
func (l *Ledger) ClaimReward(ctx context.Context, call Call, seq uint64) (uint64, error) {
	const op = "claim-reward"
	key := SubmissionKey{Submitter: call.Caller, Seq: seq}
	var reward uint64
	err := l.update(ctx, op, call, func(s *state) error {
		sub, ok, err := s.submission(key)
		if err != nil {
			return err
		}
		if !ok {
			return fail(op, InvalidSubmissionID)
		}
		if sub.Status != StatusVerified {
			return fail(op, VerificationFailed)
		}
		claimed, err := s.claimed(key)
		if err != nil {
			return err
		}
		if claimed {
			return fail(op, RewardAlreadyClaimed)
		}
		p, err := s.params()
		if err != nil {
			return err
		}

		reward = uint64(sub.Weight) * uint64(p.RewardRate)
		if err := s.put(s.keys.Claim(key), claimRecord{Amount: reward, Height: call.Height}); err != nil {
			return err
		}
		return s.emit(Event{
			Kind:       EventMint,
			Amount:     reward,
			To:         call.Caller,
			Submission: key,
			Height:     call.Height,
		})
	})
	if err != nil {
		return 0, err
	}
	l.logger.Info("reward claimed", "submission", key, "amount", reward)
	return reward, nil
}
