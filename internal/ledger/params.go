package ledger

import (
	"context"

	"github.com/hazyhaar/proofledger/internal/kv"
)

// Params is the owner-controlled configuration record. Version increases on
// every successful write.
type Params struct {
	Owner                   Identity `json:"owner" toml:"owner"`
	Oracle                  Identity `json:"oracle" toml:"oracle"`
	SubmissionTimeoutBlocks int64    `json:"submission_timeout_blocks" toml:"submission_timeout_blocks"`
	ChallengePeriodBlocks   int64    `json:"challenge_period_blocks" toml:"challenge_period_blocks"`
	MaxSubmissionsPerUser   int64    `json:"max_submissions_per_user" toml:"max_submissions_per_user"`
	RewardRate              int64    `json:"reward_rate" toml:"reward_rate"`
	VerificationFee         int64    `json:"verification_fee" toml:"verification_fee"`
	VotingThreshold         int64    `json:"voting_threshold" toml:"voting_threshold"`
	Version                 uint64   `json:"version" toml:"-"`
}

// DefaultParams returns the genesis configuration: the owner is also the
// oracle until SetOracle says otherwise.
func DefaultParams(owner Identity) Params {
	return Params{
		Owner:                   owner,
		Oracle:                  owner,
		SubmissionTimeoutBlocks: 144,
		ChallengePeriodBlocks:   72,
		MaxSubmissionsPerUser:   10,
		RewardRate:              1,
		VerificationFee:         50,
		VotingThreshold:         51,
	}
}

func validOracle(id Identity) error {
	if id == "" {
		return ErrInvalidParameter
	}
	return nil
}

func validWindow(blocks int64) error {
	if blocks <= 0 {
		return ErrInvalidTimestamp
	}
	return nil
}

func validMaxSubmissions(n int64) error {
	if n <= 0 {
		return ErrMaxSubmissionsExceeded
	}
	return nil
}

func validRewardRate(rate int64) error {
	if rate <= 0 || rate > MaxRewardRate {
		return ErrInvalidRewardRate
	}
	return nil
}

func validFee(fee int64) error {
	if fee < 0 {
		return ErrInvalidParameter
	}
	return nil
}

func validThreshold(t int64) error {
	if t <= 0 || t > 100 {
		return ErrInvalidVotingThreshold
	}
	return nil
}

// Validate checks every field with the same rules the setters apply.
func (p Params) Validate() error {
	if p.Owner == "" {
		return ErrInvalidParameter
	}
	for _, err := range []error{
		validOracle(p.Oracle),
		validWindow(p.SubmissionTimeoutBlocks),
		validWindow(p.ChallengePeriodBlocks),
		validMaxSubmissions(p.MaxSubmissionsPerUser),
		validRewardRate(p.RewardRate),
		validFee(p.VerificationFee),
		validThreshold(p.VotingThreshold),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Init writes the genesis configuration if none exists yet. It reports
// whether it wrote anything; an existing record is never overwritten.
func (l *Ledger) Init(ctx context.Context, p Params) (bool, error) {
	if err := p.Validate(); err != nil {
		k, _ := KindOf(err)
		return false, fail("init", k)
	}
	var created bool
	err := l.store.Update(ctx, func(tx kv.Tx) error {
		s := &state{r: tx, w: tx, keys: l.keys}
		_, ok, err := getJSON[Params](tx, l.keys.Config())
		if err != nil || ok {
			return err
		}
		p.Version = 1
		created = true
		return s.put(l.keys.Config(), p)
	})
	if err != nil {
		return false, err
	}
	if created {
		l.logger.Info("ledger initialized", "owner", p.Owner, "oracle", p.Oracle)
	}
	return created, nil
}

// Config returns the current configuration record.
func (l *Ledger) Config(ctx context.Context) (Params, error) {
	var p Params
	err := l.view(ctx, func(s *state) error {
		var err error
		p, err = s.params()
		return err
	})
	return p, err
}

func (l *Ledger) setParam(ctx context.Context, op string, call Call, apply func(p *Params) error) error {
	err := l.update(ctx, op, call, func(s *state) error {
		p, err := s.params()
		if err != nil {
			return err
		}
		if call.Caller != p.Owner {
			return fail(op, NotAuthorized)
		}
		if err := apply(&p); err != nil {
			k, _ := KindOf(err)
			return fail(op, k)
		}
		p.Version++
		return s.put(s.keys.Config(), p)
	})
	if err == nil {
		l.logger.Info("configuration updated", "op", op, "by", call.Caller)
	}
	return err
}

func (l *Ledger) SetOracle(ctx context.Context, call Call, oracle Identity) error {
	return l.setParam(ctx, "set-oracle", call, func(p *Params) error {
		if err := validOracle(oracle); err != nil {
			return err
		}
		p.Oracle = oracle
		return nil
	})
}

func (l *Ledger) SetSubmissionTimeout(ctx context.Context, call Call, blocks int64) error {
	return l.setParam(ctx, "set-submission-timeout", call, func(p *Params) error {
		if err := validWindow(blocks); err != nil {
			return err
		}
		p.SubmissionTimeoutBlocks = blocks
		return nil
	})
}

func (l *Ledger) SetMaxSubmissions(ctx context.Context, call Call, max int64) error {
	return l.setParam(ctx, "set-max-submissions", call, func(p *Params) error {
		if err := validMaxSubmissions(max); err != nil {
			return err
		}
		p.MaxSubmissionsPerUser = max
		return nil
	})
}

func (l *Ledger) SetRewardRate(ctx context.Context, call Call, rate int64) error {
	return l.setParam(ctx, "set-reward-rate", call, func(p *Params) error {
		if err := validRewardRate(rate); err != nil {
			return err
		}
		p.RewardRate = rate
		return nil
	})
}

func (l *Ledger) SetVerificationFee(ctx context.Context, call Call, fee int64) error {
	return l.setParam(ctx, "set-verification-fee", call, func(p *Params) error {
		if err := validFee(fee); err != nil {
			return err
		}
		p.VerificationFee = fee
		return nil
	})
}

func (l *Ledger) SetChallengePeriod(ctx context.Context, call Call, blocks int64) error {
	return l.setParam(ctx, "set-challenge-period", call, func(p *Params) error {
		if err := validWindow(blocks); err != nil {
			return err
		}
		p.ChallengePeriodBlocks = blocks
		return nil
	})
}

func (l *Ledger) SetVotingThreshold(ctx context.Context, call Call, threshold int64) error {
	return l.setParam(ctx, "set-voting-threshold", call, func(p *Params) error {
		if err := validThreshold(threshold); err != nil {
			return err
		}
		p.VotingThreshold = threshold
		return nil
	})
}
