package ledger_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/proofledger/internal/ledger"
)

func TestDefaultParams(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		p, err := f.Config(context.Background())
		require.NoError(t, err)
		require.Equal(t, ledger.Params{
			Owner:                   owner,
			Oracle:                  owner,
			SubmissionTimeoutBlocks: 144,
			ChallengePeriodBlocks:   72,
			MaxSubmissionsPerUser:   10,
			RewardRate:              1,
			VerificationFee:         50,
			VotingThreshold:         51,
			Version:                 1,
		}, p)
	})
}

func TestInitDoesNotOverwrite(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		created, err := f.Init(ctx, ledger.DefaultParams("SOMEONE"))
		require.NoError(t, err)
		require.False(t, created)
		p, err := f.Config(ctx)
		require.NoError(t, err)
		require.Equal(t, owner, p.Owner)
	})
}

func TestInitValidates(t *testing.T) {
	l := ledger.New(backends["memory"](t))
	p := ledger.DefaultParams(owner)
	p.VotingThreshold = 0
	_, err := l.Init(context.Background(), p)
	requireKind(t, err, ledger.InvalidVotingThreshold)
}

func TestSetters(t *testing.T) {
	type setter func(f *fixture, call ledger.Call, v int64) error
	tests := []struct {
		name  string
		set   setter
		good  int64
		bad   []int64
		kind  ledger.Kind
		field func(p ledger.Params) int64
	}{
		{
			name: "submission timeout",
			set: func(f *fixture, c ledger.Call, v int64) error {
				return f.SetSubmissionTimeout(context.Background(), c, v)
			},
			good: 10, bad: []int64{0, -1}, kind: ledger.InvalidTimestamp,
			field: func(p ledger.Params) int64 { return p.SubmissionTimeoutBlocks },
		},
		{
			name: "challenge period",
			set: func(f *fixture, c ledger.Call, v int64) error {
				return f.SetChallengePeriod(context.Background(), c, v)
			},
			good: 5, bad: []int64{0, -72}, kind: ledger.InvalidTimestamp,
			field: func(p ledger.Params) int64 { return p.ChallengePeriodBlocks },
		},
		{
			name: "max submissions",
			set: func(f *fixture, c ledger.Call, v int64) error {
				return f.SetMaxSubmissions(context.Background(), c, v)
			},
			good: 3, bad: []int64{0, -3}, kind: ledger.MaxSubmissionsExceeded,
			field: func(p ledger.Params) int64 { return p.MaxSubmissionsPerUser },
		},
		{
			name: "reward rate",
			set: func(f *fixture, c ledger.Call, v int64) error {
				return f.SetRewardRate(context.Background(), c, v)
			},
			good: 9, bad: []int64{0, -1, math.MaxInt64}, kind: ledger.InvalidRewardRate,
			field: func(p ledger.Params) int64 { return p.RewardRate },
		},
		{
			name: "verification fee",
			set: func(f *fixture, c ledger.Call, v int64) error {
				return f.SetVerificationFee(context.Background(), c, v)
			},
			good: 0, bad: []int64{-1}, kind: ledger.InvalidParameter,
			field: func(p ledger.Params) int64 { return p.VerificationFee },
		},
		{
			name: "voting threshold",
			set: func(f *fixture, c ledger.Call, v int64) error {
				return f.SetVotingThreshold(context.Background(), c, v)
			},
			good: 100, bad: []int64{0, 101}, kind: ledger.InvalidVotingThreshold,
			field: func(p ledger.Params) int64 { return p.VotingThreshold },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eachBackend(t, func(t *testing.T, f *fixture) {
				ctx := context.Background()
				before, err := f.Config(ctx)
				require.NoError(t, err)

				requireKind(t, tt.set(f, at(alice, 1), tt.good), ledger.NotAuthorized)
				for _, v := range tt.bad {
					requireKind(t, tt.set(f, at(owner, 1), v), tt.kind)
				}
				after, err := f.Config(ctx)
				require.NoError(t, err)
				require.Equal(t, before, after)

				require.NoError(t, tt.set(f, at(owner, 1), tt.good+1))
				require.NoError(t, tt.set(f, at(owner, 1), tt.good))
				require.NoError(t, tt.set(f, at(owner, 1), tt.good))
				after, err = f.Config(ctx)
				require.NoError(t, err)
				require.Equal(t, tt.good, tt.field(after))
				require.Equal(t, before.Version+3, after.Version)
			})
		})
	}
}

func TestSetOracle(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		requireKind(t, f.SetOracle(ctx, at(bob, 1), bob), ledger.NotAuthorized)
		requireKind(t, f.SetOracle(ctx, at(owner, 1), ""), ledger.InvalidParameter)
		require.NoError(t, f.SetOracle(ctx, at(owner, 1), bob))
		p, err := f.Config(ctx)
		require.NoError(t, err)
		require.Equal(t, bob, p.Oracle)
		require.Equal(t, owner, p.Owner)
	})
}

func TestZeroFeeStillEmitsTransfer(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		require.NoError(t, f.SetVerificationFee(ctx, at(owner, 1), 0))
		f.registered(t, alice)
		key := f.submitted(t, alice, 5)
		_, err := f.Verify(ctx, at(owner, 3), key, true)
		require.NoError(t, err)
		events, err := f.Events(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Zero(t, events[0].Amount)
	})
}
