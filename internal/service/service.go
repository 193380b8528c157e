// Package service exposes every ledger operation as a kit.Endpoint so the
// HTTP and MCP transports share one decoded-request surface, one audit trail
// and one set of metrics. The caller comes from kit.GetUserID and the logical
// time from the chain clock.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/hazyhaar/proofledger/internal/chain"
	"github.com/hazyhaar/proofledger/internal/identity"
	"github.com/hazyhaar/proofledger/internal/ledger"
	"github.com/hazyhaar/proofledger/pkg/kit"
)

// ErrMalformed marks a request a transport could not turn into ledger input.
var ErrMalformed = errors.New("malformed request")

type SubmitProofRequest struct {
	ProofHash string `json:"proof_hash"`
	Weight    int64  `json:"weight"`
	ProofType string `json:"proof_type"`
	Location  string `json:"location"`
}

type SubmissionRequest struct {
	Submitter string `json:"submitter"`
	Seq       uint64 `json:"seq"`
}

type VoteRequest struct {
	SubmissionRequest
	Vote bool `json:"vote"`
}

type ChallengeRequest struct {
	SubmissionRequest
	Reason string `json:"reason"`
}

type ClaimRequest struct {
	Seq uint64 `json:"seq"`
}

type IdentityRequest struct {
	Identity string `json:"identity"`
}

type SetParamRequest struct {
	Param string `json:"param"`
	Value string `json:"value"`
}

type EventsRequest struct {
	After uint64 `json:"after"`
	Limit int    `json:"limit"`
}

type SubmissionResponse struct {
	Found      bool               `json:"found"`
	Submission *ledger.Submission `json:"submission,omitempty"`
	Claimed    bool               `json:"claimed"`
}

type UserResponse struct {
	Identity        ledger.Identity      `json:"identity"`
	Registered      bool                 `json:"registered"`
	Registration    *ledger.Registration `json:"registration,omitempty"`
	SubmissionCount uint64               `json:"submission_count"`
}

type ChallengeResponse struct {
	Found   bool               `json:"found"`
	Current *ledger.Challenge  `json:"current,omitempty"`
	History []ledger.Challenge `json:"history"`
}

type VerificationResponse struct {
	Found        bool                 `json:"found"`
	Verification *ledger.Verification `json:"verification,omitempty"`
}

type InvariantsResponse struct {
	OK         bool               `json:"ok"`
	Violations []ledger.Violation `json:"violations"`
}

// Endpoints holds one endpoint per operation. Mutating endpoints carry the
// middlewares passed to New; reads only carry metrics.
type Endpoints struct {
	Register         kit.Endpoint
	SubmitProof      kit.Endpoint
	Verify           kit.Endpoint
	Challenge        kit.Endpoint
	ResolveChallenge kit.Endpoint
	ClaimReward      kit.Endpoint
	SetParam         kit.Endpoint

	GetSubmission   kit.Endpoint
	SubmissionCount kit.Endpoint
	IsRewardClaimed kit.Endpoint
	GetUser         kit.Endpoint
	GetVerification kit.Endpoint
	GetChallenge    kit.Endpoint
	GetConfig       kit.Endpoint
	Events          kit.Endpoint
	Invariants      kit.Endpoint
}

// Wrap builds the middleware for a named operation. Either field may be nil.
type Wrap struct {
	Audit   func(op string) kit.Middleware
	Metrics func(op string) kit.Middleware
}

func (w Wrap) apply(op string, ep kit.Endpoint, audited bool) kit.Endpoint {
	mws := []kit.Middleware{named(op)}
	if w.Metrics != nil {
		mws = append(mws, w.Metrics(op))
	}
	if audited && w.Audit != nil {
		mws = append(mws, w.Audit(op))
	}
	return kit.Chain(mws[0], mws[1:]...)(ep)
}

// named tags the context with the operation name for the layers below.
func named(op string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			return next(kit.WithOperation(ctx, op), request)
		}
	}
}

type svc struct {
	l     *ledger.Ledger
	clock chain.Clock
}

func New(l *ledger.Ledger, clock chain.Clock, w Wrap) Endpoints {
	s := &svc{l: l, clock: clock}
	return Endpoints{
		Register:         w.apply("register", s.register, true),
		SubmitProof:      w.apply("submit_proof", s.submitProof, true),
		Verify:           w.apply("verify_submission", s.verify, true),
		Challenge:        w.apply("challenge_submission", s.challenge, true),
		ResolveChallenge: w.apply("resolve_challenge", s.resolve, true),
		ClaimReward:      w.apply("claim_reward", s.claim, true),
		SetParam:         w.apply("set_config", s.setParam, true),

		GetSubmission:   w.apply("get_submission", s.getSubmission, false),
		SubmissionCount: w.apply("get_submission_count", s.submissionCount, false),
		IsRewardClaimed: w.apply("is_reward_claimed", s.isRewardClaimed, false),
		GetUser:         w.apply("get_user", s.getUser, false),
		GetVerification: w.apply("get_verification", s.getVerification, false),
		GetChallenge:    w.apply("get_challenge", s.getChallenge, false),
		GetConfig:       w.apply("get_config", s.getConfig, false),
		Events:          w.apply("events", s.events, false),
		Invariants:      w.apply("check_invariants", s.invariants, false),
	}
}

func decode[T any](request any) (*T, error) {
	r, ok := request.(*T)
	if !ok || r == nil {
		return nil, ErrMalformed
	}
	return r, nil
}

func (s *svc) call(ctx context.Context) ledger.Call {
	return ledger.Call{
		Caller: ledger.Identity(kit.GetUserID(ctx)),
		Height: s.clock.Height(),
	}
}

// submissionKey maps a request onto a ledger key. An identity that cannot be
// normalized cannot own a submission.
func submissionKey(op string, r SubmissionRequest) (ledger.SubmissionKey, error) {
	id, err := identity.Normalize(r.Submitter)
	if err != nil {
		return ledger.SubmissionKey{}, &ledger.Error{Kind: ledger.InvalidSubmissionID, Op: op}
	}
	return ledger.SubmissionKey{Submitter: id, Seq: r.Seq}, nil
}

func (s *svc) register(ctx context.Context, _ any) (any, error) {
	if err := s.l.Register(ctx, s.call(ctx)); err != nil {
		return nil, err
	}
	return map[string]bool{"registered": true}, nil
}

func (s *svc) submitProof(ctx context.Context, request any) (any, error) {
	r, err := decode[SubmitProofRequest](request)
	if err != nil {
		return nil, err
	}
	hash, err := hex.DecodeString(trimHex(r.ProofHash))
	if err != nil {
		return nil, &ledger.Error{Kind: ledger.InvalidProof, Op: "submit-proof"}
	}
	seq, err := s.l.SubmitProof(ctx, s.call(ctx), ledger.ProofInput{
		ProofHash: hash,
		Weight:    r.Weight,
		ProofType: ledger.ProofType(r.ProofType),
		Location:  r.Location,
	})
	if err != nil {
		return nil, err
	}
	return map[string]uint64{"sequence": seq}, nil
}

func (s *svc) verify(ctx context.Context, request any) (any, error) {
	r, err := decode[VoteRequest](request)
	if err != nil {
		return nil, err
	}
	key, err := submissionKey("verify", r.SubmissionRequest)
	if err != nil {
		return nil, err
	}
	vote, err := s.l.Verify(ctx, s.call(ctx), key, r.Vote)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"vote": vote}, nil
}

func (s *svc) challenge(ctx context.Context, request any) (any, error) {
	r, err := decode[ChallengeRequest](request)
	if err != nil {
		return nil, err
	}
	key, err := submissionKey("challenge", r.SubmissionRequest)
	if err != nil {
		return nil, err
	}
	if err := s.l.Challenge(ctx, s.call(ctx), key, r.Reason); err != nil {
		return nil, err
	}
	return map[string]bool{"challenged": true}, nil
}

func (s *svc) resolve(ctx context.Context, request any) (any, error) {
	r, err := decode[VoteRequest](request)
	if err != nil {
		return nil, err
	}
	key, err := submissionKey("resolve-challenge", r.SubmissionRequest)
	if err != nil {
		return nil, &ledger.Error{Kind: ledger.InvalidChallenge, Op: "resolve-challenge"}
	}
	vote, err := s.l.ResolveChallenge(ctx, s.call(ctx), key, r.Vote)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"vote": vote}, nil
}

func (s *svc) claim(ctx context.Context, request any) (any, error) {
	r, err := decode[ClaimRequest](request)
	if err != nil {
		return nil, err
	}
	reward, err := s.l.ClaimReward(ctx, s.call(ctx), r.Seq)
	if err != nil {
		return nil, err
	}
	return map[string]uint64{"reward": reward}, nil
}

// Params lists the names SetParam accepts.
var Params = []string{
	"oracle",
	"submission_timeout",
	"challenge_period",
	"max_submissions",
	"reward_rate",
	"verification_fee",
	"voting_threshold",
}

func (s *svc) setParam(ctx context.Context, request any) (any, error) {
	r, err := decode[SetParamRequest](request)
	if err != nil {
		return nil, err
	}
	call := s.call(ctx)
	// The owner is fixed at genesis; non-owners fail before any decoding.
	p, err := s.l.Config(ctx)
	if err != nil {
		return nil, err
	}
	if call.Caller == "" || call.Caller != p.Owner {
		return nil, &ledger.Error{Kind: ledger.NotAuthorized, Op: "set-config"}
	}
	invalid := &ledger.Error{Kind: ledger.InvalidParameter, Op: "set-config"}

	if r.Param == "oracle" {
		id, nerr := identity.Normalize(r.Value)
		if nerr != nil {
			return nil, invalid
		}
		err = s.l.SetOracle(ctx, call, id)
	} else {
		n, perr := strconv.ParseInt(r.Value, 10, 64)
		if perr != nil {
			return nil, invalid
		}
		switch r.Param {
		case "submission_timeout":
			err = s.l.SetSubmissionTimeout(ctx, call, n)
		case "challenge_period":
			err = s.l.SetChallengePeriod(ctx, call, n)
		case "max_submissions":
			err = s.l.SetMaxSubmissions(ctx, call, n)
		case "reward_rate":
			err = s.l.SetRewardRate(ctx, call, n)
		case "verification_fee":
			err = s.l.SetVerificationFee(ctx, call, n)
		case "voting_threshold":
			err = s.l.SetVotingThreshold(ctx, call, n)
		default:
			return nil, invalid
		}
	}
	if err != nil {
		return nil, err
	}
	return s.l.Config(ctx)
}

func (s *svc) getSubmission(ctx context.Context, request any) (any, error) {
	r, err := decode[SubmissionRequest](request)
	if err != nil {
		return nil, err
	}
	key, err := submissionKey("", *r)
	if err != nil {
		return SubmissionResponse{}, nil
	}
	sub, ok, err := s.l.Submission(ctx, key)
	if err != nil || !ok {
		return SubmissionResponse{}, err
	}
	claimed, err := s.l.IsRewardClaimed(ctx, key)
	if err != nil {
		return nil, err
	}
	return SubmissionResponse{Found: true, Submission: &sub, Claimed: claimed}, nil
}

func (s *svc) submissionCount(ctx context.Context, request any) (any, error) {
	r, err := decode[IdentityRequest](request)
	if err != nil {
		return nil, err
	}
	id, err := identity.Normalize(r.Identity)
	if err != nil {
		return map[string]any{"identity": r.Identity, "count": 0}, nil
	}
	n, err := s.l.SubmissionCount(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"identity": id, "count": n}, nil
}

func (s *svc) isRewardClaimed(ctx context.Context, request any) (any, error) {
	r, err := decode[SubmissionRequest](request)
	if err != nil {
		return nil, err
	}
	key, err := submissionKey("", *r)
	if err != nil {
		return map[string]bool{"claimed": false}, nil
	}
	claimed, err := s.l.IsRewardClaimed(ctx, key)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"claimed": claimed}, nil
}

func (s *svc) getUser(ctx context.Context, request any) (any, error) {
	r, err := decode[IdentityRequest](request)
	if err != nil {
		return nil, err
	}
	id, err := identity.Normalize(r.Identity)
	if err != nil {
		return UserResponse{Identity: ledger.Identity(r.Identity)}, nil
	}
	resp := UserResponse{Identity: id}
	reg, ok, err := s.l.Registration(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		resp.Registration = &reg
		resp.Registered = reg.Active
	}
	if resp.SubmissionCount, err = s.l.SubmissionCount(ctx, id); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *svc) getVerification(ctx context.Context, request any) (any, error) {
	r, err := decode[SubmissionRequest](request)
	if err != nil {
		return nil, err
	}
	key, err := submissionKey("", *r)
	if err != nil {
		return VerificationResponse{}, nil
	}
	v, ok, err := s.l.Verification(ctx, key)
	if err != nil || !ok {
		return VerificationResponse{}, err
	}
	return VerificationResponse{Found: true, Verification: &v}, nil
}

func (s *svc) getChallenge(ctx context.Context, request any) (any, error) {
	r, err := decode[SubmissionRequest](request)
	if err != nil {
		return nil, err
	}
	key, err := submissionKey("", *r)
	if err != nil {
		return ChallengeResponse{History: []ledger.Challenge{}}, nil
	}
	cur, ok, err := s.l.CurrentChallenge(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := ChallengeResponse{History: []ledger.Challenge{}}
	if !ok {
		return resp, nil
	}
	resp.Found, resp.Current = true, &cur
	history, err := s.l.ChallengeHistory(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		resp.History = history
	}
	return resp, nil
}

func (s *svc) getConfig(ctx context.Context, _ any) (any, error) {
	return s.l.Config(ctx)
}

func (s *svc) events(ctx context.Context, request any) (any, error) {
	r, err := decode[EventsRequest](request)
	if err != nil {
		return nil, err
	}
	if r.Limit <= 0 || r.Limit > 1000 {
		r.Limit = 100
	}
	events, err := s.l.Events(ctx, r.After, r.Limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []ledger.Event{}
	}
	return map[string]any{"events": events}, nil
}

func (s *svc) invariants(ctx context.Context, _ any) (any, error) {
	v, err := s.l.CheckInvariants(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = []ledger.Violation{}
	}
	return InvariantsResponse{OK: len(v) == 0, Violations: v}, nil
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
