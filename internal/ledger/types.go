package ledger

import (
	"encoding/hex"
	"fmt"
	"math"
)

const (
	ProofHashSize  = 32
	MaxWeight      = 10000
	MaxLocationLen = 100
	MaxReasonLen   = 200
	// MaxRewardRate keeps weight*rate inside int64.
	MaxRewardRate = math.MaxInt64 / MaxWeight
)

// Identity is an opaque, already-authenticated principal.
type Identity string

// Call carries who is calling and at which logical time (block height).
// The ledger never advances time itself.
type Call struct {
	Caller Identity
	Height uint64
}

// SubmissionKey identifies a submission and every record attached to it.
type SubmissionKey struct {
	Submitter Identity `json:"submitter"`
	Seq       uint64   `json:"seq"`
}

func (k SubmissionKey) String() string {
	return fmt.Sprintf("%s-%d", k.Submitter, k.Seq)
}

// Status is the lifecycle state of a submission.
type Status uint8

const (
	StatusPending Status = iota
	StatusVerified
	StatusRejected
	StatusChallenged
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusVerified:
		return "verified"
	case StatusRejected:
		return "rejected"
	case StatusChallenged:
		return "challenged"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case StatusPending, StatusVerified, StatusRejected, StatusChallenged:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("unknown status %d", uint8(s))
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "verified":
		return StatusVerified, nil
	case "rejected":
		return StatusRejected, nil
	case "challenged":
		return StatusChallenged, nil
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

// decided maps an oracle vote onto the status it produces.
func decided(vote bool) Status {
	if vote {
		return StatusVerified
	}
	return StatusRejected
}

// ProofType is the kind of evidence behind a submission.
type ProofType string

const (
	ProofPhoto  ProofType = "photo"
	ProofSensor ProofType = "sensor"
	ProofManual ProofType = "manual"
)

func (p ProofType) Valid() bool {
	switch p {
	case ProofPhoto, ProofSensor, ProofManual:
		return true
	}
	return false
}

// ProofHash is the 32-byte digest of the off-ledger proof. It encodes as hex.
type ProofHash [ProofHashSize]byte

func (h ProofHash) String() string { return hex.EncodeToString(h[:]) }

func (h ProofHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *ProofHash) UnmarshalText(b []byte) error {
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return fmt.Errorf("proof hash: %w", err)
	}
	if len(raw) != ProofHashSize {
		return fmt.Errorf("proof hash: want %d bytes, got %d", ProofHashSize, len(raw))
	}
	copy(h[:], raw)
	return nil
}

// ProofInput is what a participant supplies to SubmitProof. ProofHash is a
// slice so that wrong-length digests reach validation instead of being
// truncated by the caller.
type ProofInput struct {
	ProofHash []byte
	Weight    int64
	ProofType ProofType
	Location  string
}

type Submission struct {
	Submitter Identity  `json:"submitter"`
	Seq       uint64    `json:"seq"`
	ProofHash ProofHash `json:"proof_hash"`
	Weight    int64     `json:"weight"`
	Timestamp uint64    `json:"timestamp"`
	Status    Status    `json:"status"`
	ProofType ProofType `json:"proof_type"`
	Location  string    `json:"location"`
}

func (s Submission) Key() SubmissionKey {
	return SubmissionKey{Submitter: s.Submitter, Seq: s.Seq}
}

type Registration struct {
	RegisteredAt uint64 `json:"registered_at"`
	Active       bool   `json:"active"`
}

type Verification struct {
	Verifier  Identity `json:"verifier"`
	Vote      bool     `json:"vote"`
	Timestamp uint64   `json:"timestamp"`
}

// Challenge is one dispute attempt. Attempt numbers start at 1; a closed
// attempt is archived when the submission is challenged again.
type Challenge struct {
	Challenger   Identity `json:"challenger"`
	Reason       string   `json:"reason"`
	Timestamp    uint64   `json:"timestamp"`
	Open         bool     `json:"open"`
	Attempt      uint32   `json:"attempt"`
	ResolvedBy   Identity `json:"resolved_by,omitempty"`
	ResolvedVote *bool    `json:"resolved_vote,omitempty"`
	ResolvedAt   uint64   `json:"resolved_at,omitempty"`
}

type EventKind string

const (
	EventTransfer EventKind = "transfer"
	EventMint     EventKind = "mint"
)

// Event is a value movement the ledger asked the external value layer to
// perform: a verification fee transfer or a reward mint.
type Event struct {
	Seq        uint64        `json:"seq"`
	Kind       EventKind     `json:"kind"`
	Amount     uint64        `json:"amount"`
	From       Identity      `json:"from,omitempty"`
	To         Identity      `json:"to"`
	Submission SubmissionKey `json:"submission"`
	Height     uint64        `json:"height"`
}

type claimRecord struct {
	Amount uint64 `json:"amount"`
	Height uint64 `json:"height"`
}
