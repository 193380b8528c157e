package ledger

import (
	"errors"
	"fmt"
)

// Kind is a ledger failure. Its numeric value is the wire code.
type Kind uint16

const (
	NotAuthorized          Kind = 100
	AlreadySubmitted       Kind = 101
	InvalidProof           Kind = 102
	SubmissionExpired      Kind = 103
	InvalidWeight          Kind = 104
	OracleNotSet           Kind = 105
	InvalidSubmissionID    Kind = 106
	VerificationFailed     Kind = 107
	RewardAlreadyClaimed   Kind = 108
	InvalidTimestamp       Kind = 109
	UserNotRegistered      Kind = 110
	InvalidOracle          Kind = 111
	MaxSubmissionsExceeded Kind = 112
	InvalidRewardRate      Kind = 113
	InvalidStatus          Kind = 114
	InvalidLocation        Kind = 115
	InvalidProofType       Kind = 116
	PendingVerification    Kind = 117
	InvalidChallenge       Kind = 118
	ChallengeExpired       Kind = 119
	InvalidVote            Kind = 120
	AlreadyRegistered      Kind = 121
	AlreadyVerified        Kind = 122
	AlreadyChallenged      Kind = 123
	InvalidParameter       Kind = 124
	InvalidVotingThreshold Kind = 125
)

var kindNames = map[Kind]string{
	NotAuthorized:          "not-authorized",
	AlreadySubmitted:       "already-submitted",
	InvalidProof:           "invalid-proof",
	SubmissionExpired:      "submission-expired",
	InvalidWeight:          "invalid-weight",
	OracleNotSet:           "oracle-not-set",
	InvalidSubmissionID:    "invalid-submission-id",
	VerificationFailed:     "verification-failed",
	RewardAlreadyClaimed:   "reward-already-claimed",
	InvalidTimestamp:       "invalid-timestamp",
	UserNotRegistered:      "user-not-registered",
	InvalidOracle:          "invalid-oracle",
	MaxSubmissionsExceeded: "max-submissions-exceeded",
	InvalidRewardRate:      "invalid-reward-rate",
	InvalidStatus:          "invalid-status",
	InvalidLocation:        "invalid-location",
	InvalidProofType:       "invalid-proof-type",
	PendingVerification:    "pending-verification",
	InvalidChallenge:       "invalid-challenge",
	ChallengeExpired:       "challenge-expired",
	InvalidVote:            "invalid-vote",
	AlreadyRegistered:      "already-registered",
	AlreadyVerified:        "already-verified",
	AlreadyChallenged:      "already-challenged",
	InvalidParameter:       "invalid-parameter",
	InvalidVotingThreshold: "invalid-voting-threshold",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint16(k))
}

// Class groups kinds by what the caller has to fix.
type Class string

const (
	ClassAuthorization Class = "authorization"
	ClassValidation    Class = "validation"
	ClassState         Class = "state"
	ClassTemporal      Class = "temporal"
	ClassCapacity      Class = "capacity"
	ClassBusiness      Class = "business"
)

func (k Kind) Class() Class {
	switch k {
	case NotAuthorized, InvalidOracle, OracleNotSet:
		return ClassAuthorization
	case InvalidProof, InvalidWeight, InvalidProofType, InvalidLocation, InvalidTimestamp,
		InvalidParameter, InvalidRewardRate, InvalidVotingThreshold, InvalidVote:
		return ClassValidation
	case SubmissionExpired, ChallengeExpired:
		return ClassTemporal
	case MaxSubmissionsExceeded:
		return ClassCapacity
	case VerificationFailed, UserNotRegistered, PendingVerification:
		return ClassBusiness
	}
	return ClassState
}

// Error is the failure every mutating operation returns when a precondition
// does not hold. Nothing was written when it is returned.
type Error struct {
	Kind Kind
	Op   string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return "ledger: " + e.Kind.String()
	}
	return fmt.Sprintf("ledger: %s: %s", e.Op, e.Kind)
}

// Is matches on Kind, so errors.Is(err, ErrInvalidWeight) holds for any op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotAuthorized          = &Error{Kind: NotAuthorized}
	ErrInvalidProof           = &Error{Kind: InvalidProof}
	ErrSubmissionExpired      = &Error{Kind: SubmissionExpired}
	ErrInvalidWeight          = &Error{Kind: InvalidWeight}
	ErrInvalidSubmissionID    = &Error{Kind: InvalidSubmissionID}
	ErrVerificationFailed     = &Error{Kind: VerificationFailed}
	ErrRewardAlreadyClaimed   = &Error{Kind: RewardAlreadyClaimed}
	ErrInvalidTimestamp       = &Error{Kind: InvalidTimestamp}
	ErrUserNotRegistered      = &Error{Kind: UserNotRegistered}
	ErrInvalidOracle          = &Error{Kind: InvalidOracle}
	ErrMaxSubmissionsExceeded = &Error{Kind: MaxSubmissionsExceeded}
	ErrInvalidRewardRate      = &Error{Kind: InvalidRewardRate}
	ErrInvalidStatus          = &Error{Kind: InvalidStatus}
	ErrInvalidLocation        = &Error{Kind: InvalidLocation}
	ErrInvalidProofType       = &Error{Kind: InvalidProofType}
	ErrInvalidChallenge       = &Error{Kind: InvalidChallenge}
	ErrChallengeExpired       = &Error{Kind: ChallengeExpired}
	ErrAlreadyRegistered      = &Error{Kind: AlreadyRegistered}
	ErrAlreadyVerified        = &Error{Kind: AlreadyVerified}
	ErrAlreadyChallenged      = &Error{Kind: AlreadyChallenged}
	ErrInvalidParameter       = &Error{Kind: InvalidParameter}
	ErrInvalidVotingThreshold = &Error{Kind: InvalidVotingThreshold}
)

// ErrNotInitialized is returned when no configuration record exists yet.
var ErrNotInitialized = errors.New("ledger: configuration not initialized")

// KindOf reports the ledger kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return 0, false
}

func fail(op string, k Kind) error {
	return &Error{Kind: k, Op: op}
}
