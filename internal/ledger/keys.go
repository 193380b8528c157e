package ledger

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Keys lays out the ledger's record maps in one key-value keyspace. Every
// cross-entity lookup is an exact key built from (identity, sequence).
type Keys struct {
	ns string
}

func NewKeys(namespace string) Keys {
	if namespace != "" && !strings.HasSuffix(namespace, "/") {
		namespace += "/"
	}
	return Keys{ns: namespace}
}

func esc(id Identity) string { return url.PathEscape(string(id)) }

func seqPart(seq uint64) string { return fmt.Sprintf("%020d", seq) }

func (k Keys) Config() string { return k.ns + "config" }

func (k Keys) EventSeq() string { return k.ns + "meta/event-seq" }

func (k Keys) Registrations() string { return k.ns + "reg/" }

func (k Keys) Registration(id Identity) string { return k.Registrations() + esc(id) }

func (k Keys) Counts() string { return k.ns + "count/" }

func (k Keys) Count(id Identity) string { return k.Counts() + esc(id) }

func (k Keys) Submissions() string { return k.ns + "sub/" }

func (k Keys) SubmissionsOf(id Identity) string { return k.Submissions() + esc(id) + "/" }

func (k Keys) Submission(key SubmissionKey) string {
	return k.SubmissionsOf(key.Submitter) + seqPart(key.Seq)
}

func (k Keys) Verifications() string { return k.ns + "verif/" }

func (k Keys) Verification(key SubmissionKey) string {
	return k.Verifications() + esc(key.Submitter) + "/" + seqPart(key.Seq)
}

func (k Keys) Challenges() string { return k.ns + "chal/" }

func (k Keys) Challenge(key SubmissionKey) string {
	return k.Challenges() + esc(key.Submitter) + "/" + seqPart(key.Seq)
}

// ChallengeHistoryOf is the prefix of the archived attempts of one submission.
func (k Keys) ChallengeHistoryOf(key SubmissionKey) string {
	return k.ns + "chalhist/" + esc(key.Submitter) + "/" + seqPart(key.Seq) + "/"
}

func (k Keys) ChallengeHistory(key SubmissionKey, attempt uint32) string {
	return k.ChallengeHistoryOf(key) + fmt.Sprintf("%010d", attempt)
}

func (k Keys) Claims() string { return k.ns + "claim/" }

func (k Keys) Claim(key SubmissionKey) string {
	return k.Claims() + esc(key.Submitter) + "/" + seqPart(key.Seq)
}

func (k Keys) Events() string { return k.ns + "event/" }

func (k Keys) Event(seq uint64) string { return k.Events() + seqPart(seq) }

// identityAt decodes the identity from a key built as prefix+esc(id).
func (k Keys) identityAt(prefix, key string) (Identity, error) {
	id, err := url.PathUnescape(strings.TrimPrefix(key, prefix))
	if err != nil {
		return "", fmt.Errorf("malformed key %q: %w", key, err)
	}
	return Identity(id), nil
}

// submissionKeyAt decodes a key built as prefix+esc(id)+"/"+seq.
func (k Keys) submissionKeyAt(prefix, key string) (SubmissionKey, error) {
	rest := strings.TrimPrefix(key, prefix)
	i := strings.LastIndexByte(rest, '/')
	if i < 0 {
		return SubmissionKey{}, fmt.Errorf("malformed key %q", key)
	}
	id, err := url.PathUnescape(rest[:i])
	if err != nil {
		return SubmissionKey{}, fmt.Errorf("malformed key %q: %w", key, err)
	}
	seq, err := strconv.ParseUint(rest[i+1:], 10, 64)
	if err != nil {
		return SubmissionKey{}, fmt.Errorf("malformed key %q: %w", key, err)
	}
	return SubmissionKey{Submitter: Identity(id), Seq: seq}, nil
}
