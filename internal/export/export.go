// Package export provides JSONL dataset export of the ledger with identity
// anonymization.
package export

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hazyhaar/proofledger/internal/ledger"
)

const Version = "1.0"

// Record is one submission with everything attached to it, one JSONL line.
type Record struct {
	ExportedAt   string              `json:"exported_at"`
	Version      string              `json:"export_version"`
	Submitter    string              `json:"submitter"`
	Seq          uint64              `json:"seq"`
	ProofHash    ledger.ProofHash    `json:"proof_hash"`
	Weight       int64               `json:"weight"`
	Timestamp    uint64              `json:"timestamp"`
	Status       ledger.Status       `json:"status"`
	ProofType    ledger.ProofType    `json:"proof_type"`
	Location     string              `json:"location"`
	Verification *ExportVerification `json:"verification,omitempty"`
	Challenges   []ExportChallenge   `json:"challenges,omitempty"`
	Claimed      bool                `json:"claimed"`
}

type ExportVerification struct {
	Verifier  string `json:"verifier"`
	Vote      bool   `json:"vote"`
	Timestamp uint64 `json:"timestamp"`
}

type ExportChallenge struct {
	Attempt      uint32 `json:"attempt"`
	Challenger   string `json:"challenger"`
	Reason       string `json:"reason"`
	Timestamp    uint64 `json:"timestamp"`
	Open         bool   `json:"open"`
	ResolvedVote *bool  `json:"resolved_vote,omitempty"`
	ResolvedAt   uint64 `json:"resolved_at,omitempty"`
}

// Options controls an export. The zero value anonymizes with a fresh salt.
type Options struct {
	// Raw keeps real identities.
	Raw bool
	// Salt fixes the anonymization salt so exports can be joined. Random when empty.
	Salt []byte
	// Submitter restricts the export to one identity.
	Submitter ledger.Identity
}

// Stats summarizes a finished export.
type Stats struct {
	Submissions int `json:"submissions"`
	Identities  int `json:"identities"`
}

// WriteJSONL writes one Record per submission, in key order.
func WriteJSONL(ctx context.Context, l *ledger.Ledger, w io.Writer, opts Options) (Stats, error) {
	var subs []ledger.Submission
	collect := func(s ledger.Submission) error {
		subs = append(subs, s)
		return nil
	}
	var err error
	if opts.Submitter != "" {
		err = l.SubmissionsOf(ctx, opts.Submitter, collect)
	} else {
		err = l.Submissions(ctx, collect)
	}
	if err != nil {
		return Stats{}, fmt.Errorf("listing submissions: %w", err)
	}

	ids := newAnonMap(opts)
	exportedAt := time.Now().UTC().Format(time.RFC3339)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for _, sub := range subs {
		rec, err := buildRecord(ctx, l, sub, ids)
		if err != nil {
			return Stats{}, err
		}
		rec.ExportedAt = exportedAt
		if err := enc.Encode(rec); err != nil {
			return Stats{}, fmt.Errorf("writing %s: %w", sub.Key(), err)
		}
	}
	return Stats{Submissions: len(subs), Identities: len(ids.mapping)}, nil
}

func buildRecord(ctx context.Context, l *ledger.Ledger, sub ledger.Submission, ids *anonMap) (Record, error) {
	key := sub.Key()
	rec := Record{
		Version:   Version,
		Submitter: ids.get(sub.Submitter),
		Seq:       sub.Seq,
		ProofHash: sub.ProofHash,
		Weight:    sub.Weight,
		Timestamp: sub.Timestamp,
		Status:    sub.Status,
		ProofType: sub.ProofType,
		Location:  sub.Location,
	}

	v, ok, err := l.Verification(ctx, key)
	if err != nil {
		return Record{}, fmt.Errorf("verification of %s: %w", key, err)
	}
	if ok {
		rec.Verification = &ExportVerification{
			Verifier:  ids.get(v.Verifier),
			Vote:      v.Vote,
			Timestamp: v.Timestamp,
		}
	}

	history, err := l.ChallengeHistory(ctx, key)
	if err != nil {
		return Record{}, fmt.Errorf("challenges of %s: %w", key, err)
	}
	for _, c := range history {
		rec.Challenges = append(rec.Challenges, ExportChallenge{
			Attempt:      c.Attempt,
			Challenger:   ids.get(c.Challenger),
			Reason:       c.Reason,
			Timestamp:    c.Timestamp,
			Open:         c.Open,
			ResolvedVote: c.ResolvedVote,
			ResolvedAt:   c.ResolvedAt,
		})
	}

	if rec.Claimed, err = l.IsRewardClaimed(ctx, key); err != nil {
		return Record{}, fmt.Errorf("claim of %s: %w", key, err)
	}
	return rec, nil
}

// anonMap maps real identities to stable pseudonyms within one export.
type anonMap struct {
	raw     bool
	salt    []byte
	mapping map[ledger.Identity]string
}

func newAnonMap(opts Options) *anonMap {
	salt := opts.Salt
	if len(salt) == 0 {
		salt = make([]byte, 16)
		rand.Read(salt)
	}
	return &anonMap{
		raw:     opts.Raw,
		salt:    salt,
		mapping: make(map[ledger.Identity]string),
	}
}

func (m *anonMap) get(id ledger.Identity) string {
	if anon, ok := m.mapping[id]; ok {
		return anon
	}
	anon := string(id)
	if !m.raw {
		h := sha256.New()
		h.Write(m.salt)
		h.Write([]byte(id))
		anon = "anon_" + hex.EncodeToString(h.Sum(nil)[:6])
	}
	m.mapping[id] = anon
	return anon
}
