package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/proofledger/internal/kv"
	"github.com/hazyhaar/proofledger/internal/ledger"
)

func seeded(t *testing.T) *ledger.Ledger {
	t.Helper()
	ctx := context.Background()
	l := ledger.New(kv.NewMemory(), ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	_, err := l.Init(ctx, ledger.DefaultParams("OWNER"))
	require.NoError(t, err)

	for _, id := range []ledger.Identity{"A", "B"} {
		require.NoError(t, l.Register(ctx, ledger.Call{Caller: id, Height: 1}))
		_, err := l.SubmitProof(ctx, ledger.Call{Caller: id, Height: 1}, ledger.ProofInput{
			ProofHash: bytes.Repeat([]byte{1}, ledger.ProofHashSize),
			Weight:    100,
			ProofType: ledger.ProofSensor,
			Location:  "Plot 7",
		})
		require.NoError(t, err)
	}
	a0 := ledger.SubmissionKey{Submitter: "A", Seq: 0}
	_, err = l.Verify(ctx, ledger.Call{Caller: "OWNER", Height: 2}, a0, true)
	require.NoError(t, err)
	require.NoError(t, l.Challenge(ctx, ledger.Call{Caller: "B", Height: 3}, a0, "wrong plot"))
	_, err = l.ResolveChallenge(ctx, ledger.Call{Caller: "OWNER", Height: 4}, a0, true)
	require.NoError(t, err)
	_, err = l.ClaimReward(ctx, ledger.Call{Caller: "A", Height: 5}, 0)
	require.NoError(t, err)
	return l
}

func readRecords(t *testing.T, buf *bytes.Buffer) []Record {
	t.Helper()
	var out []Record
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		out = append(out, r)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestWriteJSONLAnonymized(t *testing.T) {
	l := seeded(t)
	var buf bytes.Buffer
	stats, err := WriteJSONL(context.Background(), l, &buf, Options{Salt: []byte("fixed")})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Submissions)
	require.NotContains(t, buf.String(), `"A"`)

	recs := readRecords(t, &buf)
	require.Len(t, recs, 2)

	a := recs[0]
	require.True(t, strings.HasPrefix(a.Submitter, "anon_"))
	require.Equal(t, ledger.StatusVerified, a.Status)
	require.True(t, a.Claimed)
	require.NotNil(t, a.Verification)
	require.Len(t, a.Challenges, 1)
	require.Equal(t, recs[1].Submitter, a.Challenges[0].Challenger, "B is the same pseudonym everywhere")
	require.NotEqual(t, a.Submitter, recs[1].Submitter)

	require.False(t, recs[1].Claimed)
	require.Nil(t, recs[1].Verification)

	// Same salt, same pseudonyms.
	var again bytes.Buffer
	_, err = WriteJSONL(context.Background(), l, &again, Options{Salt: []byte("fixed")})
	require.NoError(t, err)
	require.Equal(t, a.Submitter, readRecords(t, &again)[0].Submitter)
}

func TestWriteJSONLRawAndFiltered(t *testing.T) {
	l := seeded(t)
	var buf bytes.Buffer
	stats, err := WriteJSONL(context.Background(), l, &buf, Options{Raw: true, Submitter: "B"})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Submissions)

	recs := readRecords(t, &buf)
	require.Len(t, recs, 1)
	require.Equal(t, "B", recs[0].Submitter)
	require.Equal(t, ledger.StatusPending, recs[0].Status)
}

func TestWriteJSONLEmpty(t *testing.T) {
	l := ledger.New(kv.NewMemory())
	var buf bytes.Buffer
	stats, err := WriteJSONL(context.Background(), l, &buf, Options{})
	require.NoError(t, err)
	require.Zero(t, stats.Submissions)
	require.Zero(t, buf.Len())
}
