package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeysRoundTripEscapedIdentities(t *testing.T) {
	k := NewKeys("tenant")
	for _, id := range []Identity{"A", "0xAbC", "with/slash", "space d", "é"} {
		key := SubmissionKey{Submitter: id, Seq: 42}
		got, err := k.submissionKeyAt(k.Submissions(), k.Submission(key))
		require.NoError(t, err)
		require.Equal(t, key, got)

		gotID, err := k.identityAt(k.Counts(), k.Count(id))
		require.NoError(t, err)
		require.Equal(t, id, gotID)
	}
}

func TestKeysSortNumerically(t *testing.T) {
	k := NewKeys("")
	a := k.Submission(SubmissionKey{Submitter: "A", Seq: 9})
	b := k.Submission(SubmissionKey{Submitter: "A", Seq: 10})
	require.Less(t, a, b)
	require.Equal(t, "tenant/config", NewKeys("tenant/").Config())
}

func TestExpiredSaturates(t *testing.T) {
	require.False(t, expired(^uint64(0), ^uint64(0)-1, 144))
	require.True(t, expired(300, 100, 144))
	require.False(t, expired(244, 100, 144))
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusVerified, StatusRejected, StatusChallenged} {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var got Status
		require.NoError(t, got.UnmarshalText(b))
		require.Equal(t, s, got)
	}
	_, err := ParseStatus("unknown")
	require.Error(t, err)
}
