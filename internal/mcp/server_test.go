package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/proofledger/internal/chain"
	"github.com/hazyhaar/proofledger/internal/kv"
	"github.com/hazyhaar/proofledger/internal/ledger"
	"github.com/hazyhaar/proofledger/internal/service"
)

type toolbox map[string]server.ServerTool

func newToolbox(t *testing.T, l *ledger.Ledger, caller ledger.Identity) toolbox {
	t.Helper()
	ep := service.New(l, chain.NewManualClock(1), service.Wrap{})
	tb := toolbox{}
	for _, st := range Tools(ep, caller) {
		tb[st.Tool.Name] = st
	}
	return tb
}

func (tb toolbox) call(t *testing.T, name string, args map[string]any) (string, bool) {
	t.Helper()
	st, ok := tb[name]
	require.True(t, ok, "no tool %s", name)
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := st.Handler(context.Background(), req)
	require.NoError(t, err)
	return res.Content[0].(mcp.TextContent).Text, res.IsError
}

func newLedger(t *testing.T) *ledger.Ledger {
	l := ledger.New(kv.NewMemory(), ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	_, err := l.Init(context.Background(), ledger.DefaultParams("OWNER"))
	require.NoError(t, err)
	return l
}

func TestToolNames(t *testing.T) {
	tb := newToolbox(t, newLedger(t), "A")
	for _, name := range []string{
		"register", "submit_proof", "verify_submission", "challenge_submission",
		"resolve_challenge", "claim_reward", "get_submission", "get_submission_count",
		"is_reward_claimed", "is_user_registered", "get_config", "set_config",
	} {
		require.Contains(t, tb, name)
	}
	require.Len(t, tb, 12)
}

func TestScenarioOverTools(t *testing.T) {
	l := newLedger(t)
	alice := newToolbox(t, l, "A")
	oracle := newToolbox(t, l, "OWNER")
	carol := newToolbox(t, l, "C")

	_, isErr := alice.call(t, "register", nil)
	require.False(t, isErr)

	out, isErr := alice.call(t, "submit_proof", map[string]any{
		"proof_hash": strings.Repeat("00", 32),
		"weight":     float64(500),
		"proof_type": "photo",
		"location":   "Backyard",
	})
	require.False(t, isErr, out)
	require.JSONEq(t, `{"sequence":0}`, out)

	out, isErr = oracle.call(t, "verify_submission", map[string]any{"submitter": "A", "seq": float64(0), "vote": true})
	require.False(t, isErr, out)
	require.JSONEq(t, `{"vote":true}`, out)

	out, isErr = carol.call(t, "challenge_submission", map[string]any{"submitter": "A", "seq": float64(0), "reason": "Fake proof"})
	require.False(t, isErr, out)

	out, isErr = oracle.call(t, "resolve_challenge", map[string]any{"submitter": "A", "seq": float64(0), "vote": false})
	require.False(t, isErr, out)

	out, isErr = alice.call(t, "claim_reward", map[string]any{"seq": float64(0)})
	require.True(t, isErr)
	require.Contains(t, out, "verification-failed")

	out, isErr = alice.call(t, "get_submission", map[string]any{"submitter": "A", "seq": float64(0)})
	require.False(t, isErr)
	var sub service.SubmissionResponse
	require.NoError(t, json.Unmarshal([]byte(out), &sub))
	require.Equal(t, ledger.StatusRejected, sub.Submission.Status)

	out, _ = alice.call(t, "get_submission_count", map[string]any{"identity": "A"})
	require.JSONEq(t, `{"identity":"A","count":1}`, out)

	out, _ = alice.call(t, "is_user_registered", map[string]any{"identity": "A"})
	require.Contains(t, out, `"registered":true`)

	out, _ = alice.call(t, "is_reward_claimed", map[string]any{"submitter": "A", "seq": float64(0)})
	require.JSONEq(t, `{"claimed":false}`, out)
}

func TestSetConfigTool(t *testing.T) {
	l := newLedger(t)
	owner := newToolbox(t, l, "OWNER")

	out, isErr := owner.call(t, "set_config", map[string]any{"param": "verification_fee", "value": float64(7)})
	require.False(t, isErr, out)

	out, isErr = owner.call(t, "set_config", map[string]any{"param": "oracle", "value": "ORACLE"})
	require.False(t, isErr, out)

	out, isErr = owner.call(t, "set_config", map[string]any{"param": "reward_rate", "value": 2.5})
	require.True(t, isErr, out)

	out, _ = owner.call(t, "get_config", nil)
	var p ledger.Params
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	require.Equal(t, int64(7), p.VerificationFee)
	require.Equal(t, ledger.Identity("ORACLE"), p.Oracle)

	out, isErr = newToolbox(t, l, "A").call(t, "set_config", map[string]any{"param": "verification_fee", "value": float64(1)})
	require.True(t, isErr)
	require.Contains(t, out, "not-authorized")

	mallory := newToolbox(t, l, "MALLORY")
	for _, args := range []map[string]any{
		{"param": "oracle", "value": ""},
		{"param": "reward_rate", "value": "abc"},
		{"param": "no_such", "value": "1"},
	} {
		out, isErr = mallory.call(t, "set_config", args)
		require.True(t, isErr)
		require.Contains(t, out, "not-authorized")
	}
}

func TestDecodeErrors(t *testing.T) {
	tb := newToolbox(t, newLedger(t), "A")
	out, isErr := tb.call(t, "verify_submission", map[string]any{"submitter": "A", "seq": float64(-1), "vote": true})
	require.True(t, isErr)
	require.Contains(t, out, "seq")

	out, isErr = tb.call(t, "verify_submission", map[string]any{"submitter": "A", "seq": float64(0)})
	require.True(t, isErr)
	require.Contains(t, out, "vote")
}
