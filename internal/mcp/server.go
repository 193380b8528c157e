// Package mcp exposes the ledger operations as MCP tools. The server runs
// over stdio and every call acts as one configured identity.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/proofledger/internal/ledger"
	"github.com/hazyhaar/proofledger/internal/service"
	"github.com/hazyhaar/proofledger/pkg/kit"
)

// NewServer creates an MCPServer with every ledger tool registered.
func NewServer(ep service.Endpoints, caller ledger.Identity, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"proofledger",
		version,
		server.WithToolCapabilities(true),
	)
	srv.AddTools(Tools(ep, caller)...)
	return srv
}

// Tools builds the tool set. Calls run with caller as the authenticated
// identity.
func Tools(ep service.Endpoints, caller ledger.Identity) []server.ServerTool {
	as := func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			return next(kit.WithUserID(ctx, string(caller)), request)
		}
	}
	return []server.ServerTool{
		registerTool(as(ep.Register)),
		submitProofTool(as(ep.SubmitProof)),
		verifyTool(as(ep.Verify)),
		challengeTool(as(ep.Challenge)),
		resolveTool(as(ep.ResolveChallenge)),
		claimTool(as(ep.ClaimReward)),
		getSubmissionTool(ep.GetSubmission),
		submissionCountTool(ep.SubmissionCount),
		isRewardClaimedTool(ep.IsRewardClaimed),
		isRegisteredTool(ep.GetUser),
		getConfigTool(ep.GetConfig),
		setConfigTool(as(ep.SetParam)),
	}
}

func schemaOf(props map[string]any, required ...string) json.RawMessage {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	raw, _ := json.Marshal(s)
	return raw
}

var submissionProps = map[string]any{
	"submitter": map[string]string{"type": "string", "description": "Identity of the submitter"},
	"seq":       map[string]string{"type": "integer", "description": "Submission sequence number"},
}

func withProps(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func decodeSubmission(args map[string]any) (service.SubmissionRequest, error) {
	submitter := stringArg(args, "submitter")
	if submitter == "" {
		return service.SubmissionRequest{}, fmt.Errorf("submitter is required")
	}
	seq, ok := uintArg(args, "seq")
	if !ok {
		return service.SubmissionRequest{}, fmt.Errorf("seq must be a non-negative integer")
	}
	return service.SubmissionRequest{Submitter: submitter, Seq: seq}, nil
}

// --- register ---

func registerTool(ep kit.Endpoint) server.ServerTool {
	tool := mcp.NewToolWithRawSchema("register", "Register the calling identity as a participant", schemaOf(map[string]any{}))
	return kit.MCPTool(tool, ep, func(mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	})
}

// --- submit_proof ---

func submitProofTool(ep kit.Endpoint) server.ServerTool {
	tool := mcp.NewToolWithRawSchema("submit_proof", "Submit a composting proof; returns its sequence number", schemaOf(map[string]any{
		"proof_hash": map[string]string{"type": "string", "description": "32-byte digest, hex encoded"},
		"weight":     map[string]string{"type": "integer", "description": "Weight in (0, 10000]"},
		"proof_type": map[string]any{"type": "string", "enum": []string{"photo", "sensor", "manual"}},
		"location":   map[string]string{"type": "string", "description": "Free text, 1 to 100 characters"},
	}, "proof_hash", "weight", "proof_type", "location"))

	return kit.MCPTool(tool, ep, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		weight, ok := intArg(args, "weight")
		if !ok {
			return nil, fmt.Errorf("weight must be an integer")
		}
		return &kit.MCPDecodeResult{Request: &service.SubmitProofRequest{
			ProofHash: stringArg(args, "proof_hash"),
			Weight:    weight,
			ProofType: stringArg(args, "proof_type"),
			Location:  stringArg(args, "location"),
		}}, nil
	})
}

// --- verify_submission ---

func verifyTool(ep kit.Endpoint) server.ServerTool {
	tool := mcp.NewToolWithRawSchema("verify_submission", "Record the oracle's vote on a submission", schemaOf(withProps(submissionProps, map[string]any{
		"vote": map[string]string{"type": "boolean", "description": "true verifies, false rejects"},
	}), "submitter", "seq", "vote"))

	return kit.MCPTool(tool, ep, decodeVote)
}

// --- challenge_submission ---

func challengeTool(ep kit.Endpoint) server.ServerTool {
	tool := mcp.NewToolWithRawSchema("challenge_submission", "Open a challenge against someone else's submission", schemaOf(withProps(submissionProps, map[string]any{
		"reason": map[string]string{"type": "string", "description": "Up to 200 characters"},
	}), "submitter", "seq"))

	return kit.MCPTool(tool, ep, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		key, err := decodeSubmission(args)
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &service.ChallengeRequest{
			SubmissionRequest: key,
			Reason:            stringArg(args, "reason"),
		}}, nil
	})
}

// --- resolve_challenge ---

func resolveTool(ep kit.Endpoint) server.ServerTool {
	tool := mcp.NewToolWithRawSchema("resolve_challenge", "Close the open challenge with the oracle's final vote", schemaOf(withProps(submissionProps, map[string]any{
		"vote": map[string]string{"type": "boolean", "description": "true verifies, false rejects"},
	}), "submitter", "seq", "vote"))

	return kit.MCPTool(tool, ep, decodeVote)
}

func decodeVote(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	args := req.GetArguments()
	key, err := decodeSubmission(args)
	if err != nil {
		return nil, err
	}
	vote, ok := args["vote"].(bool)
	if !ok {
		return nil, fmt.Errorf("vote must be a boolean")
	}
	return &kit.MCPDecodeResult{Request: &service.VoteRequest{SubmissionRequest: key, Vote: vote}}, nil
}

// --- claim_reward ---

func claimTool(ep kit.Endpoint) server.ServerTool {
	tool := mcp.NewToolWithRawSchema("claim_reward", "Claim the reward of one of the caller's verified submissions", schemaOf(map[string]any{
		"seq": map[string]string{"type": "integer", "description": "Sequence number of the caller's submission"},
	}, "seq"))

	return kit.MCPTool(tool, ep, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		seq, ok := uintArg(req.GetArguments(), "seq")
		if !ok {
			return nil, fmt.Errorf("seq must be a non-negative integer")
		}
		return &kit.MCPDecodeResult{Request: &service.ClaimRequest{Seq: seq}}, nil
	})
}

// --- reads ---

func getSubmissionTool(ep kit.Endpoint) server.ServerTool {
	tool := mcp.NewToolWithRawSchema("get_submission", "Fetch a submission by key", schemaOf(submissionProps, "submitter", "seq"))
	return kit.MCPTool(tool, ep, decodeSubmissionRequest)
}

func isRewardClaimedTool(ep kit.Endpoint) server.ServerTool {
	tool := mcp.NewToolWithRawSchema("is_reward_claimed", "Whether the reward of a submission was claimed", schemaOf(submissionProps, "submitter", "seq"))
	return kit.MCPTool(tool, ep, decodeSubmissionRequest)
}

func decodeSubmissionRequest(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	key, err := decodeSubmission(req.GetArguments())
	if err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &key}, nil
}

var identityProps = map[string]any{
	"identity": map[string]string{"type": "string", "description": "Participant identity"},
}

func submissionCountTool(ep kit.Endpoint) server.ServerTool {
	tool := mcp.NewToolWithRawSchema("get_submission_count", "Number of proofs an identity has submitted", schemaOf(identityProps, "identity"))
	return kit.MCPTool(tool, ep, decodeIdentity)
}

func isRegisteredTool(ep kit.Endpoint) server.ServerTool {
	tool := mcp.NewToolWithRawSchema("is_user_registered", "Registration status of an identity", schemaOf(identityProps, "identity"))
	return kit.MCPTool(tool, ep, decodeIdentity)
}

func decodeIdentity(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	id := stringArg(req.GetArguments(), "identity")
	if id == "" {
		return nil, fmt.Errorf("identity is required")
	}
	return &kit.MCPDecodeResult{Request: &service.IdentityRequest{Identity: id}}, nil
}

// --- config ---

func getConfigTool(ep kit.Endpoint) server.ServerTool {
	tool := mcp.NewToolWithRawSchema("get_config", "Current ledger configuration", schemaOf(map[string]any{}))
	return kit.MCPTool(tool, ep, func(mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	})
}

func setConfigTool(ep kit.Endpoint) server.ServerTool {
	tool := mcp.NewToolWithRawSchema("set_config", "Change one configuration parameter (owner only)", schemaOf(map[string]any{
		"param": map[string]any{"type": "string", "enum": service.Params},
		"value": map[string]any{"type": []string{"string", "integer"}, "description": "Identity for oracle, integer otherwise"},
	}, "param", "value"))

	return kit.MCPTool(tool, ep, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		var value string
		switch v := args["value"].(type) {
		case string:
			value = v
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("value must be an integer")
			}
			value = strconv.FormatInt(int64(v), 10)
		case json.Number:
			value = v.String()
		default:
			return nil, fmt.Errorf("value is required")
		}
		return &kit.MCPDecodeResult{Request: &service.SetParamRequest{
			Param: stringArg(args, "param"),
			Value: value,
		}}, nil
	})
}

// --- helpers ---

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

func uintArg(args map[string]any, key string) (uint64, bool) {
	n, ok := intArg(args, key)
	if !ok || n < 0 {
		return 0, false
	}
	return uint64(n), true
}
