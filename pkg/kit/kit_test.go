package kit

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	ep := Chain(mw("a"), mw("b"), mw("c"))(func(ctx context.Context, req any) (any, error) {
		order = append(order, "endpoint")
		return req, nil
	})

	resp, err := ep(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, 42, resp)
	require.Equal(t, []string{"a", "b", "c", "endpoint"}, order)
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, GetUserID(ctx))
	require.Empty(t, GetTransport(ctx))

	ctx = WithUserID(ctx, "alice")
	ctx = WithTransport(ctx, "http")
	ctx = WithRequestID(ctx, "req1")
	ctx = WithTraceID(ctx, "trace1")
	ctx = WithOperation(ctx, "register")

	require.Equal(t, "alice", GetUserID(ctx))
	require.Equal(t, "http", GetTransport(ctx))
	require.Equal(t, "req1", GetRequestID(ctx))
	require.Equal(t, "trace1", GetTraceID(ctx))
	require.Equal(t, "register", GetOperation(ctx))
}

func TestMCPTool(t *testing.T) {
	tool := mcp.NewToolWithRawSchema("echo", "echo", []byte(`{"type":"object"}`))
	st := MCPTool(tool, func(ctx context.Context, req any) (any, error) {
		if req == "fail" {
			return nil, errors.New("boom")
		}
		return map[string]any{"got": req, "transport": GetTransport(ctx)}, nil
	}, func(req mcp.CallToolRequest) (*MCPDecodeResult, error) {
		v, _ := req.GetArguments()["v"].(string)
		if v == "" {
			return nil, errors.New("v is required")
		}
		return &MCPDecodeResult{Request: v}, nil
	})

	call := func(args map[string]any) *mcp.CallToolResult {
		req := mcp.CallToolRequest{}
		req.Params.Name = "echo"
		req.Params.Arguments = args
		res, err := st.Handler(context.Background(), req)
		require.NoError(t, err)
		return res
	}

	res := call(map[string]any{"v": "hi"})
	require.False(t, res.IsError)
	require.JSONEq(t, `{"got":"hi","transport":"mcp"}`, res.Content[0].(mcp.TextContent).Text)

	res = call(map[string]any{})
	require.True(t, res.IsError)
	require.Equal(t, "v is required", res.Content[0].(mcp.TextContent).Text)

	res = call(map[string]any{"v": "fail"})
	require.True(t, res.IsError)
}
