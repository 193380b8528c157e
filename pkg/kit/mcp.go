package kit

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDecodeResult is what a tool decoder hands to the endpoint.
type MCPDecodeResult struct {
	Request any
}

type MCPDecoder func(req mcp.CallToolRequest) (*MCPDecodeResult, error)

// MCPTool binds an endpoint to an MCP tool. Decode errors and endpoint
// errors become tool errors; responses are returned as JSON text.
func MCPTool(tool mcp.Tool, endpoint Endpoint, decode MCPDecoder) server.ServerTool {
	return server.ServerTool{
		Tool: tool,
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ctx = WithTransport(ctx, "mcp")
			dec, err := decode(req)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			resp, err := endpoint(ctx, dec.Request)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			data, err := json.Marshal(resp)
			if err != nil {
				return mcp.NewToolResultError("encoding result: " + err.Error()), nil
			}
			return mcp.NewToolResultText(string(data)), nil
		},
	}
}
