package claude

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loopwork/agentkit/protocol"
)

// SDKToolHandler answers MCP traffic for one in-process tool server. The
// agent routes JSON-RPC messages to it through mcp_message control
// requests on the existing stdio channel.
type SDKToolHandler interface {
	// Tools returns the tool definitions exposed by this handler.
	Tools() []protocol.MCPToolDefinition
	// HandleToolCall handles a tool invocation and returns the result.
	HandleToolCall(ctx context.Context, name string, args json.RawMessage) (*protocol.MCPToolCallResult, error)
}

// mcpProtocolVersion is the MCP revision answered on initialize.
const mcpProtocolVersion = "2024-11-05"

// handleMCPMessage dispatches an mcp_message control request to the named
// in-process server. It runs on a handler worker, never on the reader.
//
// Expected methods over a session's lifetime:
//   - "initialize": once per server during agent startup
//   - "notifications/initialized": acknowledgement; empty response
//   - "tools/list": after initialization
//   - "tools/call": whenever the agent invokes a tool; answered
//     asynchronously since tool handlers may block for a long time
//
// A nil return means the response will be written later by the async
// path.
func (c *Client) handleMCPMessage(requestID string, req protocol.MCPMessageRequest) *protocol.ControlResponseToSend {
	handler := c.sdkServers[req.ServerName]
	if handler == nil {
		return c.mcpError(requestID, nil, protocol.JSONRPCInternalError,
			fmt.Sprintf("no in-process server %q", req.ServerName))
	}

	var rpcReq protocol.JSONRPCRequest
	if err := json.Unmarshal(req.Message, &rpcReq); err != nil {
		return c.mcpError(requestID, nil, protocol.JSONRPCParseError, "failed to parse JSON-RPC request")
	}

	switch rpcReq.Method {
	case "initialize":
		return c.mcpResult(requestID, rpcReq.ID, &protocol.MCPInitializeResult{
			ProtocolVersion: mcpProtocolVersion,
			Capabilities: protocol.MCPServerCapabilities{
				Tools: &protocol.MCPToolsCapability{},
			},
			ServerInfo: protocol.MCPServerInfo{Name: req.ServerName, Version: "1.0.0"},
		})

	case "notifications/initialized":
		return c.mcpResult(requestID, rpcReq.ID, map[string]interface{}{})

	case "tools/list":
		return c.mcpResult(requestID, rpcReq.ID, &protocol.MCPToolsListResult{Tools: handler.Tools()})

	case "tools/call":
		// Answered off this worker: a tool can run for minutes and must
		// not starve the pool.
		go c.runToolCall(requestID, rpcReq, handler)
		return nil

	default:
		return c.mcpError(requestID, rpcReq.ID, protocol.JSONRPCMethodNotFound,
			fmt.Sprintf("method not found: %s", rpcReq.Method))
	}
}

// runToolCall executes one tools/call invocation and writes its response.
func (c *Client) runToolCall(requestID string, rpcReq protocol.JSONRPCRequest, handler SDKToolHandler) {
	defer func() {
		if r := recover(); r != nil {
			resp := c.mcpError(requestID, rpcReq.ID, protocol.JSONRPCInternalError,
				fmt.Sprintf("tool handler panic: %v", r))
			c.writeControlResponse(*resp)
		}
	}()

	var params protocol.MCPToolsCallParams
	if err := json.Unmarshal(rpcReq.Params, &params); err != nil {
		c.writeControlResponse(*c.mcpError(requestID, rpcReq.ID, protocol.JSONRPCInvalidParams, "invalid tools/call params"))
		return
	}

	result, err := handler.HandleToolCall(c.handlerCtx, params.Name, params.Arguments)
	if err != nil {
		// Surface the failure as a tool result, not a JSON-RPC error, so
		// the agent can read it.
		result = &protocol.MCPToolCallResult{
			Content: []protocol.MCPContentItem{
				{Type: "text", Text: fmt.Sprintf("Tool error: %v", err)},
			},
			IsError: true,
		}
	}

	c.writeControlResponse(*c.mcpResult(requestID, rpcReq.ID, result))
}

func (c *Client) mcpResult(requestID string, rpcID, result interface{}) *protocol.ControlResponseToSend {
	resp := protocol.NewMCPResponse(requestID, protocol.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      rpcID,
		Result:  result,
	})
	return &resp
}

func (c *Client) mcpError(requestID string, rpcID interface{}, code int, message string) *protocol.ControlResponseToSend {
	resp := protocol.NewMCPResponse(requestID, protocol.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      rpcID,
		Error:   &protocol.JSONRPCError{Code: code, Message: message},
	})
	return &resp
}
