package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseControlRequest_HookCallback(t *testing.T) {
	raw := json.RawMessage(`{"subtype":"hook_callback","callback_id":"hook_0","input":{"hook_event_name":"PreToolUse","tool_name":"Bash","tool_input":{"command":"rm -rf /"}},"tool_use_id":"toolu_9"}`)

	data, err := ParseControlRequest(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	hook, ok := data.(HookCallbackRequest)
	if !ok {
		t.Fatalf("expected HookCallbackRequest, got %T", data)
	}
	if hook.CallbackID != "hook_0" {
		t.Errorf("callback_id: %q", hook.CallbackID)
	}
	if hook.ToolUseID == nil || *hook.ToolUseID != "toolu_9" {
		t.Errorf("tool_use_id: %v", hook.ToolUseID)
	}

	var input map[string]interface{}
	if err := json.Unmarshal(hook.Input, &input); err != nil {
		t.Fatalf("input not preserved: %v", err)
	}
	if input["tool_name"] != "Bash" {
		t.Errorf("input tool_name: %v", input["tool_name"])
	}
}

func TestParseControlRequest_Initialize(t *testing.T) {
	raw := json.RawMessage(`{"subtype":"initialize","hooks":{"PreToolUse":[]},"capabilities":{"streaming":true}}`)

	data, err := ParseControlRequest(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	init, ok := data.(InitializeRequest)
	if !ok {
		t.Fatalf("expected InitializeRequest, got %T", data)
	}
	if init.Capabilities["streaming"] != true {
		t.Errorf("capabilities: %v", init.Capabilities)
	}
}

func TestParseControlRequest_MCPMessage(t *testing.T) {
	raw := json.RawMessage(`{"subtype":"mcp_message","server_name":"calc","message":{"jsonrpc":"2.0","id":1,"method":"tools/list"}}`)

	data, err := ParseControlRequest(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	mcp, ok := data.(MCPMessageRequest)
	if !ok {
		t.Fatalf("expected MCPMessageRequest, got %T", data)
	}
	if mcp.ServerName != "calc" {
		t.Errorf("server_name: %q", mcp.ServerName)
	}
}

func TestParseControlRequest_CanUseTool_Suggestions(t *testing.T) {
	raw := json.RawMessage(`{"subtype":"can_use_tool","tool_name":"Write","input":{"path":"/etc/hosts"},"permission_suggestions":[{"type":"addRules","behavior":"allow"}],"blocked_path":"/etc"}`)

	data, err := ParseControlRequest(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	canUse := data.(CanUseToolRequest)
	if canUse.ToolName != "Write" {
		t.Errorf("tool_name: %q", canUse.ToolName)
	}
	if len(canUse.PermissionSuggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(canUse.PermissionSuggestions))
	}
	if canUse.BlockedPath == nil || *canUse.BlockedPath != "/etc" {
		t.Errorf("blocked_path: %v", canUse.BlockedPath)
	}
}

func TestParseControlRequest_Unknown(t *testing.T) {
	data, err := ParseControlRequest(json.RawMessage(`{"subtype":"future_subtype"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil for unknown subtype, got %T", data)
	}
}

func TestControlResponsePayload_IsError(t *testing.T) {
	var resp ControlResponse
	line := `{"type":"control_response","response":{"subtype":"error","request_id":"r1","error":"boom"}}`
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !resp.Response.IsError() {
		t.Error("expected error payload")
	}
	if resp.Response.Error != "boom" {
		t.Errorf("error: %q", resp.Response.Error)
	}
}
