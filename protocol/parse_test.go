package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

// Wire fixtures captured from an agent session trace.
const (
	systemInit = `{"type":"system","subtype":"init","cwd":"/home/user/project","session_id":"sess-abc123","tools":["Bash","Read","Write"],"model":"claude-sonnet-4-5-20250929","permissionMode":"default","apiKeySource":"env","claude_code_version":"2.0.1","uuid":"u-1"}`

	assistantText = `{"type":"assistant","message":{"id":"msg_01","type":"message","role":"assistant","model":"claude-sonnet-4-5-20250929","content":[{"type":"text","text":"4"}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}},"parent_tool_use_id":null,"session_id":"sess-abc123","uuid":"u-2"}`

	userToolResult = `{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_01","content":"file contents here","is_error":false}]},"parent_tool_use_id":null,"session_id":"sess-abc123","uuid":"u-3"}`

	resultSuccess = `{"type":"result","subtype":"success","is_error":false,"duration_ms":2413,"duration_api_ms":1890,"num_turns":1,"result":"4","session_id":"sess-abc123","total_cost_usd":0.0031,"usage":{"input_tokens":10,"cache_creation_input_tokens":0,"cache_read_input_tokens":1204,"output_tokens":1},"structured_output":{"answer":4},"uuid":"u-4"}`

	controlCanUseTool = `{"type":"control_request","request_id":"cr-1","request":{"subtype":"can_use_tool","tool_name":"Bash","input":{"command":"ls"}}}`

	controlResponseOK = `{"type":"control_response","response":{"subtype":"success","request_id":"req-7","response":{"status":"ok"}}}`

	streamContentBlockStart = `{"type":"stream_event","event":{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}},"parent_tool_use_id":null,"session_id":"sess-abc123","uuid":"u-5"}`

	streamToolUseStart = `{"type":"stream_event","event":{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_02","name":"WebSearch","input":{}}},"parent_tool_use_id":null,"session_id":"sess-abc123","uuid":"u-6"}`

	streamTextDelta = `{"type":"stream_event","event":{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"I'll search for the latest news about"}},"parent_tool_use_id":null,"session_id":"sess-abc123","uuid":"u-7"}`

	streamInputJSONDelta = `{"type":"stream_event","event":{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"query\": \"US "}},"parent_tool_use_id":null,"session_id":"sess-abc123","uuid":"u-8"}`
)

func TestParseMessage_System(t *testing.T) {
	msg, err := ParseMessage([]byte(systemInit))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sys, ok := msg.(SystemMessage)
	if !ok {
		t.Fatalf("expected SystemMessage, got %T", msg)
	}
	if sys.Subtype != "init" {
		t.Errorf("expected subtype 'init', got %q", sys.Subtype)
	}
	if sys.SessionID != "sess-abc123" {
		t.Errorf("expected session id 'sess-abc123', got %q", sys.SessionID)
	}
	if sys.Model != "claude-sonnet-4-5-20250929" {
		t.Errorf("unexpected model: %q", sys.Model)
	}
	if len(sys.Tools) != 3 || sys.Tools[0] != "Bash" {
		t.Errorf("unexpected tools: %v", sys.Tools)
	}
	if sys.AgentVersion != "2.0.1" {
		t.Errorf("unexpected version: %q", sys.AgentVersion)
	}
}

func TestParseMessage_Assistant(t *testing.T) {
	msg, err := ParseMessage([]byte(assistantText))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	am, ok := msg.(AssistantMessage)
	if !ok {
		t.Fatalf("expected AssistantMessage, got %T", msg)
	}
	if am.Message.Role != "assistant" {
		t.Errorf("expected role 'assistant', got %q", am.Message.Role)
	}
	if am.TextContent() != "4" {
		t.Errorf("expected text '4', got %q", am.TextContent())
	}
	if am.Message.StopReason == nil || *am.Message.StopReason != "end_turn" {
		t.Errorf("unexpected stop_reason: %v", am.Message.StopReason)
	}
	if am.Message.Usage.InputTokens != 10 {
		t.Errorf("expected 10 input tokens, got %d", am.Message.Usage.InputTokens)
	}
}

func TestParseMessage_User(t *testing.T) {
	msg, err := ParseMessage([]byte(userToolResult))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	um, ok := msg.(UserMessage)
	if !ok {
		t.Fatalf("expected UserMessage, got %T", msg)
	}
	blocks, ok := um.Message.Content.AsBlocks()
	if !ok {
		t.Fatal("expected content blocks")
	}
	tr, ok := blocks[0].(ToolResultBlock)
	if !ok {
		t.Fatalf("expected ToolResultBlock, got %T", blocks[0])
	}
	if tr.ToolUseID != "toolu_01" {
		t.Errorf("unexpected tool_use_id: %q", tr.ToolUseID)
	}
	if tr.IsError == nil || *tr.IsError {
		t.Errorf("expected is_error=false, got %v", tr.IsError)
	}
}

// TestParseMessage_Result_FieldParity pins every result field: silent
// loss of a field is a correctness bug.
func TestParseMessage_Result_FieldParity(t *testing.T) {
	msg, err := ParseMessage([]byte(resultSuccess))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	rm, ok := msg.(ResultMessage)
	if !ok {
		t.Fatalf("expected ResultMessage, got %T", msg)
	}

	if rm.Subtype != "success" {
		t.Errorf("subtype: %q", rm.Subtype)
	}
	if rm.IsError {
		t.Error("is_error should be false")
	}
	if rm.DurationMs != 2413 {
		t.Errorf("duration_ms: %d", rm.DurationMs)
	}
	if rm.DurationAPIMs != 1890 {
		t.Errorf("duration_api_ms: %d", rm.DurationAPIMs)
	}
	if rm.NumTurns != 1 {
		t.Errorf("num_turns: %d", rm.NumTurns)
	}
	if rm.SessionID != "sess-abc123" {
		t.Errorf("session_id: %q", rm.SessionID)
	}
	if rm.TotalCostUSD != 0.0031 {
		t.Errorf("total_cost_usd: %v", rm.TotalCostUSD)
	}
	if rm.Result != "4" {
		t.Errorf("result: %q", rm.Result)
	}
	if rm.Usage.CacheReadInputTokens != 1204 {
		t.Errorf("cache_read_input_tokens: %d", rm.Usage.CacheReadInputTokens)
	}

	var structured map[string]interface{}
	if err := json.Unmarshal(rm.StructuredOutput, &structured); err != nil {
		t.Fatalf("structured_output not preserved: %v", err)
	}
	if structured["answer"] != float64(4) {
		t.Errorf("structured_output: %v", structured)
	}
}

func TestParseMessage_ControlRequest(t *testing.T) {
	msg, err := ParseMessage([]byte(controlCanUseTool))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	cr, ok := msg.(ControlRequest)
	if !ok {
		t.Fatalf("expected ControlRequest, got %T", msg)
	}
	if cr.RequestID != "cr-1" {
		t.Errorf("request_id: %q", cr.RequestID)
	}

	data, err := cr.ParsedRequest()
	if err != nil {
		t.Fatalf("ParsedRequest failed: %v", err)
	}
	canUse, ok := data.(CanUseToolRequest)
	if !ok {
		t.Fatalf("expected CanUseToolRequest, got %T", data)
	}
	if canUse.ToolName != "Bash" {
		t.Errorf("tool_name: %q", canUse.ToolName)
	}
}

func TestParseMessage_ControlResponse(t *testing.T) {
	msg, err := ParseMessage([]byte(controlResponseOK))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	cr, ok := msg.(ControlResponse)
	if !ok {
		t.Fatalf("expected ControlResponse, got %T", msg)
	}
	if cr.Response.RequestID != "req-7" {
		t.Errorf("request_id: %q", cr.Response.RequestID)
	}
	if cr.Response.IsError() {
		t.Error("expected success payload")
	}
}

func TestParseMessage_StreamEvent(t *testing.T) {
	msg, err := ParseMessage([]byte(streamTextDelta))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	se, ok := msg.(StreamEvent)
	if !ok {
		t.Fatalf("expected StreamEvent, got %T", msg)
	}
	if se.SessionID != "sess-abc123" {
		t.Errorf("session_id: %q", se.SessionID)
	}
}

func TestParseMessage_UnknownType(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"future_message_kind","data":42}`))
	if err != nil {
		t.Fatalf("unknown types must not error: %v", err)
	}
	if msg != nil {
		t.Errorf("expected nil for unknown type, got %T", msg)
	}
}

func TestParseMessage_Malformed(t *testing.T) {
	if _, err := ParseMessage([]byte(`this is not json`)); err == nil {
		t.Error("expected error for malformed input")
	}
}

// Raw retention is the forward-compatibility guarantee: the full line is
// available even for fields this version does not model.
func TestParseMessage_RetainsRaw(t *testing.T) {
	line := `{"type":"result","subtype":"success","is_error":false,"num_turns":1,"session_id":"s","duration_ms":1,"duration_api_ms":1,"total_cost_usd":0,"usage":{"input_tokens":0,"cache_creation_input_tokens":0,"cache_read_input_tokens":0,"output_tokens":0},"some_future_field":{"nested":true}}`
	msg, err := ParseMessage([]byte(line))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	rm := msg.(ResultMessage)
	if !strings.Contains(string(rm.Raw), "some_future_field") {
		t.Error("raw JSON should retain unknown fields")
	}
}
