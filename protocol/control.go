package protocol

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// ControlRequest is a control_request envelope received from the agent.
// The inner request is classified by its subtype.
type ControlRequest struct {
	Raw       json.RawMessage `json:"-"`
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id"`
	Request   json.RawMessage `json:"request"`
}

// MsgType returns the message type.
func (m ControlRequest) MsgType() MessageType { return MessageTypeControlRequest }

// ParsedRequest parses the inner request.
func (m ControlRequest) ParsedRequest() (ControlRequestData, error) {
	return ParseControlRequest(m.Request)
}

// ControlRequestSubtype is the subtype of a control request.
type ControlRequestSubtype string

const (
	ControlRequestSubtypeCanUseTool        ControlRequestSubtype = "can_use_tool"
	ControlRequestSubtypeHookCallback      ControlRequestSubtype = "hook_callback"
	ControlRequestSubtypeInitialize        ControlRequestSubtype = "initialize"
	ControlRequestSubtypeMCPMessage        ControlRequestSubtype = "mcp_message"
	ControlRequestSubtypeInterrupt         ControlRequestSubtype = "interrupt"
	ControlRequestSubtypeSetPermissionMode ControlRequestSubtype = "set_permission_mode"
	ControlRequestSubtypeSetModel          ControlRequestSubtype = "set_model"
)

// ControlRequestData is the interface for control request discrimination.
type ControlRequestData interface {
	Subtype() ControlRequestSubtype
}

// CanUseToolRequest asks the caller to approve a tool invocation.
type CanUseToolRequest struct {
	Input                 map[string]interface{} `json:"input"`
	BlockedPath           *string                `json:"blocked_path,omitempty"`
	SubtypeField          ControlRequestSubtype  `json:"subtype"`
	ToolName              string                 `json:"tool_name"`
	PermissionSuggestions []PermissionUpdate     `json:"permission_suggestions,omitempty"`
}

// Subtype returns the control request subtype.
func (r CanUseToolRequest) Subtype() ControlRequestSubtype { return r.SubtypeField }

// HookCallbackRequest asks the caller to run a previously advertised hook.
type HookCallbackRequest struct {
	SubtypeField ControlRequestSubtype `json:"subtype"`
	CallbackID   string                `json:"callback_id"`
	Input        json.RawMessage       `json:"input"`
	ToolUseID    *string               `json:"tool_use_id,omitempty"`
}

// Subtype returns the control request subtype.
func (r HookCallbackRequest) Subtype() ControlRequestSubtype { return r.SubtypeField }

// InitializeRequest is sent by the agent during startup; its payload is
// recorded as server info and acknowledged.
type InitializeRequest struct {
	SubtypeField ControlRequestSubtype  `json:"subtype"`
	Hooks        map[string]interface{} `json:"hooks,omitempty"`
	Capabilities map[string]interface{} `json:"capabilities,omitempty"`
}

// Subtype returns the control request subtype.
func (r InitializeRequest) Subtype() ControlRequestSubtype { return r.SubtypeField }

// MCPMessageRequest wraps a JSON-RPC message addressed to an in-process
// (SDK) MCP server.
type MCPMessageRequest struct {
	SubtypeField ControlRequestSubtype `json:"subtype"`
	ServerName   string                `json:"server_name"`
	Message      json.RawMessage       `json:"message"`
}

// Subtype returns the control request subtype.
func (r MCPMessageRequest) Subtype() ControlRequestSubtype { return r.SubtypeField }

// InterruptRequest signals an interrupt.
type InterruptRequest struct {
	SubtypeField ControlRequestSubtype `json:"subtype"`
}

// Subtype returns the control request subtype.
func (r InterruptRequest) Subtype() ControlRequestSubtype { return r.SubtypeField }

// SetPermissionModeRequest changes the permission mode.
type SetPermissionModeRequest struct {
	SubtypeField ControlRequestSubtype `json:"subtype"`
	Mode         string                `json:"mode"`
}

// Subtype returns the control request subtype.
func (r SetPermissionModeRequest) Subtype() ControlRequestSubtype { return r.SubtypeField }

// ParseControlRequest parses the inner request of a control_request
// envelope. Unknown subtypes return (nil, nil).
func ParseControlRequest(data json.RawMessage) (ControlRequestData, error) {
	var base struct {
		Subtype ControlRequestSubtype `json:"subtype"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, err
	}

	switch base.Subtype {
	case ControlRequestSubtypeCanUseTool:
		var r CanUseToolRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case ControlRequestSubtypeHookCallback:
		var r HookCallbackRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case ControlRequestSubtypeInitialize:
		var r InitializeRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case ControlRequestSubtypeMCPMessage:
		var r MCPMessageRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case ControlRequestSubtypeInterrupt:
		var r InterruptRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case ControlRequestSubtypeSetPermissionMode:
		var r SetPermissionModeRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	default:
		slog.Warn("skipping unknown control request subtype", "subtype", base.Subtype)
		return nil, nil
	}
}

// ControlResponse is a control_response envelope, either direction.
type ControlResponse struct {
	Raw      json.RawMessage        `json:"-"`
	Type     MessageType            `json:"type"`
	Response ControlResponsePayload `json:"response"`
}

// MsgType returns the message type.
func (m ControlResponse) MsgType() MessageType { return MessageTypeControlResponse }

// Marshal serializes the control response to a JSON line ready to write to
// the agent.
func (m ControlResponse) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal ControlResponse: %w", err)
	}
	return b, nil
}

// ControlResponsePayload is the inner response payload. Subtype is
// "success" or "error"; exactly one of Response or Error is meaningful.
type ControlResponsePayload struct {
	Subtype   string          `json:"subtype"`
	RequestID string          `json:"request_id"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// IsError reports whether the payload carries an error.
func (p ControlResponsePayload) IsError() bool { return p.Subtype == "error" }

// PermissionBehavior is the behavior field of a permission response.
type PermissionBehavior string

const (
	PermissionBehaviorAllow PermissionBehavior = "allow"
	PermissionBehaviorDeny  PermissionBehavior = "deny"
)

// PermissionResultAllow grants tool execution.
//
// Wire format: updatedInput must be an object, never null; pass the
// original input when no rewrite is needed.
type PermissionResultAllow struct {
	Behavior           PermissionBehavior     `json:"behavior"`
	UpdatedInput       map[string]interface{} `json:"updatedInput"`
	UpdatedPermissions []PermissionUpdate     `json:"updatedPermissions,omitempty"`
}

// PermissionResultDeny blocks tool execution.
type PermissionResultDeny struct {
	Behavior  PermissionBehavior `json:"behavior"`
	Message   string             `json:"message,omitempty"`
	Interrupt bool               `json:"interrupt,omitempty"`
}

// PermissionUpdate describes a permission rule update.
type PermissionUpdate struct {
	Type        string           `json:"type"`
	Behavior    string           `json:"behavior,omitempty"`
	Mode        string           `json:"mode,omitempty"`
	Destination string           `json:"destination,omitempty"`
	Rules       []PermissionRule `json:"rules,omitempty"`
	Directories []string         `json:"directories,omitempty"`
}

// PermissionRule describes a single permission rule.
type PermissionRule struct {
	ToolName    string `json:"tool_name"`
	RuleContent string `json:"rule_content,omitempty"`
}

// ControlRequestToSend is a caller-initiated control request.
type ControlRequestToSend struct {
	Request   interface{} `json:"request"`
	Type      string      `json:"type"`
	RequestID string      `json:"request_id"`
}

// Marshal serializes the control request to a JSON line ready to write to
// the agent.
func (m ControlRequestToSend) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal ControlRequestToSend: %w", err)
	}
	return b, nil
}

// InitializeRequestToSend is the request body advertising hook
// configuration at session start.
type InitializeRequestToSend struct {
	Subtype string                         `json:"subtype"`
	Hooks   map[string][]HookMatcherConfig `json:"hooks,omitempty"`
}

// InterruptRequestToSend is the request body for interrupting.
type InterruptRequestToSend struct {
	Subtype string `json:"subtype"`
}

// SetPermissionModeRequestToSend is the request body for setting the
// permission mode.
type SetPermissionModeRequestToSend struct {
	Subtype string `json:"subtype"`
	Mode    string `json:"mode"`
}

// SetModelRequestToSend is the request body for switching the model.
type SetModelRequestToSend struct {
	Subtype string `json:"subtype"`
	Model   string `json:"model"`
}
