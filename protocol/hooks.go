package protocol

import "encoding/json"

// HookMatcherConfig is one entry in the hook configuration advertised to
// the agent via the initialize control request: a tool-name pattern plus
// the callback IDs to fire when it matches.
type HookMatcherConfig struct {
	Matcher         string   `json:"matcher,omitempty"`
	HookCallbackIDs []string `json:"hookCallbackIds"`
}

// HookInputEnvelope is the shared header of every hook_callback input.
// The full payload is retained raw; known variants parse further fields.
type HookInputEnvelope struct {
	HookEventName string `json:"hook_event_name"`
	SessionID     string `json:"session_id,omitempty"`
	CWD           string `json:"cwd,omitempty"`
}

// PreToolUseHookInput is the input of a PreToolUse hook callback.
type PreToolUseHookInput struct {
	HookInputEnvelope
	ToolName  string                 `json:"tool_name"`
	ToolInput map[string]interface{} `json:"tool_input"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
}

// PostToolUseHookInput is the input of a PostToolUse hook callback.
type PostToolUseHookInput struct {
	HookInputEnvelope
	ToolName     string                 `json:"tool_name"`
	ToolInput    map[string]interface{} `json:"tool_input,omitempty"`
	ToolResponse interface{}            `json:"tool_response"`
	ToolUseID    string                 `json:"tool_use_id,omitempty"`
}

// HookOutputWire is the response payload sent back for a hook callback.
// Continue defaults to true when nil.
type HookOutputWire struct {
	Continue           *bool                   `json:"continue,omitempty"`
	SuppressOutput     bool                    `json:"suppressOutput,omitempty"`
	Decision           string                  `json:"decision,omitempty"`
	Reason             string                  `json:"reason,omitempty"`
	HookSpecificOutput *HookSpecificOutputWire `json:"hookSpecificOutput,omitempty"`
}

// HookSpecificOutputWire is the nested, event-specific part of a hook
// response. For permission hooks it carries the decision triple; the
// updated input, when present, replaces the tool invocation's input.
type HookSpecificOutputWire struct {
	HookEventName            string                 `json:"hookEventName,omitempty"`
	PermissionDecision       string                 `json:"permission_decision,omitempty"`
	PermissionDecisionReason string                 `json:"permission_decision_reason,omitempty"`
	UpdatedInput             map[string]interface{} `json:"updated_input,omitempty"`
	AdditionalContext        string                 `json:"additionalContext,omitempty"`
}

// Marshal serializes the hook output for embedding in a control response.
func (o HookOutputWire) Marshal() (json.RawMessage, error) {
	return json.Marshal(o)
}
