// Package protocol defines the line-delimited JSON wire schema spoken by
// the agent CLI: the data-plane conversation messages (system, assistant,
// user, result, stream_event) and the control-plane request/response
// envelopes interleaved with them.
//
// Every parsed inbound message retains its raw JSON so fields this version
// does not model are never lost.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType discriminates between message kinds.
type MessageType string

const (
	MessageTypeSystem          MessageType = "system"
	MessageTypeAssistant       MessageType = "assistant"
	MessageTypeUser            MessageType = "user"
	MessageTypeResult          MessageType = "result"
	MessageTypeStreamEvent     MessageType = "stream_event"
	MessageTypeControlRequest  MessageType = "control_request"
	MessageTypeControlResponse MessageType = "control_response"
)

// Message is the interface for all parsed inbound messages.
type Message interface {
	MsgType() MessageType
}

// DataMessage marks the data-plane subset: the messages that form the
// conversation and flow to turn subscribers. Control envelopes are not
// data messages.
type DataMessage interface {
	Message
	dataPlane()
}

// MCPServerStatus reports an MCP server connection in a system message.
type MCPServerStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// SystemMessage carries initialization and status updates. The first
// system message of a session (subtype "init") assigns the session ID.
type SystemMessage struct {
	Raw            json.RawMessage   `json:"-"`
	Type           MessageType       `json:"type"`
	Subtype        string            `json:"subtype"`
	UUID           string            `json:"uuid,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
	CWD            string            `json:"cwd,omitempty"`
	Model          string            `json:"model,omitempty"`
	PermissionMode string            `json:"permissionMode,omitempty"`
	AgentVersion   string            `json:"claude_code_version,omitempty"`
	APIKeySource   string            `json:"apiKeySource,omitempty"`
	OutputStyle    string            `json:"output_style,omitempty"`
	Tools          []string          `json:"tools,omitempty"`
	Skills         []string          `json:"skills,omitempty"`
	Agents         []string          `json:"agents,omitempty"`
	SlashCommands  []string          `json:"slash_commands,omitempty"`
	MCPServers     []MCPServerStatus `json:"mcp_servers,omitempty"`
}

// MsgType returns the message type.
func (m SystemMessage) MsgType() MessageType { return MessageTypeSystem }

func (m SystemMessage) dataPlane() {}

// Usage tracks token usage on an API message.
type Usage struct {
	ServiceTier              string        `json:"service_tier,omitempty"`
	CacheCreation            CacheCreation `json:"cache_creation,omitempty"`
	InputTokens              int           `json:"input_tokens"`
	CacheCreationInputTokens int           `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int           `json:"cache_read_input_tokens"`
	OutputTokens             int           `json:"output_tokens"`
}

// CacheCreation breaks down cache-write token counts by TTL.
type CacheCreation struct {
	Ephemeral5mInputTokens int `json:"ephemeral_5m_input_tokens,omitempty"`
	Ephemeral1hInputTokens int `json:"ephemeral_1h_input_tokens,omitempty"`
}

// FlexibleContent is message content that arrives either as a plain string
// or as an array of content blocks.
type FlexibleContent struct {
	raw json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (fc *FlexibleContent) UnmarshalJSON(data []byte) error {
	fc.raw = data
	return nil
}

// MarshalJSON implements json.Marshaler.
func (fc FlexibleContent) MarshalJSON() ([]byte, error) {
	if fc.raw == nil {
		return []byte("null"), nil
	}
	return fc.raw, nil
}

// IsString reports whether the content is a plain string.
func (fc FlexibleContent) IsString() bool {
	if len(fc.raw) == 0 {
		return false
	}
	return fc.raw[0] == '"'
}

// AsString returns the content as a string when it is one.
func (fc FlexibleContent) AsString() (string, bool) {
	if !fc.IsString() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(fc.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// AsBlocks returns the content as content blocks when it is an array.
func (fc FlexibleContent) AsBlocks() (ContentBlocks, bool) {
	if fc.IsString() || len(fc.raw) == 0 {
		return nil, false
	}
	var blocks ContentBlocks
	if err := json.Unmarshal(fc.raw, &blocks); err != nil {
		return nil, false
	}
	return blocks, true
}

// MessageContent is the inner API message of assistant/user messages.
type MessageContent struct {
	Model        string          `json:"model,omitempty"`
	ID           string          `json:"id,omitempty"`
	Type         string          `json:"type,omitempty"`
	Role         string          `json:"role"`
	Content      FlexibleContent `json:"content"`
	StopReason   *string         `json:"stop_reason,omitempty"`
	StopSequence *string         `json:"stop_sequence,omitempty"`
	Usage        Usage           `json:"usage,omitempty"`
}

// AssistantMessage is a complete message from the agent.
type AssistantMessage struct {
	Raw             json.RawMessage `json:"-"`
	ParentToolUseID *string         `json:"parent_tool_use_id"`
	Type            MessageType     `json:"type"`
	SessionID       string          `json:"session_id"`
	UUID            string          `json:"uuid,omitempty"`
	Message         MessageContent  `json:"message"`
}

// MsgType returns the message type.
func (m AssistantMessage) MsgType() MessageType { return MessageTypeAssistant }

func (m AssistantMessage) dataPlane() {}

// TextContent concatenates the text of all text blocks in the message.
func (m AssistantMessage) TextContent() string {
	if s, ok := m.Message.Content.AsString(); ok {
		return s
	}
	blocks, ok := m.Message.Content.AsBlocks()
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, block := range blocks {
		if tb, ok := block.(TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

// UserMessage carries tool results echoed back by the agent.
type UserMessage struct {
	Raw             json.RawMessage `json:"-"`
	ParentToolUseID *string         `json:"parent_tool_use_id"`
	Type            MessageType     `json:"type"`
	SessionID       string          `json:"session_id"`
	UUID            string          `json:"uuid,omitempty"`
	Message         MessageContent  `json:"message"`
}

// MsgType returns the message type.
func (m UserMessage) MsgType() MessageType { return MessageTypeUser }

func (m UserMessage) dataPlane() {}

// ServerToolUseStats tracks server-side tool usage across a turn.
type ServerToolUseStats struct {
	WebSearchRequests int `json:"web_search_requests,omitempty"`
	WebFetchRequests  int `json:"web_fetch_requests,omitempty"`
}

// UsageDetails is the extended usage record on a ResultMessage.
type UsageDetails struct {
	ServiceTier              string             `json:"service_tier,omitempty"`
	ServerToolUse            ServerToolUseStats `json:"server_tool_use,omitempty"`
	CacheCreation            CacheCreation      `json:"cache_creation,omitempty"`
	InputTokens              int                `json:"input_tokens"`
	CacheCreationInputTokens int                `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int                `json:"cache_read_input_tokens"`
	OutputTokens             int                `json:"output_tokens"`
}

// ModelUsage tracks per-model usage on a ResultMessage.
type ModelUsage struct {
	InputTokens              int     `json:"inputTokens"`
	OutputTokens             int     `json:"outputTokens"`
	CacheReadInputTokens     int     `json:"cacheReadInputTokens"`
	CacheCreationInputTokens int     `json:"cacheCreationInputTokens"`
	WebSearchRequests        int     `json:"webSearchRequests,omitempty"`
	CostUSD                  float64 `json:"costUSD"`
	ContextWindow            int     `json:"contextWindow,omitempty"`
	MaxOutputTokens          int     `json:"maxOutputTokens,omitempty"`
}

// ResultMessage is the end-of-turn marker. StructuredOutput is free-form
// JSON produced under a json_schema contract; it is kept raw.
type ResultMessage struct {
	Raw               json.RawMessage       `json:"-"`
	ModelUsage        map[string]ModelUsage `json:"modelUsage,omitempty"`
	SessionID         string                `json:"session_id"`
	Subtype           string                `json:"subtype"`
	UUID              string                `json:"uuid,omitempty"`
	Type              MessageType           `json:"type"`
	Result            string                `json:"result,omitempty"`
	StructuredOutput  json.RawMessage       `json:"structured_output,omitempty"`
	PermissionDenials []json.RawMessage     `json:"permission_denials,omitempty"`
	Usage             UsageDetails          `json:"usage"`
	TotalCostUSD      float64               `json:"total_cost_usd"`
	NumTurns          int                   `json:"num_turns"`
	DurationAPIMs     int64                 `json:"duration_api_ms"`
	DurationMs        int64                 `json:"duration_ms"`
	IsError           bool                  `json:"is_error"`
}

// MsgType returns the message type.
func (m ResultMessage) MsgType() MessageType { return MessageTypeResult }

func (m ResultMessage) dataPlane() {}

// UserMessageToSend is an outbound user turn.
type UserMessageToSend struct {
	Message         UserMessageToSendInner `json:"message"`
	ParentToolUseID *string                `json:"parent_tool_use_id"`
	SessionID       string                 `json:"session_id"`
	Type            string                 `json:"type"`
}

// UserMessageToSendInner is the role/content pair of an outbound message.
type UserMessageToSendInner struct {
	Content interface{} `json:"content"`
	Role    string      `json:"role"`
}

// Marshal serializes the message to a JSON line ready to write to the agent.
func (m UserMessageToSend) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal UserMessageToSend: %w", err)
	}
	return b, nil
}
