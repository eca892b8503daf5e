package protocol

import (
	"encoding/json"
	"fmt"
)

// ControlResponseToSend is a control_response we send back to the agent in
// answer to a process-initiated control request.
type ControlResponseToSend struct {
	Type     string                       `json:"type"`
	Response ControlResponsePayloadToSend `json:"response"`
}

// ControlResponsePayloadToSend is the outbound response payload.
type ControlResponsePayloadToSend struct {
	Subtype   string      `json:"subtype"`
	RequestID string      `json:"request_id"`
	Response  interface{} `json:"response,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Marshal serializes the response to a JSON line ready to write to the agent.
func (m ControlResponseToSend) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal ControlResponseToSend: %w", err)
	}
	return b, nil
}

// NewUserTextMessage constructs an outbound user turn with plain text
// content, stamped with the current session ID.
func NewUserTextMessage(text, sessionID string) UserMessageToSend {
	return UserMessageToSend{
		Type: "user",
		Message: UserMessageToSendInner{
			Role:    "user",
			Content: text,
		},
		ParentToolUseID: nil,
		SessionID:       sessionID,
	}
}

// NewSuccessResponse constructs a success control_response with an
// arbitrary payload.
func NewSuccessResponse(requestID string, payload interface{}) ControlResponseToSend {
	return ControlResponseToSend{
		Type: string(MessageTypeControlResponse),
		Response: ControlResponsePayloadToSend{
			Subtype:   "success",
			RequestID: requestID,
			Response:  payload,
		},
	}
}

// NewErrorResponse constructs an error control_response.
func NewErrorResponse(requestID, message string) ControlResponseToSend {
	return ControlResponseToSend{
		Type: string(MessageTypeControlResponse),
		Response: ControlResponsePayloadToSend{
			Subtype:   "error",
			RequestID: requestID,
			Error:     message,
		},
	}
}

// NewPermissionAllow constructs a control_response that grants tool
// execution.
//
// input must be a non-nil map; pass the original CanUseToolRequest.Input
// when no modifications are needed (the wire format forbids a null
// updatedInput). perms may be nil.
func NewPermissionAllow(requestID string, input map[string]interface{}, perms []PermissionUpdate) ControlResponseToSend {
	if input == nil {
		input = map[string]interface{}{}
	}
	return NewSuccessResponse(requestID, PermissionResultAllow{
		Behavior:           PermissionBehaviorAllow,
		UpdatedInput:       input,
		UpdatedPermissions: perms,
	})
}

// NewPermissionDeny constructs a control_response that blocks tool
// execution. message is the human-readable reason; interrupt asks the
// agent to abandon the current turn rather than continue.
func NewPermissionDeny(requestID string, message string, interrupt bool) ControlResponseToSend {
	return NewSuccessResponse(requestID, PermissionResultDeny{
		Behavior:  PermissionBehaviorDeny,
		Message:   message,
		Interrupt: interrupt,
	})
}

// NewHookResponse constructs a control_response carrying a hook output.
func NewHookResponse(requestID string, output HookOutputWire) ControlResponseToSend {
	return NewSuccessResponse(requestID, output)
}

// NewMCPResponse constructs a control_response wrapping an MCP result.
// result is typically a JSONRPCResponse (success or error alike).
func NewMCPResponse(requestID string, result interface{}) ControlResponseToSend {
	return NewSuccessResponse(requestID, MCPResponsePayload{MCPResponse: result})
}

// NewInitialize constructs the control_request advertising the caller's
// hook configuration at session start.
func NewInitialize(requestID string, hooks map[string][]HookMatcherConfig) ControlRequestToSend {
	return ControlRequestToSend{
		Type:      string(MessageTypeControlRequest),
		RequestID: requestID,
		Request: InitializeRequestToSend{
			Subtype: string(ControlRequestSubtypeInitialize),
			Hooks:   hooks,
		},
	}
}

// NewInterrupt constructs a control_request that interrupts the current
// turn.
func NewInterrupt(requestID string) ControlRequestToSend {
	return ControlRequestToSend{
		Type:      string(MessageTypeControlRequest),
		RequestID: requestID,
		Request:   InterruptRequestToSend{Subtype: string(ControlRequestSubtypeInterrupt)},
	}
}

// NewSetPermissionMode constructs a control_request that changes the agent
// permission mode.
func NewSetPermissionMode(requestID, mode string) ControlRequestToSend {
	return ControlRequestToSend{
		Type:      string(MessageTypeControlRequest),
		RequestID: requestID,
		Request:   SetPermissionModeRequestToSend{Subtype: string(ControlRequestSubtypeSetPermissionMode), Mode: mode},
	}
}

// NewSetModel constructs a control_request that switches the active model.
func NewSetModel(requestID, model string) ControlRequestToSend {
	return ControlRequestToSend{
		Type:      string(MessageTypeControlRequest),
		RequestID: requestID,
		Request:   SetModelRequestToSend{Subtype: string(ControlRequestSubtypeSetModel), Model: model},
	}
}
