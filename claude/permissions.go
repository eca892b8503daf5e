package claude

import (
	"context"
	"fmt"

	"github.com/loopwork/agentkit/protocol"
)

// PermissionRequest describes one can_use_tool question from the agent.
type PermissionRequest struct {
	ToolName    string
	Input       map[string]interface{}
	Suggestions []protocol.PermissionUpdate
	BlockedPath *string
	RequestID   string
}

// PermissionResult is the decision of a permission callback: Allow or
// Deny.
type PermissionResult interface {
	isPermissionResult()
}

// Allow grants the tool invocation. A non-nil UpdatedInput replaces the
// tool's input.
type Allow struct {
	UpdatedInput       map[string]interface{}
	UpdatedPermissions []protocol.PermissionUpdate
}

func (Allow) isPermissionResult() {}

// Deny blocks the tool invocation. Interrupt additionally asks the agent
// to abandon the current turn.
type Deny struct {
	Message   string
	Interrupt bool
}

func (Deny) isPermissionResult() {}

// PermissionCallback decides whether a tool may run with the given input.
type PermissionCallback func(ctx context.Context, req PermissionRequest) (PermissionResult, error)

// permissionGate is the session's single decision point for can_use_tool
// control requests. Without a callback everything is allowed. A callback
// error or panic becomes a deny carrying the failure; the callback's
// result is never rewritten.
type permissionGate struct {
	cb PermissionCallback
}

func newPermissionGate(cb PermissionCallback) *permissionGate {
	return &permissionGate{cb: cb}
}

// Handle produces the control response for one can_use_tool request.
func (g *permissionGate) Handle(ctx context.Context, requestID string, req protocol.CanUseToolRequest) protocol.ControlResponseToSend {
	if g.cb == nil {
		return protocol.NewPermissionAllow(requestID, req.Input, nil)
	}

	result, err := g.invoke(ctx, requestID, req)
	if err != nil {
		return protocol.NewPermissionDeny(requestID, fmt.Sprintf("callback error: %v", err), false)
	}

	switch r := result.(type) {
	case Allow:
		input := r.UpdatedInput
		if input == nil {
			input = req.Input
		}
		return protocol.NewPermissionAllow(requestID, input, r.UpdatedPermissions)
	case Deny:
		return protocol.NewPermissionDeny(requestID, r.Message, r.Interrupt)
	default:
		return protocol.NewPermissionDeny(requestID, fmt.Sprintf("callback returned unknown result %T", result), false)
	}
}

func (g *permissionGate) invoke(ctx context.Context, requestID string, req protocol.CanUseToolRequest) (result PermissionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return g.cb(ctx, PermissionRequest{
		ToolName:    req.ToolName,
		Input:       req.Input,
		Suggestions: req.PermissionSuggestions,
		BlockedPath: req.BlockedPath,
		RequestID:   requestID,
	})
}
