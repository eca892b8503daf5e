package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/loopwork/agentkit/protocol"
)

// HookEvent identifies a point in the agent's tool-execution lifecycle.
type HookEvent string

const (
	HookEventPreToolUse       HookEvent = "PreToolUse"
	HookEventPostToolUse      HookEvent = "PostToolUse"
	HookEventUserPromptSubmit HookEvent = "UserPromptSubmit"
	HookEventNotification     HookEvent = "Notification"
	HookEventStop             HookEvent = "Stop"
	HookEventSubagentStop     HookEvent = "SubagentStop"
	HookEventPreCompact       HookEvent = "PreCompact"
	HookEventSessionStart     HookEvent = "SessionStart"
	HookEventSessionEnd       HookEvent = "SessionEnd"
)

// HookInput is the decoded input of a hook callback. ToolName/ToolInput/
// ToolUseID are populated for the tool-lifecycle events; ToolResponse
// additionally for PostToolUse. Payload always holds the complete decoded
// input so event kinds without a dedicated shape lose nothing.
type HookInput struct {
	Event        HookEvent
	ToolName     string
	ToolInput    map[string]interface{}
	ToolResponse interface{}
	ToolUseID    string
	Payload      map[string]interface{}
}

// HookOutput is a callback's verdict. The zero value lets the agent
// continue; Stop maps to continue:false on the wire.
type HookOutput struct {
	// Stop blocks further processing; Reason is surfaced to the agent.
	Stop   bool
	Reason string
	// Decision is an optional decision string ("block", "approve").
	Decision string
	// PermissionDecision / PermissionDecisionReason feed permission
	// hooks: "allow", "deny" or "ask".
	PermissionDecision       string
	PermissionDecisionReason string
	// UpdatedInput, when non-nil, replaces the tool invocation's input
	// before execution proceeds.
	UpdatedInput map[string]interface{}
	// AdditionalContext is injected into the conversation for events that
	// support it.
	AdditionalContext string
}

// HookAllow is the output that lets execution proceed untouched.
func HookAllow() HookOutput {
	return HookOutput{}
}

// HookBlock stops the operation with a reason.
func HookBlock(reason string) HookOutput {
	return HookOutput{Stop: true, Decision: "block", Reason: reason}
}

// HookCallback is a caller-supplied hook implementation.
type HookCallback func(ctx context.Context, input HookInput) (HookOutput, error)

// hookRegistration is one registered callback. Registrations are
// immutable once created; the registry copies its slice on mutation so
// dispatches snapshot without locking callbacks.
type hookRegistration struct {
	id      string
	event   HookEvent
	matcher string
	pattern *regexp.Regexp
	cb      HookCallback
}

// HookRegistry holds hook callbacks keyed by event kind and tool-name
// pattern. Its configuration is advertised to the agent in the initialize
// control request; the agent then addresses callbacks by their stable
// identifiers.
type HookRegistry struct {
	mu     sync.Mutex
	regs   []hookRegistration
	nextID int
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{}
}

// Register adds a callback for an event. toolPattern is a regular
// expression matched against the full tool name (alternation like
// "Bash|Edit" selects several); the empty pattern matches every tool.
// The returned identifier is stable for the registry's lifetime.
func (h *HookRegistry) Register(event HookEvent, toolPattern string, cb HookCallback) (string, error) {
	if cb == nil {
		return "", fmt.Errorf("hook callback must not be nil")
	}

	var pattern *regexp.Regexp
	if toolPattern != "" {
		var err error
		pattern, err = regexp.Compile("^(?:" + toolPattern + ")$")
		if err != nil {
			return "", fmt.Errorf("invalid tool pattern %q: %w", toolPattern, err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	id := fmt.Sprintf("hook_%d", h.nextID)
	h.nextID++

	regs := make([]hookRegistration, len(h.regs), len(h.regs)+1)
	copy(regs, h.regs)
	h.regs = append(regs, hookRegistration{
		id:      id,
		event:   event,
		matcher: toolPattern,
		pattern: pattern,
		cb:      cb,
	})
	return id, nil
}

// Unregister removes a callback by identifier.
func (h *HookRegistry) Unregister(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, reg := range h.regs {
		if reg.id == id {
			regs := make([]hookRegistration, 0, len(h.regs)-1)
			regs = append(regs, h.regs[:i]...)
			regs = append(regs, h.regs[i+1:]...)
			h.regs = regs
			return true
		}
	}
	return false
}

// HasHooks reports whether any callback is registered.
func (h *HookRegistry) HasHooks() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.regs) > 0
}

// snapshot returns the current registration list; safe to iterate without
// the lock.
func (h *HookRegistry) snapshot() []hookRegistration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.regs
}

// buildConfig maps each event kind to its matcher entries for the
// initialize advertisement. Registration order is preserved.
func (h *HookRegistry) buildConfig() map[string][]protocol.HookMatcherConfig {
	regs := h.snapshot()
	if len(regs) == 0 {
		return nil
	}

	config := make(map[string][]protocol.HookMatcherConfig)
	for _, reg := range regs {
		config[string(reg.event)] = append(config[string(reg.event)], protocol.HookMatcherConfig{
			Matcher:         reg.matcher,
			HookCallbackIDs: []string{reg.id},
		})
	}
	return config
}

// Dispatch runs the callbacks selected by a hook_callback control
// request and merges their outputs into the wire response.
//
// The agent addresses one callback identifier; that registration pins the
// event, and every registration for the same event whose pattern matches
// the tool name runs, in registration order. Merge rules: a stop
// short-circuits, a later non-nil updated input wins, the last non-empty
// reason wins.
func (h *HookRegistry) Dispatch(ctx context.Context, callbackID string, rawInput json.RawMessage) (protocol.HookOutputWire, error) {
	regs := h.snapshot()

	var target *hookRegistration
	for i := range regs {
		if regs[i].id == callbackID {
			target = &regs[i]
			break
		}
	}
	if target == nil {
		return protocol.HookOutputWire{}, fmt.Errorf("unknown hook callback %q", callbackID)
	}

	input, err := decodeHookInput(target.event, rawInput)
	if err != nil {
		return protocol.HookOutputWire{}, fmt.Errorf("decode hook input: %w", err)
	}

	selected := selectHookRegistrations(regs, *target, input.ToolName)

	var outputs []HookOutput
	for _, reg := range selected {
		out, err := reg.cb(ctx, input)
		if err != nil {
			return protocol.HookOutputWire{}, fmt.Errorf("hook %s: %w", reg.id, err)
		}
		outputs = append(outputs, out)
		if out.Stop {
			break
		}
	}

	return mergeHookOutputs(input.Event, outputs), nil
}

// selectHookRegistrations picks the registrations to run. With a tool
// name, every same-event registration whose pattern matches runs; without
// one only the addressed callback runs.
func selectHookRegistrations(regs []hookRegistration, target hookRegistration, toolName string) []hookRegistration {
	if toolName == "" {
		return []hookRegistration{target}
	}

	var selected []hookRegistration
	for _, reg := range regs {
		if reg.event != target.event {
			continue
		}
		if reg.pattern == nil || reg.pattern.MatchString(toolName) {
			selected = append(selected, reg)
		}
	}
	return selected
}

// decodeHookInput parses the event-specific input variant; unrecognized
// events keep the opaque payload only.
func decodeHookInput(event HookEvent, raw json.RawMessage) (HookInput, error) {
	input := HookInput{Event: event}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &input.Payload); err != nil {
			return input, err
		}
	}

	switch event {
	case HookEventPreToolUse:
		var v protocol.PreToolUseHookInput
		if err := json.Unmarshal(raw, &v); err != nil {
			return input, err
		}
		input.ToolName = v.ToolName
		input.ToolInput = v.ToolInput
		input.ToolUseID = v.ToolUseID
	case HookEventPostToolUse:
		var v protocol.PostToolUseHookInput
		if err := json.Unmarshal(raw, &v); err != nil {
			return input, err
		}
		input.ToolName = v.ToolName
		input.ToolInput = v.ToolInput
		input.ToolResponse = v.ToolResponse
		input.ToolUseID = v.ToolUseID
	}
	return input, nil
}

// mergeHookOutputs folds the outputs of every invoked callback into one
// wire response.
func mergeHookOutputs(event HookEvent, outputs []HookOutput) protocol.HookOutputWire {
	var merged HookOutput
	for _, out := range outputs {
		if out.Stop {
			merged.Stop = true
		}
		if out.Decision != "" {
			merged.Decision = out.Decision
		}
		if out.Reason != "" {
			merged.Reason = out.Reason
		}
		if out.PermissionDecision != "" {
			merged.PermissionDecision = out.PermissionDecision
		}
		if out.PermissionDecisionReason != "" {
			merged.PermissionDecisionReason = out.PermissionDecisionReason
		}
		if out.UpdatedInput != nil {
			merged.UpdatedInput = out.UpdatedInput
		}
		if out.AdditionalContext != "" {
			merged.AdditionalContext = out.AdditionalContext
		}
	}

	wire := protocol.HookOutputWire{
		Decision: merged.Decision,
		Reason:   merged.Reason,
	}
	if merged.Stop {
		f := false
		wire.Continue = &f
	}
	if merged.PermissionDecision != "" || merged.PermissionDecisionReason != "" ||
		merged.UpdatedInput != nil || merged.AdditionalContext != "" {
		wire.HookSpecificOutput = &protocol.HookSpecificOutputWire{
			HookEventName:            string(event),
			PermissionDecision:       merged.PermissionDecision,
			PermissionDecisionReason: merged.PermissionDecisionReason,
			UpdatedInput:             merged.UpdatedInput,
			AdditionalContext:        merged.AdditionalContext,
		}
	}
	return wire
}
