package protocol

import (
	"encoding/json"
	"fmt"
)

// ParseMessage classifies one inbound JSON line into its message variant.
//
// Classification order: control_request and control_response envelopes
// first, then data-plane messages by their type field. Unknown types
// return (nil, nil) — the line was valid JSON, just not something this
// version models; the raw bytes are available to raw subscribers upstream.
//
// The returned message retains the full line in its Raw field.
func ParseMessage(line []byte) (Message, error) {
	var base struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(line, &base); err != nil {
		return nil, fmt.Errorf("parse message envelope: %w", err)
	}

	raw := json.RawMessage(append([]byte(nil), line...))

	switch base.Type {
	case MessageTypeControlRequest:
		var m ControlRequest
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse control_request: %w", err)
		}
		m.Raw = raw
		return m, nil
	case MessageTypeControlResponse:
		var m ControlResponse
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse control_response: %w", err)
		}
		m.Raw = raw
		return m, nil
	case MessageTypeSystem:
		var m SystemMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse system message: %w", err)
		}
		m.Raw = raw
		return m, nil
	case MessageTypeAssistant:
		var m AssistantMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse assistant message: %w", err)
		}
		m.Raw = raw
		return m, nil
	case MessageTypeUser:
		var m UserMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse user message: %w", err)
		}
		m.Raw = raw
		return m, nil
	case MessageTypeResult:
		var m ResultMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse result message: %w", err)
		}
		m.Raw = raw
		return m, nil
	case MessageTypeStreamEvent:
		var m StreamEvent
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("parse stream event: %w", err)
		}
		m.Raw = raw
		return m, nil
	default:
		return nil, nil
	}
}
