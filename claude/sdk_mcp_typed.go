package claude

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/loopwork/agentkit/protocol"
)

// TypedToolRegistry implements SDKToolHandler with type-safe tool
// registration: JSON schemas are generated from struct tags and argument
// unmarshalling happens before the handler runs.
type TypedToolRegistry struct {
	tools []toolRegistration
}

// toolRegistration stores one tool's metadata and type-erased handler.
type toolRegistration struct {
	name        string
	description string
	schema      json.RawMessage
	invoke      func(context.Context, json.RawMessage) (*protocol.MCPToolCallResult, error)
}

// NewTypedToolRegistry creates an empty registry.
func NewTypedToolRegistry() *TypedToolRegistry {
	return &TypedToolRegistry{}
}

// AddTool registers a type-safe tool handler. T should be a struct with
// json and jsonschema tags.
//
// Example:
//
//	type EchoParams struct {
//	    Text string `json:"text" jsonschema:"required,description=Text to echo back"`
//	}
//
//	registry := claude.NewTypedToolRegistry()
//	claude.AddTool(registry, "echo", "Echo back the input text",
//	    func(ctx context.Context, params EchoParams) (string, error) {
//	        return "Echo: " + params.Text, nil
//	    })
func AddTool[T any](
	registry *TypedToolRegistry,
	name, description string,
	handler func(context.Context, T) (string, error),
) *TypedToolRegistry {
	schema := generateSchema[T]()

	invoke := func(ctx context.Context, args json.RawMessage) (*protocol.MCPToolCallResult, error) {
		var params T
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid arguments for tool %s: %w", name, err)
		}

		result, err := handler(ctx, params)
		if err != nil {
			return &protocol.MCPToolCallResult{
				Content: []protocol.MCPContentItem{{Type: "text", Text: err.Error()}},
				IsError: true,
			}, nil
		}

		return &protocol.MCPToolCallResult{
			Content: []protocol.MCPContentItem{{Type: "text", Text: result}},
		}, nil
	}

	registry.tools = append(registry.tools, toolRegistration{
		name:        name,
		description: description,
		schema:      schema,
		invoke:      invoke,
	})
	return registry
}

// Tools implements SDKToolHandler.
func (r *TypedToolRegistry) Tools() []protocol.MCPToolDefinition {
	defs := make([]protocol.MCPToolDefinition, len(r.tools))
	for i, tool := range r.tools {
		defs[i] = protocol.MCPToolDefinition{
			Name:        tool.name,
			Description: tool.description,
			InputSchema: tool.schema,
		}
	}
	return defs
}

// HandleToolCall implements SDKToolHandler.
func (r *TypedToolRegistry) HandleToolCall(
	ctx context.Context,
	name string,
	args json.RawMessage,
) (*protocol.MCPToolCallResult, error) {
	for _, tool := range r.tools {
		if tool.name == name {
			return tool.invoke(ctx, args)
		}
	}

	return &protocol.MCPToolCallResult{
		Content: []protocol.MCPContentItem{{Type: "text", Text: fmt.Sprintf("Unknown tool: %s", name)}},
		IsError: true,
	}, nil
}

// generateSchema reflects a JSON schema from a Go struct type, inlining
// definitions so the agent receives a self-contained schema.
func generateSchema[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	var zero T
	schema := reflector.Reflect(zero)

	bytes, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("failed to generate schema for type %T: %v", zero, err))
	}
	return json.RawMessage(bytes)
}

var _ SDKToolHandler = (*TypedToolRegistry)(nil)
