package claude

import "encoding/json"

// MCPServerType discriminates MCP server configurations.
type MCPServerType string

const (
	MCPServerTypeStdio MCPServerType = "stdio"
	MCPServerTypeHTTP  MCPServerType = "http"
	MCPServerTypeSSE   MCPServerType = "sse"
	MCPServerTypeSDK   MCPServerType = "sdk"
)

// MCPServerConfig is a named MCP server configuration. External
// configurations (stdio/http/sse) are serialized into the --mcp-config
// argument; SDK configurations run in-process and answer mcp_message
// control requests instead.
type MCPServerConfig interface {
	serverType() MCPServerType
}

// MCPStdioServerConfig launches an external MCP server as a subprocess of
// the agent.
type MCPStdioServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

func (c MCPStdioServerConfig) serverType() MCPServerType { return MCPServerTypeStdio }

// MarshalJSON implements json.Marshaler, stamping the type tag.
func (c MCPStdioServerConfig) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type    MCPServerType     `json:"type"`
		Command string            `json:"command"`
		Args    []string          `json:"args,omitempty"`
		Env     map[string]string `json:"env,omitempty"`
	}
	return json.Marshal(wire{Type: MCPServerTypeStdio, Command: c.Command, Args: c.Args, Env: c.Env})
}

// MCPHTTPServerConfig connects the agent to a network MCP server.
type MCPHTTPServerConfig struct {
	// Type is MCPServerTypeHTTP or MCPServerTypeSSE.
	Type    MCPServerType     `json:"type"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (c MCPHTTPServerConfig) serverType() MCPServerType {
	if c.Type == MCPServerTypeSSE {
		return MCPServerTypeSSE
	}
	return MCPServerTypeHTTP
}

// MCPSDKServerConfig registers an in-process tool server. It is never
// serialized into --mcp-config; the agent reaches it through mcp_message
// control requests on the existing stdio channel.
type MCPSDKServerConfig struct {
	Name    string
	Handler SDKToolHandler
}

func (c MCPSDKServerConfig) serverType() MCPServerType { return MCPServerTypeSDK }
