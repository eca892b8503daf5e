package claude

import (
	"encoding/json"
	"time"
)

// PermissionMode controls how the agent approves tool execution.
type PermissionMode string

const (
	// PermissionModeDefault prompts for each dangerous operation.
	PermissionModeDefault PermissionMode = "default"
	// PermissionModeAcceptEdits auto-approves file modifications.
	PermissionModeAcceptEdits PermissionMode = "acceptEdits"
	// PermissionModePlan reviews a plan before execution.
	PermissionModePlan PermissionMode = "plan"
	// PermissionModeBypass auto-approves all tools.
	PermissionModeBypass PermissionMode = "bypassPermissions"
	// PermissionModeDangerouslySkip disables the permission system
	// entirely. Maps to its own CLI flag rather than --permission-mode.
	PermissionModeDangerouslySkip PermissionMode = "dangerouslySkipPermissions"
)

const (
	// defaultOperationTimeout bounds each caller-initiated control request
	// and one-shot queries overall.
	defaultOperationTimeout = 60 * time.Second
	// defaultHandlerWorkers is the size of the pool that runs hook,
	// permission and SDK-MCP callbacks off the reader.
	defaultHandlerWorkers = 4
)

// envCLIPath overrides the agent binary location when no explicit path is
// configured.
const envCLIPath = "AGENTKIT_CLI_PATH"

// Options is the immutable configuration of a session, composed before
// Connect via functional options.
type Options struct {
	// Model selects the model (--model).
	Model string
	// FallbackModel is used when the primary is overloaded
	// (--fallback-model).
	FallbackModel string
	// SystemPrompt replaces the default system prompt (--system-prompt).
	SystemPrompt string
	// AppendSystemPrompt appends to the default system prompt
	// (--append-system-prompt).
	AppendSystemPrompt string

	// Tools is the base tool set (--tools, comma-joined). An explicitly
	// configured empty list disables all tools; see ToolsConfigured.
	Tools []string
	// ToolsConfigured distinguishes "no --tools flag" from "--tools ''".
	ToolsConfigured bool
	// AllowedTools filters the tool set (--allowedTools).
	AllowedTools []string
	// DisallowedTools filters the tool set (--disallowedTools).
	DisallowedTools []string

	// PermissionMode controls tool approval. Empty means the agent's
	// default; PermissionModeDangerouslySkip emits
	// --dangerously-skip-permissions instead of --permission-mode.
	PermissionMode PermissionMode
	// PermissionPromptToolName names the channel the agent uses to ask
	// permission (--permission-prompt-tool). Set to "stdio" to route
	// can_use_tool control requests to the permission callback.
	PermissionPromptToolName string

	// MaxTurns limits agentic turns (--max-turns).
	MaxTurns int
	// MaxBudgetUSD limits spend (--max-budget-usd).
	MaxBudgetUSD float64
	// MaxThinkingTokens limits extended thinking (--max-thinking-tokens).
	MaxThinkingTokens int
	// MaxTokens is accepted for API parity but maps to no CLI argument;
	// use ExtraArgs to pass a flag if the agent grows one.
	MaxTokens int

	// Resume continues a previous session by ID (--resume).
	Resume string
	// ContinueConversation continues the most recent session (--continue).
	ContinueConversation bool
	// ForkSession forks the resumed session (--fork-session).
	ForkSession bool

	// JSONSchema is a structured output contract, JSON-encoded compactly
	// into --json-schema.
	JSONSchema json.RawMessage
	// Agents is a pre-encoded JSON description of named sub-agent
	// templates (--agents).
	Agents string

	// MCPServers maps server names to configurations. External entries
	// (stdio/http/sse) are serialized into --mcp-config; SDK entries are
	// registered with the in-process tool-server dispatcher instead.
	MCPServers map[string]MCPServerConfig

	// AddDirs grants access to additional directories (repeated --add-dir).
	AddDirs []string
	// Plugins loads plugin directories (repeated --plugin-dir).
	Plugins []string

	// Settings is a settings file path (--settings).
	Settings string
	// SettingSources is the settings precedence list (--setting-sources).
	SettingSources []string

	// IncludePartialMessages streams partial message events
	// (--include-partial-messages).
	IncludePartialMessages bool

	// ExtraArgs is an escape hatch: flag name → optional value. A nil
	// value emits a bare --flag.
	ExtraArgs map[string]*string

	// WorkDir is the working directory for the agent process.
	WorkDir string
	// CLIPath is the agent binary path. Empty falls back to the
	// AGENTKIT_CLI_PATH environment variable, then to PATH lookup.
	CLIPath string
	// Env is appended to the inherited environment.
	Env map[string]string

	// OperationTimeout bounds each caller-initiated control request and
	// one-shot queries overall.
	OperationTimeout time.Duration

	// HandlerWorkers sizes the callback dispatch pool.
	HandlerWorkers int

	// PermissionCallback decides can_use_tool control requests. Nil
	// allows everything.
	PermissionCallback PermissionCallback

	// Hooks holds callbacks advertised to the agent at connect time.
	Hooks *HookRegistry

	// StderrHandler receives raw agent stderr chunks. Nil discards them
	// after logging.
	StderrHandler func([]byte)

	// transportFactory overrides process spawning; tests substitute an
	// in-memory transport here.
	transportFactory func(Options) transport
}

// Option is a functional option for configuring a session.
type Option func(*Options)

// WithModel sets the model.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithFallbackModel sets the fallback model.
func WithFallbackModel(model string) Option {
	return func(o *Options) { o.FallbackModel = model }
}

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Options) { o.SystemPrompt = prompt }
}

// WithAppendSystemPrompt appends to the default system prompt.
func WithAppendSystemPrompt(prompt string) Option {
	return func(o *Options) { o.AppendSystemPrompt = prompt }
}

// WithTools sets the base tool set. An empty call disables all tools.
func WithTools(tools ...string) Option {
	return func(o *Options) {
		o.Tools = tools
		o.ToolsConfigured = true
	}
}

// WithAllowedTools sets the allowed-tools filter.
func WithAllowedTools(tools ...string) Option {
	return func(o *Options) { o.AllowedTools = tools }
}

// WithDisallowedTools sets the disallowed-tools filter.
func WithDisallowedTools(tools ...string) Option {
	return func(o *Options) { o.DisallowedTools = tools }
}

// WithPermissionMode sets the permission mode.
func WithPermissionMode(mode PermissionMode) Option {
	return func(o *Options) { o.PermissionMode = mode }
}

// WithPermissionPromptTool names the permission prompt channel.
func WithPermissionPromptTool(name string) Option {
	return func(o *Options) { o.PermissionPromptToolName = name }
}

// WithMaxTurns limits agentic turns.
func WithMaxTurns(n int) Option {
	return func(o *Options) { o.MaxTurns = n }
}

// WithMaxBudgetUSD limits spend.
func WithMaxBudgetUSD(usd float64) Option {
	return func(o *Options) { o.MaxBudgetUSD = usd }
}

// WithMaxThinkingTokens limits extended thinking.
func WithMaxThinkingTokens(n int) Option {
	return func(o *Options) { o.MaxThinkingTokens = n }
}

// WithMaxTokens records a token cap on the options record. It maps to no
// CLI argument; see Options.MaxTokens.
func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

// WithResume resumes a previous session by ID.
func WithResume(sessionID string) Option {
	return func(o *Options) { o.Resume = sessionID }
}

// WithContinueConversation continues the most recent session.
func WithContinueConversation() Option {
	return func(o *Options) { o.ContinueConversation = true }
}

// WithForkSession forks the resumed session.
func WithForkSession() Option {
	return func(o *Options) { o.ForkSession = true }
}

// WithJSONSchema sets a structured output contract.
func WithJSONSchema(schema json.RawMessage) Option {
	return func(o *Options) { o.JSONSchema = schema }
}

// WithAgents sets the pre-encoded sub-agent templates JSON.
func WithAgents(agentsJSON string) Option {
	return func(o *Options) { o.Agents = agentsJSON }
}

// WithMCPServer adds a named MCP server configuration.
func WithMCPServer(name string, cfg MCPServerConfig) Option {
	return func(o *Options) {
		if o.MCPServers == nil {
			o.MCPServers = make(map[string]MCPServerConfig)
		}
		o.MCPServers[name] = cfg
	}
}

// WithSDKTools registers an in-process tool server under the given name.
func WithSDKTools(serverName string, handler SDKToolHandler) Option {
	return WithMCPServer(serverName, MCPSDKServerConfig{Name: serverName, Handler: handler})
}

// WithAddDirs grants access to additional directories.
func WithAddDirs(dirs ...string) Option {
	return func(o *Options) { o.AddDirs = append(o.AddDirs, dirs...) }
}

// WithPlugins loads plugin directories.
func WithPlugins(dirs ...string) Option {
	return func(o *Options) { o.Plugins = append(o.Plugins, dirs...) }
}

// WithSettings sets the settings file path.
func WithSettings(path string) Option {
	return func(o *Options) { o.Settings = path }
}

// WithSettingSources sets the settings precedence list.
func WithSettingSources(sources ...string) Option {
	return func(o *Options) { o.SettingSources = sources }
}

// WithIncludePartialMessages streams partial message events.
func WithIncludePartialMessages() Option {
	return func(o *Options) { o.IncludePartialMessages = true }
}

// WithExtraArg passes an arbitrary flag. A nil value emits a bare --name.
func WithExtraArg(name string, value *string) Option {
	return func(o *Options) {
		if o.ExtraArgs == nil {
			o.ExtraArgs = make(map[string]*string)
		}
		o.ExtraArgs[name] = value
	}
}

// WithWorkDir sets the agent's working directory.
func WithWorkDir(dir string) Option {
	return func(o *Options) { o.WorkDir = dir }
}

// WithCLIPath sets an explicit agent binary path.
func WithCLIPath(path string) Option {
	return func(o *Options) { o.CLIPath = path }
}

// WithEnv appends environment variables for the agent process.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string, len(env))
		}
		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithOperationTimeout bounds caller-initiated control requests and
// one-shot queries.
func WithOperationTimeout(d time.Duration) Option {
	return func(o *Options) { o.OperationTimeout = d }
}

// WithPermissionCallback sets the tool permission decision point.
func WithPermissionCallback(cb PermissionCallback) Option {
	return func(o *Options) { o.PermissionCallback = cb }
}

// WithHooks attaches a hook registry. Its configuration is advertised to
// the agent at connect time when non-empty.
func WithHooks(hooks *HookRegistry) Option {
	return func(o *Options) { o.Hooks = hooks }
}

// WithStderrHandler receives raw agent stderr output.
func WithStderrHandler(h func([]byte)) Option {
	return func(o *Options) { o.StderrHandler = h }
}

// defaultOptions returns the default configuration.
func defaultOptions() Options {
	return Options{
		OperationTimeout: defaultOperationTimeout,
		HandlerWorkers:   defaultHandlerWorkers,
	}
}

// buildOptions applies opts over the defaults.
func buildOptions(opts []Option) Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// sdkHandlers extracts the in-process tool servers by name.
func (o Options) sdkHandlers() map[string]SDKToolHandler {
	var handlers map[string]SDKToolHandler
	for name, cfg := range o.MCPServers {
		if sdk, ok := cfg.(MCPSDKServerConfig); ok && sdk.Handler != nil {
			if handlers == nil {
				handlers = make(map[string]SDKToolHandler)
			}
			handlers[name] = sdk.Handler
		}
	}
	return handlers
}
