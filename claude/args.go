package claude

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BuildCLIArgs translates the options record into the agent's argument
// vector. The three framing arguments are always present; every other
// argument follows the fixed flag mapping. The result is deterministic
// for a given record (extra args are sorted by flag name).
func BuildCLIArgs(o Options) ([]string, error) {
	args := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	}

	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if o.FallbackModel != "" {
		args = append(args, "--fallback-model", o.FallbackModel)
	}
	if o.SystemPrompt != "" {
		args = append(args, "--system-prompt", o.SystemPrompt)
	}
	if o.AppendSystemPrompt != "" {
		args = append(args, "--append-system-prompt", o.AppendSystemPrompt)
	}

	// An explicitly configured empty tool list still emits the flag: the
	// empty string means "disable all tools".
	if o.ToolsConfigured {
		args = append(args, "--tools", strings.Join(o.Tools, ","))
	}
	if len(o.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(o.AllowedTools, ","))
	}
	if len(o.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(o.DisallowedTools, ","))
	}

	// dangerouslySkipPermissions maps to a dedicated flag and suppresses
	// --permission-mode.
	switch o.PermissionMode {
	case "":
	case PermissionModeDangerouslySkip:
		args = append(args, "--dangerously-skip-permissions")
	default:
		args = append(args, "--permission-mode", string(o.PermissionMode))
	}
	if o.PermissionPromptToolName != "" {
		args = append(args, "--permission-prompt-tool", o.PermissionPromptToolName)
	}

	if o.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(o.MaxTurns))
	}
	if o.MaxBudgetUSD > 0 {
		args = append(args, "--max-budget-usd", strconv.FormatFloat(o.MaxBudgetUSD, 'f', -1, 64))
	}
	if o.MaxThinkingTokens > 0 {
		args = append(args, "--max-thinking-tokens", strconv.Itoa(o.MaxThinkingTokens))
	}
	// o.MaxTokens has no CLI flag; it is carried on the record only.

	if len(o.JSONSchema) > 0 {
		compact, err := compactJSON(o.JSONSchema)
		if err != nil {
			return nil, fmt.Errorf("invalid json schema: %w", err)
		}
		args = append(args, "--json-schema", compact)
	}
	if o.Agents != "" {
		args = append(args, "--agents", o.Agents)
	}

	mcpConfig, err := buildMCPConfigJSON(o.MCPServers)
	if err != nil {
		return nil, err
	}
	if mcpConfig != "" {
		args = append(args, "--mcp-config", mcpConfig)
	}

	for _, dir := range o.AddDirs {
		args = append(args, "--add-dir", dir)
	}
	for _, dir := range o.Plugins {
		args = append(args, "--plugin-dir", dir)
	}

	if o.Settings != "" {
		args = append(args, "--settings", o.Settings)
	}
	if len(o.SettingSources) > 0 {
		args = append(args, "--setting-sources", strings.Join(o.SettingSources, ","))
	}

	if o.ContinueConversation {
		args = append(args, "--continue")
	}
	if o.Resume != "" {
		args = append(args, "--resume", o.Resume)
	}
	if o.ForkSession {
		args = append(args, "--fork-session")
	}
	if o.IncludePartialMessages {
		args = append(args, "--include-partial-messages")
	}

	if len(o.ExtraArgs) > 0 {
		keys := make([]string, 0, len(o.ExtraArgs))
		for k := range o.ExtraArgs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flag := "--" + strings.TrimPrefix(k, "--")
			if v := o.ExtraArgs[k]; v != nil {
				args = append(args, flag, *v)
			} else {
				args = append(args, flag)
			}
		}
	}

	return args, nil
}

// buildMCPConfigJSON serializes the external MCP server entries. SDK
// entries live in-process and are excluded. Returns "" when there is
// nothing to pass.
func buildMCPConfigJSON(servers map[string]MCPServerConfig) (string, error) {
	external := make(map[string]MCPServerConfig)
	for name, cfg := range servers {
		if cfg.serverType() == MCPServerTypeSDK {
			continue
		}
		external[name] = cfg
	}
	if len(external) == 0 {
		return "", nil
	}

	wrapper := struct {
		MCPServers map[string]MCPServerConfig `json:"mcpServers"`
	}{MCPServers: external}

	data, err := json.Marshal(wrapper)
	if err != nil {
		return "", fmt.Errorf("marshal mcp config: %w", err)
	}
	return string(data), nil
}

func compactJSON(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}
