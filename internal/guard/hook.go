package guard

import (
	"encoding/json"
	"io"
)

// HookInput is the stdin JSON object common to every hook entrypoint. The
// same struct is reused across PreToolUse, UserPromptSubmit, and
// SubagentStart invocations; each hook reads only the fields relevant to it.
type HookInput struct {
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
	Prompt    string         `json:"prompt,omitempty"`
	AgentType string         `json:"agent_type,omitempty"`
	Cwd       string         `json:"cwd,omitempty"`
}

// HookOutput is the stdout JSON object every hook entrypoint writes exactly
// once. Decision is "continue" (the default) or "block"; Context, if set, is
// injected ahead of the tool/agent; Message, if set, is surfaced to the
// agent alongside a block decision.
type HookOutput struct {
	Decision string `json:"decision"`
	Message  string `json:"message,omitempty"`
	Context  string `json:"context,omitempty"`
}

// ReadHookInput decodes one HookInput from r. A decode failure yields a zero
// HookInput rather than an error — every hook entrypoint continues rather
// than blocking the agent on malformed stdin.
func ReadHookInput(r io.Reader) HookInput {
	var in HookInput
	_ = json.NewDecoder(r).Decode(&in)
	return in
}

// WriteHookOutput encodes out to w as a single JSON object.
func WriteHookOutput(w io.Writer, out HookOutput) error {
	return json.NewEncoder(w).Encode(out)
}

// Continue builds a "continue" HookOutput, optionally carrying injected
// context text.
func Continue(context string) HookOutput {
	return HookOutput{Decision: "continue", Context: context}
}

// Block builds a "block" HookOutput carrying the refusal message.
func Block(message string) HookOutput {
	return HookOutput{Decision: "block", Message: message}
}

// FilePathFromToolInput extracts the target file path from a tool_input map,
// checking the conventional "file_path" key first and falling back to
// "path".
func FilePathFromToolInput(toolInput map[string]any) string {
	if v, ok := toolInput["file_path"].(string); ok && v != "" {
		return v
	}
	if v, ok := toolInput["path"].(string); ok && v != "" {
		return v
	}
	return ""
}
