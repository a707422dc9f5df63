package guard

import "fmt"

// BlockedTools are file-mutating tools refused while orchestrator context is
// active. Orchestrators delegate mutation to a spawned build agent instead.
var BlockedTools = map[string]bool{
	"write-file":    true,
	"edit-file":     true,
	"multi-edit":    true,
	"notebook-edit": true,
}

// AllowedTools are explicitly permitted in orchestrator context. This set is
// informational only — nothing in this package reads it. ToolDecision allows
// any tool not in BlockedTools, and the block message names its escape-hatch
// options in fixed text.
var AllowedTools = map[string]bool{
	"read-file":      true,
	"glob":           true,
	"grep":           true,
	"shell":          true,
	"spawn-subagent": true,
	"slash-command":  true,
	"ask-user":       true,
	"todo-write":     true,
	"web-fetch":      true,
	"web-search":     true,
}

// ToolCall describes one attempted tool invocation.
type ToolCall struct {
	Name   string
	Params map[string]any
}

// Decision is the guard's verdict on a tool call.
type Decision struct {
	Block   bool
	Message string
}

// ToolDecision applies the orchestrator tool-gate rule: BlockedTools are
// refused whenever orchestrator context is active; every other tool,
// including any namespaced index/search tool not explicitly listed, is
// allowed.
func ToolDecision(call ToolCall, ctxActive bool, contextName string) Decision {
	if !ctxActive || !BlockedTools[call.Name] {
		return Decision{}
	}

	return Decision{Block: true, Message: buildBlockMessage(call, contextName)}
}

func buildBlockMessage(call ToolCall, contextName string) string {
	target := "<target file>"
	if v, ok := call.Params["file_path"]; ok {
		if s, ok := v.(string); ok && s != "" {
			target = s
		}
	} else if v, ok := call.Params["path"]; ok {
		if s, ok := v.(string); ok && s != "" {
			target = s
		}
	}

	return fmt.Sprintf(
		"[BLOCKED] Tool '%s' is not allowed in orchestrator context.\n\n"+
			"Context: %s\nTarget: %s\n\n"+
			"Orchestrators must delegate file modifications to build agents.\n\n"+
			"To proceed, spawn a build agent via the spawn-subagent tool with your\n"+
			"file requirements, or delegate via slash-command to an implementation\n"+
			"workflow.\n\n"+
			"To disable enforcement, clear the orchestrator context.",
		call.Name, contextName, target,
	)
}
