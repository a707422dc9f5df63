// Package constants holds fixed names referenced across packages and the
// CLI, kept in one place so they read consistently in user-facing output.
package constants

// CLIName is the prefix used in user-facing output to refer to the binary.
const CLIName = "adw"

// StateDir is the conventional directory, relative to a repository root,
// where cross-process orchestrator state lives.
const StateDir = ".claude/data"

// DefaultTriggerToken is the comment body that re-arms a work item for
// dispatch when no operator override is configured.
const DefaultTriggerToken = "adw"
