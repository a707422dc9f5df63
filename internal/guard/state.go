// Package guard implements the pre-execution guard and context injector
// (orchestrator tool gating, dependency/memory context injection) that sits
// between the agent runtime and its tool calls. Each hook point reads one
// JSON object on stdin and writes one JSON object on stdout, matching the
// Claude Code hook contract the teacher's orchestrator hooks were modelled
// on.
package guard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/adwhq/adw-orchestrator/pkg/constants"
	"github.com/adwhq/adw-orchestrator/pkg/logger"
)

var log = logger.New("guard")

// StateFileName is the conventional path, relative to the repository root,
// where orchestrator context is persisted for cross-process visibility.
var StateFileName = filepath.Join(constants.StateDir, "orchestrator_context.json")

// State is the persisted orchestrator-context record. A process-local flag
// is not enough: the guard hook and the classifier hook run as separate
// subprocess invocations and must agree via the file.
type State struct {
	Active        bool      `json:"active"`
	ContextName   string    `json:"context_name"`
	PromptPreview string    `json:"prompt_preview"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReadState loads the persisted state from repoRoot/StateFileName. A missing
// file or unparseable content is reported as inactive rather than an error —
// the guard must never fail closed on a corrupt state file.
func ReadState(repoRoot string) State {
	path := filepath.Join(repoRoot, StateFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		log.Printf("state file %s is not valid JSON, treating context as inactive: %v", path, err)
		return State{}
	}
	return s
}

// WriteState persists s atomically: write to a sibling temp file, then
// rename over the target. Rename is atomic on the same filesystem, which is
// guaranteed here because the temp file is created alongside the target.
func WriteState(repoRoot string, s State) error {
	path := filepath.Join(repoRoot, StateFileName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ClearState removes the persisted state file, if any. A missing file is not
// an error.
func ClearState(repoRoot string) error {
	path := filepath.Join(repoRoot, StateFileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
