package guard

import (
	"strings"
	"time"

	"github.com/adwhq/adw-orchestrator/internal/config"
	"github.com/adwhq/adw-orchestrator/pkg/stringutil"
)

// ClassifyAndPersist applies table to prompt and updates the persisted
// orchestrator-context state accordingly: a matching prompt sets the context
// active and records a truncated preview; a non-matching prompt clears it.
// Returns the resulting State and whatever error WriteState/ClearState
// produced — callers treat a persistence error as non-fatal, matching the
// hook's own exit-0-always contract.
func ClassifyAndPersist(repoRoot, prompt string, table config.PatternTable) (State, error) {
	name := table.Classify(normalizePrompt(prompt))
	if name == "" {
		return State{}, ClearState(repoRoot)
	}

	s := State{
		Active:        true,
		ContextName:   name,
		PromptPreview: stringutil.Truncate(prompt, 200),
		Timestamp:     time.Now().UTC(),
	}
	return s, WriteState(repoRoot, s)
}

// ActiveContext reports whether orchestrator context is currently active for
// repoRoot and, if so, its context name.
func ActiveContext(repoRoot string) (bool, string) {
	s := ReadState(repoRoot)
	return s.Active, s.ContextName
}

// normalizePrompt strips trailing-whitespace noise per line before
// classification; patterns are matched case-insensitively regardless, but
// normalizing keeps leading-anchor patterns (e.g. "^/do") meaningful against
// a prompt with leading blank lines or trailing whitespace.
func normalizePrompt(prompt string) string {
	return strings.TrimSpace(stringutil.NormalizeWhitespace(prompt))
}
