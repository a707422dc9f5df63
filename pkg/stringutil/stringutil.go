// Package stringutil holds the small text helpers the guard's prompt
// classifier needs before it can match a prompt against the trigger/context
// pattern table: a bounded preview for the OrchestratorContext record, and a
// normalized form of the raw prompt the pattern matcher runs against.
package stringutil

import "strings"

// Truncate shortens s to at most maxLen bytes of output, appending "..." when
// truncation actually occurs. Lengths are counted in bytes, not runes. Used to bound PromptPreview so a persisted
// OrchestratorContext record never carries an entire prompt body. maxLen <= 3
// truncates without the ellipsis, since there is no room left for it.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// NormalizeWhitespace trims trailing whitespace from every line and collapses
// trailing blank lines to a single newline, so the same prompt with
// incidental formatting differences still matches the same trigger pattern.
func NormalizeWhitespace(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	normalized := strings.Join(lines, "\n")
	normalized = strings.TrimRight(normalized, "\n")
	if len(normalized) > 0 {
		normalized += "\n"
	}

	return normalized
}
