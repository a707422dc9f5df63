// Package sliceutil holds the one substring predicate the degraded-mode
// tracker adapter needs to read gh's plain-text issue view output, where
// case of a status marker like "State:" vs "state:" isn't guaranteed.
package sliceutil

import "strings"

// ContainsIgnoreCase checks if a string contains a substring, ignoring case.
func ContainsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
