// Package gitutil classifies error text surfaced by the gh CLI and plain git
// subprocess calls, so adapters can react to a stale or missing credential
// without depending on go-gh's internal error types.
package gitutil

import "strings"

// IsAuthError reports whether errMsg looks like a credential failure from gh
// or git, rather than a transient or request-shaped failure (rate limit, 404,
// malformed flags). trackeradapter/gh wraps its exec errors with this check
// so a missing GH_TOKEN surfaces as a distinct, actionable message instead of
// a generic "gh issue list failed".
func IsAuthError(errMsg string) bool {
	lowerMsg := strings.ToLower(errMsg)
	return strings.Contains(lowerMsg, "gh_token") ||
		strings.Contains(lowerMsg, "github_token") ||
		strings.Contains(lowerMsg, "authentication") ||
		strings.Contains(lowerMsg, "not logged into") ||
		strings.Contains(lowerMsg, "unauthorized") ||
		strings.Contains(lowerMsg, "forbidden") ||
		strings.Contains(lowerMsg, "permission denied")
}
