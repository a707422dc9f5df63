package stringutil

import (
	"regexp"

	"github.com/adwhq/adw-orchestrator/pkg/logger"
)

var sanitizeLog = logger.New("stringutil:sanitize")

// Regex patterns for detecting potential secret key names
var (
	// Match uppercase snake_case identifiers that look like secret names (e.g., MY_SECRET_KEY, GITHUB_TOKEN, API_KEY)
	// Excludes the orchestrator's own non-secret env var and identifier conventions.
	secretNamePattern = regexp.MustCompile(`\b([A-Z][A-Z0-9]*_[A-Z0-9_]+)\b`)

	// Match PascalCase identifiers ending with security-related suffixes (e.g., GitHubToken, ApiKey, DeploySecret)
	pascalCaseSecretPattern = regexp.MustCompile(`\b([A-Z][a-z0-9]*(?:[A-Z][a-z0-9]*)*(?:Token|Key|Secret|Password|Credential|Auth))\b`)

	// nonSecretIdentifiers excludes env vars and names the orchestrator
	// itself emits in phase subprocess environments (see
	// internal/sequencer.runPhase) and gh CLI output, so a gh error that
	// merely echoes back "$ADW_RUN_ID" isn't redacted as if it were a leaked
	// secret value. Credential names such as GH_TOKEN are not listed and are
	// still redacted.
	nonSecretIdentifiers = map[string]bool{
		"GITHUB":          true,
		"ENV":             true,
		"PATH":            true,
		"HOME":            true,
		"SHELL":           true,
		"ADW_RUN_ID":      true,
		"ADW_PHASE":       true,
		"ADW_REPO_ROOT":   true,
		"ADW_BASE_BRANCH": true,
	}
)

// SanitizeErrorMessage redacts substrings of message that look like secret
// identifiers (env var names, token-shaped PascalCase names) before the
// message reaches a tracker comment or log line, so a gh CLI failure never
// leaks the name of whatever credential it tripped over. The orchestrator's
// own non-secret identifiers are left alone so run ids and phase names stay
// readable in the sanitized text.
func SanitizeErrorMessage(message string) string {
	if message == "" {
		return message
	}

	sanitizeLog.Printf("Sanitizing error message: length=%d", len(message))

	sanitized := secretNamePattern.ReplaceAllStringFunc(message, func(match string) string {
		if nonSecretIdentifiers[match] {
			return match
		}
		sanitizeLog.Printf("Redacted snake_case secret pattern: %s", match)
		return "[REDACTED]"
	})

	sanitized = pascalCaseSecretPattern.ReplaceAllString(sanitized, "[REDACTED]")

	if sanitized != message {
		sanitizeLog.Print("Error message sanitization applied redactions")
	}

	return sanitized
}
