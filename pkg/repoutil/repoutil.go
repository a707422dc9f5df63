// Package repoutil resolves the "owner/repo" slug config.FromEnv needs for
// every tracker adapter call, from whatever the operator's git remote
// actually looks like (SSH or HTTPS), so RepoSlug never has to be supplied by
// hand in the common case of running adw inside an already-cloned repo.
package repoutil

import (
	"fmt"
	"strings"
)

// SplitRepoSlug splits a repository slug (owner/repo) into owner and repo
// parts, erroring on anything that isn't exactly two non-empty segments.
func SplitRepoSlug(slug string) (owner, repo string, err error) {
	parts := strings.Split(slug, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format: %s", slug)
	}
	return parts[0], parts[1], nil
}

// ParseGitHubRepoURL extracts the owner and repo slug from a git remote URL,
// in either SSH (git@github.com:owner/repo.git) or HTTPS
// (https://github.com/owner/repo.git) form. config.FromEnv calls this
// against the output of "git remote get-url origin" to derive RepoSlug when
// ADW_REPO_SLUG is not set.
func ParseGitHubRepoURL(url string) (owner, repo string, err error) {
	var repoPath string

	switch {
	case strings.HasPrefix(url, "git@github.com:"):
		repoPath = strings.TrimPrefix(url, "git@github.com:")
	case strings.Contains(url, "github.com/"):
		parts := strings.Split(url, "github.com/")
		if len(parts) >= 2 {
			repoPath = parts[1]
		}
	default:
		return "", "", fmt.Errorf("URL does not appear to be a GitHub repository: %s", url)
	}

	repoPath = strings.TrimSuffix(repoPath, ".git")
	return SplitRepoSlug(repoPath)
}
