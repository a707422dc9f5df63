// Package worktree creates and inspects per-workflow git worktrees. Each
// WorkflowRun owns exactly one worktree, checked out onto a fresh feature
// branch derived from a named base branch, rooted under a conventional
// trees/<run-id> directory.
package worktree

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adwhq/adw-orchestrator/internal/exitcode"
	"github.com/adwhq/adw-orchestrator/pkg/logger"
)

var log = logger.New("worktree")

// TreesDirName is the conventional directory, relative to the repository
// root, under which all worktrees are rooted.
const TreesDirName = "trees"

// Worktree describes a checkout bound to a feature branch, owned by exactly
// one WorkflowRun.
type Worktree struct {
	Path          string
	FeatureBranch string
	BaseBranch    string
}

// Error wraps a worktree operation failure with the categorised exit code a
// calling phase should surface.
type Error struct {
	Code exitcode.Code
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", exitcode.Description(e.Code), e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// NewRunID derives a collision-free run identifier from a high-resolution
// clock plus a random suffix, as required by the design notes: implementations
// must verify uniqueness against the worktrees directory before creation.
func NewRunID(repoRoot string) (string, error) {
	for attempt := 0; attempt < 8; attempt++ {
		candidate := fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405.000000000"), uuid.NewString()[:8])
		if _, err := os.Stat(filepath.Join(repoRoot, TreesDirName, candidate)); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not derive a collision-free run id after 8 attempts")
}

// EnsureWorktree registers a new version-control worktree for runID, checked
// out onto a fresh feature branch derived from baseBranch, rooted under
// repoRoot/trees/runID. It fails with ResourceFileError if the trees
// directory cannot be created, and with BlockerMissingWorktree if git
// worktree add does not succeed.
func EnsureWorktree(repoRoot, runID, baseBranch string) (*Worktree, error) {
	path := filepath.Join(repoRoot, TreesDirName, runID)
	feature := fmt.Sprintf("adw/%s", runID)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &Error{Code: exitcode.ResourceFileError, Err: err}
	}

	cmd := exec.Command("git", "worktree", "add", "-b", feature, path, baseBranch)
	cmd.Dir = repoRoot
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Printf("creating worktree %s on branch %s from %s", path, feature, baseBranch)
	if err := cmd.Run(); err != nil {
		return nil, &Error{Code: exitcode.BlockerMissingWorktree, Err: fmt.Errorf("git worktree add: %w: %s", err, stderr.String())}
	}

	return &Worktree{Path: path, FeatureBranch: feature, BaseBranch: baseBranch}, nil
}

// BranchDiffersFromBase returns true iff feature contains at least one commit
// not reachable from base, computed by counting commits in the base..feature
// range. Any lookup failure (unknown branch, unknown base) is classified as
// "no divergence" rather than raised, because callers use the result only to
// decide whether to continue the pipeline — false is always the safe answer.
func BranchDiffersFromBase(feature, base, worktreeDir string) bool {
	cmd := exec.Command("git", "rev-list", "--count", base+".."+feature)
	cmd.Dir = worktreeDir
	out, err := cmd.Output()
	if err != nil {
		log.Printf("branch divergence check failed for %s..%s: %v", base, feature, err)
		return false
	}

	count := strings.TrimSpace(string(out))
	return count != "" && count != "0"
}

// ReleaseWorktree logs that a WorkflowRun has released its worktree; it
// records no ownership state and does not remove the checkout: a finished
// run's worktree is left on disk under trees/ so its branch can be inspected
// or reused, and is only reclaimed later by Stale plus Remove.
func ReleaseWorktree(path string) {
	log.Printf("release requested for %s (worktree left on disk for inspection)", path)
}

// Stale lists the run-id subdirectories of repoRoot/trees whose feature
// branch carries no commits beyond baseBranch — i.e. runs that never
// progressed, or whose work already landed and left nothing behind to keep.
// A worktree git itself no longer recognises (already removed, moved) is
// skipped rather than reported, since Remove would have nothing to do there.
func Stale(repoRoot, baseBranch string) ([]Worktree, error) {
	treesDir := filepath.Join(repoRoot, TreesDirName)
	entries, err := os.ReadDir(treesDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", treesDir, err)
	}

	known := registeredWorktrees(repoRoot)

	var stale []Worktree
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(treesDir, entry.Name())
		feature, ok := known[path]
		if !ok {
			continue
		}
		if !BranchDiffersFromBase(feature, baseBranch, path) {
			stale = append(stale, Worktree{Path: path, FeatureBranch: feature, BaseBranch: baseBranch})
		}
	}
	return stale, nil
}

// registeredWorktrees maps each worktree path git still tracks to the branch
// checked out there, by parsing `git worktree list --porcelain`.
func registeredWorktrees(repoRoot string) map[string]string {
	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		log.Printf("list worktrees: %v", err)
		return nil
	}

	result := make(map[string]string)
	var path string
	for _, line := range strings.Split(string(out), "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			branch := strings.TrimPrefix(line, "branch refs/heads/")
			if path != "" {
				result[path] = branch
			}
		}
	}
	return result
}

// Remove deletes wt's checkout and its feature branch. A failure to remove
// the checkout is returned to the caller; a failure to delete the branch
// afterwards is only logged, and Remove then returns nil.
func Remove(repoRoot string, wt Worktree) error {
	cmd := exec.Command("git", "worktree", "remove", "--force", wt.Path)
	cmd.Dir = repoRoot
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git worktree remove %s: %w: %s", wt.Path, err, strings.TrimSpace(stderr.String()))
	}

	branchCmd := exec.Command("git", "branch", "-D", wt.FeatureBranch)
	branchCmd.Dir = repoRoot
	var branchStderr bytes.Buffer
	branchCmd.Stderr = &branchStderr
	if err := branchCmd.Run(); err != nil {
		log.Printf("worktree %s removed but branch %s could not be deleted: %v: %s", wt.Path, wt.FeatureBranch, err, strings.TrimSpace(branchStderr.String()))
	}
	return nil
}
