package worktree

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// gitRepo creates a minimal repository with an initial commit on "develop"
// and returns its path. Mirrors the fixture in the original ADW test suite's
// branch-divergence tests.
func gitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}

	run("init")
	run("config", "user.name", "Test User")
	run("config", "user.email", "test@example.com")
	require.NoError(t, writeFile(filepath.Join(dir, "README.md"), "# test\n"))
	run("add", ".")
	run("commit", "-m", "initial commit")
	run("branch", "-M", "develop")

	return dir
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func checkout(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"checkout"}, args...)...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git checkout %v: %s", args, out)
}

func commitFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))

	add := exec.Command("git", "add", ".")
	add.Dir = dir
	require.NoError(t, add.Run())

	commit := exec.Command("git", "commit", "-m", "add "+name)
	commit.Dir = dir
	out, err := commit.CombinedOutput()
	require.NoErrorf(t, err, "git commit: %s", out)
}

func TestBranchDiffersFromBase_WithCommits(t *testing.T) {
	dir := gitRepo(t)
	checkout(t, dir, "-b", "feature-branch")
	commitFile(t, dir, "feature.txt", "new feature")

	require.True(t, BranchDiffersFromBase("feature-branch", "develop", dir))
}

func TestBranchDiffersFromBase_NoCommits(t *testing.T) {
	dir := gitRepo(t)
	checkout(t, dir, "-b", "feature-branch")

	require.False(t, BranchDiffersFromBase("feature-branch", "develop", dir))
}

func TestBranchDiffersFromBase_BehindBase(t *testing.T) {
	dir := gitRepo(t)
	checkout(t, dir, "-b", "feature-branch")
	checkout(t, dir, "develop")
	commitFile(t, dir, "develop-feature.txt", "develop feature")

	require.False(t, BranchDiffersFromBase("feature-branch", "develop", dir))
}

func TestBranchDiffersFromBase_InvalidBranch(t *testing.T) {
	dir := gitRepo(t)

	require.False(t, BranchDiffersFromBase("nonexistent-branch", "develop", dir))
}

func TestBranchDiffersFromBase_InvalidBase(t *testing.T) {
	dir := gitRepo(t)
	checkout(t, dir, "-b", "feature-branch")
	commitFile(t, dir, "feature.txt", "new feature")

	require.False(t, BranchDiffersFromBase("feature-branch", "nonexistent-base", dir))
}

func TestBranchDiffersFromBase_MultipleCommits(t *testing.T) {
	dir := gitRepo(t)
	checkout(t, dir, "-b", "feature-branch")
	commitFile(t, dir, "feature1.txt", "feature 1")
	commitFile(t, dir, "feature2.txt", "feature 2")

	require.True(t, BranchDiffersFromBase("feature-branch", "develop", dir))
}

func addWorktree(t *testing.T, repoRoot, runID, branch, base string) string {
	t.Helper()
	path := filepath.Join(repoRoot, TreesDirName, runID)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	cmd := exec.Command("git", "worktree", "add", "-b", branch, path, base)
	cmd.Dir = repoRoot
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git worktree add: %s", out)
	return path
}

func TestStale_ReportsWorktreeWithNoCommitsBeyondBase(t *testing.T) {
	repoRoot := gitRepo(t)
	addWorktree(t, repoRoot, "run-idle", "adw/run-idle", "develop")

	stale, err := Stale(repoRoot, "develop")
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "adw/run-idle", stale[0].FeatureBranch)
}

func TestStale_SkipsWorktreeWithCommitsBeyondBase(t *testing.T) {
	repoRoot := gitRepo(t)
	path := addWorktree(t, repoRoot, "run-active", "adw/run-active", "develop")
	commitFile(t, path, "progress.txt", "in flight")

	stale, err := Stale(repoRoot, "develop")
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestStale_NoTreesDirectory(t *testing.T) {
	repoRoot := gitRepo(t)

	stale, err := Stale(repoRoot, "develop")
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestRemove_DeletesWorktreeAndBranch(t *testing.T) {
	repoRoot := gitRepo(t)
	path := addWorktree(t, repoRoot, "run-done", "adw/run-done", "develop")

	require.NoError(t, Remove(repoRoot, Worktree{Path: path, FeatureBranch: "adw/run-done", BaseBranch: "develop"}))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	stale, err := Stale(repoRoot, "develop")
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestNewRunID_CollisionFree(t *testing.T) {
	dir := t.TempDir()

	first, err := NewRunID(dir)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := NewRunID(dir)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
