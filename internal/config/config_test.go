package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults_MatchDocumentedValues(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, 20*time.Second, cfg.PollInterval)
	require.Equal(t, "/adw go", cfg.TriggerToken)
	require.Equal(t, 5, cfg.RetryBound)
	require.Equal(t, 10, cfg.ContextInjectorFileCap)
	require.Equal(t, 15, cfg.AgentContextFileCap)
	require.Equal(t, 5, cfg.MemoryHitLimit)
	require.NotEmpty(t, cfg.Patterns.OrchestratorPatterns)
}

func TestFromEnv_OverlaysRecognisedVariables(t *testing.T) {
	t.Setenv("ADW_POLL_INTERVAL", "5s")
	t.Setenv("ADW_TRIGGER_TOKEN", "/go")
	t.Setenv("ADW_WORKER_ID", "worker-9")
	t.Setenv("ADW_REPO_SLUG", "acme/widgets")
	t.Setenv("ADW_BASE_BRANCH", "trunk")
	t.Setenv("ADW_RETRY_BOUND", "3")

	cfg := FromEnv()
	require.Equal(t, 5*time.Second, cfg.PollInterval)
	require.Equal(t, "/go", cfg.TriggerToken)
	require.Equal(t, "worker-9", cfg.WorkerID)
	require.Equal(t, "acme/widgets", cfg.RepoSlug)
	require.Equal(t, "trunk", cfg.BaseBranch)
	require.Equal(t, 3, cfg.RetryBound)
}

func TestFromEnv_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("ADW_POLL_INTERVAL", "not-a-duration")
	t.Setenv("ADW_RETRY_BOUND", "not-a-number")

	cfg := FromEnv()
	require.Equal(t, Defaults().PollInterval, cfg.PollInterval)
	require.Equal(t, Defaults().RetryBound, cfg.RetryBound)
}

func TestPatternTable_ClassifyMatchesDoRouter(t *testing.T) {
	table := DefaultPatternTable()
	require.Equal(t, "do-router", table.Classify("/do implement the login flow"))
	require.Equal(t, "", table.Classify("please fix the typo in README"))
}

func TestPatternTable_ClassifyIsCaseInsensitive(t *testing.T) {
	table := DefaultPatternTable()
	require.Equal(t, "command-orchestrator", table.Classify("run the Orchestrator COMMAND now"))
}

func TestLoadPatternTable_ReadsYAMLAndCompilesPatterns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	yaml := "orchestrator_patterns:\n  - name: custom\n    pattern: '^/custom\\b'\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	table, err := LoadPatternTable(path)
	require.NoError(t, err)
	require.Equal(t, "custom", table.Classify("/custom do the thing"))
}

func TestLoadPatternTable_DropsUncompilablePatterns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	yaml := "orchestrator_patterns:\n" +
		"  - name: bad\n    pattern: '(unterminated'\n" +
		"  - name: good\n    pattern: '^/ok\\b'\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	table, err := LoadPatternTable(path)
	require.NoError(t, err)
	require.Len(t, table.OrchestratorPatterns, 1)
	require.Equal(t, "good", table.OrchestratorPatterns[0].Name)
}
