// Package config holds the orchestrator's runtime configuration: plain
// structs populated from environment variables and flag overrides, following
// the teacher's own cmd/gh-aw wiring rather than a config-framework
// dependency. The one piece of config that benefits from a file format of its
// own — the pattern table the guard's prompt classifier matches against — is
// loaded from an optional YAML file. The dispatcher's trigger token is a
// plain string, not an entry of that table.
package config

import (
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adwhq/adw-orchestrator/pkg/logger"
	"github.com/adwhq/adw-orchestrator/pkg/repoutil"
)

var log = logger.New("config")

// Config is the process-wide orchestrator configuration.
type Config struct {
	// PollInterval is how often the dispatcher (C5) polls the tracker.
	PollInterval time.Duration
	// TriggerToken is the exact comment body that re-arms a previously
	// triggered work item for dispatch.
	TriggerToken string
	// WorkerID identifies this orchestrator process in tracker comments and
	// claim records.
	WorkerID string
	// RepoSlug is the "owner/repo" the dispatcher and worktree manager
	// operate against.
	RepoSlug string
	// BaseBranch is the default branch new worktrees are cut from.
	BaseBranch string
	// RetryBound is the number of resource-band failures a work item may
	// accumulate before being demoted to a blocker.
	RetryBound int
	// ContextInjectorFileCap bounds the dependent-files list the pre-edit
	// injector attaches.
	ContextInjectorFileCap int
	// AgentContextFileCap bounds the consolidated agent-context block the
	// pre-spawn injector attaches.
	AgentContextFileCap int
	// MemoryHitLimit bounds failures/decisions returned per memory query.
	MemoryHitLimit int
	// IndexTimeout bounds every individual dependency/memory index query.
	IndexTimeout time.Duration
	// Patterns classifies prompts into orchestrator contexts for the guard.
	// The dispatcher does not consult it; it compares comments to TriggerToken.
	Patterns PatternTable
}

// Defaults returns the built-in configuration used when no environment
// variables or pattern file override it.
func Defaults() Config {
	return Config{
		PollInterval:           20 * time.Second,
		TriggerToken:           "/adw go",
		WorkerID:               "adw-orchestrator",
		BaseBranch:             "main",
		RetryBound:             5,
		ContextInjectorFileCap: 10,
		AgentContextFileCap:    15,
		MemoryHitLimit:         5,
		IndexTimeout:           2 * time.Second,
		Patterns:               DefaultPatternTable(),
	}
}

// FromEnv overlays environment variables onto Defaults(). It never fails:
// malformed numeric/duration values are logged and skipped, leaving the
// default in place.
func FromEnv() Config {
	cfg := Defaults()

	if v := os.Getenv("ADW_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		} else {
			log.Printf("ignoring invalid ADW_POLL_INTERVAL=%q: %v", v, err)
		}
	}
	if v := os.Getenv("ADW_TRIGGER_TOKEN"); v != "" {
		cfg.TriggerToken = v
	}
	if v := os.Getenv("ADW_WORKER_ID"); v != "" {
		cfg.WorkerID = v
	}
	if v := os.Getenv("ADW_REPO_SLUG"); v != "" {
		cfg.RepoSlug = v
	} else if slug, err := repoSlugFromGitRemote(); err == nil {
		cfg.RepoSlug = slug
	}
	if v := os.Getenv("ADW_BASE_BRANCH"); v != "" {
		cfg.BaseBranch = v
	}
	if v := os.Getenv("ADW_RETRY_BOUND"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryBound = n
		} else {
			log.Printf("ignoring invalid ADW_RETRY_BOUND=%q: %v", v, err)
		}
	}
	if v := os.Getenv("ADW_PATTERN_FILE"); v != "" {
		if table, err := LoadPatternTable(v); err == nil {
			cfg.Patterns = table
		} else {
			log.Printf("failed to load pattern file %s, keeping defaults: %v", v, err)
		}
	}

	return cfg
}

// TriggerPattern pairs a compiled prompt-matching regular expression with the
// orchestrator context name it signals.
type TriggerPattern struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	re      *regexp.Regexp
}

// PatternTable is the matcher table the guard uses to classify a user prompt
// into an orchestrator context. The dispatcher does not use it: a tracker
// comment re-arms a work item only when its trimmed body equals
// Config.TriggerToken, compared case-insensitively, with no pattern matching.
type PatternTable struct {
	OrchestratorPatterns []TriggerPattern `yaml:"orchestrator_patterns"`
}

// DefaultPatternTable mirrors the trigger patterns of the hook this package
// replaces: a leading slash-command, a namespaced expert path, or the bare
// word "orchestrator" adjacent to "command".
func DefaultPatternTable() PatternTable {
	t := PatternTable{
		OrchestratorPatterns: []TriggerPattern{
			{Name: "do-router", Pattern: `^/do\b`},
			{Name: "workflow-orchestrator", Pattern: `^/workflows/orchestrator\b`},
			{Name: "expert-orchestrator", Pattern: `^/experts/orchestrators/`},
			{Name: "command-orchestrator", Pattern: `\borchestrator\b.*\bcommand\b`},
		},
	}
	t.mustCompile()
	return t
}

func (t *PatternTable) mustCompile() {
	for i := range t.OrchestratorPatterns {
		t.OrchestratorPatterns[i].re = regexp.MustCompile(`(?i)` + t.OrchestratorPatterns[i].Pattern)
	}
}

// Classify returns the name of the first orchestrator pattern matching
// prompt, or "" if none match.
func (t PatternTable) Classify(prompt string) string {
	for _, p := range t.OrchestratorPatterns {
		re := p.re
		if re == nil {
			re = regexp.MustCompile(`(?i)` + p.Pattern)
		}
		if re.MatchString(prompt) {
			return p.Name
		}
	}
	return ""
}

// LoadPatternTable reads a PatternTable from a YAML file and compiles every
// pattern. A pattern that fails to compile is dropped with a logged warning
// rather than failing the whole load.
func LoadPatternTable(path string) (PatternTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PatternTable{}, err
	}

	var t PatternTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return PatternTable{}, err
	}

	valid := t.OrchestratorPatterns[:0]
	for _, p := range t.OrchestratorPatterns {
		re, err := regexp.Compile(`(?i)` + p.Pattern)
		if err != nil {
			log.Printf("dropping pattern %q (%q): %v", p.Name, p.Pattern, err)
			continue
		}
		p.re = re
		valid = append(valid, p)
	}
	t.OrchestratorPatterns = valid

	return t, nil
}

// repoSlugFromGitRemote derives an "owner/repo" slug from the origin remote
// of the current working directory's repository, for operators who run adw
// from inside the repo it is driving rather than setting ADW_REPO_SLUG.
func repoSlugFromGitRemote() (string, error) {
	out, err := exec.Command("git", "remote", "get-url", "origin").Output()
	if err != nil {
		return "", err
	}
	owner, repo, err := repoutil.ParseGitHubRepoURL(strings.TrimSpace(string(out)))
	if err != nil {
		return "", err
	}
	return owner + "/" + repo, nil
}
