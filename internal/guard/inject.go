package guard

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/adwhq/adw-orchestrator/internal/depindex"
)

// stopWords are path segments too generic to make useful search terms.
var stopWords = map[string]bool{
	"src": true, "internal": true, "pkg": true, "lib": true, "app": true,
	"test": true, "tests": true, "cmd": true, "index": true, "main": true,
}

// filePathPatterns extract likely file paths out of free-form agent-spawn
// prompt text: explicit extensions, and common directory-prefixed paths.
var filePathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[a-zA-Z0-9_\-./]+\.(?:go|ts|tsx|js|jsx|py|rs|java|rb)\b`),
	regexp.MustCompile(`\bsrc/[a-zA-Z0-9_\-./]+`),
	regexp.MustCompile(`\bapp/[a-zA-Z0-9_\-./]+`),
	regexp.MustCompile(`\btests?/[a-zA-Z0-9_\-./]+`),
	regexp.MustCompile(`\blib/[a-zA-Z0-9_\-./]+`),
}

// ExtractFilePaths pulls up to max unique candidate file paths out of text,
// matching the pre-spawn injector's own heuristics.
func ExtractFilePaths(text string, max int) []string {
	seen := map[string]bool{}
	var paths []string

	for _, re := range filePathPatterns {
		for _, m := range re.FindAllString(text, -1) {
			clean := strings.Trim(m, "./")
			if clean == "" || seen[clean] {
				continue
			}
			seen[clean] = true
			paths = append(paths, clean)
			if len(paths) >= max {
				return paths
			}
		}
	}
	return paths
}

// SearchTermsFromPath derives memory-index search terms from a workspace
// path: its directory segments and file stem, filtered against stopWords.
func SearchTermsFromPath(path string) []string {
	var terms []string
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for _, seg := range segments {
		seg = strings.TrimSuffix(seg, extOf(seg))
		seg = strings.ToLower(seg)
		if seg == "" || stopWords[seg] {
			continue
		}
		terms = append(terms, seg)
	}
	return terms
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

// DependencyAlert is the formatted advisory injected before a file-mutating
// tool runs against a path that has known dependents.
type DependencyAlert struct {
	Path       string
	Dependents []string
	Truncated  bool
}

// Text renders the alert as the compact advisory text injected into the
// agent's context — kept well under the ~500 token budget by capping the
// file list.
func (a DependencyAlert) Text() string {
	if len(a.Dependents) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[dependency-alert] %s has %s depending on it:\n", a.Path, formatCount(len(a.Dependents)))
	for _, d := range a.Dependents {
		fmt.Fprintf(&b, "  - %s\n", d)
	}
	if a.Truncated {
		b.WriteString("  ... (list truncated)\n")
	}
	return b.String()
}

// MemoryAdvisory is the formatted advisory assembled from related failures
// and decisions.
type MemoryAdvisory struct {
	Failures  []depindex.MemoryHit
	Decisions []depindex.MemoryHit
}

// Text renders the advisory, or "" if there is nothing to report.
func (m MemoryAdvisory) Text() string {
	if len(m.Failures) == 0 && len(m.Decisions) == 0 {
		return ""
	}
	var b strings.Builder
	if len(m.Failures) > 0 {
		b.WriteString("[memory] Related past failures:\n")
		for _, f := range m.Failures {
			fmt.Fprintf(&b, "  - %s\n", f.Summary)
		}
	}
	if len(m.Decisions) > 0 {
		b.WriteString("[memory] Related prior decisions:\n")
		for _, d := range m.Decisions {
			fmt.Fprintf(&b, "  - %s\n", d.Summary)
		}
	}
	return b.String()
}

// Injector gathers dependency and memory context ahead of a file-mutating
// tool call or an agent spawn. Every query goes through a shared client and
// is bounded by the caller-supplied caps; any index failure degrades to an
// empty advisory rather than an error.
type Injector struct {
	Index            depindex.Client
	DependentFileCap int
	MemoryHitLimit   int
	AgentFileCap     int
}

// PreEdit gathers the dependency and memory advisory for a single
// file-mutating tool target, mirroring the pre-edit-context and
// memory-recall hooks. Both queries run concurrently under ctx.
func (inj Injector) PreEdit(ctx context.Context, path string) (DependencyAlert, MemoryAdvisory) {
	var alert DependencyAlert
	var advisory MemoryAdvisory

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		result := inj.Index.Deps(gctx, path, 1)
		dependents := result.Dependents
		truncated := false
		if inj.DependentFileCap > 0 && len(dependents) > inj.DependentFileCap {
			dependents = dependents[:inj.DependentFileCap]
			truncated = true
		}
		alert = DependencyAlert{Path: path, Dependents: dependents, Truncated: truncated}
		return nil
	})

	g.Go(func() error {
		terms := SearchTermsFromPath(path)
		if len(terms) == 0 {
			return nil
		}
		query := strings.Join(terms, " ")
		advisory = MemoryAdvisory{
			Failures:  inj.Index.SearchFailures(gctx, query, inj.MemoryHitLimit),
			Decisions: inj.Index.SearchDecisions(gctx, query, inj.MemoryHitLimit),
		}
		return nil
	})

	_ = g.Wait()
	return alert, advisory
}

// AgentContext gathers the consolidated dependency context for a pre-spawn
// hook: it extracts candidate file paths out of the spawn prompt and queries
// dependents for each, in parallel, capped to inj.AgentFileCap total files in
// the resulting advisory.
func (inj Injector) AgentContext(ctx context.Context, prompt string) []DependencyAlert {
	paths := ExtractFilePaths(prompt, 5)
	if len(paths) == 0 {
		return nil
	}

	results := make([]DependencyAlert, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			r := inj.Index.Deps(gctx, p, 1)
			results[i] = DependencyAlert{Path: p, Dependents: r.Dependents}
			return nil
		})
	}
	_ = g.Wait()

	var alerts []DependencyAlert
	budget := inj.AgentFileCap
	capped := budget > 0
	for _, a := range results {
		if len(a.Dependents) == 0 {
			continue
		}
		if capped {
			if budget <= 0 {
				break
			}
			if len(a.Dependents) > budget {
				a.Dependents = a.Dependents[:budget]
				a.Truncated = true
			}
			budget -= len(a.Dependents)
		}
		alerts = append(alerts, a)
	}
	return alerts
}

// formatCount is a small helper used by DependencyAlert.Text to render the
// dependent-file count ("3 files", "1 file").
func formatCount(n int) string {
	if n == 1 {
		return "1 file"
	}
	return strconv.Itoa(n) + " files"
}
