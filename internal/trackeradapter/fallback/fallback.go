// Package fallback implements trackeradapter.Adapter on top of the same gh
// CLI surface as internal/trackeradapter/gh, but degrades to this path only
// when the primary adapter fails to respond — deliberately reduced surface
// (no priority-label parsing, no assignee propagation) so it keeps working
// when gh's richer --json queries are themselves the cause of the primary
// adapter's failure.
package fallback

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/adwhq/adw-orchestrator/internal/trackeradapter"
	"github.com/adwhq/adw-orchestrator/internal/trackeradapter/gh"
	"github.com/adwhq/adw-orchestrator/pkg/logger"
	"github.com/adwhq/adw-orchestrator/pkg/sliceutil"
)

var log = logger.New("trackeradapter:fallback")

// Adapter shells out to the gh CLI binary directly with plain-text output,
// avoiding go-gh/v2 and --json entirely.
type Adapter struct {
	Repo string
}

// New constructs a degraded-mode Adapter for repo.
func New(repo string) *Adapter { return &Adapter{Repo: repo} }

func (a *Adapter) run(args ...string) (string, error) {
	fullArgs := append([]string{}, args...)
	if a.Repo != "" {
		fullArgs = append(fullArgs, "--repo", a.Repo)
	}

	log.Printf("fallback gh %v", fullArgs)
	cmd := exec.Command("gh", fullArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gh %v: %w: %s", fullArgs, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// ListOpenItems lists open issue numbers and titles via plain-text output,
// assigning every item the same default priority — degraded mode trades
// ordering precision for resilience.
func (a *Adapter) ListOpenItems(ctx context.Context) ([]trackeradapter.WorkItem, error) {
	out, err := a.run("issue", "list", "--state", "open", "--limit", "200")
	if err != nil {
		return nil, err
	}

	var items []trackeradapter.WorkItem
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) < 2 {
			continue
		}
		items = append(items, trackeradapter.WorkItem{
			ID:       fields[0],
			Title:    fields[1],
			Status:   trackeradapter.StatusOpen,
			Priority: 100,
		})
	}
	return items, scanner.Err()
}

// FetchDetails fetches the issue body via plain-text output. The leading
// "state:" metadata line (present in gh's default plain-text rendering) is
// the only structured signal available in degraded mode, so it is the only
// one trusted beyond the raw body text.
func (a *Adapter) FetchDetails(ctx context.Context, id string) (trackeradapter.WorkItem, error) {
	out, err := a.run("issue", "view", id)
	if err != nil {
		return trackeradapter.WorkItem{}, err
	}

	status := trackeradapter.StatusOpen
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if sliceutil.ContainsIgnoreCase(line, "state:") && sliceutil.ContainsIgnoreCase(line, "closed") {
			status = trackeradapter.StatusDone
			break
		}
	}

	return trackeradapter.WorkItem{ID: id, Body: out, Status: status, Priority: 100, BlockedBy: gh.BlockedByFromBody(out)}, nil
}

// FetchComments is unsupported in degraded mode: plain-text gh issue view
// does not reliably separate comment boundaries. Callers fall back to
// treating the item as having no comments, which is the conservative,
// always-qualifying case for dispatch selection.
func (a *Adapter) FetchComments(ctx context.Context, id string) ([]trackeradapter.Comment, error) {
	return nil, nil
}

// SetStatus adds or removes the in-progress label via plain gh issue edit.
func (a *Adapter) SetStatus(ctx context.Context, id string, status trackeradapter.Status, assignee string) error {
	switch status {
	case trackeradapter.StatusInProgress:
		_, err := a.run("issue", "edit", id, "--add-label", "in-progress")
		return err
	case trackeradapter.StatusOpen:
		_, err := a.run("issue", "edit", id, "--remove-label", "in-progress")
		return err
	default:
		return nil
	}
}

// Comment posts body as a new comment on issue id.
func (a *Adapter) Comment(ctx context.Context, id string, body string) error {
	_, err := a.run("issue", "comment", id, "--body", body)
	return err
}

// Label adds and removes labels via plain gh issue edit.
func (a *Adapter) Label(ctx context.Context, id string, add, remove []string) error {
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	args := []string{"issue", "edit", id}
	for _, l := range add {
		args = append(args, "--add-label", l)
	}
	for _, l := range remove {
		args = append(args, "--remove-label", l)
	}
	_, err := a.run(args...)
	return err
}

var _ trackeradapter.Adapter = (*Adapter)(nil)
