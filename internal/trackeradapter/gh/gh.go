// Package gh implements trackeradapter.Adapter on top of the gh CLI via
// go-gh/v2, treating GitHub issues as work items. It is the primary
// tracker adapter; internal/trackeradapter/fallback provides a degraded-mode
// substitute when this adapter is unavailable.
package gh

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	ghlib "github.com/cli/go-gh/v2"

	"github.com/adwhq/adw-orchestrator/internal/trackeradapter"
	"github.com/adwhq/adw-orchestrator/pkg/gitutil"
	"github.com/adwhq/adw-orchestrator/pkg/logger"
	"github.com/adwhq/adw-orchestrator/pkg/ratelimit"
	"github.com/adwhq/adw-orchestrator/pkg/stringutil"
)

var log = logger.New("trackeradapter:gh")

// Adapter wraps gh CLI issue operations for one repository, identified as
// "owner/repo".
type Adapter struct {
	Repo string
	// PriorityLabelPrefix names the label convention priority is read from,
	// e.g. "priority:1". Lower numeric suffix is higher priority; issues
	// without a matching label default to LowestPriority.
	PriorityLabelPrefix string
	// LowestPriority is assigned to issues with no recognised priority label.
	LowestPriority int
}

// New constructs an Adapter for repo with conventional defaults.
func New(repo string) *Adapter {
	return &Adapter{Repo: repo, PriorityLabelPrefix: "priority:", LowestPriority: 100}
}

// exec shells out to gh, bounded by a token-bucket limiter shared across the
// process: the dispatcher's poll loop and any concurrent run's status
// updates all compete for the same GitHub API budget.
func (a *Adapter) exec(ctx context.Context, args ...string) ([]byte, error) {
	if err := ratelimit.Wait(ctx, ratelimit.OperationGitHubAPI); err != nil {
		return nil, fmt.Errorf("rate limit wait for gh %v: %w", args, err)
	}

	fullArgs := append([]string{}, args...)
	if a.Repo != "" {
		fullArgs = append(fullArgs, "--repo", a.Repo)
	}

	ghToken := os.Getenv("GH_TOKEN")
	githubToken := os.Getenv("GITHUB_TOKEN")
	if ghToken == "" && githubToken != "" {
		if err := os.Setenv("GH_TOKEN", githubToken); err != nil {
			log.Printf("could not propagate GITHUB_TOKEN to GH_TOKEN: %v", err)
		}
	}

	log.Printf("gh %v", fullArgs)
	stdout, stderr, err := ghlib.Exec(fullArgs...)
	if err != nil {
		msg := stringutil.SanitizeErrorMessage(stderr.String())
		if gitutil.IsAuthError(msg) {
			return nil, fmt.Errorf("gh %v: authentication error: %w: %s", fullArgs, err, msg)
		}
		return nil, fmt.Errorf("gh %v: %w: %s", fullArgs, err, msg)
	}
	return stdout.Bytes(), nil
}

type issueJSON struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	Assignees []struct {
		Login string `json:"login"`
	} `json:"assignees"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// ListOpenItems lists all open issues in the repository as WorkItems.
func (a *Adapter) ListOpenItems(ctx context.Context) ([]trackeradapter.WorkItem, error) {
	out, err := a.exec(ctx, "issue", "list", "--state", "open", "--limit", "200",
		"--json", "number,title,body,state,createdAt,assignees,labels")
	if err != nil {
		return nil, err
	}

	var issues []issueJSON
	if err := json.Unmarshal(out, &issues); err != nil {
		return nil, fmt.Errorf("parse gh issue list output: %w", err)
	}

	items := make([]trackeradapter.WorkItem, 0, len(issues))
	for _, iss := range issues {
		items = append(items, a.toWorkItem(iss))
	}
	return items, nil
}

// FetchDetails fetches the full state of a single issue.
func (a *Adapter) FetchDetails(ctx context.Context, id string) (trackeradapter.WorkItem, error) {
	out, err := a.exec(ctx, "issue", "view", id, "--json", "number,title,body,state,createdAt,assignees,labels")
	if err != nil {
		return trackeradapter.WorkItem{}, err
	}

	var iss issueJSON
	if err := json.Unmarshal(out, &iss); err != nil {
		return trackeradapter.WorkItem{}, fmt.Errorf("parse gh issue view output: %w", err)
	}
	return a.toWorkItem(iss), nil
}

func (a *Adapter) toWorkItem(iss issueJSON) trackeradapter.WorkItem {
	status := trackeradapter.StatusOpen
	if iss.State != "OPEN" && iss.State != "open" {
		status = trackeradapter.StatusDone
	}

	assignee := ""
	if len(iss.Assignees) > 0 {
		assignee = iss.Assignees[0].Login
	}

	priority := a.LowestPriority
	for _, l := range iss.Labels {
		if n, ok := priorityFromLabel(l.Name, a.PriorityLabelPrefix); ok {
			priority = n
			break
		}
	}

	return trackeradapter.WorkItem{
		ID:        strconv.Itoa(iss.Number),
		Title:     iss.Title,
		Body:      iss.Body,
		Priority:  priority,
		Status:    status,
		Assignee:  assignee,
		BlockedBy: BlockedByFromBody(iss.Body),
		CreatedAt: iss.CreatedAt,
	}
}

// blockedByPattern matches the GitHub dependency conventions this adapter
// recognises in an issue body: "Blocked by #12", "Depends on #12, #34", and
// unchecked task-list items that reference another issue ("- [ ] #12 ...").
// No beads-style dependency database is available here, so the issue body
// itself is the only dependency surface the gh adapter has to work with.
var (
	blockedByPattern = regexp.MustCompile(`(?im)^(?:blocked by|depends on|blocks on)\s*:?\s*(#\d+(?:\s*,\s*#\d+)*)|^-\s*\[ \]\s*#(\d+)`)
	issueRefPattern  = regexp.MustCompile(`#(\d+)`)
)

// BlockedByFromBody extracts the set of issue numbers body declares this
// issue depends on, deduplicated and in first-seen order. Exported so the
// fallback adapter can apply the same body convention to its own
// plain-text issue view output.
func BlockedByFromBody(body string) []string {
	var ids []string
	seen := map[string]bool{}
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	for _, match := range blockedByPattern.FindAllStringSubmatch(body, -1) {
		switch {
		case match[1] != "":
			for _, ref := range issueRefPattern.FindAllStringSubmatch(match[1], -1) {
				add(ref[1])
			}
		case match[2] != "":
			add(match[2])
		}
	}
	return ids
}

func priorityFromLabel(label, prefix string) (int, bool) {
	if len(label) <= len(prefix) || label[:len(prefix)] != prefix {
		return 0, false
	}
	n, err := strconv.Atoi(label[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}

type commentJSON struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// FetchComments returns all comments on issue id in chronological order.
func (a *Adapter) FetchComments(ctx context.Context, id string) ([]trackeradapter.Comment, error) {
	out, err := a.exec(ctx, "issue", "view", id, "--json", "comments")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Comments []commentJSON `json:"comments"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, fmt.Errorf("parse gh issue comments output: %w", err)
	}

	comments := make([]trackeradapter.Comment, 0, len(payload.Comments))
	for _, c := range payload.Comments {
		comments = append(comments, trackeradapter.Comment{ID: c.ID, Body: c.Body, CreatedAt: c.CreatedAt})
	}
	return comments, nil
}

// SetStatus maps in-progress to an "in-progress" label plus assignee; open
// removes that label and, when the caller knows who held the claim, that
// assignee too — otherwise a reverted claim leaves the issue permanently
// assigned to whichever worker claimed it first. gh issue edit is not itself
// a compare-and-swap; internal/dispatcher recovers claim-uniqueness by
// re-reading the issue's assignee immediately after this call and treating a
// mismatch as a lost race.
func (a *Adapter) SetStatus(ctx context.Context, id string, status trackeradapter.Status, assignee string) error {
	args := []string{"issue", "edit", id}
	switch status {
	case trackeradapter.StatusInProgress:
		args = append(args, "--add-label", "in-progress")
		if assignee != "" {
			args = append(args, "--add-assignee", assignee)
		}
	case trackeradapter.StatusOpen:
		args = append(args, "--remove-label", "in-progress")
		if assignee != "" {
			args = append(args, "--remove-assignee", assignee)
		}
	case trackeradapter.StatusBlocked:
		args = append(args, "--add-label", "blocked", "--remove-label", "in-progress")
		if assignee != "" {
			args = append(args, "--remove-assignee", assignee)
		}
	}

	_, err := a.exec(ctx, args...)
	return err
}

// Comment posts body as a new comment on issue id.
func (a *Adapter) Comment(ctx context.Context, id string, body string) error {
	_, err := a.exec(ctx, "issue", "comment", id, "--body", body)
	return err
}

// Label adds and removes labels on issue id in a single edit call.
func (a *Adapter) Label(ctx context.Context, id string, add, remove []string) error {
	args := []string{"issue", "edit", id}
	for _, l := range add {
		args = append(args, "--add-label", l)
	}
	for _, l := range remove {
		args = append(args, "--remove-label", l)
	}
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	_, err := a.exec(ctx, args...)
	return err
}

var _ trackeradapter.Adapter = (*Adapter)(nil)
