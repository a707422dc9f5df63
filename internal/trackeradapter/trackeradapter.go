// Package trackeradapter defines the work-item tracker interface the
// dispatcher depends on. The core orchestrator is adapter-agnostic: it knows
// only list_open_items/fetch_comments/fetch_details/set_status/comment/label
// semantics, never a specific tracker's wire format.
package trackeradapter

import (
	"context"
	"time"
)

// Status is a WorkItem's tracker-visible lifecycle state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Comment is one tracker comment on a work item.
type Comment struct {
	ID        string
	Body      string
	CreatedAt time.Time
}

// WorkItem is the external unit of work the dispatcher polls for. Its
// lifetime is owned entirely by the tracker; the orchestrator only reads and
// transitions status.
type WorkItem struct {
	ID                 string
	Title              string
	Body               string
	Priority           int
	Status             Status
	Assignee           string
	BlockedBy          []string
	CreatedAt          time.Time
	LatestCommentToken string
}

// Ready reports whether item is eligible for claim consideration: open and
// none of its dependencies are still outstanding. Dependency resolution
// against other items is the caller's responsibility, through blockedByDone;
// when blockedByDone is nil, an item with any BlockedBy entry is not ready.
func (w WorkItem) Ready(blockedByDone func(id string) bool) bool {
	if w.Status != StatusOpen {
		return false
	}
	for _, dep := range w.BlockedBy {
		if blockedByDone == nil || !blockedByDone(dep) {
			return false
		}
	}
	return true
}

// Adapter is the tracker operation set the dispatcher depends on. Any
// tracker-specific implementation (issue tracker CLI, REST API, etc.)
// satisfies this interface; the dispatcher never imports a concrete tracker
// package directly.
type Adapter interface {
	ListOpenItems(ctx context.Context) ([]WorkItem, error)
	FetchComments(ctx context.Context, id string) ([]Comment, error)
	FetchDetails(ctx context.Context, id string) (WorkItem, error)
	// SetStatus must be atomic: callers rely on exactly one concurrent
	// caller observing success when racing to claim the same item.
	SetStatus(ctx context.Context, id string, status Status, assignee string) error
	Comment(ctx context.Context, id string, body string) error
	Label(ctx context.Context, id string, add, remove []string) error
}
