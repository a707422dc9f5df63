// Package dispatcher implements the polling dispatcher (C5): a single
// cooperative loop that polls a work-item tracker, claims qualifying items,
// and launches independent WorkflowRuns without blocking on their
// completion.
package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/adwhq/adw-orchestrator/internal/exitcode"
	"github.com/adwhq/adw-orchestrator/internal/sequencer"
	"github.com/adwhq/adw-orchestrator/internal/trackeradapter"
	"github.com/adwhq/adw-orchestrator/pkg/logger"
)

var log = logger.New("dispatcher")

// RunLauncher spawns a WorkflowRun for item and returns its terminal
// Outcome. It is expected to block until the run completes; the Dispatcher
// is what keeps polling non-blocking, by running each RunLauncher call in
// its own pooled goroutine.
type RunLauncher func(ctx context.Context, item trackeradapter.WorkItem, runID string) sequencer.Outcome

// RunIDFunc derives a fresh run id for item.
type RunIDFunc func(item trackeradapter.WorkItem) (string, error)

// Config bounds and tunes one Dispatcher.
type Config struct {
	PollInterval time.Duration
	TriggerToken string
	WorkerID     string
	RetryBound   int
	// MaxConcurrentRuns bounds how many WorkflowRuns may be in flight at
	// once; zero means unbounded.
	MaxConcurrentRuns int
}

// Dispatcher owns the live-runs map, the last-triggered map, and the poll
// loop. It is not safe for concurrent use by more than one goroutine calling
// Run.
type Dispatcher struct {
	cfg     Config
	primary trackeradapter.Adapter
	// fallback is consulted only when primary fails outright (degraded
	// mode); nil disables degraded mode.
	fallback trackeradapter.Adapter
	launch   RunLauncher
	newRunID RunIDFunc

	mu             sync.Mutex
	liveRuns       map[string]string
	lastTriggered  map[string]string
	resourceStrike map[string]int

	pool *pool.Pool

	// PauseCheck, if set, is consulted at the start of every poll cycle; a
	// true result skips claiming new work for that cycle. Wired to the
	// orchestrator-context state so an interactive orchestrator session
	// doesn't race the dispatcher over the same worktree root.
	PauseCheck func() bool
}

// New constructs a Dispatcher. fallback may be nil to disable degraded mode.
func New(cfg Config, primary, fallback trackeradapter.Adapter, launch RunLauncher, newRunID RunIDFunc) *Dispatcher {
	p := pool.New()
	if cfg.MaxConcurrentRuns > 0 {
		p = p.WithMaxGoroutines(cfg.MaxConcurrentRuns)
	}

	return &Dispatcher{
		cfg:            cfg,
		primary:        primary,
		fallback:       fallback,
		launch:         launch,
		newRunID:       newRunID,
		liveRuns:       map[string]string{},
		lastTriggered:  map[string]string{},
		resourceStrike: map[string]int{},
		pool:           p,
	}
}

// Run polls until ctx is cancelled, performing a graceful shutdown: the
// current poll cycle finishes (no new claims begin mid-cycle), in-flight
// runs are awaited, and Run returns only once every launched run has
// terminated.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	log.Printf("starting poll loop at interval %s", d.cfg.PollInterval)
	d.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("shutdown signal received, waiting for in-flight runs to finish")
			d.pool.Wait()
			log.Printf("all in-flight runs finished, exiting")
			return
		case <-ticker.C:
			d.pollOnce(ctx)
		}
	}
}

// pollOnce runs exactly one selection+claim+launch cycle. ctx is checked
// before each claim: once it is cancelled no further claim in the cycle
// begins, while a claim already under way completes.
func (d *Dispatcher) pollOnce(ctx context.Context) {
	if d.PauseCheck != nil && d.PauseCheck() {
		log.Printf("orchestrator context active, skipping this poll cycle")
		return
	}

	tracker, degraded := d.activeTracker(ctx)
	if tracker == nil {
		log.Printf("no tracker adapter available this cycle, skipping")
		return
	}
	if degraded {
		log.Printf("primary tracker adapter unavailable, using fallback adapter for this cycle")
	}

	items, err := tracker.ListOpenItems(ctx)
	if err != nil {
		log.Printf("list open items failed: %v", err)
		return
	}

	qualifying := d.selectQualifying(ctx, tracker, items)
	for _, item := range qualifying {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.claimAndLaunch(ctx, tracker, item)
	}
}

// activeTracker returns the primary adapter, or the fallback if the primary
// fails to answer a cheap liveness probe (ListOpenItems is used as the probe
// itself, so a failed primary call falls through to fallback within the same
// cycle rather than needing a separate health check).
func (d *Dispatcher) activeTracker(ctx context.Context) (trackeradapter.Adapter, bool) {
	if d.primary == nil {
		return d.fallback, d.fallback != nil
	}
	if _, err := d.primary.ListOpenItems(ctx); err != nil {
		log.Printf("primary tracker probe failed: %v", err)
		if d.fallback != nil {
			return d.fallback, true
		}
		return nil, false
	}
	return d.primary, false
}

// selectQualifying filters items to those eligible for dispatch and sorts
// them by (priority ascending, created-at ascending). Eligibility requires
// WorkItem.Ready: the item itself must be open, and every id in its
// BlockedBy list must resolve to a done dependency.
func (d *Dispatcher) selectQualifying(ctx context.Context, tracker trackeradapter.Adapter, items []trackeradapter.WorkItem) []trackeradapter.WorkItem {
	done := d.blockedByDoneLookup(ctx, tracker, items)

	var qualifying []trackeradapter.WorkItem
	for _, item := range items {
		if !item.Ready(done) {
			continue
		}
		if d.qualifies(ctx, tracker, item) {
			qualifying = append(qualifying, item)
		}
	}

	sort.SliceStable(qualifying, func(i, j int) bool {
		if qualifying[i].Priority != qualifying[j].Priority {
			return qualifying[i].Priority < qualifying[j].Priority
		}
		return qualifying[i].CreatedAt.Before(qualifying[j].CreatedAt)
	})
	return qualifying
}

// blockedByDoneLookup returns a function reporting whether a dependency id is
// done. It is seeded from the polled item set (covering the common case where
// a dependency is itself an open/in-progress/blocked tracker item in the same
// poll) and falls back to FetchDetails for ids the poll didn't return at all
// — e.g. a dependency that was already closed and so no longer appears in
// ListOpenItems.
func (d *Dispatcher) blockedByDoneLookup(ctx context.Context, tracker trackeradapter.Adapter, items []trackeradapter.WorkItem) func(id string) bool {
	known := make(map[string]trackeradapter.Status, len(items))
	for _, item := range items {
		known[item.ID] = item.Status
	}

	resolved := make(map[string]bool)
	return func(id string) bool {
		if done, ok := resolved[id]; ok {
			return done
		}
		if status, ok := known[id]; ok {
			done := status == trackeradapter.StatusDone
			resolved[id] = done
			return done
		}

		details, err := tracker.FetchDetails(ctx, id)
		if err != nil {
			log.Printf("could not resolve dependency %s, treating as not done: %v", id, err)
			resolved[id] = false
			return false
		}
		done := details.Status == trackeradapter.StatusDone
		resolved[id] = done
		return done
	}
}

// qualifies implements the selection rule: no comments at all, or the latest
// comment's body matches the trigger token and its id has not already
// triggered a run for this item.
func (d *Dispatcher) qualifies(ctx context.Context, tracker trackeradapter.Adapter, item trackeradapter.WorkItem) bool {
	comments, err := tracker.FetchComments(ctx, item.ID)
	if err != nil {
		log.Printf("fetch comments for %s failed, treating as no comments: %v", item.ID, err)
		return true
	}
	if len(comments) == 0 {
		return true
	}

	latest := comments[len(comments)-1]
	body := strings.ToLower(strings.TrimSpace(latest.Body))
	if body != strings.ToLower(strings.TrimSpace(d.cfg.TriggerToken)) {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastTriggered[item.ID] == latest.ID {
		return false
	}
	d.lastTriggered[item.ID] = latest.ID
	return true
}

// claimAndLaunch attempts the atomic claim transition and, on success,
// launches a WorkflowRun in the pool without waiting for it.
func (d *Dispatcher) claimAndLaunch(ctx context.Context, tracker trackeradapter.Adapter, item trackeradapter.WorkItem) {
	if err := tracker.SetStatus(ctx, item.ID, trackeradapter.StatusInProgress, d.cfg.WorkerID); err != nil {
		log.Printf("claim for %s lost or failed, skipping: %v", item.ID, err)
		return
	}

	if d.cfg.WorkerID != "" {
		details, err := tracker.FetchDetails(ctx, item.ID)
		if err != nil {
			log.Printf("could not verify claim for %s, skipping: %v", item.ID, err)
			return
		}
		if details.Assignee != "" && details.Assignee != d.cfg.WorkerID {
			log.Printf("lost claim race for %s: assigned to %s instead of %s, skipping", item.ID, details.Assignee, d.cfg.WorkerID)
			return
		}
	}

	runID, err := d.newRunID(item)
	if err != nil {
		log.Printf("could not derive run id for %s, reverting claim: %v", item.ID, err)
		if revertErr := tracker.SetStatus(ctx, item.ID, trackeradapter.StatusOpen, d.cfg.WorkerID); revertErr != nil {
			log.Printf("failed to revert claim for %s: %v", item.ID, revertErr)
		}
		return
	}

	d.mu.Lock()
	d.liveRuns[item.ID] = runID
	d.mu.Unlock()

	log.Printf("claimed %s, launching run %s", item.ID, runID)
	// The run and its outcome accounting are not cancelled with ctx, so a
	// shutdown lets in-flight runs and their phases finish.
	runCtx := context.WithoutCancel(ctx)
	d.pool.Go(func() {
		outcome := d.launch(runCtx, item, runID)
		d.handleOutcome(runCtx, tracker, item, runID, outcome)
	})
}

// handleOutcome applies the outcome-accounting rules from the spec's error
// handling design: success posts a summary and leaves the item in-progress;
// blocker and resource-band failures (past the retry bound) revert to open;
// validation and execution failures leave the claim in place, awaiting a
// re-trigger comment.
func (d *Dispatcher) handleOutcome(ctx context.Context, tracker trackeradapter.Adapter, item trackeradapter.WorkItem, runID string, outcome sequencer.Outcome) {
	d.mu.Lock()
	delete(d.liveRuns, item.ID)
	d.mu.Unlock()

	switch {
	case outcome.State == sequencer.StateSucceeded:
		d.mu.Lock()
		d.resourceStrike[item.ID] = 0
		d.mu.Unlock()
		d.comment(ctx, tracker, item.ID, fmt.Sprintf("[adw] run %s succeeded.", runID))

	case exitcode.IsBlocker(outcome.Code):
		d.revertToOpen(ctx, tracker, item, runID, outcome)

	case exitcode.IsResourceFailure(outcome.Code):
		d.mu.Lock()
		d.resourceStrike[item.ID]++
		strikes := d.resourceStrike[item.ID]
		d.mu.Unlock()

		if strikes >= d.retryBound() {
			log.Printf("run %s for %s exhausted resource-failure retry bound (%d), demoting to blocker", runID, item.ID, strikes)
			d.revertToOpen(ctx, tracker, item, runID, outcome)
			return
		}
		d.comment(ctx, tracker, item.ID, fmt.Sprintf(
			"[adw] run %s hit a resource failure (%s), phase %s. Will retry automatically (%d/%d).",
			runID, exitcode.Description(outcome.Code), outcome.FailedPhase, strikes, d.retryBound()))

	case exitcode.IsValidationFailure(outcome.Code):
		d.comment(ctx, tracker, item.ID, fmt.Sprintf(
			"[adw] run %s: %s in phase %s. Comment `%s` to re-trigger once addressed.",
			runID, exitcode.Description(outcome.Code), outcome.FailedPhase, d.cfg.TriggerToken))

	case exitcode.IsExecutionFailure(outcome.Code):
		d.comment(ctx, tracker, item.ID, fmt.Sprintf(
			"[adw] run %s: %s in phase %s. Retry advised — comment `%s` to re-trigger.",
			runID, exitcode.Description(outcome.Code), outcome.FailedPhase, d.cfg.TriggerToken))

	default:
		log.Printf("run %s for %s terminated with unrecognised code %d", runID, item.ID, outcome.Code)
	}
}

func (d *Dispatcher) revertToOpen(ctx context.Context, tracker trackeradapter.Adapter, item trackeradapter.WorkItem, runID string, outcome sequencer.Outcome) {
	if err := tracker.SetStatus(ctx, item.ID, trackeradapter.StatusOpen, d.cfg.WorkerID); err != nil {
		log.Printf("failed to revert %s to open after run %s: %v", item.ID, runID, err)
	}
	d.comment(ctx, tracker, item.ID, fmt.Sprintf(
		"[adw] run %s failed: %s in phase %s.", runID, exitcode.Description(outcome.Code), outcome.FailedPhase))
}

func (d *Dispatcher) comment(ctx context.Context, tracker trackeradapter.Adapter, id, body string) {
	if err := tracker.Comment(ctx, id, body); err != nil {
		log.Printf("failed to comment on %s: %v", id, err)
	}
}

func (d *Dispatcher) retryBound() int {
	if d.cfg.RetryBound <= 0 {
		return 5
	}
	return d.cfg.RetryBound
}

// LiveRuns returns a snapshot of the item→run-id map for in-flight runs.
func (d *Dispatcher) LiveRuns() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.liveRuns))
	for k, v := range d.liveRuns {
		out[k] = v
	}
	return out
}
