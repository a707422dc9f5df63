package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adwhq/adw-orchestrator/internal/exitcode"
	"github.com/adwhq/adw-orchestrator/internal/sequencer"
	"github.com/adwhq/adw-orchestrator/internal/trackeradapter"
)

type fakeTracker struct {
	mu       sync.Mutex
	items    []trackeradapter.WorkItem
	comments map[string][]trackeradapter.Comment
	statuses map[string]trackeradapter.Status
	assignee map[string]string
	comment  []string
	listErr  error
}

func newFakeTracker(items ...trackeradapter.WorkItem) *fakeTracker {
	f := &fakeTracker{
		comments: map[string][]trackeradapter.Comment{},
		statuses: map[string]trackeradapter.Status{},
		assignee: map[string]string{},
	}
	for _, it := range items {
		f.items = append(f.items, it)
		f.statuses[it.ID] = it.Status
	}
	return f
}

func (f *fakeTracker) ListOpenItems(ctx context.Context) ([]trackeradapter.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []trackeradapter.WorkItem
	for _, it := range f.items {
		it.Status = f.statuses[it.ID]
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeTracker) FetchComments(ctx context.Context, id string) ([]trackeradapter.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments[id], nil
}

func (f *fakeTracker) FetchDetails(ctx context.Context, id string) (trackeradapter.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.ID == id {
			it.Status = f.statuses[id]
			it.Assignee = f.assignee[id]
			return it, nil
		}
	}
	return trackeradapter.WorkItem{}, fmt.Errorf("not found")
}

// SetStatus mimics gh's "add assignee" semantics (additive, not a real
// compare-and-swap): the first caller to claim an item keeps its assignee
// even if a later caller also calls SetStatus with a different one — the
// race resolution happens one level up, via the dispatcher's post-claim
// FetchDetails re-check.
func (f *fakeTracker) SetStatus(ctx context.Context, id string, status trackeradapter.Status, assignee string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	if status == trackeradapter.StatusInProgress {
		if _, already := f.assignee[id]; !already {
			f.assignee[id] = assignee
		}
	} else {
		delete(f.assignee, id)
	}
	return nil
}

func (f *fakeTracker) Comment(ctx context.Context, id string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comment = append(f.comment, id+": "+body)
	return nil
}

func (f *fakeTracker) Label(ctx context.Context, id string, add, remove []string) error { return nil }

func (f *fakeTracker) statusOf(id string) trackeradapter.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

func (f *fakeTracker) commentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.comment)
}

func runIDFor(item trackeradapter.WorkItem) (string, error) {
	return "run-" + item.ID, nil
}

func TestSelectQualifying_OrdersByPriorityThenCreatedAt(t *testing.T) {
	tracker := newFakeTracker(
		trackeradapter.WorkItem{ID: "a", Status: trackeradapter.StatusOpen, Priority: 2, CreatedAt: time.Unix(200, 0)},
		trackeradapter.WorkItem{ID: "b", Status: trackeradapter.StatusOpen, Priority: 1, CreatedAt: time.Unix(100, 0)},
		trackeradapter.WorkItem{ID: "c", Status: trackeradapter.StatusOpen, Priority: 1, CreatedAt: time.Unix(50, 0)},
	)
	d := New(Config{TriggerToken: "adw"}, tracker, nil, nil, runIDFor)

	items, _ := tracker.ListOpenItems(context.Background())
	qualifying := d.selectQualifying(context.Background(), tracker, items)

	require.Len(t, qualifying, 3)
	require.Equal(t, []string{"c", "b", "a"}, []string{qualifying[0].ID, qualifying[1].ID, qualifying[2].ID})
}

func TestQualifies_NoCommentsAlwaysQualifies(t *testing.T) {
	tracker := newFakeTracker(trackeradapter.WorkItem{ID: "1", Status: trackeradapter.StatusOpen})
	d := New(Config{TriggerToken: "adw"}, tracker, nil, nil, runIDFor)

	require.True(t, d.qualifies(context.Background(), tracker, trackeradapter.WorkItem{ID: "1"}))
}

func TestQualifies_TriggerTokenIdempotency(t *testing.T) {
	tracker := newFakeTracker(trackeradapter.WorkItem{ID: "1", Status: trackeradapter.StatusOpen})
	tracker.comments["1"] = []trackeradapter.Comment{{ID: "c1", Body: "ADW"}}
	d := New(Config{TriggerToken: "adw"}, tracker, nil, nil, runIDFor)

	require.True(t, d.qualifies(context.Background(), tracker, trackeradapter.WorkItem{ID: "1"}))
	// Same comment id observed again must not re-trigger.
	require.False(t, d.qualifies(context.Background(), tracker, trackeradapter.WorkItem{ID: "1"}))
}

func TestQualifies_NonTriggerCommentDoesNotQualify(t *testing.T) {
	tracker := newFakeTracker(trackeradapter.WorkItem{ID: "1", Status: trackeradapter.StatusOpen})
	tracker.comments["1"] = []trackeradapter.Comment{{ID: "c1", Body: "looks good"}}
	d := New(Config{TriggerToken: "adw"}, tracker, nil, nil, runIDFor)

	require.False(t, d.qualifies(context.Background(), tracker, trackeradapter.WorkItem{ID: "1"}))
}

func TestClaimAndLaunch_SuccessCommentsAndLeavesInProgress(t *testing.T) {
	tracker := newFakeTracker(trackeradapter.WorkItem{ID: "1", Status: trackeradapter.StatusOpen})
	launched := make(chan struct{})
	launch := func(ctx context.Context, item trackeradapter.WorkItem, runID string) sequencer.Outcome {
		defer close(launched)
		return sequencer.Outcome{State: sequencer.StateSucceeded, Code: exitcode.Success}
	}
	d := New(Config{TriggerToken: "adw", WorkerID: "worker-1"}, tracker, nil, launch, runIDFor)

	d.claimAndLaunch(context.Background(), tracker, trackeradapter.WorkItem{ID: "1"})
	<-launched
	d.pool.Wait()

	require.Equal(t, trackeradapter.StatusInProgress, tracker.statusOf("1"))
	require.Equal(t, 1, tracker.commentCount())
}

func TestClaimAndLaunch_LostRaceSkipsLaunch(t *testing.T) {
	tracker := newFakeTracker(trackeradapter.WorkItem{ID: "1", Status: trackeradapter.StatusOpen})
	launchCalled := false
	launch := func(ctx context.Context, item trackeradapter.WorkItem, runID string) sequencer.Outcome {
		launchCalled = true
		return sequencer.Outcome{State: sequencer.StateSucceeded}
	}
	d := New(Config{TriggerToken: "adw", WorkerID: "worker-1"}, tracker, nil, launch, runIDFor)

	// Simulate a competitor already having claimed the item for a different worker.
	tracker.assignee["1"] = "worker-2"
	tracker.statuses["1"] = trackeradapter.StatusInProgress

	d.claimAndLaunch(context.Background(), tracker, trackeradapter.WorkItem{ID: "1"})
	d.pool.Wait()

	require.False(t, launchCalled)
}

func TestHandleOutcome_BlockerRevertsToOpen(t *testing.T) {
	tracker := newFakeTracker(trackeradapter.WorkItem{ID: "1", Status: trackeradapter.StatusInProgress})
	tracker.statuses["1"] = trackeradapter.StatusInProgress
	d := New(Config{TriggerToken: "adw"}, tracker, nil, nil, runIDFor)

	outcome := sequencer.Outcome{State: sequencer.StateFailed, Code: exitcode.BlockerMissingWorktree, FailedPhase: "build"}
	d.handleOutcome(context.Background(), tracker, trackeradapter.WorkItem{ID: "1"}, "run-1", outcome)

	require.Equal(t, trackeradapter.StatusOpen, tracker.statusOf("1"))
	require.Equal(t, 1, tracker.commentCount())
}

func TestHandleOutcome_ValidationFailureKeepsClaim(t *testing.T) {
	tracker := newFakeTracker(trackeradapter.WorkItem{ID: "1", Status: trackeradapter.StatusInProgress})
	tracker.statuses["1"] = trackeradapter.StatusInProgress
	d := New(Config{TriggerToken: "adw"}, tracker, nil, nil, runIDFor)

	outcome := sequencer.Outcome{State: sequencer.StateFailed, Code: exitcode.ValidationTestsFailed, FailedPhase: "review"}
	d.handleOutcome(context.Background(), tracker, trackeradapter.WorkItem{ID: "1"}, "run-1", outcome)

	require.Equal(t, trackeradapter.StatusInProgress, tracker.statusOf("1"))
	require.Equal(t, 1, tracker.commentCount())
}

func TestHandleOutcome_ResourceFailureRetriesThenDemotes(t *testing.T) {
	tracker := newFakeTracker(trackeradapter.WorkItem{ID: "1", Status: trackeradapter.StatusInProgress})
	tracker.statuses["1"] = trackeradapter.StatusInProgress
	d := New(Config{TriggerToken: "adw", RetryBound: 2}, tracker, nil, nil, runIDFor)

	outcome := sequencer.Outcome{State: sequencer.StateFailed, Code: exitcode.ResourceNetworkError, FailedPhase: "build"}

	d.handleOutcome(context.Background(), tracker, trackeradapter.WorkItem{ID: "1"}, "run-1", outcome)
	require.Equal(t, trackeradapter.StatusInProgress, tracker.statusOf("1"))

	d.handleOutcome(context.Background(), tracker, trackeradapter.WorkItem{ID: "1"}, "run-2", outcome)
	require.Equal(t, trackeradapter.StatusOpen, tracker.statusOf("1"))
}

func TestActiveTracker_FallsBackWhenPrimaryErrors(t *testing.T) {
	primary := newFakeTracker()
	primary.listErr = fmt.Errorf("boom")
	fallback := newFakeTracker()

	d := New(Config{TriggerToken: "adw"}, primary, fallback, nil, runIDFor)
	tracker, degraded := d.activeTracker(context.Background())

	require.True(t, degraded)
	require.Same(t, fallback, tracker.(*fakeTracker))
}

func TestDispatcher_GracefulShutdownWaitsForInFlightRun(t *testing.T) {
	tracker := newFakeTracker(trackeradapter.WorkItem{ID: "1", Status: trackeradapter.StatusOpen})
	started := make(chan struct{})
	finish := make(chan struct{})
	launch := func(ctx context.Context, item trackeradapter.WorkItem, runID string) sequencer.Outcome {
		close(started)
		<-finish
		return sequencer.Outcome{State: sequencer.StateSucceeded}
	}

	d := New(Config{PollInterval: 10 * time.Millisecond, TriggerToken: "adw"}, tracker, nil, launch, runIDFor)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	<-started
	cancel()
	close(finish)
	<-done

	require.Equal(t, trackeradapter.StatusInProgress, tracker.statusOf("1"))
}

func TestSelectQualifying_ExcludesItemsWithUnmetDependencies(t *testing.T) {
	tracker := newFakeTracker(
		trackeradapter.WorkItem{ID: "blocked", Status: trackeradapter.StatusOpen, BlockedBy: []string{"dep"}},
		trackeradapter.WorkItem{ID: "dep", Status: trackeradapter.StatusOpen},
	)
	d := New(Config{TriggerToken: "adw"}, tracker, nil, nil, runIDFor)

	items, _ := tracker.ListOpenItems(context.Background())
	qualifying := d.selectQualifying(context.Background(), tracker, items)

	var ids []string
	for _, it := range qualifying {
		ids = append(ids, it.ID)
	}
	require.Equal(t, []string{"dep"}, ids)
}

func TestSelectQualifying_IncludesItemWhoseDependencyIsDone(t *testing.T) {
	tracker := newFakeTracker(
		trackeradapter.WorkItem{ID: "ready", Status: trackeradapter.StatusOpen, BlockedBy: []string{"dep"}},
	)
	// dep is already closed, so it no longer appears in ListOpenItems; the
	// dispatcher must resolve it via FetchDetails instead.
	tracker.items = append(tracker.items, trackeradapter.WorkItem{ID: "dep", Status: trackeradapter.StatusDone})
	tracker.statuses["dep"] = trackeradapter.StatusDone

	d := New(Config{TriggerToken: "adw"}, tracker, nil, nil, runIDFor)

	items, _ := tracker.ListOpenItems(context.Background())
	// Simulate ListOpenItems filtering out the already-done dependency.
	var openOnly []trackeradapter.WorkItem
	for _, it := range items {
		if it.Status != trackeradapter.StatusDone {
			openOnly = append(openOnly, it)
		}
	}

	qualifying := d.selectQualifying(context.Background(), tracker, openOnly)

	require.Len(t, qualifying, 1)
	require.Equal(t, "ready", qualifying[0].ID)
}

func TestPollOnce_PauseCheckSkipsClaiming(t *testing.T) {
	tracker := newFakeTracker(trackeradapter.WorkItem{ID: "1", Status: trackeradapter.StatusOpen})
	var launched bool
	launch := func(ctx context.Context, item trackeradapter.WorkItem, runID string) sequencer.Outcome {
		launched = true
		return sequencer.Outcome{State: sequencer.StateSucceeded}
	}

	d := New(Config{TriggerToken: "adw"}, tracker, nil, launch, runIDFor)
	d.PauseCheck = func() bool { return true }

	d.pollOnce(context.Background())

	require.False(t, launched)
	require.Equal(t, trackeradapter.StatusOpen, tracker.statusOf("1"))
}
