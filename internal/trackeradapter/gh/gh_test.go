package gh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adwhq/adw-orchestrator/internal/trackeradapter"
)

func TestToWorkItem_PriorityFromLabel(t *testing.T) {
	a := New("owner/repo")

	iss := issueJSON{
		Number:    42,
		Title:     "fix flaky test",
		State:     "OPEN",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	iss.Labels = append(iss.Labels, struct {
		Name string `json:"name"`
	}{Name: "priority:2"})
	iss.Assignees = append(iss.Assignees, struct {
		Login string `json:"login"`
	}{Login: "octocat"})

	item := a.toWorkItem(iss)
	require.Equal(t, "42", item.ID)
	require.Equal(t, 2, item.Priority)
	require.Equal(t, "octocat", item.Assignee)
	require.Equal(t, trackeradapter.StatusOpen, item.Status)
}

func TestToWorkItem_DefaultsToLowestPriorityWithoutLabel(t *testing.T) {
	a := New("owner/repo")
	item := a.toWorkItem(issueJSON{Number: 1, State: "OPEN"})
	require.Equal(t, a.LowestPriority, item.Priority)
}

func TestToWorkItem_ClosedIssueIsDone(t *testing.T) {
	a := New("owner/repo")
	item := a.toWorkItem(issueJSON{Number: 1, State: "CLOSED"})
	require.Equal(t, trackeradapter.StatusDone, item.Status)
}

func TestToWorkItem_PopulatesBlockedByFromBody(t *testing.T) {
	a := New("owner/repo")
	item := a.toWorkItem(issueJSON{Number: 7, State: "OPEN", Body: "Some context.\n\nBlocked by: #12, #34\n"})
	require.Equal(t, []string{"12", "34"}, item.BlockedBy)
}

func TestBlockedByFromBody_RecognisesDependsOnAndTaskList(t *testing.T) {
	body := "Depends on #5\n\n- [ ] #9 finish the migration\n- [x] #3 already done, ignored since checked\n"
	ids := BlockedByFromBody(body)
	require.Equal(t, []string{"5", "9"}, ids)
}

func TestBlockedByFromBody_NoDependencyMarkersReturnsNil(t *testing.T) {
	require.Nil(t, BlockedByFromBody("just a plain description, no dependencies"))
}

func TestBlockedByFromBody_DeduplicatesRepeatedReferences(t *testing.T) {
	ids := BlockedByFromBody("Blocked by #1\nBlocked by #1, #2\n")
	require.Equal(t, []string{"1", "2"}, ids)
}

func TestPriorityFromLabel(t *testing.T) {
	n, ok := priorityFromLabel("priority:3", "priority:")
	require.True(t, ok)
	require.Equal(t, 3, n)

	_, ok = priorityFromLabel("bug", "priority:")
	require.False(t, ok)

	_, ok = priorityFromLabel("priority:abc", "priority:")
	require.False(t, ok)
}
