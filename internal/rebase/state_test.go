package rebase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.branchstack.dev/bse/internal/rebase"
)

func newPendingState(ids ...string) *rebase.State {
	jobs := make(map[string]*rebase.Job, len(ids))
	for _, id := range ids {
		jobs[id] = &rebase.Job{ID: id, Branch: id, Status: rebase.JobPending}
	}
	return &rebase.State{
		JobsByID: jobs,
		Queue:    rebase.Queue{PendingJobIDs: append([]string(nil), ids...)},
	}
}

func TestNextJob_popsFIFOAndMarksRunning(t *testing.T) {
	t.Parallel()

	state := newPendingState("j1", "j2")

	job, next, ok := rebase.NextJob(state, 1)
	require.True(t, ok)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, rebase.JobRunning, job.Status)
	assert.Equal(t, []string{"j2"}, next.Queue.PendingJobIDs)
	assert.Equal(t, "j1", next.Queue.ActiveJobID)

	// original state is untouched: every transition returns a new value.
	assert.Equal(t, []string{"j1", "j2"}, state.Queue.PendingJobIDs)
	assert.Equal(t, rebase.JobPending, state.JobsByID["j1"].Status)
}

func TestNextJob_emptyQueue(t *testing.T) {
	t.Parallel()

	state := newPendingState()
	job, next, ok := rebase.NextJob(state, 1)
	assert.False(t, ok)
	assert.Nil(t, job)
	assert.Same(t, state, next)
}

// activeJobId present iff exactly one job has status running (I4).
func TestActiveJobID_matchesRunningJob(t *testing.T) {
	t.Parallel()

	state := newPendingState("j1")
	_, running, ok := rebase.NextJob(state, 1)
	require.True(t, ok)

	assert.NotEmpty(t, running.Queue.ActiveJobID)
	assert.Equal(t, rebase.JobRunning, running.JobsByID[running.Queue.ActiveJobID].Status)

	completed := rebase.CompleteJob(running, "j1", "headsha", nil, 2).State
	assert.Empty(t, completed.Queue.ActiveJobID)
	for _, j := range completed.JobsByID {
		assert.NotEqual(t, rebase.JobRunning, j.Status)
	}
}

func TestCompleteJob_appendsCommitMap(t *testing.T) {
	t.Parallel()

	state := newPendingState("j1")
	_, running, _ := rebase.NextJob(state, 1)

	rewrites := []rebase.CommitRewrite{{Branch: "j1", OldSha: "old", NewSha: "new"}}
	result := rebase.CompleteJob(running, "j1", "new", rewrites, 2)

	assert.Equal(t, rebase.JobCompleted, result.Job.Status)
	assert.Equal(t, rebase.CommitRef("new"), result.Job.RebasedHeadSha)
	assert.Equal(t, rewrites, result.State.Session.CommitMap)
	assert.Equal(t, rewrites, result.Rewrite)
}

func TestRecordConflict_marksJobAndSessionAwaitingUser(t *testing.T) {
	t.Parallel()

	state := newPendingState("j1")
	_, running, _ := rebase.NextJob(state, 1)

	next := rebase.RecordConflict(running, "j1", []string{"README"}, 2)

	assert.Equal(t, rebase.JobAwaitingUser, next.JobsByID["j1"].Status)
	assert.Equal(t, []string{"README"}, next.JobsByID["j1"].Conflicts)
	assert.Equal(t, rebase.SessionAwaitingUser, next.Session.Status)
	assert.Empty(t, next.Queue.ActiveJobID)
}

func TestFailJob_marksJobAndSessionFailed(t *testing.T) {
	t.Parallel()

	state := newPendingState("j1")
	_, running, _ := rebase.NextJob(state, 1)

	next := rebase.FailJob(running, "j1", 2)

	assert.Equal(t, rebase.JobFailed, next.JobsByID["j1"].Status)
	assert.Equal(t, rebase.SessionFailed, next.Session.Status)
	assert.Empty(t, next.Queue.ActiveJobID)
}

func TestEnqueueDescendants_appendsOnePerChild(t *testing.T) {
	t.Parallel()

	state := newPendingState("parent")
	ids := []string{"c1", "c2"}
	i := 0
	gen := func() string {
		id := ids[i]
		i++
		return id
	}

	children := []rebase.StackChild{
		{Branch: "b", HeadSha: "bhead"},
		{Branch: "c", HeadSha: "chead"},
	}

	next := rebase.EnqueueDescendants(state, "oldhead", children, "newhead", 3, gen)

	assert.Equal(t, []string{"parent", "c1", "c2"}, next.Queue.PendingJobIDs)
	assert.Equal(t, "b", next.JobsByID["c1"].Branch)
	assert.Equal(t, rebase.CommitRef("oldhead"), next.JobsByID["c1"].OriginalBaseSha)
	assert.Equal(t, rebase.CommitRef("bhead"), next.JobsByID["c1"].OriginalHeadSha)
	assert.Equal(t, rebase.CommitRef("newhead"), next.JobsByID["c1"].TargetBaseSha)
	assert.Equal(t, rebase.JobPending, next.JobsByID["c1"].Status)
}

func TestEnqueueDescendants_noChildrenIsNoop(t *testing.T) {
	t.Parallel()

	state := newPendingState("parent")
	next := rebase.EnqueueDescendants(state, "old", nil, "new", 1, func() string {
		t.Fatal("generateJobID must not be called with no children")
		return ""
	})
	assert.Same(t, state, next)
}

func TestFinalize_marksSessionCompleted(t *testing.T) {
	t.Parallel()

	state := newPendingState()
	next := rebase.Finalize(state, 1)
	assert.Equal(t, rebase.SessionCompleted, next.Session.Status)
}

// jobsById must contain every id referenced from pending, blocked, or
// active, for every state this package produces.
func TestState_jobsByIDCoversQueue(t *testing.T) {
	t.Parallel()

	state := newPendingState("j1", "j2")
	_, running, _ := rebase.NextJob(state, 1)
	conflict := rebase.RecordConflict(running, "j1", []string{"x"}, 2)

	for _, id := range conflict.Queue.PendingJobIDs {
		_, ok := conflict.Job(id)
		assert.True(t, ok, "pending job %s missing from jobsById", id)
	}
	for _, id := range conflict.Queue.BlockedJobIDs {
		_, ok := conflict.Job(id)
		assert.True(t, ok, "blocked job %s missing from jobsById", id)
	}
	if conflict.Queue.ActiveJobID != "" {
		_, ok := conflict.Job(conflict.Queue.ActiveJobID)
		assert.True(t, ok, "active job missing from jobsById")
	}
}
