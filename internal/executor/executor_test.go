package executor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.branchstack.dev/bse/internal/config"
	"go.branchstack.dev/bse/internal/executor"
	"go.branchstack.dev/bse/internal/git"
	"go.branchstack.dev/bse/internal/git/backendtest"
	"go.branchstack.dev/bse/internal/rebase"
	"go.branchstack.dev/bse/internal/repomodel"
	"go.branchstack.dev/bse/internal/session"
	"go.branchstack.dev/bse/internal/stack"
)

const repoPath = "/repo"

func sequentialGen() rebase.GenerateJobID {
	n := 0
	return func() string {
		n++
		return "job" + string(rune('0'+n))
	}
}

func fixedNow() func() int64 {
	return func() int64 { return 1 }
}

func buildRepo(t *testing.T, b *backendtest.Backend) *repomodel.Repo {
	t.Helper()
	repo, err := repomodel.NewBuilder(config.DefaultEngine()).BuildRepo(t.Context(), b, repoPath)
	require.NoError(t, err)
	return repo
}

// commitChain walks parents from head via ReadCommit, returning subjects
// oldest-last (i.e. head first), stopping at stopAt (exclusive) or a root.
func commitChain(t *testing.T, b *backendtest.Backend, head git.Hash, stopAt git.Hash, max int) []string {
	t.Helper()
	var subjects []string
	sha := head
	for sha != "" && sha != stopAt && len(subjects) < max {
		detail, err := b.ReadCommit(t.Context(), sha)
		require.NoError(t, err)
		subjects = append(subjects, detail.Subject)
		if len(detail.ParentShas) == 0 {
			break
		}
		sha = detail.ParentShas[0]
	}
	return subjects
}

// Scenario 1: simple rebase of a single branch onto a new base.
func TestExecuteRebasePlan_simpleRebase(t *testing.T) {
	t.Parallel()

	b := backendtest.New()
	a := b.Commit("", "A")
	bb := b.Commit(a, "B")
	c := b.Commit(bb, "C")
	b.SetBranch("main", c)

	d := b.Commit(bb, "D")
	e := b.Commit(d, "E")
	f := b.Commit(e, "F")
	b.SetBranch("feat", f)
	b.SetCurrent("main")

	repo := buildRepo(t, b)
	featNode, err := stack.BuildNode(repo, "feat")
	require.NoError(t, err)
	assert.Equal(t, bb, featNode.BaseSha)

	intent := &stack.RebaseIntent{
		Targets: []stack.RebaseTarget{{Node: featNode, TargetBaseSha: c}},
	}
	plan, err := rebase.CreatePlan(repo, intent, 1, sequentialGen())
	require.NoError(t, err)

	store := session.NewStore(3)
	require.NoError(t, store.Create(repoPath, &session.Stored{
		Intent: intent, State: plan.State, OriginalBranch: "main",
	}))

	exec := executor.New(b, store, sequentialGen(), fixedNow())
	result, err := exec.ExecuteRebasePlan(t.Context(), repoPath, []*stack.StackNode{featNode})
	require.NoError(t, err)

	require.Equal(t, executor.StatusCompleted, result.Status)
	require.NotNil(t, result.Session)
	assert.Equal(t, rebase.SessionCompleted, result.Session.State.Session.Status)
	assert.Equal(t, "main", b.CurrentBranch(t.Context()), "executor must return to the original branch")

	newHead := b.Head("feat")
	chain := commitChain(t, b, newHead, c, 10)
	assert.Equal(t, []string{"F", "E", "D"}, chain, "new feat head walks back through rewritten D/E/F to C exclusive")

	detail, err := b.ReadCommit(t.Context(), newHead)
	require.NoError(t, err)
	require.Len(t, detail.ParentShas, 1)
	// Walk to the oldest rewritten commit (D') and confirm its parent is C.
	dPrime := newHead
	for i := 0; i < 2; i++ {
		det, err := b.ReadCommit(t.Context(), dPrime)
		require.NoError(t, err)
		dPrime = det.ParentShas[0]
	}
	detD, err := b.ReadCommit(t.Context(), dPrime)
	require.NoError(t, err)
	assert.Equal(t, c, detD.ParentShas[0], "rewritten D's parent must be C")

	assert.Len(t, result.Session.State.Session.CommitMap, 3, "three commits rewritten")
}

// Scenario 2: a three-deep stack restacked from its root; each descendant
// targets its parent's new head, and the final job's chain threads
// through every rewritten ancestor back to the new trunk tip.
func TestExecuteRebasePlan_stackRestack(t *testing.T) {
	t.Parallel()

	b := backendtest.New()
	root := b.Commit("", "root")
	tip1 := b.Commit(root, "tip1")
	tip2 := b.Commit(tip1, "tip2")
	b.SetBranch("main", tip2)

	aHead := b.Commit(tip1, "a1")
	b.SetBranch("a", aHead)
	bHead := b.Commit(aHead, "b1")
	b.SetBranch("b", bHead)
	cHead := b.Commit(bHead, "c1")
	b.SetBranch("c", cHead)
	b.SetCurrent("main")

	repo := buildRepo(t, b)
	aNode, err := stack.BuildNode(repo, "a")
	require.NoError(t, err)
	require.Len(t, aNode.Children, 1)
	require.Len(t, aNode.Children[0].Children, 1)

	intent := &stack.RebaseIntent{
		Targets: []stack.RebaseTarget{{Node: aNode, TargetBaseSha: tip2}},
	}
	plan, err := rebase.CreatePlan(repo, intent, 1, sequentialGen())
	require.NoError(t, err)

	store := session.NewStore(3)
	require.NoError(t, store.Create(repoPath, &session.Stored{
		Intent: intent, State: plan.State, OriginalBranch: "main",
	}))

	exec := executor.New(b, store, sequentialGen(), fixedNow())
	result, err := exec.ExecuteRebasePlan(t.Context(), repoPath, []*stack.StackNode{aNode})
	require.NoError(t, err)
	require.Equal(t, executor.StatusCompleted, result.Status)

	newA := b.Head("a")
	newB := b.Head("b")
	newC := b.Head("c")

	detA, err := b.ReadCommit(t.Context(), newA)
	require.NoError(t, err)
	assert.Equal(t, tip2, detA.ParentShas[0], "a's new head must chain directly to the new trunk tip")

	detB, err := b.ReadCommit(t.Context(), newB)
	require.NoError(t, err)
	assert.Equal(t, newA, detB.ParentShas[0], "b's new head must chain to a's new head")

	detC, err := b.ReadCommit(t.Context(), newC)
	require.NoError(t, err)
	assert.Equal(t, newB, detC.ParentShas[0], "c's new head must chain to b's new head")

	// Exactly three jobs ran, one per branch.
	assert.Len(t, result.Session.State.JobsByID, 3)
	for _, j := range result.Session.State.JobsByID {
		assert.Equal(t, rebase.JobCompleted, j.Status)
	}
}

// Scenario 3: a conflict pauses the session; after it's resolved,
// continueRebase finishes the job and proceeds to its enqueued descendant.
func TestExecuteRebasePlan_conflictPauseThenContinue(t *testing.T) {
	t.Parallel()

	b := backendtest.New()
	root := b.Commit("", "root")
	newTip := b.Commit(root, "new tip")
	b.SetBranch("main", newTip)

	xHead := b.Commit(root, "x1")
	b.SetBranch("x", xHead)
	yHead := b.Commit(xHead, "y1")
	b.SetBranch("y", yHead)
	b.SetCurrent("main")

	repo := buildRepo(t, b)
	xNode, err := stack.BuildNode(repo, "x")
	require.NoError(t, err)
	require.Len(t, xNode.Children, 1)
	assert.Equal(t, "y", xNode.Children[0].Branch)

	intent := &stack.RebaseIntent{
		Targets: []stack.RebaseTarget{{Node: xNode, TargetBaseSha: newTip}},
	}
	plan, err := rebase.CreatePlan(repo, intent, 1, sequentialGen())
	require.NoError(t, err)

	store := session.NewStore(3)
	require.NoError(t, store.Create(repoPath, &session.Stored{
		Intent: intent, State: plan.State, OriginalBranch: "main",
	}))

	b.ConflictOn = "x"
	b.ConflictFiles = []string{"README"}

	exec := executor.New(b, store, sequentialGen(), fixedNow())
	result, err := exec.ExecuteRebasePlan(t.Context(), repoPath, []*stack.StackNode{xNode})
	require.NoError(t, err)

	require.Equal(t, executor.StatusConflict, result.Status)
	require.NotNil(t, result.Session)
	assert.Equal(t, rebase.SessionAwaitingUser, result.Session.State.Session.Status)

	var xJob *rebase.Job
	for _, j := range result.Session.State.JobsByID {
		if j.Branch == "x" {
			xJob = j
		}
	}
	require.NotNil(t, xJob)
	assert.Equal(t, rebase.JobAwaitingUser, xJob.Status)
	assert.Equal(t, []string{"README"}, xJob.Conflicts)

	// User resolves the conflict; continuing should finish x and schedule y.
	result, err = exec.ContinueRebase(t.Context(), repoPath, []*stack.StackNode{xNode})
	require.NoError(t, err)
	require.Equal(t, executor.StatusCompleted, result.Status)

	for _, j := range result.Session.State.JobsByID {
		assert.Equal(t, rebase.JobCompleted, j.Status, "job %s", j.Branch)
	}
	assert.Len(t, result.Session.State.JobsByID, 2, "y must have been enqueued and completed alongside x")
}

// Scenario 4: aborting mid-conflict restores the working tree to its
// original branch and clears the session unconditionally.
func TestAbortRebase_restoresOriginalBranchAndClearsSession(t *testing.T) {
	t.Parallel()

	b := backendtest.New()
	root := b.Commit("", "root")
	newTip := b.Commit(root, "new tip")
	b.SetBranch("main", newTip)
	xHead := b.Commit(root, "x1")
	b.SetBranch("x", xHead)
	b.SetCurrent("main")

	repo := buildRepo(t, b)
	xNode, err := stack.BuildNode(repo, "x")
	require.NoError(t, err)

	intent := &stack.RebaseIntent{
		Targets: []stack.RebaseTarget{{Node: xNode, TargetBaseSha: newTip}},
	}
	plan, err := rebase.CreatePlan(repo, intent, 1, sequentialGen())
	require.NoError(t, err)

	store := session.NewStore(3)
	require.NoError(t, store.Create(repoPath, &session.Stored{
		Intent: intent, State: plan.State, OriginalBranch: "main",
	}))

	b.ConflictOn = "x"
	b.ConflictFiles = []string{"README"}

	exec := executor.New(b, store, sequentialGen(), fixedNow())
	_, err = exec.ExecuteRebasePlan(t.Context(), repoPath, []*stack.StackNode{xNode})
	require.NoError(t, err)
	require.True(t, b.Supports(git.CapRebaseAbort))

	preAbortHead := b.Head("x")
	require.NoError(t, exec.AbortRebase(t.Context(), repoPath))

	assert.Equal(t, "x", b.CurrentBranch(t.Context()), "backend restores the branch that was being rebased")
	assert.Equal(t, preAbortHead, b.Head("x"), "abort restores x to its pre-rebase head")

	_, ok := store.Get(repoPath)
	assert.False(t, ok, "abort must clear the stored session")
}

// Scenario 6: a dirty working tree is refused before any checkout or
// rebase mutation is attempted.
func TestExecuteRebasePlan_refusesDirtyWorkingTree(t *testing.T) {
	t.Parallel()

	b := backendtest.New()
	root := b.Commit("", "root")
	b.SetBranch("main", root)
	xHead := b.Commit(root, "x1")
	b.SetBranch("x", xHead)
	b.SetCurrent("main")
	b.SetDirty("dirty.txt")

	repo := buildRepo(t, b)
	xNode, err := stack.BuildNode(repo, "x")
	require.NoError(t, err)

	intent := &stack.RebaseIntent{
		Targets: []stack.RebaseTarget{{Node: xNode, TargetBaseSha: root}},
	}
	plan, err := rebase.CreatePlan(repo, intent, 1, sequentialGen())
	require.NoError(t, err)

	store := session.NewStore(3)
	require.NoError(t, store.Create(repoPath, &session.Stored{
		Intent: intent, State: plan.State, OriginalBranch: "main",
	}))

	exec := executor.New(b, store, sequentialGen(), fixedNow())
	preHead := b.Head("x")
	preBranch := b.CurrentBranch(t.Context())

	_, err = exec.ExecuteRebasePlan(t.Context(), repoPath, []*stack.StackNode{xNode})
	var dirty *executor.DirtyWorkingTreeError
	require.ErrorAs(t, err, &dirty)
	assert.Equal(t, []string{"dirty.txt"}, dirty.Files)

	assert.Equal(t, preBranch, b.CurrentBranch(t.Context()), "no checkout must happen before the dirty check")
	assert.Equal(t, preHead, b.Head("x"), "no rebase must happen before the dirty check")
}

func TestSkipRebaseCommit_requiresCapability(t *testing.T) {
	t.Parallel()

	b := backendtest.New()
	b.Disable(git.CapRebaseSkip)
	store := session.NewStore(3)
	exec := executor.New(b, store, sequentialGen(), fixedNow())

	result, err := exec.SkipRebaseCommit(t.Context(), repoPath, nil)
	require.Error(t, err)
	assert.Equal(t, executor.StatusError, result.Status)

	var unsupported *git.UnsupportedBackendError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, git.CapRebaseSkip, unsupported.Capability)
}
