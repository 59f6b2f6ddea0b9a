// Package executor drives the pure [rebase] state machine against a real
// [git.GitBackend], one job at a time, persisting state to a
// [session.Store] between every suspension point so an interrupted
// process can recover where it left off.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.branchstack.dev/bse/internal/git"
	"go.branchstack.dev/bse/internal/rebase"
	"go.branchstack.dev/bse/internal/session"
	"go.branchstack.dev/bse/internal/stack"
)

// Status is the outcome of a single executor call.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusConflict  Status = "conflict"
	StatusError     Status = "error"
)

// Result is returned by every executor entry point.
type Result struct {
	Status  Status
	Session *session.Stored
	Err     error
}

// DirtyWorkingTreeError is returned when the working tree has staged,
// modified, created, deleted, renamed, or conflicted changes before any
// rebase mutation has been attempted. It is surfaced before any checkout
// or rebase call, never after.
type DirtyWorkingTreeError struct {
	Files []string
}

func (e *DirtyWorkingTreeError) Error() string {
	return fmt.Sprintf("working tree is dirty: %d changed file(s)", len(e.Files))
}

// SessionDisappearedError is returned when a session that executeJobs
// expected to find (because it just wrote it) is gone on the next read,
// indicating a concurrent clear.
type SessionDisappearedError struct{ RepoPath string }

func (e *SessionDisappearedError) Error() string {
	return fmt.Sprintf("rebase session for %q disappeared mid-execution", e.RepoPath)
}

// treeIndex looks up a job's children by branch name, keyed from every
// node of a [stack.RebaseIntent]'s target forest, since an intent may
// name more than one independent subtree in a single session.
type treeIndex map[string]*stack.StackNode

func indexForest(roots []*stack.StackNode) treeIndex {
	idx := make(treeIndex)
	for _, root := range roots {
		stack.Walk(root, func(n *stack.StackNode) { idx[n.Branch] = n })
	}
	return idx
}

// Hooks lets callers observe job transitions as they happen, e.g. to
// drive a progress display. Every field is optional.
type Hooks struct {
	OnJobStart    func(*rebase.Job)
	OnJobComplete func(*rebase.Job)
}

// Executor drives rebase sessions for a single repository.
type Executor struct {
	Backend       git.GitBackend
	Store         *session.Store
	GenerateJobID rebase.GenerateJobID
	Now           func() int64
	Hooks         Hooks
}

// New builds an Executor. generateJobID must produce unique IDs; now
// defaults to the wall clock if nil.
func New(backend git.GitBackend, store *session.Store, generateJobID rebase.GenerateJobID, now func() int64) *Executor {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Executor{Backend: backend, Store: store, GenerateJobID: generateJobID, Now: now}
}

// ExecuteRebasePlan starts executing plan against repoPath. The plan's
// session must already be stored (submitRebaseIntent stores it without
// starting execution; confirmRebaseIntent calls this to start it).
//
// It refuses to start if the working tree is dirty.
func (e *Executor) ExecuteRebasePlan(ctx context.Context, repoPath string, forest []*stack.StackNode) (Result, error) {
	status, err := e.Backend.GetWorkingTreeStatus(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("get working tree status: %w", err)
	}
	if status.IsDirty() {
		return Result{}, &DirtyWorkingTreeError{Files: status.AllChangedFiles()}
	}

	return e.executeJobs(ctx, repoPath, forest)
}

// executeJobs is the main loop: it re-reads the session each iteration
// for optimistic concurrency, pops the next job, executes it, and
// persists the result before looping.
func (e *Executor) executeJobs(ctx context.Context, repoPath string, forest []*stack.StackNode) (Result, error) {
	idx := indexForest(forest)

	for {
		stored, ok := e.Store.Get(repoPath)
		if !ok {
			return Result{Status: StatusError, Err: &SessionDisappearedError{RepoPath: repoPath}},
				&SessionDisappearedError{RepoPath: repoPath}
		}

		job, nextState, hasJob := rebase.NextJob(stored.State, e.Now())
		if !hasJob {
			final := e.finalize(ctx, stored)
			e.Store.Clear(repoPath)
			return Result{Status: StatusCompleted, Session: final}, nil
		}

		if err := e.Store.UpdateWithRetry(repoPath, func(*session.Stored) (*session.Stored, error) {
			return withState(stored, nextState), nil
		}); err != nil {
			return Result{Status: StatusError, Err: err}, err
		}

		if e.Hooks.OnJobStart != nil {
			e.Hooks.OnJobStart(job)
		}

		outcome := e.executeJob(ctx, job)

		if outcome.err != nil {
			failedState := rebase.FailJob(nextState, job.ID, e.Now())
			_ = e.Store.UpdateWithRetry(repoPath, func(cur *session.Stored) (*session.Stored, error) {
				return withState(cur, failedState), nil
			})
			return Result{Status: StatusError, Err: outcome.err}, outcome.err
		}

		if !outcome.result.Success {
			conflictState := rebase.RecordConflict(nextState, job.ID, outcome.result.Conflicts, e.Now())
			var stored2 *session.Stored
			_ = e.Store.UpdateWithRetry(repoPath, func(cur *session.Stored) (*session.Stored, error) {
				stored2 = withState(cur, conflictState)
				return stored2, nil
			})
			return Result{Status: StatusConflict, Session: stored2}, nil
		}

		completed := rebase.CompleteJob(nextState, job.ID, outcome.result.CurrentCommit, outcome.rewrites, e.Now())
		state2 := completed.State

		if node, ok := idx[job.Branch]; ok && len(node.Children) > 0 {
			children := make([]rebase.StackChild, 0, len(node.Children))
			for _, c := range node.Children {
				children = append(children, rebase.StackChild{Branch: c.Branch, HeadSha: c.HeadSha})
			}
			state2 = rebase.EnqueueDescendants(state2, job.OriginalHeadSha, children, outcome.result.CurrentCommit, e.Now(), e.GenerateJobID)
		}

		if err := e.Store.UpdateWithRetry(repoPath, func(cur *session.Stored) (*session.Stored, error) {
			return withState(cur, state2), nil
		}); err != nil {
			return Result{Status: StatusError, Err: err}, err
		}

		if e.Hooks.OnJobComplete != nil {
			e.Hooks.OnJobComplete(completed.Job)
		}
	}
}

type jobOutcome struct {
	result   git.RebaseResult
	rewrites []rebase.CommitRewrite
	err      error
}

// executeJob runs one branch's rebase step: snapshot the commits it owns
// before rebasing, check out the branch, replay it onto the target base,
// and pair the pre- and post-rebase commit sequences positionally to
// derive the rewrites.
func (e *Executor) executeJob(ctx context.Context, job *rebase.Job) jobOutcome {
	before := e.Backend.Log(ctx, job.OriginalHeadSha.String(), git.LogOptions{})
	before = sinceExclusive(before, job.OriginalBaseSha)

	status, err := e.Backend.GetWorkingTreeStatus(ctx)
	if err != nil {
		return jobOutcome{err: fmt.Errorf("get working tree status: %w", err)}
	}
	if status.IsDirty() {
		return jobOutcome{err: &DirtyWorkingTreeError{Files: status.AllChangedFiles()}}
	}

	if err := e.Backend.Checkout(ctx, job.Branch); err != nil {
		return jobOutcome{err: fmt.Errorf("checkout %s: %w", job.Branch, err)}
	}

	result, err := e.Backend.Rebase(ctx, git.RebaseBackendOptions{
		Onto:      job.TargetBaseSha.String(),
		From:      job.OriginalBaseSha.String(),
		To:        job.Branch,
		Autostash: true,
	})
	if err != nil {
		return jobOutcome{err: fmt.Errorf("rebase %s: %w", job.Branch, err)}
	}
	if !result.Success {
		return jobOutcome{result: result}
	}

	newHead := result.CurrentCommit
	if newHead == "" {
		newHead = e.Backend.ResolveRef(ctx, job.Branch)
	}

	after := e.Backend.Log(ctx, newHead.String(), git.LogOptions{})
	after = sinceExclusive(after, job.TargetBaseSha)

	rewrites := pairRewrites(job.Branch, before, after)
	result.CurrentCommit = newHead

	return jobOutcome{result: result, rewrites: rewrites}
}

// sinceExclusive trims entries at and after stopAt, returning the commits
// strictly newer than it, oldest first (the log walk itself yields
// newest-first, so this also reverses).
func sinceExclusive(entries []git.CommitInfo, stopAt git.Hash) []git.CommitInfo {
	var cut []git.CommitInfo
	for _, e := range entries {
		if e.Sha == stopAt {
			break
		}
		cut = append(cut, e)
	}
	for i, j := 0, len(cut)-1; i < j; i, j = i+1, j-1 {
		cut[i], cut[j] = cut[j], cut[i]
	}
	return cut
}

// pairRewrites pairs the pre- and post-rebase commit sequences
// positionally: same index on both sides is a rewrite of one commit. If
// the two sequences differ in length, only the first min(len(before),
// len(after)) positions are paired; pairing by position does not detect
// which commit a shorter "after" sequence dropped.
func pairRewrites(branch string, before, after []git.CommitInfo) []rebase.CommitRewrite {
	n := len(before)
	if len(after) < n {
		n = len(after)
	}

	rewrites := make([]rebase.CommitRewrite, 0, n)
	for i := 0; i < n; i++ {
		rewrites = append(rewrites, rebase.CommitRewrite{
			Branch: branch,
			OldSha: before[i].Sha,
			NewSha: after[i].Sha,
		})
	}
	return rewrites
}

func withState(stored *session.Stored, state *rebase.State) *session.Stored {
	clone := *stored
	clone.State = state
	return &clone
}

// finalize attempts to return to the original branch (tolerating
// failure) and marks the session completed; its caller then removes the
// session from the store.
func (e *Executor) finalize(ctx context.Context, stored *session.Stored) *session.Stored {
	if stored.OriginalBranch != "" {
		_ = e.Backend.Checkout(ctx, stored.OriginalBranch)
	}

	final := rebase.Finalize(stored.State, e.Now())
	clone := *stored
	clone.State = final
	return &clone
}

// ContinueRebase resumes a paused session: it re-runs the backend's
// rebase-continue for the active conflict, then re-enters the main loop.
// If no session is stored, it still attempts rebase-continue for
// recovery, since Git itself may be mid-rebase without this store
// knowing about it (a process restart after a conflict).
func (e *Executor) ContinueRebase(ctx context.Context, repoPath string, forest []*stack.StackNode) (Result, error) {
	if !e.Backend.Supports(git.CapRebaseContinue) {
		err := &git.UnsupportedBackendError{Capability: git.CapRebaseContinue}
		return Result{Status: StatusError, Err: err}, err
	}

	stored, ok := e.Store.Get(repoPath)
	if !ok {
		result, err := e.Backend.RebaseContinue(ctx)
		if err != nil {
			return Result{Status: StatusError, Err: err}, err
		}
		if !result.Success {
			return Result{Status: StatusConflict}, nil
		}
		return Result{Status: StatusCompleted}, nil
	}

	result, err := e.Backend.RebaseContinue(ctx)
	if err != nil {
		return Result{Status: StatusError, Err: err}, err
	}

	if !result.Success {
		var conflictStored *session.Stored
		err := e.Store.UpdateWithRetry(repoPath, func(cur *session.Stored) (*session.Stored, error) {
			active := cur.State.Queue.ActiveJobID
			if active == "" {
				for id, j := range cur.State.JobsByID {
					if j.Status == rebase.JobAwaitingUser {
						active = id
						break
					}
				}
			}
			state := rebase.RecordConflict(cur.State, active, result.Conflicts, e.Now())
			conflictStored = withState(cur, state)
			return conflictStored, nil
		})
		if err != nil {
			return Result{Status: StatusError, Err: err}, err
		}
		return Result{Status: StatusConflict, Session: conflictStored}, nil
	}

	activeID := stored.State.Queue.ActiveJobID
	if activeID == "" {
		for id, j := range stored.State.JobsByID {
			if j.Status == rebase.JobAwaitingUser {
				activeID = id
				break
			}
		}
	}
	if activeID == "" {
		return Result{Status: StatusError, Err: errors.New("no awaiting-user job to continue")}, nil
	}

	newHead := result.CurrentCommit
	if newHead == "" {
		newHead = e.Backend.ResolveRef(ctx, "HEAD")
	}

	job := stored.State.JobsByID[activeID]
	after := sinceExclusive(e.Backend.Log(ctx, newHead.String(), git.LogOptions{}), job.TargetBaseSha)
	rewrites := pairRewrites(job.Branch, nil, after) // before is nil, so no rewrites are recorded for the resumed job

	completed := rebase.CompleteJob(stored.State, activeID, newHead, rewrites, e.Now())
	state2 := completed.State

	if node, ok := indexForest(forest)[job.Branch]; ok && len(node.Children) > 0 {
		children := make([]rebase.StackChild, 0, len(node.Children))
		for _, c := range node.Children {
			children = append(children, rebase.StackChild{Branch: c.Branch, HeadSha: c.HeadSha})
		}
		state2 = rebase.EnqueueDescendants(state2, job.OriginalHeadSha, children, newHead, e.Now(), e.GenerateJobID)
	}

	if err := e.Store.UpdateWithRetry(repoPath, func(cur *session.Stored) (*session.Stored, error) {
		return withState(cur, state2), nil
	}); err != nil {
		return Result{Status: StatusError, Err: err}, err
	}

	return e.executeJobs(ctx, repoPath, forest)
}

// AbortRebase aborts any in-progress Git rebase and unconditionally
// clears the stored session, regardless of whether the abort itself
// succeeded.
func (e *Executor) AbortRebase(ctx context.Context, repoPath string) error {
	defer e.Store.Clear(repoPath)

	status, err := e.Backend.GetWorkingTreeStatus(ctx)
	if err != nil {
		return fmt.Errorf("get working tree status: %w", err)
	}
	if !status.IsRebasing {
		return nil
	}

	if !e.Backend.Supports(git.CapRebaseAbort) {
		return &git.UnsupportedBackendError{Capability: git.CapRebaseAbort}
	}

	return e.Backend.RebaseAbort(ctx)
}

// SkipRebaseCommit skips the current commit in an in-progress rebase and
// resumes execution.
func (e *Executor) SkipRebaseCommit(ctx context.Context, repoPath string, forest []*stack.StackNode) (Result, error) {
	if !e.Backend.Supports(git.CapRebaseSkip) {
		err := &git.UnsupportedBackendError{Capability: git.CapRebaseSkip}
		return Result{Status: StatusError, Err: err}, err
	}

	result, err := e.Backend.RebaseSkip(ctx)
	if err != nil {
		return Result{Status: StatusError, Err: err}, err
	}
	if !result.Success {
		return Result{Status: StatusConflict}, nil
	}

	if _, ok := e.Store.Get(repoPath); !ok {
		return Result{Status: StatusCompleted}, nil
	}
	return e.ContinueRebase(ctx, repoPath, forest)
}
