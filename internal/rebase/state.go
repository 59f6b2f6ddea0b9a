// Package rebase holds the rebase planner and the pure rebase state
// machine: given a [stack.RebaseIntent], it produces an initial queue of
// jobs and a set of state transitions, none of which perform any I/O.
// The executor is the only consumer that drives this state machine
// against a real [git.GitBackend].
package rebase

import "go.branchstack.dev/bse/internal/repomodel"

// JobStatus is the lifecycle state of a single [Job].
type JobStatus string

const (
	JobPending      JobStatus = "pending"
	JobRunning      JobStatus = "running"
	JobCompleted    JobStatus = "completed"
	JobAwaitingUser JobStatus = "awaiting-user"
	JobFailed       JobStatus = "failed"
)

// Job is a single branch's pending, in-flight, or finished rebase step.
type Job struct {
	ID              string
	Branch          string
	OriginalBaseSha repomodel.CommitRef
	OriginalHeadSha repomodel.CommitRef
	TargetBaseSha   repomodel.CommitRef
	Status          JobStatus
	CreatedAtMs     int64
	Conflicts       []string
	RebasedHeadSha  repomodel.CommitRef
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	clone := *j
	if j.Conflicts != nil {
		clone.Conflicts = append([]string(nil), j.Conflicts...)
	}
	return &clone
}

// CommitRewrite records that a commit on Branch was replayed from OldSha
// to NewSha during a rebase job.
type CommitRewrite struct {
	Branch string
	OldSha repomodel.CommitRef
	NewSha repomodel.CommitRef
}

// SessionStatus is the lifecycle state of the overall rebase session.
type SessionStatus string

const (
	SessionRunning      SessionStatus = "running"
	SessionAwaitingUser SessionStatus = "awaiting-user"
	SessionCompleted    SessionStatus = "completed"
	SessionFailed       SessionStatus = "failed"
)

// SessionInfo is the metadata about a rebase session distinct from its
// job queue.
type SessionInfo struct {
	ID              string
	StartedAtMs     int64
	Status          SessionStatus
	InitialTrunkSha repomodel.CommitRef
	CommitMap       []CommitRewrite
}

// Queue tracks which jobs are pending, blocked, or actively running.
type Queue struct {
	PendingJobIDs []string
	BlockedJobIDs []string
	ActiveJobID   string // empty means no job is running
}

// State is the full state of an in-progress (or finished) rebase session:
// immutable by convention, every transition in this package returns a new
// value rather than mutating its receiver in place.
type State struct {
	Session  SessionInfo
	JobsByID map[string]*Job
	Queue    Queue
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	clone := *s

	clone.Session.CommitMap = append([]CommitRewrite(nil), s.Session.CommitMap...)

	clone.JobsByID = make(map[string]*Job, len(s.JobsByID))
	for id, job := range s.JobsByID {
		clone.JobsByID[id] = job.Clone()
	}

	clone.Queue.PendingJobIDs = append([]string(nil), s.Queue.PendingJobIDs...)
	clone.Queue.BlockedJobIDs = append([]string(nil), s.Queue.BlockedJobIDs...)

	return &clone
}

// Job looks up a job by ID.
func (s *State) Job(id string) (*Job, bool) {
	j, ok := s.JobsByID[id]
	return j, ok
}

// NextJob pops the first pending job (FIFO), marks it running, and
// returns the job alongside the new state. ok is false if no job is
// pending.
func NextJob(state *State, nowMs int64) (job *Job, next *State, ok bool) {
	if len(state.Queue.PendingJobIDs) == 0 {
		return nil, state, false
	}

	next = state.Clone()
	id := next.Queue.PendingJobIDs[0]
	next.Queue.PendingJobIDs = next.Queue.PendingJobIDs[1:]
	next.Queue.ActiveJobID = id

	j := next.JobsByID[id].Clone()
	j.Status = JobRunning
	next.JobsByID[id] = j

	return j, next, true
}

// CompleteJobResult bundles the outcome of [CompleteJob].
type CompleteJobResult struct {
	State   *State
	Job     *Job
	Rewrite []CommitRewrite
}

// CompleteJob transitions job to completed, records its new head and the
// commit rewrites it produced, and appends those rewrites to the
// session's commit map.
func CompleteJob(state *State, jobID string, rebasedHeadSha repomodel.CommitRef, rewrites []CommitRewrite, nowMs int64) CompleteJobResult {
	next := state.Clone()

	j := next.JobsByID[jobID].Clone()
	j.Status = JobCompleted
	j.RebasedHeadSha = rebasedHeadSha
	next.JobsByID[jobID] = j

	if next.Queue.ActiveJobID == jobID {
		next.Queue.ActiveJobID = ""
	}

	next.Session.CommitMap = append(next.Session.CommitMap, rewrites...)

	return CompleteJobResult{State: next, Job: j, Rewrite: rewrites}
}

// RecordConflict transitions job to awaiting-user, attaching the
// conflicted paths, and marks the session itself awaiting-user. No job
// is left running.
func RecordConflict(state *State, jobID string, conflicts []string, nowMs int64) *State {
	next := state.Clone()

	j := next.JobsByID[jobID].Clone()
	j.Status = JobAwaitingUser
	j.Conflicts = append([]string(nil), conflicts...)
	next.JobsByID[jobID] = j

	if next.Queue.ActiveJobID == jobID {
		next.Queue.ActiveJobID = ""
	}
	next.Session.Status = SessionAwaitingUser

	return next
}

// FailJob transitions job to failed and marks the session failed. Used
// when a mutation operation on the backend fails for a reason other than
// a content conflict.
func FailJob(state *State, jobID string, nowMs int64) *State {
	next := state.Clone()

	j := next.JobsByID[jobID].Clone()
	j.Status = JobFailed
	next.JobsByID[jobID] = j

	if next.Queue.ActiveJobID == jobID {
		next.Queue.ActiveJobID = ""
	}
	next.Session.Status = SessionFailed

	return next
}

// StackChild is the minimal shape EnqueueDescendants needs from a
// [stack.StackNode] child, narrowed to avoid an import cycle between
// this package and stack.
type StackChild struct {
	Branch  string
	HeadSha repomodel.CommitRef
}

// GenerateJobID produces a fresh, unique job ID.
type GenerateJobID func() string

// EnqueueDescendants appends one pending job per child of parent, each
// targeting parentNewHeadSha as its new base. OriginalBaseSha is the
// parent's pre-rebase head: the base each child was rebased from before
// this round started.
func EnqueueDescendants(
	state *State,
	parentOldHeadSha repomodel.CommitRef,
	children []StackChild,
	parentNewHeadSha repomodel.CommitRef,
	nowMs int64,
	generateJobID GenerateJobID,
) *State {
	if len(children) == 0 {
		return state
	}

	next := state.Clone()
	for _, child := range children {
		id := generateJobID()
		next.JobsByID[id] = &Job{
			ID:              id,
			Branch:          child.Branch,
			OriginalBaseSha: parentOldHeadSha,
			OriginalHeadSha: child.HeadSha,
			TargetBaseSha:   parentNewHeadSha,
			Status:          JobPending,
			CreatedAtMs:     nowMs,
		}
		next.Queue.PendingJobIDs = append(next.Queue.PendingJobIDs, id)
	}
	return next
}

// Finalize marks the session completed. Used by the executor once the
// job queue has fully drained.
func Finalize(state *State, nowMs int64) *State {
	next := state.Clone()
	next.Session.Status = SessionCompleted
	return next
}
