// Package session holds the in-memory, single-process store of
// in-flight rebase sessions, keyed by repository path, plus recovery of
// a session synthesized from Git's own on-disk rebase state after an
// interrupted process restarts.
package session

import (
	"context"
	"errors"
	"fmt"

	"go.branchstack.dev/bse/internal/git"
	"go.branchstack.dev/bse/internal/rebase"
	"go.branchstack.dev/bse/internal/stack"
	"go.branchstack.dev/bse/internal/syncx"
)

// ErrSessionAlreadyExists is returned by [Store.Create] when a session is
// already stored for the given repository path.
var ErrSessionAlreadyExists = errors.New("a rebase session is already active for this repository")

// ErrSessionNotFound is returned when an operation expects an existing
// session and none is stored, including one that disappeared mid-retry.
var ErrSessionNotFound = errors.New("no rebase session found for this repository")

// ErrNoActiveIntent is returned by callers that require a stored intent
// (e.g. confirming a rebase) when none is active.
var ErrNoActiveIntent = errors.New("no active rebase intent for this repository")

// Stored is a persisted rebase session: the intent that produced it, its
// current state machine snapshot, and the branch the user was on before
// the session started (checked out again when the executor finalizes the
// session; abort leaves the branch the backend's own abort restores).
type Stored struct {
	Intent         *stack.RebaseIntent
	State          *rebase.State
	OriginalBranch string
	CreatedAtMs    int64
	UpdatedAtMs    int64
}

// Store is a process-wide container of one session per repository path.
// It has no global singleton: callers construct and share a *Store the
// way they construct and share any other collaborator.
type Store struct {
	sessions   *syncx.GuardedMap[string, *Stored]
	retryLimit int
}

// NewStore builds an empty session store. retryLimit bounds
// UpdateWithRetry's optimistic-update attempts; values <= 0 default to 3.
func NewStore(retryLimit int) *Store {
	if retryLimit <= 0 {
		retryLimit = 3
	}
	return &Store{
		sessions:   syncx.NewGuardedMap[string, *Stored](),
		retryLimit: retryLimit,
	}
}

// Create stores a new session for repoPath. It fails with
// [ErrSessionAlreadyExists] if one is already stored: callers must
// cancel the existing intent explicitly first.
func (s *Store) Create(repoPath string, session *Stored) error {
	var conflict bool
	s.sessions.Update(repoPath, func(cur *Stored, existed bool) (*Stored, bool) {
		if existed {
			conflict = true
			return cur, true
		}
		return session, true
	})
	if conflict {
		return ErrSessionAlreadyExists
	}
	return nil
}

// Get returns the session stored for repoPath, if any.
func (s *Store) Get(repoPath string) (*Stored, bool) {
	return s.sessions.Load(repoPath)
}

// Clear removes the session for repoPath. It is idempotent: clearing a
// repository with no active session is not an error.
func (s *Store) Clear(repoPath string) {
	s.sessions.Delete(repoPath)
}

// All returns a snapshot of every currently stored session, keyed by
// repository path.
func (s *Store) All() map[string]*Stored {
	return s.sessions.Snapshot()
}

// Mutator transforms a stored session into its next value, or returns an
// error to abort the update.
type Mutator func(*Stored) (*Stored, error)

// UpdateWithRetry reads the current session for repoPath, applies
// mutator, and writes the result back, retrying up to the store's retry
// limit if a concurrent writer interleaved. Since every transition this
// package's callers apply is pure (a [rebase.State] transition is a
// value-in, value-out function), retrying the full read-apply-write body
// is always safe to repeat.
func (s *Store) UpdateWithRetry(repoPath string, mutator Mutator) error {
	var lastErr error
	for attempt := 0; attempt < s.retryLimit; attempt++ {
		cur, ok := s.sessions.Load(repoPath)
		if !ok {
			return ErrSessionNotFound
		}

		next, err := mutator(cur)
		if err != nil {
			return err
		}

		var conflict, disappeared bool
		s.sessions.Update(repoPath, func(now *Stored, existed bool) (*Stored, bool) {
			if !existed {
				disappeared = true
				return nil, false
			}
			if now != cur {
				conflict = true
				return now, true
			}
			return next, true
		})

		if disappeared {
			return ErrSessionNotFound
		}
		if !conflict {
			return nil
		}
		lastErr = fmt.Errorf("update conflict on attempt %d", attempt+1)
	}

	return fmt.Errorf("update session after %d attempts: %w", s.retryLimit, lastErr)
}

// RecoverFromGitState synthesizes a minimal awaiting-user session from
// Git's own on-disk rebase state, for use after a process restart finds
// an interrupted rebase that this store has no record of. It returns
// nil, false if the backend reports no in-flight rebase.
func RecoverFromGitState(ctx context.Context, backend git.GitBackend) (*Stored, bool, error) {
	status, err := backend.GetWorkingTreeStatus(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("get working tree status: %w", err)
	}
	if !status.IsRebasing {
		return nil, false, nil
	}

	progress, err := backend.GetRebaseState(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("get rebase state: %w", err)
	}
	if progress == nil {
		return nil, false, nil
	}

	job := &rebase.Job{
		ID:              "recovered",
		Branch:          progress.Branch,
		OriginalBaseSha: progress.OriginalHead,
		Status:          rebase.JobAwaitingUser,
	}

	state := &rebase.State{
		Session: rebase.SessionInfo{
			Status: rebase.SessionAwaitingUser,
		},
		JobsByID: map[string]*rebase.Job{job.ID: job},
		Queue:    rebase.Queue{BlockedJobIDs: []string{job.ID}},
	}

	return &Stored{
		Intent:         nil,
		State:          state,
		OriginalBranch: progress.Branch,
	}, true, nil
}
