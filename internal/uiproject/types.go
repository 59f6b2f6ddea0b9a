// Package uiproject derives the host-facing view of a repository's stack
// from a [repomodel.Repo]: the real trunk + spinoffs tree, and -- given a
// pending [stack.RebaseIntent] -- a synthetic "projected" tree showing
// where branches would land without mutating anything.
package uiproject

import (
	"go.branchstack.dev/bse/internal/git"
	"go.branchstack.dev/bse/internal/repomodel"
)

// RebaseStatus annotates a [UiCommit] with its role in a pending or
// in-flight rebase.
type RebaseStatus string

const (
	// StatusNone is the zero value: the commit is unaffected.
	StatusNone RebaseStatus = ""
	// StatusPrompting marks a rebase target's head commit in the
	// projected stack.
	StatusPrompting RebaseStatus = "prompting"
	// StatusQueued marks a commit whose job is pending execution.
	StatusQueued RebaseStatus = "queued"
	// StatusIdle marks a descendant of a prompting or queued commit.
	StatusIdle RebaseStatus = "idle"
)

// UiCommit is the display projection of a single commit.
type UiCommit struct {
	Sha          repomodel.CommitRef
	TimestampMs  int64
	Name         string
	IsCurrent    bool
	RebaseStatus RebaseStatus
	Branches     []string
	Spinoffs     []*UiStack
}

// UiStack is an ordered run of commits belonging to one lineage: the
// trunk spine, or one branch's run of owned commits.
type UiStack struct {
	IsTrunk bool
	Commits []*UiCommit
}

// RebaseView is the display projection of an in-progress or pending
// rebase session, independent of whether it is backed by a stored
// session or a recovered one.
type RebaseView struct {
	Status        string
	CompletedJobs int
	TotalJobs     int
	Conflicts     []string
	BlockedBranch string
	CanAbort      bool
}

// UiStateView is the full view the host shell renders: the real stack,
// the projected stack (nil unless a rebase intent is pending or
// in-flight), the working tree snapshot, and the rebase progress view.
type UiStateView struct {
	Stack          *UiStack
	ProjectedStack *UiStack
	WorkingTree    *git.WorkingTreeStatus
	Rebase         *RebaseView
}
