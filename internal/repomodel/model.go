// Package repomodel builds an in-memory snapshot of a repository's
// branches, commits, and working tree from a [git.GitBackend], the way
// the teacher's branch graph is built from a BranchLoader, generalized
// to work from raw Git data rather than a persisted branch store.
package repomodel

import (
	"go.branchstack.dev/bse/internal/git"
)

// CommitRef identifies a commit by its 40-character hex sha.
type CommitRef = git.Hash

// Commit is an immutable snapshot of a single commit, as observed during
// a repository model build.
type Commit struct {
	Sha            CommitRef
	ParentSha      CommitRef // empty for a root commit
	ChildrenSha    []CommitRef
	MessageSubject string
	TimeMs         int64
}

// Branch is a named ref tracked by the model, local or remote.
type Branch struct {
	Ref      string
	IsTrunk  bool
	IsRemote bool
	Remote   string

	HeadSha CommitRef
	BaseSha CommitRef

	// OwnedCommitShas lists the commits this branch owns, head-first:
	// OwnedCommitShas[0] == HeadSha.
	OwnedCommitShas []CommitRef

	// RecoveredForkPoint reports that BaseSha was not found by the
	// cheap ancestor walk over already-loaded commits, and was instead
	// recovered via the backend's merge-base --fork-point fallback.
	RecoveredForkPoint bool

	// LogTruncated reports that this branch's commit walk stopped at
	// the configured max log depth rather than reaching a root commit,
	// e.g. because the clone is shallow.
	LogTruncated bool
}

// Repo is a point-in-time snapshot of a repository's branches, commits,
// and working tree.
type Repo struct {
	Path        string
	Commits     map[CommitRef]*Commit
	Branches    []*Branch
	WorkingTree *git.WorkingTreeStatus
}

// Branch looks up a branch by ref name. ok is false if no such branch was
// loaded into this snapshot.
func (r *Repo) Branch(ref string) (*Branch, bool) {
	for _, b := range r.Branches {
		if b.Ref == ref && !b.IsRemote {
			return b, true
		}
	}
	return nil, false
}

// Trunk returns the repository's trunk branch, if one was found.
func (r *Repo) Trunk() (*Branch, bool) {
	for _, b := range r.Branches {
		if b.IsTrunk {
			return b, true
		}
	}
	return nil, false
}

// Commit looks up a commit by sha.
func (r *Repo) Commit(sha CommitRef) (*Commit, bool) {
	c, ok := r.Commits[sha]
	return c, ok
}
