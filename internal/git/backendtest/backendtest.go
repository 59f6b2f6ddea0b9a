// Package backendtest provides an in-memory [git.GitBackend] test double
// for the rebase engine's own packages (repomodel, rebase, session,
// executor, engine), which speak only to that capability interface and
// have no need for internal/git/gittest's real-Git, testscript-driven
// fixtures.
package backendtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.branchstack.dev/bse/internal/git"
)

// commit is one node in the fake repository's commit graph.
type commit struct {
	parent  git.Hash
	subject string
	timeMs  int64
}

// Backend is an in-memory [git.GitBackend]. Build one with [New], seed
// commits with [Backend.Commit], and point branches at them with
// [Backend.SetBranch] or [Backend.SetRemoteBranch].
type Backend struct {
	commits map[git.Hash]*commit
	local   map[string]git.Hash
	remotes map[string]map[string]git.Hash

	current string
	dirty   *git.WorkingTreeStatus
	caps    map[git.Capability]bool

	// rebasing is non-nil while a conflicted rebase is paused, so that
	// RebaseContinue/RebaseAbort/RebaseSkip have something to act on.
	rebasing *rebaseState

	// ConflictOn, if set, names a branch whose next Rebase call returns a
	// content conflict instead of succeeding, once.
	ConflictOn string
	// ConflictFiles lists the paths reported conflicted when ConflictOn
	// fires.
	ConflictFiles []string

	nextSha int
}

type rebaseState struct {
	branch       string
	onto         git.Hash
	originalHead git.Hash
	from         git.Hash
	to           git.Hash
}

// New builds an empty fake backend with every optional capability
// enabled. Use [Backend.Disable] to simulate a reduced backend.
func New() *Backend {
	return &Backend{
		commits: make(map[git.Hash]*commit),
		local:   make(map[string]git.Hash),
		remotes: make(map[string]map[string]git.Hash),
		dirty:   &git.WorkingTreeStatus{},
		caps: map[git.Capability]bool{
			git.CapRebaseContinue: true,
			git.CapRebaseAbort:    true,
			git.CapRebaseSkip:     true,
			git.CapPush:           true,
		},
	}
}

var _ git.GitBackend = (*Backend)(nil)

// Disable turns off an optional capability, for [git.UnsupportedBackendError] tests.
func (b *Backend) Disable(cap git.Capability) { b.caps[cap] = false }

// Commit adds a commit with the given parent (empty for a root) and
// subject, returning its sha. Shas are deterministic and sequential
// ("c1", "c2", ...) so tests can assert on them directly.
func (b *Backend) Commit(parent git.Hash, subject string) git.Hash {
	b.nextSha++
	sha := git.Hash("c" + strconv.Itoa(b.nextSha))
	b.commits[sha] = &commit{parent: parent, subject: subject, timeMs: int64(b.nextSha)}
	return sha
}

// SetBranch points a local branch at head, creating it if necessary.
func (b *Backend) SetBranch(name string, head git.Hash) {
	b.local[name] = head
	if b.current == "" {
		b.current = name
	}
}

// SetRemoteBranch points a branch on remote at head.
func (b *Backend) SetRemoteBranch(remote, name string, head git.Hash) {
	if b.remotes[remote] == nil {
		b.remotes[remote] = make(map[string]git.Hash)
	}
	b.remotes[remote][name] = head
}

// SetCurrent sets the current branch without requiring a clean tree (the
// fake never tracks file contents, only refs).
func (b *Backend) SetCurrent(name string) { b.current = name }

// SetDirty marks the working tree dirty with the given modified paths,
// for [executor.DirtyWorkingTreeError] tests.
func (b *Backend) SetDirty(paths ...string) { b.dirty.Modified = paths }

// Head returns the current sha of the named local branch.
func (b *Backend) Head(name string) git.Hash { return b.local[name] }

// Supports implements [git.GitBackend].
func (b *Backend) Supports(c git.Capability) bool { return b.caps[c] }

// ListBranches implements [git.GitBackend].
func (b *Backend) ListBranches(_ context.Context, opts git.ListBranchesOptions) ([]git.BranchRef, error) {
	var out []git.BranchRef
	if opts.Remote == "" {
		names := make([]string, 0, len(b.local))
		for name := range b.local {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, git.BranchRef{Name: name, Head: b.local[name]})
		}
		return out, nil
	}

	refs := b.remotes[opts.Remote]
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, git.BranchRef{Name: name, Remote: opts.Remote, Head: refs[name]})
	}
	return out, nil
}

// ListRemotes implements [git.GitBackend].
func (b *Backend) ListRemotes(context.Context) ([]string, error) {
	names := make([]string, 0, len(b.remotes))
	for name := range b.remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Log implements [git.GitBackend]: it walks parents from ref, newest
// first, bounded by opts.Depth (default 1000).
func (b *Backend) Log(_ context.Context, ref string, opts git.LogOptions) []git.CommitInfo {
	depth := opts.Depth
	if depth <= 0 {
		depth = 1000
	}

	var out []git.CommitInfo
	sha := git.Hash(ref)
	for sha != "" && len(out) < depth {
		c, ok := b.commits[sha]
		if !ok {
			break
		}
		out = append(out, git.CommitInfo{
			Sha:       sha,
			ParentSha: c.parent,
			Subject:   c.subject,
			TimeMs:    c.timeMs,
		})
		if opts.Max > 0 && len(out) >= opts.Max {
			break
		}
		sha = c.parent
	}
	return out
}

// ResolveRef implements [git.GitBackend].
func (b *Backend) ResolveRef(_ context.Context, ref string) git.Hash {
	if ref == "HEAD" {
		return b.local[b.current]
	}
	if sha, ok := b.local[ref]; ok {
		return sha
	}
	if _, ok := b.commits[git.Hash(ref)]; ok {
		return git.Hash(ref)
	}
	return ""
}

// CurrentBranch implements [git.GitBackend].
func (b *Backend) CurrentBranch(context.Context) string { return b.current }

// ReadCommit implements [git.GitBackend].
func (b *Backend) ReadCommit(_ context.Context, sha git.Hash) (git.CommitDetail, error) {
	c, ok := b.commits[sha]
	if !ok {
		return git.CommitDetail{}, fmt.Errorf("unknown commit %q", sha)
	}
	var parents []git.Hash
	if c.parent != "" {
		parents = []git.Hash{c.parent}
	}
	return git.CommitDetail{Sha: sha, ParentShas: parents, Subject: c.subject, TimeMs: c.timeMs}, nil
}

// GetWorkingTreeStatus implements [git.GitBackend].
func (b *Backend) GetWorkingTreeStatus(context.Context) (*git.WorkingTreeStatus, error) {
	status := *b.dirty
	status.CurrentBranch = b.current
	status.CurrentCommit = b.local[b.current]
	status.IsRebasing = b.rebasing != nil
	return &status, nil
}

// Checkout implements [git.GitBackend].
func (b *Backend) Checkout(_ context.Context, branch string) error {
	if _, ok := b.local[branch]; !ok {
		return &git.GitError{Kind: git.GitErrorCheckoutFailed, Operation: "checkout", Message: "unknown branch " + branch}
	}
	b.current = branch
	return nil
}

// CreateBranch implements [git.GitBackend].
func (b *Backend) CreateBranch(_ context.Context, name, head string) error {
	b.local[name] = git.Hash(head)
	return nil
}

// DeleteBranch implements [git.GitBackend].
func (b *Backend) DeleteBranch(_ context.Context, name string, _ bool) error {
	delete(b.local, name)
	return nil
}

// Add implements [git.GitBackend].
func (b *Backend) Add(context.Context, ...string) error { return nil }

// ResetIndex implements [git.GitBackend].
func (b *Backend) ResetIndex(context.Context) error { return nil }

// Commit implements [git.GitBackend].
func (b *Backend) Commit(_ context.Context, req git.CommitRequest) error {
	sha := b.newCommit(b.local[b.current], req.Message)
	b.local[b.current] = sha
	return nil
}

func (b *Backend) newCommit(parent git.Hash, subject string) git.Hash {
	b.nextSha++
	sha := git.Hash("c" + strconv.Itoa(b.nextSha))
	b.commits[sha] = &commit{parent: parent, subject: subject, timeMs: int64(b.nextSha)}
	return sha
}

// Push implements [git.GitBackend].
func (b *Backend) Push(context.Context, git.PushOptions) error { return nil }

// Rebase implements [git.GitBackend]: it replays every commit in
// (From, To] onto Onto, assigning each a fresh sha with Onto (or the
// prior replayed commit) as its new parent. If ConflictOn names To's
// branch, it instead pauses mid-replay and reports a conflict.
func (b *Backend) Rebase(_ context.Context, opts git.RebaseBackendOptions) (git.RebaseResult, error) {
	branch := opts.To
	if b.ConflictOn != "" && b.ConflictOn == branch {
		b.ConflictOn = ""
		b.rebasing = &rebaseState{
			branch:       branch,
			onto:         git.Hash(opts.Onto),
			originalHead: b.local[branch],
			from:         git.Hash(opts.From),
			to:           b.local[branch],
		}
		return git.RebaseResult{Success: false, Conflicts: b.ConflictFiles}, nil
	}

	newHead := b.replay(git.Hash(opts.From), b.local[branch], git.Hash(opts.Onto))
	b.local[branch] = newHead
	return git.RebaseResult{Success: true, CurrentCommit: newHead}, nil
}

// replay rewrites every commit in (from, to] onto newBase, oldest first,
// returning the new head.
func (b *Backend) replay(from, to, newBase git.Hash) git.Hash {
	var chain []git.Hash
	for sha := to; sha != "" && sha != from; {
		c, ok := b.commits[sha]
		if !ok {
			break
		}
		chain = append(chain, sha)
		sha = c.parent
	}
	// chain is newest-first; replay oldest-first.
	head := newBase
	for i := len(chain) - 1; i >= 0; i-- {
		old := b.commits[chain[i]]
		head = b.newCommit(head, old.subject)
	}
	return head
}

// RebaseContinue implements [git.GitBackend]: it finishes replaying the
// paused rebase's remaining commits and clears the pause.
func (b *Backend) RebaseContinue(context.Context) (git.RebaseResult, error) {
	if b.rebasing == nil {
		return git.RebaseResult{}, fmt.Errorf("no rebase in progress")
	}
	state := b.rebasing
	b.rebasing = nil

	newHead := b.replay(state.from, state.to, state.onto)
	b.local[state.branch] = newHead
	b.current = state.branch
	return git.RebaseResult{Success: true, CurrentCommit: newHead}, nil
}

// RebaseAbort implements [git.GitBackend]: it restores the branch to its
// pre-rebase head and clears the pause.
func (b *Backend) RebaseAbort(context.Context) error {
	if b.rebasing == nil {
		return nil
	}
	b.local[b.rebasing.branch] = b.rebasing.originalHead
	b.current = b.rebasing.branch
	b.rebasing = nil
	return nil
}

// RebaseSkip implements [git.GitBackend]: it finishes the paused rebase
// exactly as [Backend.RebaseContinue] does. The fake does not track which
// commit conflicted, so no commit is dropped.
func (b *Backend) RebaseSkip(context.Context) (git.RebaseResult, error) {
	if b.rebasing == nil {
		return git.RebaseResult{}, fmt.Errorf("no rebase in progress")
	}
	return b.RebaseContinue(context.Background())
}

// GetRebaseState implements [git.GitBackend].
func (b *Backend) GetRebaseState(context.Context) (*git.RebaseProgress, error) {
	if b.rebasing == nil {
		return nil, nil
	}
	return &git.RebaseProgress{
		Branch:       b.rebasing.branch,
		Onto:         b.rebasing.onto.String(),
		OriginalHead: b.rebasing.originalHead,
	}, nil
}
