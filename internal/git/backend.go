package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Capability names an optional operation a [GitBackend] may or may not
// support. The executor checks Supports before relying on one of these so
// that a reduced backend (a shallow clone, a read-only mirror, a test
// double that never needs to drive a real rebase to completion) degrades
// to [UnsupportedBackendError] instead of a confusing low-level failure.
type Capability int

const (
	// CapRebaseContinue is required by RebaseContinue.
	CapRebaseContinue Capability = iota
	// CapRebaseAbort is required by RebaseAbort.
	CapRebaseAbort
	// CapRebaseSkip is required by RebaseSkip.
	CapRebaseSkip
	// CapPush is required by Push.
	CapPush
)

func (c Capability) String() string {
	switch c {
	case CapRebaseContinue:
		return "rebase-continue"
	case CapRebaseAbort:
		return "rebase-abort"
	case CapRebaseSkip:
		return "rebase-skip"
	case CapPush:
		return "push"
	default:
		return "unknown"
	}
}

// UnsupportedBackendError is returned when the engine asks a [GitBackend]
// to perform an operation it does not support.
type UnsupportedBackendError struct {
	Capability Capability
}

func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("git backend does not support %v", e.Capability)
}

// GitErrorKind classifies the error kinds a mutating [GitBackend]
// operation may fail with.
type GitErrorKind int

const (
	// GitErrorOther is a catch-all for failures not otherwise classified.
	GitErrorOther GitErrorKind = iota
	// GitErrorCheckoutFailed indicates a checkout could not complete.
	GitErrorCheckoutFailed
	// GitErrorRebaseFailed indicates a mutating rebase step failed for a
	// reason other than a content conflict (conflicts are reported via
	// [RebaseResult], not this error).
	GitErrorRebaseFailed
	// GitErrorRefResolutionFailed indicates a ref could not be resolved
	// where resolution was required to proceed.
	GitErrorRefResolutionFailed
)

// GitError wraps a failed mutating [GitBackend] operation with the
// operation name and a human-readable message, per the error design in
// the rebase engine's specification: inspection calls degrade silently,
// mutation calls raise a typed error.
type GitError struct {
	Kind      GitErrorKind
	Operation string
	Message   string
	Err       error
}

func (e *GitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *GitError) Unwrap() error { return e.Err }

// BranchRef identifies a branch known to a [GitBackend], local or remote.
type BranchRef struct {
	// Name is the branch's short name, e.g. "main".
	Name string
	// Remote is the name of the remote this branch tracks, or empty for
	// a local branch.
	Remote string
	// Head is the commit the branch currently points at.
	Head Hash
}

// ListBranchesOptions filters the result of ListBranches.
type ListBranchesOptions struct {
	// Remote, if non-empty, restricts the listing to branches on this
	// remote. If empty, local branches are listed.
	Remote string
}

// CommitInfo is a single entry from a commit log walk.
type CommitInfo struct {
	Sha       Hash
	ParentSha Hash // empty for a root commit
	Subject   string
	TimeMs    int64
}

// LogOptions controls a commit log walk.
type LogOptions struct {
	// Depth bounds how many commits are walked. Zero means no caller
	// override; the backend applies its own default.
	Depth int
	// Max, if non-zero, stops the walk after this many commits even if
	// Depth would allow more.
	Max int
}

// CommitDetail is the full detail of a single commit, returned by
// ReadCommit.
type CommitDetail struct {
	Sha        Hash
	ParentShas []Hash
	Subject    string
	Body       string
	TimeMs     int64
}

// WorkingTreeStatus is a snapshot of the worktree and index, plus whether
// an interrupted rebase is in progress on disk.
type WorkingTreeStatus struct {
	CurrentBranch string
	CurrentCommit Hash
	Tracking      string
	Detached      bool
	IsRebasing    bool
	Staged        []string
	Modified      []string
	Created       []string
	Deleted       []string
	Renamed       []string
	NotAdded      []string
	Conflicted    []string
}

// AllChangedFiles returns the union of every changed-file category,
// de-duplicated, sorted is not guaranteed.
func (s *WorkingTreeStatus) AllChangedFiles() []string {
	seen := make(map[string]struct{})
	var all []string
	add := func(paths []string) {
		for _, p := range paths {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			all = append(all, p)
		}
	}
	add(s.Staged)
	add(s.Modified)
	add(s.Created)
	add(s.Deleted)
	add(s.Renamed)
	add(s.NotAdded)
	add(s.Conflicted)
	return all
}

// IsDirty reports whether the worktree has any staged, modified, created,
// deleted, renamed, or conflicted changes. Untracked files alone do not
// count as dirty for the purposes of the executor's pre-flight check,
// matching the teacher's restack preflight.
func (s *WorkingTreeStatus) IsDirty() bool {
	return len(s.Staged) > 0 || len(s.Modified) > 0 || len(s.Created) > 0 ||
		len(s.Deleted) > 0 || len(s.Renamed) > 0 || len(s.Conflicted) > 0
}

// RebaseBackendOptions requests a non-interactive replay of commits in the
// range (From, To] onto Onto. Callers are expected to have checked out To
// beforehand.
type RebaseBackendOptions struct {
	Onto      string
	From      string
	To        string
	Autostash bool
}

// RebaseResult is the outcome of a rebase step. A failed content merge is
// reported via Success=false and Conflicts, never as an error: only
// infrastructure failures (bad refs, missing worktree) are errors.
type RebaseResult struct {
	Success       bool
	Conflicts     []string
	CurrentCommit Hash
}

// RebaseProgress describes an in-progress rebase recovered from disk.
type RebaseProgress struct {
	Branch       string
	Onto         string
	OriginalHead Hash
	CurrentStep  int
	TotalSteps   int
}

// GitBackend is the capability interface the rebase engine speaks to.
// It deliberately omits a window/shell surface, forge integration, and
// credential storage: those are host concerns, not backend concerns.
//
// Inspection methods degrade to zero values on failure and never return
// an error for conditions like "shallow clone" or "ref does not exist
// yet" -- callers should treat an empty result as "nothing known", not as
// a fatal condition. Mutating methods return a [*GitError] on
// infrastructure failure; a rebase content conflict is reported through
// [RebaseResult], not an error.
type GitBackend interface {
	// Supports reports whether this backend implements the given
	// optional capability. The executor short-circuits with
	// [UnsupportedBackendError] before calling a method gated on a
	// capability this returns false for.
	Supports(Capability) bool

	ListBranches(ctx context.Context, opts ListBranchesOptions) ([]BranchRef, error)
	ListRemotes(ctx context.Context) ([]string, error)
	Log(ctx context.Context, ref string, opts LogOptions) []CommitInfo
	ResolveRef(ctx context.Context, ref string) Hash
	CurrentBranch(ctx context.Context) string
	ReadCommit(ctx context.Context, sha Hash) (CommitDetail, error)
	GetWorkingTreeStatus(ctx context.Context) (*WorkingTreeStatus, error)

	Checkout(ctx context.Context, branch string) error
	CreateBranch(ctx context.Context, name, head string) error
	DeleteBranch(ctx context.Context, name string, force bool) error
	Add(ctx context.Context, paths ...string) error
	ResetIndex(ctx context.Context) error
	Commit(ctx context.Context, req CommitRequest) error
	Push(ctx context.Context, opts PushOptions) error

	Rebase(ctx context.Context, opts RebaseBackendOptions) (RebaseResult, error)
	RebaseContinue(ctx context.Context) (RebaseResult, error)
	RebaseAbort(ctx context.Context) error
	RebaseSkip(ctx context.Context) (RebaseResult, error)
	GetRebaseState(ctx context.Context) (*RebaseProgress, error)
}

// RepoBackend adapts a [Repository] and its checked-out [Worktree] to the
// [GitBackend] interface. It supports every optional capability: a real
// Git checkout can always continue, abort, skip, or push.
type RepoBackend struct {
	repo *Repository
	wt   *Worktree
}

var _ GitBackend = (*RepoBackend)(nil)

// NewRepoBackend builds a GitBackend backed by a real Git worktree.
func NewRepoBackend(repo *Repository, wt *Worktree) *RepoBackend {
	return &RepoBackend{repo: repo, wt: wt}
}

// Supports reports that every capability is available: a real checkout
// can always continue, abort, skip a rebase, or push.
func (*RepoBackend) Supports(Capability) bool { return true }

func (b *RepoBackend) ListBranches(ctx context.Context, opts ListBranchesOptions) ([]BranchRef, error) {
	if opts.Remote != "" {
		var refs []BranchRef
		for rr, err := range b.repo.ListRemoteRefs(ctx, opts.Remote, &ListRemoteRefsOptions{Heads: true}) {
			if err != nil {
				return nil, fmt.Errorf("list remote branches: %w", err)
			}
			name := rr.Name
			if idx := len("refs/heads/"); len(name) > idx && name[:idx] == "refs/heads/" {
				name = name[idx:]
			}
			refs = append(refs, BranchRef{Name: name, Remote: opts.Remote, Head: rr.Hash})
		}
		return refs, nil
	}

	names, err := b.repo.LocalBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list local branches: %w", err)
	}

	refs := make([]BranchRef, 0, len(names))
	for _, name := range names {
		head, err := b.repo.PeelToCommit(ctx, name)
		if err != nil {
			continue // ref disappeared between listing and resolution
		}
		refs = append(refs, BranchRef{Name: name, Head: head})
	}
	return refs, nil
}

func (b *RepoBackend) ListRemotes(ctx context.Context) ([]string, error) {
	return b.repo.ListRemotes(ctx)
}

func (b *RepoBackend) Log(ctx context.Context, ref string, opts LogOptions) []CommitInfo {
	depth := opts.Depth
	if depth <= 0 {
		depth = 1000
	}

	list, err := b.repo.ListCommits(ctx, ref, "")
	if err != nil {
		return nil
	}

	var out []CommitInfo
	for list.Next() && len(out) < depth {
		sha := Hash(list.Commit())
		detail, err := b.ReadCommit(ctx, sha)
		if err != nil {
			break
		}
		var parent Hash
		if len(detail.ParentShas) > 0 {
			parent = detail.ParentShas[0]
		}
		out = append(out, CommitInfo{
			Sha:       sha,
			ParentSha: parent,
			Subject:   detail.Subject,
			TimeMs:    detail.TimeMs,
		})
		if opts.Max > 0 && len(out) >= opts.Max {
			break
		}
	}
	_ = list.Err() // degrade silently: shallow clones end the walk early

	return out
}

func (b *RepoBackend) ResolveRef(ctx context.Context, ref string) Hash {
	hash, err := b.repo.PeelToCommit(ctx, ref)
	if err != nil {
		return ""
	}
	return hash
}

func (b *RepoBackend) CurrentBranch(ctx context.Context) string {
	name, err := b.wt.CurrentBranch(ctx)
	if err != nil {
		return ""
	}
	return name
}

// commitDetailFormat packs everything ReadCommit needs into one
// 'git show' invocation, NUL-separated so subject/body text containing
// spaces or newlines is parsed unambiguously.
const commitDetailFormat = "%P%x00%ct%x00%s%x00%b"

func (b *RepoBackend) ReadCommit(ctx context.Context, sha Hash) (CommitDetail, error) {
	out, err := b.repo.gitCmd(ctx, "show", "--no-patch", "--format="+commitDetailFormat, sha.String()).
		OutputString(b.repo.exec)
	if err != nil {
		return CommitDetail{}, fmt.Errorf("%w: %s", ErrNotExist, sha)
	}

	fields := strings.Split(out, "\x00")
	for len(fields) < 4 {
		fields = append(fields, "")
	}

	var parents []Hash
	for _, p := range splitFields(fields[0]) {
		parents = append(parents, Hash(p))
	}

	return CommitDetail{
		Sha:        sha,
		ParentShas: parents,
		Subject:    fields[2],
		Body:       strings.TrimSpace(fields[3]),
		TimeMs:     parseUnixSecondsToMs(fields[1]),
	}, nil
}

func (b *RepoBackend) GetWorkingTreeStatus(ctx context.Context) (*WorkingTreeStatus, error) {
	raw, err := b.wt.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("get working tree status: %w", err)
	}

	rebasing := false
	if _, err := b.wt.RebaseState(ctx); err == nil {
		rebasing = true
	} else if !errors.Is(err, ErrNoRebase) {
		return nil, fmt.Errorf("check rebase state: %w", err)
	}

	return &WorkingTreeStatus{
		CurrentBranch: raw.Branch,
		CurrentCommit: raw.Commit,
		Tracking:      raw.Upstream,
		Detached:      raw.Detached,
		IsRebasing:    rebasing,
		Staged:        raw.Staged,
		Modified:      raw.Modified,
		Created:       raw.Created,
		Deleted:       raw.Deleted,
		Renamed:       raw.Renamed,
		NotAdded:      raw.NotAdded,
		Conflicted:    raw.Conflicted,
	}, nil
}

func (b *RepoBackend) Checkout(ctx context.Context, branch string) error {
	if err := b.wt.Checkout(ctx, branch); err != nil {
		return &GitError{Kind: GitErrorCheckoutFailed, Operation: "checkout", Err: err}
	}
	return nil
}

func (b *RepoBackend) CreateBranch(ctx context.Context, name, head string) error {
	if err := b.repo.CreateBranch(ctx, CreateBranchRequest{Name: name, Head: head}); err != nil {
		return &GitError{Operation: "branch", Err: err}
	}
	return nil
}

func (b *RepoBackend) DeleteBranch(ctx context.Context, name string, force bool) error {
	if err := b.repo.DeleteBranch(ctx, name, BranchDeleteOptions{Force: force}); err != nil {
		return &GitError{Operation: "branch -d", Err: err}
	}
	return nil
}

func (b *RepoBackend) Add(ctx context.Context, paths ...string) error {
	args := append([]string{"add"}, paths...)
	if err := b.wt.gitCmd(ctx, args...).Run(b.wt.exec); err != nil {
		return &GitError{Operation: "add", Err: err}
	}
	return nil
}

func (b *RepoBackend) ResetIndex(ctx context.Context) error {
	if err := b.wt.gitCmd(ctx, "reset").Run(b.wt.exec); err != nil {
		return &GitError{Operation: "reset", Err: err}
	}
	return nil
}

func (b *RepoBackend) Commit(ctx context.Context, req CommitRequest) error {
	if err := b.wt.Commit(ctx, req); err != nil {
		return &GitError{Operation: "commit", Err: err}
	}
	return nil
}

func (b *RepoBackend) Push(ctx context.Context, opts PushOptions) error {
	if err := b.wt.Push(ctx, opts); err != nil {
		return &GitError{Operation: "push", Err: err}
	}
	return nil
}

func (b *RepoBackend) Rebase(ctx context.Context, opts RebaseBackendOptions) (RebaseResult, error) {
	err := b.wt.Rebase(ctx, RebaseRequest{
		Branch:    opts.To,
		Upstream:  opts.From,
		Onto:      opts.Onto,
		Autostash: opts.Autostash,
		Quiet:     true,
	})
	return b.rebaseOutcome(ctx, err, "rebase")
}

func (b *RepoBackend) RebaseContinue(ctx context.Context) (RebaseResult, error) {
	err := b.wt.RebaseContinue(ctx, nil)
	return b.rebaseOutcome(ctx, err, "rebase --continue")
}

func (b *RepoBackend) RebaseAbort(ctx context.Context) error {
	if err := b.wt.RebaseAbort(ctx); err != nil {
		return &GitError{Operation: "rebase --abort", Err: err}
	}
	return nil
}

func (b *RepoBackend) RebaseSkip(ctx context.Context) (RebaseResult, error) {
	if err := b.wt.gitCmd(ctx, "rebase", "--skip").Run(b.wt.exec); err != nil {
		var interrupt *RebaseInterruptError
		if errors.As(err, &interrupt) && interrupt.Kind == RebaseInterruptConflict {
			status, statusErr := b.GetWorkingTreeStatus(ctx)
			if statusErr != nil {
				return RebaseResult{}, &GitError{Kind: GitErrorRebaseFailed, Operation: "rebase --skip", Err: statusErr}
			}
			return RebaseResult{Success: false, Conflicts: status.Conflicted}, nil
		}
		return RebaseResult{}, &GitError{Kind: GitErrorRebaseFailed, Operation: "rebase --skip", Err: err}
	}

	head := b.ResolveRef(ctx, "HEAD")
	return RebaseResult{Success: true, CurrentCommit: head}, nil
}

// ForkPoint reports the point at which the current state of ref diverged
// from other, per 'git merge-base --fork-point'. It is not part of
// [GitBackend]: it is a hail-mary fallback the repository model builder
// reaches for via a type assertion when the cheaper ancestor walk over
// already-loaded commits can't place a branch's fork point, e.g. after an
// external amend moved history out from under a previously recorded base.
func (b *RepoBackend) ForkPoint(ctx context.Context, ref, other string) (Hash, error) {
	return b.repo.ForkPoint(ctx, ref, other)
}

func (b *RepoBackend) GetRebaseState(ctx context.Context) (*RebaseProgress, error) {
	state, err := b.wt.RebaseState(ctx)
	if err != nil {
		if errors.Is(err, ErrNoRebase) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rebase state: %w", err)
	}

	return &RebaseProgress{
		Branch: state.Branch,
	}, nil
}

// rebaseOutcome interprets the result of a Worktree rebase invocation:
// a nil error is an empty, already-up-to-date rebase; a
// [RebaseInterruptError] with [RebaseInterruptConflict] is a paused
// session reported as a non-error result; any other error is an
// infrastructure failure.
func (b *RepoBackend) rebaseOutcome(ctx context.Context, err error, op string) (RebaseResult, error) {
	if err == nil {
		return RebaseResult{Success: true, CurrentCommit: b.ResolveRef(ctx, "HEAD")}, nil
	}

	var interrupt *RebaseInterruptError
	if errors.As(err, &interrupt) {
		switch interrupt.Kind {
		case RebaseInterruptConflict:
			status, statusErr := b.GetWorkingTreeStatus(ctx)
			if statusErr != nil {
				return RebaseResult{}, &GitError{Kind: GitErrorRebaseFailed, Operation: op, Err: statusErr}
			}
			return RebaseResult{Success: false, Conflicts: status.Conflicted}, nil
		case RebaseInterruptDeliberate:
			// Never reached in practice: the engine only drives
			// non-interactive rebases. Kept as a documented,
			// unreachable variant rather than collapsed into an error.
			return RebaseResult{Success: true, CurrentCommit: b.ResolveRef(ctx, "HEAD")}, nil
		}
	}

	return RebaseResult{}, &GitError{Kind: GitErrorRebaseFailed, Operation: op, Err: err}
}

func splitFields(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

func parseUnixSecondsToMs(s string) int64 {
	var sec int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		sec = sec*10 + int64(r-'0')
	}
	return sec * 1000
}
