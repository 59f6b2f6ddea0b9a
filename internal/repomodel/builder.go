package repomodel

import (
	"context"
	"fmt"
	"sort"

	"go.branchstack.dev/bse/internal/config"
	"go.branchstack.dev/bse/internal/git"
	"go.branchstack.dev/bse/internal/must"
)

// forkPointResolver is the optional hail-mary capability a [git.GitBackend]
// may implement, checked via type assertion rather than added to the core
// interface, per [git.RepoBackend.ForkPoint]'s doc comment.
type forkPointResolver interface {
	ForkPoint(ctx context.Context, ref, other string) (git.Hash, error)
}

// Builder builds [Repo] snapshots from a [git.GitBackend].
type Builder struct {
	Config config.Engine
}

// NewBuilder builds a Builder with the given engine configuration.
func NewBuilder(cfg config.Engine) *Builder {
	return &Builder{Config: cfg}
}

// BuildRepo assembles a full snapshot of the repository at repoPath,
// following the seven-step algorithm: enumerate refs, resolve heads,
// discover trunk, aggregate commits, compute fork points, compute owned
// commits, and snapshot the working tree.
func (b *Builder) BuildRepo(ctx context.Context, backend git.GitBackend, repoPath string) (*Repo, error) {
	branches, err := b.enumerateRefs(ctx, backend)
	if err != nil {
		return nil, fmt.Errorf("enumerate refs: %w", err)
	}

	currentBranch := backend.CurrentBranch(ctx)
	b.discoverTrunk(branches, currentBranch)

	repo := &Repo{
		Path:     repoPath,
		Commits:  make(map[CommitRef]*Commit),
		Branches: branches,
	}

	b.aggregateCommits(ctx, backend, repo)
	b.computeBaseShas(ctx, backend, repo)
	b.computeOwnedCommits(repo)

	status, err := backend.GetWorkingTreeStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("get working tree status: %w", err)
	}
	repo.WorkingTree = status

	return repo, nil
}

// enumerateRefs lists local branches and every remote's branches, dropping
// symbolic refs such as "HEAD" that ListBranches may surface for a remote.
func (b *Builder) enumerateRefs(ctx context.Context, backend git.GitBackend) ([]*Branch, error) {
	var branches []*Branch

	local, err := backend.ListBranches(ctx, git.ListBranchesOptions{})
	if err != nil {
		return nil, fmt.Errorf("list local branches: %w", err)
	}
	for _, ref := range local {
		if ref.Name == "HEAD" || ref.Head == "" {
			continue
		}
		branches = append(branches, &Branch{Ref: ref.Name, HeadSha: ref.Head})
	}

	remotes, err := backend.ListRemotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remotes: %w", err)
	}
	for _, remote := range remotes {
		refs, err := backend.ListBranches(ctx, git.ListBranchesOptions{Remote: remote})
		if err != nil {
			continue // degrade silently: remote may be unreachable
		}
		for _, ref := range refs {
			if ref.Name == "HEAD" || ref.Head == "" {
				continue
			}
			branches = append(branches, &Branch{
				Ref:      ref.Name,
				IsRemote: true,
				Remote:   remote,
				HeadSha:  ref.Head,
			})
		}
	}

	return branches, nil
}

// discoverTrunk marks exactly one branch as trunk, in the preferred
// order: a canonical local name, then the same name on a remote, then the
// current checked-out branch, then the first branch in ref order.
func (b *Builder) discoverTrunk(branches []*Branch, currentBranch string) {
	if len(branches) == 0 {
		return
	}

	byRef := make(map[string]*Branch, len(branches))
	for _, br := range branches {
		if !br.IsRemote {
			byRef[br.Ref] = br
		}
	}

	for _, name := range b.Config.CanonicalTrunkNames {
		if br, ok := byRef[name]; ok {
			br.IsTrunk = true
			return
		}
	}

	for _, name := range b.Config.CanonicalTrunkNames {
		for _, br := range branches {
			if br.IsRemote && br.Ref == name {
				br.IsTrunk = true
				return
			}
		}
	}

	if currentBranch != "" {
		if br, ok := byRef[currentBranch]; ok {
			br.IsTrunk = true
			return
		}
	}

	sorted := make([]*Branch, len(branches))
	copy(sorted, branches)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ref < sorted[j].Ref })
	sorted[0].IsTrunk = true
}

// aggregateCommits walks the log of every branch head, bounded by the
// configured max depth, merging commits into the shared sha-indexed map
// and recording a truncation flag when the walk didn't reach a root.
func (b *Builder) aggregateCommits(ctx context.Context, backend git.GitBackend, repo *Repo) {
	depth := b.Config.MaxLogDepth
	if depth <= 0 {
		depth = 1000
	}

	for _, branch := range repo.Branches {
		entries := backend.Log(ctx, branch.HeadSha.String(), git.LogOptions{Depth: depth})
		if len(entries) == depth {
			branch.LogTruncated = true
		}

		for _, entry := range entries {
			c, ok := repo.Commits[entry.Sha]
			if !ok {
				c = &Commit{
					Sha:            entry.Sha,
					ParentSha:      entry.ParentSha,
					MessageSubject: entry.Subject,
					TimeMs:         entry.TimeMs,
				}
				repo.Commits[entry.Sha] = c
			}

			if entry.ParentSha == "" {
				continue
			}
			parent, ok := repo.Commits[entry.ParentSha]
			if !ok {
				parent = &Commit{Sha: entry.ParentSha}
				repo.Commits[entry.ParentSha] = parent
			}
			if !containsRef(parent.ChildrenSha, entry.Sha) {
				parent.ChildrenSha = append(parent.ChildrenSha, entry.Sha)
			}
		}
	}
}

// computeBaseShas computes each non-trunk branch's fork point: the
// closest ancestor of its head that is either another branch's head or on
// trunk's lineage, falling back to the earliest reachable commit if
// none is found, and to the backend's merge-base --fork-point hail-mary
// if the in-memory walk can't place it at all (e.g. a shallow clone).
func (b *Builder) computeBaseShas(ctx context.Context, backend git.GitBackend, repo *Repo) {
	headIndex := make(map[CommitRef][]*Branch)
	for _, br := range repo.Branches {
		headIndex[br.HeadSha] = append(headIndex[br.HeadSha], br)
	}

	trunk, hasTrunk := repo.Trunk()
	trunkLineage := make(map[CommitRef]struct{})
	if hasTrunk {
		for sha := trunk.HeadSha; sha != ""; {
			trunkLineage[sha] = struct{}{}
			c, ok := repo.Commits[sha]
			if !ok {
				break
			}
			sha = c.ParentSha
		}
	}

	for _, branch := range repo.Branches {
		if branch.IsTrunk {
			continue
		}

		base, recovered := b.forkPoint(ctx, backend, repo, branch, headIndex, trunkLineage)
		branch.BaseSha = base
		branch.RecoveredForkPoint = recovered
	}
}

func (b *Builder) forkPoint(
	ctx context.Context,
	backend git.GitBackend,
	repo *Repo,
	branch *Branch,
	headIndex map[CommitRef][]*Branch,
	trunkLineage map[CommitRef]struct{},
) (CommitRef, bool) {
	var lastSeen CommitRef
	sha := branch.HeadSha
	first := true
	for sha != "" {
		c, ok := repo.Commits[sha]
		if !ok {
			break
		}
		lastSeen = sha

		if !first {
			if owners, ok := headIndex[sha]; ok {
				for _, owner := range owners {
					if owner.Ref != branch.Ref {
						return sha, false
					}
				}
			}
			if _, onTrunk := trunkLineage[sha]; onTrunk {
				return sha, false
			}
		}
		first = false
		sha = c.ParentSha
	}

	if lastSeen != "" && !branch.LogTruncated {
		// Walked all the way to a root commit without finding a
		// fork point: that root is the base, per the single-commit
		// and whole-history boundary cases.
		return lastSeen, false
	}

	// The in-memory walk ran out (shallow clone truncation) before
	// finding a fork point. Reach for the backend's own fork-point
	// computation rather than silently guessing wrong.
	if resolver, ok := backend.(forkPointResolver); ok {
		if trunk, hasTrunk := repo.Trunk(); hasTrunk {
			if fp, err := resolver.ForkPoint(ctx, branch.HeadSha.String(), trunk.Ref); err == nil && fp != "" {
				return fp, true
			}
		}
	}

	return lastSeen, false
}

// computeOwnedCommits walks parents from each branch's head, stopping
// when the next parent is the branch's base (exclusive) or unknown.
func (b *Builder) computeOwnedCommits(repo *Repo) {
	for _, branch := range repo.Branches {
		var owned []CommitRef
		sha := branch.HeadSha
		for sha != "" && sha != branch.BaseSha {
			owned = append(owned, sha)
			c, ok := repo.Commits[sha]
			if !ok {
				break
			}
			sha = c.ParentSha
		}
		branch.OwnedCommitShas = owned

		if len(owned) > 0 {
			must.BeEqualf(owned[0], branch.HeadSha,
				"branch %s: ownedCommitShas[0] must equal headSha", branch.Ref)
		}
	}
}

func containsRef(refs []CommitRef, ref CommitRef) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

// UnusedDescendantName returns a branch name derived from base that is
// not already used by any branch in repo, appending a numeric suffix
// ("base-2", "base-3", ...) until one is free. Only local branches count
// as taken. Nothing else in this module calls it.
func UnusedDescendantName(repo *Repo, base string) string {
	used := make(map[string]struct{}, len(repo.Branches))
	for _, br := range repo.Branches {
		if !br.IsRemote {
			used[br.Ref] = struct{}{}
		}
	}

	if _, taken := used[base]; !taken {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if _, taken := used[candidate]; !taken {
			return candidate
		}
	}
}
