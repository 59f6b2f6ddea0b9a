package uiproject

import (
	"sort"

	"go.abhg.dev/container/ring"

	"go.branchstack.dev/bse/internal/repomodel"
)

// commitSource is the minimal read surface buildUiStack needs: either a
// real [repomodel.Repo] or the synthetic mapping computed by
// computeProjectedMapping.
type commitSource interface {
	commit(sha repomodel.CommitRef) (*repomodel.Commit, bool)
	trunk() (*repomodel.Branch, bool)
	branchesAt(sha repomodel.CommitRef) []string
	currentCommit() repomodel.CommitRef
}

type repoSource struct{ repo *repomodel.Repo }

func (s repoSource) commit(sha repomodel.CommitRef) (*repomodel.Commit, bool) { return s.repo.Commit(sha) }
func (s repoSource) trunk() (*repomodel.Branch, bool)                        { return s.repo.Trunk() }

func (s repoSource) branchesAt(sha repomodel.CommitRef) []string {
	var names []string
	for _, b := range s.repo.Branches {
		if b.HeadSha == sha {
			names = append(names, b.Ref)
		}
	}
	return names
}

func (s repoSource) currentCommit() repomodel.CommitRef {
	if s.repo.WorkingTree == nil {
		return ""
	}
	return s.repo.WorkingTree.CurrentCommit
}

// BuildUiStack builds the real trunk + spinoffs tree for repo. ok is
// false if repo has no trunk branch.
func BuildUiStack(repo *repomodel.Repo) (stack *UiStack, ok bool) {
	return buildUiStack(repoSource{repo: repo})
}

func buildUiStack(src commitSource) (*UiStack, bool) {
	trunk, ok := src.trunk()
	if !ok {
		return nil, false
	}

	spine := trunkSpine(src, trunk.HeadSha)
	spineSet := make(map[repomodel.CommitRef]struct{}, len(spine))
	for _, sha := range spine {
		spineSet[sha] = struct{}{}
	}

	current := src.currentCommit()

	commits := make([]*UiCommit, 0, len(spine))
	for _, sha := range spine {
		uc := toUiCommit(src, sha, current)

		var spinoffRoots []repomodel.CommitRef
		c, _ := src.commit(sha)
		for _, child := range c.ChildrenSha {
			if _, onSpine := spineSet[child]; onSpine {
				continue
			}
			spinoffRoots = append(spinoffRoots, child)
		}
		sortByTimeThenSha(src, spinoffRoots)

		for _, root := range spinoffRoots {
			uc.Spinoffs = append(uc.Spinoffs, buildSpinoffStack(src, root, current))
		}

		commits = append(commits, uc)
	}

	commits = trimDeadTrunkHistory(commits)

	return &UiStack{IsTrunk: true, Commits: commits}, true
}

// trunkSpine collects the trunk's linear lineage root->head by walking
// parentSha from head, then reversing.
func trunkSpine(src commitSource, head repomodel.CommitRef) []repomodel.CommitRef {
	var headFirst []repomodel.CommitRef
	for sha := head; sha != ""; {
		headFirst = append(headFirst, sha)
		c, ok := src.commit(sha)
		if !ok {
			break
		}
		sha = c.ParentSha
	}
	for i, j := 0, len(headFirst)-1; i < j; i, j = i+1, j-1 {
		headFirst[i], headFirst[j] = headFirst[j], headFirst[i]
	}
	return headFirst
}

// buildSpinoffStack builds a non-trunk UiStack rooted at root, walking
// forward: at each step it picks one continuation child (earliest
// timeMs, then lowest sha) to keep extending this stack, and emits every
// other child as a nested spinoff of the current commit. The other
// children are pushed onto a [ring.Q] and each one is built by a
// recursive call, so nesting depth follows the depth of the graph.
func buildSpinoffStack(src commitSource, root repomodel.CommitRef, current repomodel.CommitRef) *UiStack {
	var commits []*UiCommit

	sha := root
	for sha != "" {
		uc := toUiCommit(src, sha, current)
		commits = append(commits, uc)

		c, ok := src.commit(sha)
		if !ok {
			break
		}
		if len(c.ChildrenSha) == 0 {
			break
		}

		children := append([]repomodel.CommitRef(nil), c.ChildrenSha...)
		sortByTimeThenSha(src, children)

		var q ring.Q[repomodel.CommitRef]
		for _, child := range children[1:] {
			q.Push(child)
		}
		for !q.Empty() {
			uc.Spinoffs = append(uc.Spinoffs, buildSpinoffStack(src, q.Pop(), current))
		}

		sha = children[0]
	}

	return &UiStack{IsTrunk: false, Commits: commits}
}

func toUiCommit(src commitSource, sha, current repomodel.CommitRef) *UiCommit {
	c, ok := src.commit(sha)
	if !ok {
		return &UiCommit{Sha: sha}
	}
	return &UiCommit{
		Sha:         sha,
		TimestampMs: c.TimeMs,
		Name:        c.MessageSubject,
		IsCurrent:   sha == current && current != "",
		Branches:    src.branchesAt(sha),
	}
}

func sortByTimeThenSha(src commitSource, shas []repomodel.CommitRef) {
	sort.Slice(shas, func(i, j int) bool {
		ci, _ := src.commit(shas[i])
		cj, _ := src.commit(shas[j])
		if ci == nil || cj == nil {
			return shas[i] < shas[j]
		}
		if ci.TimeMs != cj.TimeMs {
			return ci.TimeMs < cj.TimeMs
		}
		return shas[i] < shas[j]
	})
}

// trimDeadTrunkHistory drops leading (oldest) trunk commits until the
// first one with a spinoff or a branch annotation, since history before
// that point carries nothing the host needs to display.
func trimDeadTrunkHistory(commits []*UiCommit) []*UiCommit {
	for i, c := range commits {
		if len(c.Spinoffs) > 0 || len(c.Branches) > 0 {
			return commits[i:]
		}
	}
	if len(commits) > 0 {
		return commits[len(commits)-1:]
	}
	return commits
}
