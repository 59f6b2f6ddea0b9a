package uiproject

import (
	"go.branchstack.dev/bse/internal/rebase"
	"go.branchstack.dev/bse/internal/repomodel"
	"go.branchstack.dev/bse/internal/stack"
)

// syntheticCommit is a mutable copy of a [repomodel.Commit] used while
// computing a projected stack: the real model is never mutated.
type syntheticCommit struct {
	sha         repomodel.CommitRef
	parentSha   repomodel.CommitRef
	childrenSha []repomodel.CommitRef
	subject     string
	timeMs      int64
}

type projectedSource struct {
	repo    *repomodel.Repo
	synth   map[repomodel.CommitRef]*syntheticCommit
	current repomodel.CommitRef
}

func (s projectedSource) commit(sha repomodel.CommitRef) (*repomodel.Commit, bool) {
	sc, ok := s.synth[sha]
	if !ok {
		return nil, false
	}
	return &repomodel.Commit{
		Sha:            sc.sha,
		ParentSha:      sc.parentSha,
		ChildrenSha:    sc.childrenSha,
		MessageSubject: sc.subject,
		TimeMs:         sc.timeMs,
	}, true
}

func (s projectedSource) trunk() (*repomodel.Branch, bool) { return s.repo.Trunk() }

func (s projectedSource) branchesAt(sha repomodel.CommitRef) []string {
	var names []string
	for _, b := range s.repo.Branches {
		if b.HeadSha == sha {
			names = append(names, b.Ref)
		}
	}
	return names
}

func (s projectedSource) currentCommit() repomodel.CommitRef { return s.current }

// BuildProjectedStack computes the synthetic tree that would result from
// applying intent, without mutating repo, and tags every commit moved by
// the intent with its RebaseStatus.
func BuildProjectedStack(repo *repomodel.Repo, intent *stack.RebaseIntent) (*UiStack, bool) {
	if intent == nil || len(intent.Targets) == 0 {
		return BuildUiStack(repo)
	}

	synth := cloneCommits(repo)

	prompting := make(map[repomodel.CommitRef]struct{}, len(intent.Targets))
	idle := make(map[repomodel.CommitRef]struct{})

	for _, target := range intent.Targets {
		prompting[target.Node.HeadSha] = struct{}{}
		reparentSubtree(synth, target.Node, target.TargetBaseSha, true, idle)
	}
	for sha := range prompting {
		delete(idle, sha)
	}

	var current repomodel.CommitRef
	if repo.WorkingTree != nil {
		current = repo.WorkingTree.CurrentCommit
	}

	src := projectedSource{repo: repo, synth: synth, current: current}
	result, ok := buildUiStack(src)
	if !ok {
		return nil, false
	}

	tagRebaseStatus(result, prompting, idle)
	return result, true
}

func cloneCommits(repo *repomodel.Repo) map[repomodel.CommitRef]*syntheticCommit {
	out := make(map[repomodel.CommitRef]*syntheticCommit, len(repo.Commits))
	for sha, c := range repo.Commits {
		out[sha] = &syntheticCommit{
			sha:         c.Sha,
			parentSha:   c.ParentSha,
			childrenSha: append([]repomodel.CommitRef(nil), c.ChildrenSha...),
			subject:     c.MessageSubject,
			timeMs:      c.TimeMs,
		}
	}
	return out
}

// reparentSubtree reparents node's head commit onto newBase (relinking
// the graph only when relink is true -- a recursive child's head already
// points, via its base, at its parent's head sha, which never changes
// identity, so only a time bump is needed there), then recurses through
// node.Children anchored at node's own head, the same way the planner
// walks a subtree. Every node's head along the way -- the target's own
// and every descendant branch's -- is recorded into idle; the caller
// removes the top-level target heads from that set afterward, leaving
// them tagged prompting instead.
func reparentSubtree(
	synth map[repomodel.CommitRef]*syntheticCommit,
	node *stack.StackNode,
	newBase repomodel.CommitRef,
	relink bool,
	idle map[repomodel.CommitRef]struct{},
) {
	head := node.HeadSha
	if head == "" {
		return
	}

	anchor, ok := synth[newBase]
	if !ok {
		return
	}
	headCommit, ok := synth[head]
	if !ok {
		return
	}

	if relink {
		if oldParent, ok := synth[node.BaseSha]; ok {
			oldParent.childrenSha = removeSha(oldParent.childrenSha, head)
		}
		anchor.childrenSha = append(anchor.childrenSha, head)
		headCommit.parentSha = newBase
	}

	if headCommit.timeMs <= anchor.timeMs {
		headCommit.timeMs = anchor.timeMs + 1
	}
	idle[head] = struct{}{}

	for _, child := range node.Children {
		reparentSubtree(synth, child, head, false, idle)
	}
}

func removeSha(shas []repomodel.CommitRef, target repomodel.CommitRef) []repomodel.CommitRef {
	out := shas[:0]
	for _, s := range shas {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// tagRebaseStatus walks the built stack and sets RebaseStatus on every
// commit present in prompting or idle.
func tagRebaseStatus(s *UiStack, prompting, idle map[repomodel.CommitRef]struct{}) {
	var walk func(*UiStack)
	walk = func(st *UiStack) {
		for _, c := range st.Commits {
			if _, ok := prompting[c.Sha]; ok {
				c.RebaseStatus = StatusPrompting
			} else if _, ok := idle[c.Sha]; ok {
				c.RebaseStatus = StatusIdle
			}
			for _, spinoff := range c.Spinoffs {
				walk(spinoff)
			}
		}
	}
	walk(s)
}

// BuildFullUiState assembles the complete view the host renders: the
// real stack, the projected stack (only when intent is non-nil), the
// working tree snapshot, and a rebase progress view derived from state.
func BuildFullUiState(repo *repomodel.Repo, intent *stack.RebaseIntent, state *rebase.State) *UiStateView {
	real, _ := BuildUiStack(repo)

	var projected *UiStack
	if intent != nil {
		projected, _ = BuildProjectedStack(repo, intent)
	}

	view := &UiStateView{
		Stack:          real,
		ProjectedStack: projected,
		WorkingTree:    repo.WorkingTree,
	}

	if state != nil {
		view.Rebase = buildRebaseView(state)
	}

	return view
}

func buildRebaseView(state *rebase.State) *RebaseView {
	view := &RebaseView{
		Status: string(state.Session.Status),
	}

	for _, job := range state.JobsByID {
		view.TotalJobs++
		switch job.Status {
		case rebase.JobCompleted:
			view.CompletedJobs++
		case rebase.JobAwaitingUser:
			view.Conflicts = job.Conflicts
			view.BlockedBranch = job.Branch
		}
	}

	view.CanAbort = state.Session.Status != rebase.SessionCompleted
	return view
}
