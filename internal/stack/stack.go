// Package stack defines the tree of branches a rebase intent targets, and
// the intent itself: what the user asked to move and where.
package stack

import (
	"fmt"

	"go.branchstack.dev/bse/internal/must"
	"go.branchstack.dev/bse/internal/repomodel"
)

// StackNode is one branch in a subtree targeted by a rebase, carrying its
// own children so the planner and executor can walk descendants without
// re-querying the repository model.
type StackNode struct {
	Branch   string
	HeadSha  repomodel.CommitRef
	BaseSha  repomodel.CommitRef
	Children []*StackNode
}

// BuildNode builds a StackNode rooted at the named branch, recursively
// including every branch whose base is (transitively) this branch's
// head, the way the teacher's branch graph computes Aboves/Upstack.
func BuildNode(repo *repomodel.Repo, branchRef string) (*StackNode, error) {
	branch, ok := repo.Branch(branchRef)
	if !ok {
		return nil, fmt.Errorf("unknown branch %q", branchRef)
	}
	return buildNode(repo, branch), nil
}

func buildNode(repo *repomodel.Repo, branch *repomodel.Branch) *StackNode {
	node := &StackNode{
		Branch:  branch.Ref,
		HeadSha: branch.HeadSha,
		BaseSha: branch.BaseSha,
	}

	for _, candidate := range repo.Branches {
		if candidate.IsRemote || candidate.IsTrunk {
			continue
		}
		if candidate.BaseSha == branch.HeadSha {
			node.Children = append(node.Children, buildNode(repo, candidate))
		}
	}

	return node
}

// Walk visits node and every descendant, depth-first, parent before
// child: the order the planner uses to seed initial job positions.
func Walk(node *StackNode, visit func(*StackNode)) {
	visit(node)
	for _, child := range node.Children {
		Walk(child, visit)
	}
}

// RebaseTarget names a single node to move to a new base.
type RebaseTarget struct {
	Node          *StackNode
	TargetBaseSha repomodel.CommitRef
}

// RebaseIntent is a user request to move one or more branch subtrees onto
// new bases.
type RebaseIntent struct {
	ID          string
	CreatedAtMs int64
	Targets     []RebaseTarget
}

// Validate enforces invariant I3: no two targets in an intent may share
// the same node branch. It panics on violation, since a duplicate target
// can only arise from a programming error in the caller that built the
// intent, not from anything the user can trigger directly.
func (ri *RebaseIntent) Validate() {
	seen := make(map[string]struct{}, len(ri.Targets))
	for _, t := range ri.Targets {
		must.NotBeNilf(t.Node, "rebase intent target must reference a node")
		_, dup := seen[t.Node.Branch]
		must.NotBef(dup, "rebase intent has duplicate target for branch %s", t.Node.Branch)
		seen[t.Node.Branch] = struct{}{}
	}
}
