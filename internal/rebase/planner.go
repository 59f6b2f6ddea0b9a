package rebase

import (
	"fmt"

	"go.branchstack.dev/bse/internal/repomodel"
	"go.branchstack.dev/bse/internal/stack"
)

// InvalidIntentError reports that a [stack.RebaseIntent] could not be
// turned into a plan: an unknown sha, a remote target branch, a
// duplicate target, or a subtree ambiguous with trunk.
type InvalidIntentError struct {
	Reason string
}

func (e *InvalidIntentError) Error() string {
	return "invalid rebase intent: " + e.Reason
}

// Plan is the result of successfully planning a [stack.RebaseIntent]: the
// intent itself, alongside the initial [State] derived from it.
type Plan struct {
	Intent *stack.RebaseIntent
	State  *State
}

// CreatePlan validates intent against repo and produces an initial
// [State]: one pending job per target's subtree root, in target order.
// Enqueueing descendants is deferred until their parent job completes,
// since a descendant's target base is only known after that point.
func CreatePlan(repo *repomodel.Repo, intent *stack.RebaseIntent, nowMs int64, generateJobID GenerateJobID) (*Plan, error) {
	if err := validateIntent(repo, intent); err != nil {
		return nil, err
	}

	trunk, hasTrunk := repo.Trunk()
	var initialTrunkSha repomodel.CommitRef
	if hasTrunk {
		initialTrunkSha = trunk.HeadSha
	}

	jobsByID := make(map[string]*Job, len(intent.Targets))
	pending := make([]string, 0, len(intent.Targets))
	for _, target := range intent.Targets {
		id := generateJobID()
		jobsByID[id] = &Job{
			ID:              id,
			Branch:          target.Node.Branch,
			OriginalBaseSha: target.Node.BaseSha,
			OriginalHeadSha: target.Node.HeadSha,
			TargetBaseSha:   target.TargetBaseSha,
			Status:          JobPending,
			CreatedAtMs:     nowMs,
		}
		pending = append(pending, id)
	}

	state := &State{
		Session: SessionInfo{
			StartedAtMs:     nowMs,
			Status:          SessionRunning,
			InitialTrunkSha: initialTrunkSha,
		},
		JobsByID: jobsByID,
		Queue:    Queue{PendingJobIDs: pending},
	}

	return &Plan{Intent: intent, State: state}, nil
}

// validateIntent checks the InvalidIntent conditions the specification
// names: unknown shas, a remote target branch, a duplicate target
// branch, or a target subtree that also reaches a commit on trunk
// (ambiguous, per open question (c): such an intent is rejected rather
// than guessed at).
func validateIntent(repo *repomodel.Repo, intent *stack.RebaseIntent) error {
	if intent == nil || len(intent.Targets) == 0 {
		return &InvalidIntentError{Reason: "no targets"}
	}

	trunk, hasTrunk := repo.Trunk()
	trunkLineage := make(map[repomodel.CommitRef]struct{})
	if hasTrunk {
		for sha := trunk.HeadSha; sha != ""; {
			trunkLineage[sha] = struct{}{}
			c, ok := repo.Commit(sha)
			if !ok {
				break
			}
			sha = c.ParentSha
		}
	}

	seen := make(map[string]struct{}, len(intent.Targets))
	for _, target := range intent.Targets {
		if target.Node == nil {
			return &InvalidIntentError{Reason: "target has no node"}
		}

		if _, dup := seen[target.Node.Branch]; dup {
			return &InvalidIntentError{Reason: fmt.Sprintf("duplicate target branch %q", target.Node.Branch)}
		}
		seen[target.Node.Branch] = struct{}{}

		branch, ok := repo.Branch(target.Node.Branch)
		if !ok {
			return &InvalidIntentError{Reason: fmt.Sprintf("target branch %q is not a local branch", target.Node.Branch)}
		}
		if branch.IsRemote {
			return &InvalidIntentError{Reason: fmt.Sprintf("target branch %q is a remote branch", target.Node.Branch)}
		}

		if _, ok := repo.Commit(target.TargetBaseSha); !ok {
			return &InvalidIntentError{Reason: fmt.Sprintf("unknown target base sha %q", target.TargetBaseSha)}
		}

		var ambiguous error
		stack.Walk(target.Node, func(n *stack.StackNode) {
			if ambiguous != nil {
				return
			}
			for sha := n.HeadSha; sha != "" && sha != n.BaseSha; {
				if _, onTrunk := trunkLineage[sha]; onTrunk {
					ambiguous = &InvalidIntentError{
						Reason: fmt.Sprintf("branch %q's subtree reaches a commit on trunk", n.Branch),
					}
					return
				}
				c, ok := repo.Commit(sha)
				if !ok {
					break
				}
				sha = c.ParentSha
			}
		})
		if ambiguous != nil {
			return ambiguous
		}
	}

	return nil
}
