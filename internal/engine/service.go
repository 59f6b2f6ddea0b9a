// Package engine exposes the rebase coordination engine's request/response
// surface to a host shell: rebuild the repo model and its projected
// view, submit and confirm rebase intents, and drive a session through
// continuation, abort, or skip -- the way the teacher's Service wraps
// its branch graph and state store behind a small set of methods.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.branchstack.dev/bse/internal/config"
	"go.branchstack.dev/bse/internal/executor"
	"go.branchstack.dev/bse/internal/git"
	"go.branchstack.dev/bse/internal/rebase"
	"go.branchstack.dev/bse/internal/repomodel"
	"go.branchstack.dev/bse/internal/session"
	"go.branchstack.dev/bse/internal/silog"
	"go.branchstack.dev/bse/internal/stack"
	"go.branchstack.dev/bse/internal/uiproject"
)

// RebaseRequest names the branch the user wants moved and the commit to
// move it onto.
type RebaseRequest struct {
	HeadSha string
	BaseSha string
}

// Service is the engine's façade: one instance coordinates every repo
// path passed to it, sharing a single session store the way the
// teacher's Service shares a single branch store across a process.
type Service struct {
	backend  git.GitBackend
	cfg      config.Engine
	sessions *session.Store
	exec     *executor.Executor
	idGen    func() string
	now      func() int64
	log      *silog.Logger
}

// New builds a Service. idGen must produce unique rebase/job IDs; now
// defaults to the wall clock and idGen to a random alphanumeric generator if
// either is nil.
func New(backend git.GitBackend, cfg config.Engine, sessions *session.Store, idGen func() string, now func() int64, log *silog.Logger) *Service {
	if now == nil {
		now = defaultClock()
	}
	if idGen == nil {
		idGen = defaultIDGen()
	}
	if log == nil {
		log = silog.Nop()
	}

	return &Service{
		backend:  backend,
		cfg:      cfg,
		sessions: sessions,
		exec:     executor.New(backend, sessions, rebase.GenerateJobID(idGen), now),
		idGen:    idGen,
		now:      now,
		log:      log,
	}
}

func (s *Service) buildRepo(ctx context.Context, repoPath string) (*repomodel.Repo, error) {
	builder := repomodel.NewBuilder(s.cfg)
	repo, err := builder.BuildRepo(ctx, s.backend, repoPath)
	if err != nil {
		return nil, fmt.Errorf("build repo model: %w", err)
	}
	return repo, nil
}

// GetRepo rebuilds the repo model and returns its projected UI view.
func (s *Service) GetRepo(ctx context.Context, repoPath string) (*uiproject.UiStateView, error) {
	repo, err := s.buildRepo(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	stored, _ := s.sessions.Get(repoPath)
	return buildView(repo, stored), nil
}

// SubmitRebaseIntent computes a StackNode rooted at the branch whose
// head is req.HeadSha, builds a rebase intent targeting req.BaseSha,
// plans it, and stores the resulting session without starting
// execution. It fails with [session.ErrSessionAlreadyExists] if a
// session is already active for repoPath -- the caller must
// CancelRebaseIntent first.
func (s *Service) SubmitRebaseIntent(ctx context.Context, repoPath string, req RebaseRequest) (*uiproject.UiStateView, error) {
	repo, err := s.buildRepo(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	branch, ok := findBranchByHead(repo, git.Hash(req.HeadSha))
	if !ok {
		return nil, &rebase.InvalidIntentError{Reason: fmt.Sprintf("no local branch has head %q", req.HeadSha)}
	}

	node, err := stack.BuildNode(repo, branch.Ref)
	if err != nil {
		return nil, fmt.Errorf("build stack node: %w", err)
	}

	intent := &stack.RebaseIntent{
		ID:          s.idGen(),
		CreatedAtMs: s.now(),
		Targets: []stack.RebaseTarget{
			{Node: node, TargetBaseSha: git.Hash(req.BaseSha)},
		},
	}
	intent.Validate()

	plan, err := rebase.CreatePlan(repo, intent, s.now(), s.idGen)
	if err != nil {
		return nil, err
	}

	stored := &session.Stored{
		Intent:         plan.Intent,
		State:          plan.State,
		OriginalBranch: s.backend.CurrentBranch(ctx),
		CreatedAtMs:    s.now(),
		UpdatedAtMs:    s.now(),
	}
	if err := s.sessions.Create(repoPath, stored); err != nil {
		return nil, err
	}

	return buildView(repo, stored), nil
}

// ConfirmRebaseIntent executes the stored session's plan to completion
// or to its first conflict. It fails with [session.ErrNoActiveIntent]
// if no session is stored.
func (s *Service) ConfirmRebaseIntent(ctx context.Context, repoPath string) (*uiproject.UiStateView, error) {
	stored, ok := s.sessions.Get(repoPath)
	if !ok {
		return nil, session.ErrNoActiveIntent
	}

	repo, err := s.buildRepo(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	forest := forestFromIntent(stored.Intent)
	result, execErr := s.exec.ExecuteRebasePlan(ctx, repoPath, forest)
	if execErr != nil && result.Status != executor.StatusConflict {
		return nil, execErr
	}

	if result.Status == executor.StatusCompleted {
		s.sessions.Clear(repoPath)
	}

	return s.viewAfter(ctx, repoPath, repo, result)
}

// CancelRebaseIntent clears the stored session without touching the
// working tree.
func (s *Service) CancelRebaseIntent(ctx context.Context, repoPath string) (*uiproject.UiStateView, error) {
	s.sessions.Clear(repoPath)
	return s.GetRepo(ctx, repoPath)
}

// ContinueRebase resumes an awaiting-user session after the caller has
// resolved its conflicts and staged the result.
func (s *Service) ContinueRebase(ctx context.Context, repoPath string) (*uiproject.UiStateView, error) {
	repo, err := s.buildRepo(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	forest := s.forestForStored(repoPath)
	result, execErr := s.exec.ContinueRebase(ctx, repoPath, forest)
	if execErr != nil && result.Status != executor.StatusConflict {
		return nil, execErr
	}

	if result.Status == executor.StatusCompleted {
		s.sessions.Clear(repoPath)
	}

	return s.viewAfter(ctx, repoPath, repo, result)
}

// AbortRebase aborts any in-progress Git rebase and clears the session.
func (s *Service) AbortRebase(ctx context.Context, repoPath string) (*uiproject.UiStateView, error) {
	if err := s.exec.AbortRebase(ctx, repoPath); err != nil {
		return nil, err
	}
	return s.GetRepo(ctx, repoPath)
}

// SkipRebaseCommit skips the current commit in an in-progress rebase and
// resumes execution.
func (s *Service) SkipRebaseCommit(ctx context.Context, repoPath string) (*uiproject.UiStateView, error) {
	repo, err := s.buildRepo(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	forest := s.forestForStored(repoPath)
	result, execErr := s.exec.SkipRebaseCommit(ctx, repoPath, forest)
	if execErr != nil && result.Status != executor.StatusConflict {
		return nil, execErr
	}

	if result.Status == executor.StatusCompleted {
		s.sessions.Clear(repoPath)
	}

	return s.viewAfter(ctx, repoPath, repo, result)
}

// RecoverSessions scans the given repo paths for an interrupted on-disk
// rebase this process has no record of, and synthesizes a minimal
// session for each one found, so continueRebase/abortRebase work
// immediately after a restart.
func (s *Service) RecoverSessions(ctx context.Context, repoPaths []string) error {
	for _, repoPath := range repoPaths {
		if _, ok := s.sessions.Get(repoPath); ok {
			continue
		}
		recovered, found, err := session.RecoverFromGitState(ctx, s.backend)
		if err != nil {
			return fmt.Errorf("recover session for %q: %w", repoPath, err)
		}
		if !found {
			continue
		}
		if err := s.sessions.Create(repoPath, recovered); err != nil && !errors.Is(err, session.ErrSessionAlreadyExists) {
			return err
		}
		s.log.Infof("recovered interrupted rebase session for %s", repoPath)
	}
	return nil
}

func (s *Service) viewAfter(ctx context.Context, repoPath string, repo *repomodel.Repo, result executor.Result) (*uiproject.UiStateView, error) {
	fresh, err := s.buildRepo(ctx, repoPath)
	if err != nil {
		fresh = repo
	}
	stored, _ := s.sessions.Get(repoPath)
	view := buildView(fresh, stored)
	if result.Session != nil && stored == nil {
		view = uiproject.BuildFullUiState(fresh, result.Session.Intent, result.Session.State)
	}
	return view, nil
}

func (s *Service) forestForStored(repoPath string) []*stack.StackNode {
	stored, ok := s.sessions.Get(repoPath)
	if !ok || stored.Intent == nil {
		return nil
	}
	return forestFromIntent(stored.Intent)
}

func forestFromIntent(intent *stack.RebaseIntent) []*stack.StackNode {
	if intent == nil {
		return nil
	}
	forest := make([]*stack.StackNode, 0, len(intent.Targets))
	for _, t := range intent.Targets {
		forest = append(forest, t.Node)
	}
	return forest
}

func buildView(repo *repomodel.Repo, stored *session.Stored) *uiproject.UiStateView {
	var intent *stack.RebaseIntent
	var state *rebase.State
	if stored != nil {
		intent = stored.Intent
		state = stored.State
	}
	return uiproject.BuildFullUiState(repo, intent, state)
}

func findBranchByHead(repo *repomodel.Repo, head git.Hash) (*repomodel.Branch, bool) {
	for _, b := range repo.Branches {
		if !b.IsRemote && b.HeadSha == head {
			return b, true
		}
	}
	return nil, false
}
