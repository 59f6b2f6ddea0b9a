package main

import (
	"context"
	"fmt"

	"github.com/alecthomas/kong"
	"go.branchstack.dev/bse/internal/config"
	"go.branchstack.dev/bse/internal/engine"
	"go.branchstack.dev/bse/internal/git"
	"go.branchstack.dev/bse/internal/session"
	"go.branchstack.dev/bse/internal/silog"
)

type globalOptions struct {
	Repo    string `short:"C" default:"." help:"Path to the repository to operate on"`
	Verbose bool   `short:"v" help:"Enable debug logging"`
}

type rootCmd struct {
	globalOptions

	Version versionFlag `help:"Print version information and quit"`

	Stack    stackCmd    `cmd:"" help:"Render the repository's real and projected stacks"`
	Submit   submitCmd   `cmd:"" group:"Rebase" help:"Submit a rebase intent for a branch"`
	Confirm  confirmCmd  `cmd:"" group:"Rebase" help:"Execute the stored rebase plan"`
	Continue continueCmd `cmd:"" group:"Rebase" help:"Resume a paused rebase session"`
	Abort    abortCmd    `cmd:"" group:"Rebase" help:"Abort the in-progress rebase and clear the session"`
	Skip     skipCmd     `cmd:"" group:"Rebase" help:"Skip the current commit and resume the rebase"`
	Cancel   cancelCmd   `cmd:"" group:"Rebase" help:"Clear a stored rebase intent without touching the tree"`

	Session  sessionCmd  `cmd:"" group:"Debug" help:"Export or inspect the in-memory session store"`
	Commit   commitCmd   `cmd:"" group:"Debug" help:"Inspect a commit's trailer metadata"`
	Complete completeCmd `cmd:"" group:"Debug" help:"Generate shell completion candidates"`

	repo     *git.Repository
	backend  git.GitBackend
	svc      *engine.Service
	sessions *session.Store
}

func (cmd *rootCmd) AfterApply(ctx context.Context, kctx *kong.Context, log *silog.Logger) error {
	if cmd.Verbose {
		log.SetLevel(silog.LevelDebug)
	} else {
		log.SetLevel(silog.LevelWarn)
	}

	repo, err := git.Open(ctx, cmd.Repo, git.OpenOptions{Log: log})
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	wt, err := repo.OpenWorktree(ctx, cmd.Repo)
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	cmd.repo = repo
	cmd.backend = git.NewRepoBackend(repo, wt)

	gitCfg := git.NewConfig(git.ConfigOptions{Dir: cmd.Repo, Log: log})
	resolver, err := config.LoadResolver(ctx, gitCfg)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	engineCfg := resolver.Apply(config.DefaultEngine())

	cmd.sessions = session.NewStore(engineCfg.UpdateRetryLimit)
	cmd.svc = engine.New(cmd.backend, engineCfg, cmd.sessions, nil, nil, log)

	if err := cmd.svc.RecoverSessions(ctx, []string{cmd.Repo}); err != nil {
		log.Warnf("recover interrupted session: %v", err)
	}

	kctx.Bind(cmd.svc)
	kctx.Bind(cmd.sessions)
	kctx.Bind(cmd.repo)
	kctx.BindTo(cmd.backend, (*git.GitBackend)(nil))
	kctx.Bind(cmd)
	return nil
}
