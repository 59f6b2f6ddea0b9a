package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/buildkite/shellwords"
	"go.branchstack.dev/bse/internal/engine"
	"go.branchstack.dev/bse/internal/silog"
	"go.branchstack.dev/bse/internal/uiproject"
	"go.branchstack.dev/bse/internal/xec"
)

type submitCmd struct {
	Head string `arg:"" help:"Sha of the branch head to move"`
	Base string `arg:"" help:"Sha of the commit to move it onto"`
}

func (cmd *submitCmd) Run(ctx context.Context, svc *engine.Service, root *rootCmd) error {
	view, err := svc.SubmitRebaseIntent(ctx, root.Repo, engine.RebaseRequest{HeadSha: cmd.Head, BaseSha: cmd.Base})
	if err != nil {
		return fmt.Errorf("submit rebase intent: %w", err)
	}
	return printRebaseView(view)
}

type confirmCmd struct{}

func (cmd *confirmCmd) Run(ctx context.Context, svc *engine.Service, root *rootCmd) error {
	view, err := svc.ConfirmRebaseIntent(ctx, root.Repo)
	if err != nil {
		return fmt.Errorf("confirm rebase intent: %w", err)
	}
	return printRebaseView(view)
}

// continueCmd resumes a paused rebase session after its conflicts have
// been resolved. When Tool is set, it first launches the configured
// external conflict-resolution command -- tokenized the way the
// teacher's config shorthand expander splits a configured command line
// -- and waits for it to exit before resuming.
type continueCmd struct {
	Tool string `help:"External command to launch before resuming, e.g. a merge tool invocation"`
}

func (cmd *continueCmd) Run(ctx context.Context, svc *engine.Service, root *rootCmd, log *silog.Logger) error {
	if cmd.Tool != "" {
		if err := runConflictTool(ctx, cmd.Tool, log); err != nil {
			return fmt.Errorf("run conflict tool: %w", err)
		}
	}

	view, err := svc.ContinueRebase(ctx, root.Repo)
	if err != nil {
		return fmt.Errorf("continue rebase: %w", err)
	}
	return printRebaseView(view)
}

func runConflictTool(ctx context.Context, tool string, log *silog.Logger) error {
	tokens, err := shellwords.SplitPosix(tool)
	if err != nil {
		return fmt.Errorf("parse tool command %q: %w", tool, err)
	}
	if len(tokens) == 0 {
		return nil
	}

	log.Infof("running conflict tool: %s", tool)
	var cmd *exec.Cmd
	if len(tokens) == 1 {
		cmd = xec.EditCommand(tokens[0])
	} else {
		cmd = xec.EditCommand(tokens[0], tokens[1:]...)
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	return cmd.Run()
}

type abortCmd struct{}

func (cmd *abortCmd) Run(ctx context.Context, svc *engine.Service, root *rootCmd) error {
	view, err := svc.AbortRebase(ctx, root.Repo)
	if err != nil {
		return fmt.Errorf("abort rebase: %w", err)
	}
	return printRebaseView(view)
}

type skipCmd struct{}

func (cmd *skipCmd) Run(ctx context.Context, svc *engine.Service, root *rootCmd) error {
	view, err := svc.SkipRebaseCommit(ctx, root.Repo)
	if err != nil {
		return fmt.Errorf("skip rebase commit: %w", err)
	}
	return printRebaseView(view)
}

type cancelCmd struct{}

func (cmd *cancelCmd) Run(ctx context.Context, svc *engine.Service, root *rootCmd) error {
	view, err := svc.CancelRebaseIntent(ctx, root.Repo)
	if err != nil {
		return fmt.Errorf("cancel rebase intent: %w", err)
	}
	return printRebaseView(view)
}

func printRebaseView(view *uiproject.UiStateView) error {
	if view.Rebase == nil {
		fmt.Println("no rebase session is active")
		return nil
	}
	r := view.Rebase
	fmt.Printf("status: %s (%d/%d jobs completed)\n", r.Status, r.CompletedJobs, r.TotalJobs)
	if r.BlockedBranch != "" {
		fmt.Printf("blocked on %q: %v\n", r.BlockedBranch, r.Conflicts)
	}
	return nil
}
