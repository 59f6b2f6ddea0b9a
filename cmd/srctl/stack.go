package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"go.branchstack.dev/bse/internal/engine"
	"go.branchstack.dev/bse/internal/stackview"
	"go.branchstack.dev/bse/internal/uiproject"
)

// stackCmd renders the repository's real stack and, if a rebase is
// pending or in flight, the projected stack it would produce. It
// prefers the styled fliptree renderer when stdout is a terminal and
// falls back to a plain listing otherwise, the way the teacher's root
// command picks its output mode.
type stackCmd struct {
	Projected bool `help:"Render the projected stack instead of the real one, if one is pending"`
}

func (cmd *stackCmd) Run(ctx context.Context, svc *engine.Service, root *rootCmd) error {
	view, err := svc.GetRepo(ctx, root.Repo)
	if err != nil {
		return fmt.Errorf("get repo: %w", err)
	}

	target := view.Stack
	if cmd.Projected {
		if view.ProjectedStack == nil {
			return fmt.Errorf("no rebase is pending or in flight for %q", root.Repo)
		}
		target = view.ProjectedStack
	}

	if isatty.IsTerminal(os.Stdout.Fd()) {
		return stackview.Write(os.Stdout, target, nil)
	}
	return writePlainStack(os.Stdout, target)
}

// writePlainStack is the non-terminal fallback: one branch/commit per
// line, no tree drawing.
func writePlainStack(w *os.File, stack *uiproject.UiStack) error {
	if stack == nil {
		return nil
	}
	for _, c := range stack.Commits {
		marker := " "
		if c.IsCurrent {
			marker = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %s %v %s\n", marker, c.Sha, c.Branches, c.Name); err != nil {
			return err
		}
		for _, spinoff := range c.Spinoffs {
			if err := writePlainStack(w, spinoff); err != nil {
				return err
			}
		}
	}
	return nil
}
