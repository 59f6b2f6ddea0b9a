package main

import (
	"context"
	"fmt"

	"github.com/sahilm/fuzzy"
	"go.branchstack.dev/bse/internal/git"
)

// completeCmd fuzzy-matches local branch names against a partial query,
// the candidate-generation half of shell completion for branch names.
// It prints one matching branch name per line, ranked best match first.
// With an empty query it prints every local branch in listing order.
type completeCmd struct {
	Query string `arg:"" optional:"" help:"Partial branch name to match"`
}

func (cmd *completeCmd) Run(ctx context.Context, backend git.GitBackend) error {
	refs, err := backend.ListBranches(ctx, git.ListBranchesOptions{})
	if err != nil {
		return fmt.Errorf("list branches: %w", err)
	}

	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}

	if cmd.Query == "" {
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	for _, match := range fuzzy.Find(cmd.Query, names) {
		fmt.Println(match.Str)
	}
	return nil
}
