package main

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"go.branchstack.dev/bse/internal/git"
)

// commitCmd reads a commit's trailer note, if any, and prints a handful
// of well-known JSON fields from it. Git notes attached by other tools
// in this engine's ecosystem (e.g. a host shell recording PR metadata)
// are free-form JSON; this only ever reads them, never writes them.
type commitCmd struct {
	Sha    string   `arg:"" help:"Commit sha to inspect"`
	Fields []string `help:"Dotted JSON paths to extract from the note" default:"pr.number,pr.url"`
}

func (cmd *commitCmd) Run(ctx context.Context, backend git.GitBackend, repo *git.Repository) error {
	detail, err := backend.ReadCommit(ctx, git.Hash(cmd.Sha))
	if err != nil {
		return fmt.Errorf("read commit %q: %w", cmd.Sha, err)
	}
	fmt.Printf("%s %s\n", detail.Sha, detail.Subject)

	note, err := repo.Notes("").Show(ctx, cmd.Sha)
	if err != nil {
		fmt.Println("(no note attached to this commit)")
		return nil
	}

	if !gjson.Valid(note) {
		fmt.Println("(note is not valid JSON)")
		return nil
	}
	for _, field := range cmd.Fields {
		result := gjson.Get(note, field)
		if result.Exists() {
			fmt.Printf("  %s: %s\n", field, result.String())
		}
	}
	return nil
}
