// Command srctl is a debug CLI for exercising the rebase coordination
// engine directly: submitting and confirming rebase intents, continuing
// or aborting a paused session, and rendering the projected stack --
// without a host shell wrapping the engine's request/response surface.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"go.branchstack.dev/bse/internal/silog"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log := silog.New(os.Stderr, &silog.Options{Level: silog.LevelInfo})

	var cli rootCmd
	kctx := kong.Parse(&cli,
		kong.Name("srctl"),
		kong.Description("Debug CLI for the stacked-rebase coordination engine."),
		kong.Bind(log),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	kctx.FatalIfErrorf(kctx.Run())
}
