package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/refpatrol/cmd/refpatrol/commands"
	"git.home.luguber.info/inful/refpatrol/internal/version"
)

func main() {
	cli := &commands.CLI{}
	ctx := kong.Parse(cli,
		kong.Name("refpatrol"),
		kong.Description("Watches git repositories for reference changes and triggers build workflows."),
		kong.Vars{"version": version.Version},
		kong.UsageOnError(),
	)

	if err := ctx.Run(&commands.Global{Logger: slog.Default()}, cli); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
