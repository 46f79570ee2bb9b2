package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/refpatrol/internal/config"
	"git.home.luguber.info/inful/refpatrol/internal/refsource"
)

// Global context passed to subcommands if we need to share global state later.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"refpatrol.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	JSONLog bool             `name:"json-log" help:"Emit logs as JSON"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Daemon   DaemonCmd   `cmd:"" help:"Run the polling engine until interrupted"`
	Poll     PollCmd     `cmd:"" help:"Poll a target's references once and print the snapshot"`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration and report per-target problems"`
	History  HistoryCmd  `cmd:"" help:"Show journaled polls and build steps for a target"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if c.JSONLog {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// newSource builds the configured reference source implementation.
func newSource(cfg *config.Config) (refsource.Source, error) {
	switch cfg.Source {
	case config.SourceGit:
		return refsource.NewGitSource(nil), nil
	case config.SourceNative:
		return refsource.NewGoGitSource(), nil
	default:
		return nil, fmt.Errorf("unknown reference source %q", cfg.Source)
	}
}
