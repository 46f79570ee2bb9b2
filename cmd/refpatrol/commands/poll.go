package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/refpatrol/internal/config"
)

// PollCmd implements the 'poll' command: a one-shot reference listing for a
// configured target, useful to verify connectivity and filters before
// running the daemon.
type PollCmd struct {
	Alias   string        `arg:"" help:"Target alias to poll"`
	Timeout time.Duration `help:"Abort the poll after this long" default:"30s"`
}

func (p *PollCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var target *config.Target
	for i := range cfg.Targets {
		if cfg.Targets[i].Alias == p.Alias {
			target = &cfg.Targets[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("target %q not found in configuration", p.Alias)
	}

	source, err := newSource(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	snapshot, err := source.List(ctx, target.URL, target.RefFilters)
	if err != nil {
		return fmt.Errorf("poll %s: %w", target.Alias, err)
	}

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", snapshot[name], name)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d references\n", len(snapshot))
	return nil
}
