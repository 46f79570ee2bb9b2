package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/refpatrol/internal/builder"
	"git.home.luguber.info/inful/refpatrol/internal/config"
	"git.home.luguber.info/inful/refpatrol/internal/journal"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Alias string `arg:"" help:"Target alias to inspect"`
	Limit int    `help:"Maximum number of polls to show" default:"10"`
	Steps bool   `help:"Include journaled build steps for each poll"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	polls, err := store.PollHistory(ctx, h.Alias, h.Limit)
	if err != nil {
		return fmt.Errorf("read poll history: %w", err)
	}
	if len(polls) == 0 {
		fmt.Printf("no journaled polls for %s\n", h.Alias)
		return nil
	}

	for _, poll := range polls {
		marker := " "
		if poll.Previous != uuid.Nil {
			marker = "*" // this poll observed reference changes
		}
		fmt.Printf("%s %s  %s  %d refs\n",
			marker, poll.Time.Format("2006-01-02 15:04:05"), poll.ID, len(poll.Refs))

		if !h.Steps {
			continue
		}
		steps, err := store.BuildSteps(ctx, poll.ID)
		if err != nil {
			return fmt.Errorf("read build steps: %w", err)
		}
		for _, step := range steps {
			fmt.Printf("    %s  %s  %s\n", step.Ref.Name, step.Ref.Commit, stepOutcome(step))
		}
	}
	return nil
}

// stepOutcome summarizes one journaled build step for display.
func stepOutcome(step journal.BuildStepRecord) string {
	status, err := builder.ParseStatus(step.Status)
	if err != nil {
		return "unreadable status"
	}
	if terminal, ok := status.Terminal(); ok {
		return terminal
	}
	return "submitted"
}
