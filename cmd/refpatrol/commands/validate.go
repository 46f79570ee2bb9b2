package commands

import (
	"fmt"

	"git.home.luguber.info/inful/refpatrol/internal/config"
)

// ValidateCmd implements the 'validate' command.
type ValidateCmd struct{}

func (v *ValidateCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	targets, problems := cfg.ValidateTargets()
	for _, problem := range problems {
		fmt.Printf("REJECTED %s: %v\n", problem.Alias, problem.Err)
	}
	for _, target := range targets {
		fmt.Printf("OK       %s (%s, %d workflows)\n", target.Alias, target.URL, len(target.Workflows))
	}

	if len(targets) == 0 {
		return fmt.Errorf("no schedulable targets")
	}
	return nil
}
