package config

import (
	"fmt"

	"git.home.luguber.info/inful/refpatrol/internal/refs"
)

// TargetError reports why a target was rejected at validation time.
type TargetError struct {
	Alias string
	Err   error
}

func (e TargetError) Error() string {
	return fmt.Sprintf("target %q: %v", e.Alias, e.Err)
}

// ValidateTargets partitions the configured targets into schedulable ones and
// rejected ones. An invalid target is fatal for that target only; the rest of
// the process keeps running (the daemon logs and skips rejected targets).
func (c *Config) ValidateTargets() ([]Target, []TargetError) {
	var valid []Target
	var problems []TargetError

	seen := map[string]bool{}
	for _, target := range c.Targets {
		if err := validateTarget(target, seen); err != nil {
			problems = append(problems, TargetError{Alias: target.Alias, Err: err})
			continue
		}
		seen[target.Alias] = true
		valid = append(valid, target)
	}
	return valid, problems
}

func validateTarget(target Target, seen map[string]bool) error {
	if target.Alias == "" {
		return fmt.Errorf("alias is required")
	}
	if seen[target.Alias] {
		return fmt.Errorf("duplicate alias")
	}
	if target.URL == "" {
		return fmt.Errorf("url is required")
	}
	if err := refs.ValidateFilters(target.RefFilters); err != nil {
		return err
	}
	if len(target.Workflows) == 0 {
		return fmt.Errorf("at least one workflow is required")
	}
	for i, wf := range target.Workflows {
		if wf.Alias == "" {
			return fmt.Errorf("workflow %d: alias is required", i)
		}
		if wf.Config == "" {
			return fmt.Errorf("workflow %q: config is required", wf.Alias)
		}
	}
	return nil
}
