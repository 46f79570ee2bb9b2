package refs

import (
	"fmt"
	"path"
	"regexp"
)

// MaxFilters is the maximum number of reference filter patterns a single
// target may declare.
const MaxFilters = 5

// filterPattern limits filters to the character set git accepts in refname
// globs. Matching against command output is forgiving; filters are validated
// strictly because a bad filter silently matches nothing.
var filterPattern = regexp.MustCompile(`^[0-9A-Za-z/_.\-+*]+$`)

// ValidateFilter reports whether pattern is a syntactically legal reference
// filter. Filters are glob patterns over full reference names, for example
// "refs/tags/*" or "refs/heads/release-*".
func ValidateFilter(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty ref filter")
	}
	if !filterPattern.MatchString(pattern) {
		return fmt.Errorf("invalid ref filter %q", pattern)
	}
	// path.Match reports malformed patterns (ex: trailing backslash) up
	// front with ErrBadPattern; probe it once so per-poll matching cannot
	// fail later.
	if _, err := path.Match(pattern, "refs/heads/main"); err != nil {
		return fmt.Errorf("invalid ref filter %q: %w", pattern, err)
	}
	return nil
}

// ValidateFilters checks a target's full filter list: each pattern must be
// legal and the list must not exceed MaxFilters.
func ValidateFilters(patterns []string) error {
	if len(patterns) > MaxFilters {
		return fmt.Errorf("too many ref filters: %d (limit %d)", len(patterns), MaxFilters)
	}
	for _, p := range patterns {
		if err := ValidateFilter(p); err != nil {
			return err
		}
	}
	return nil
}

// MatchAny reports whether name matches at least one of the filter patterns.
// An empty filter list matches everything.
func MatchAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}
