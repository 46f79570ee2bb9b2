package refs

import (
	"fmt"
	"regexp"
	"strings"
)

// Snapshot maps fully qualified reference names (ex: "refs/heads/main") to
// 40 character hex commit hashes. A snapshot is produced fresh on every poll
// and never mutated afterwards, only replaced.
type Snapshot map[string]string

// commitHashPattern matches a full git object hash.
var commitHashPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for name, commit := range s {
		out[name] = commit
	}
	return out
}

// Validate checks the structural invariants of a snapshot: reference names
// are non-empty and start with "refs/", and commits are full lowercase hex
// hashes.
func (s Snapshot) Validate() error {
	for name, commit := range s {
		if !strings.HasPrefix(name, "refs/") {
			return fmt.Errorf("invalid reference name %q: must start with refs/", name)
		}
		if !commitHashPattern.MatchString(commit) {
			return fmt.Errorf("invalid commit hash %q for reference %q", commit, name)
		}
	}
	return nil
}

// Delta returns the references that are new or changed in current relative to
// previous, as a sub-map of current. References present in previous but
// missing from current are never reported: a deleted branch or tag is not a
// trigger condition.
func Delta(previous, current Snapshot) Snapshot {
	delta := Snapshot{}
	for name, commit := range current {
		if prev, ok := previous[name]; !ok || prev != commit {
			delta[name] = commit
		}
	}
	return delta
}
