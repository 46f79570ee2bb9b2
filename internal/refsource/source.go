// Package refsource lists the current references of a remote repository.
//
// Two implementations exist: GitSource shells out to `git ls-remote` through
// an execx.Runner, and GoGitSource speaks the git protocol natively via
// go-git. Both return the same name to commit Snapshot shape.
package refsource

import (
	"context"

	"git.home.luguber.info/inful/refpatrol/internal/refs"
)

// Source retrieves the current reference snapshot of a remote repository.
// A returned error means "no information this cycle"; callers must not treat
// it as fatal.
type Source interface {
	List(ctx context.Context, url string, filters []string) (refs.Snapshot, error)
}
