package refsource

import (
	"context"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"git.home.luguber.info/inful/refpatrol/internal/refs"
)

// GoGitSource lists remote references over the git protocol without a git
// binary on the host. Filter patterns are applied locally since the protocol
// advertises every reference anyway.
type GoGitSource struct{}

// NewGoGitSource returns a Source backed by go-git.
func NewGoGitSource() *GoGitSource { return &GoGitSource{} }

func (s *GoGitSource) List(ctx context.Context, url string, filters []string) (refs.Snapshot, error) {
	remote := gogit.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})

	advertised, err := remote.ListContext(ctx, &gogit.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list remote references: %w", err)
	}

	snapshot := refs.Snapshot{}
	for _, ref := range advertised {
		// Symbolic references (HEAD) carry no commit of their own.
		if ref.Type() == plumbing.SymbolicReference {
			continue
		}
		name := ref.Name().String()
		if !refs.MatchAny(filters, name) {
			continue
		}
		snapshot[name] = ref.Hash().String()
	}
	return snapshot, nil
}
