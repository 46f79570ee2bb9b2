package refsource

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"git.home.luguber.info/inful/refpatrol/internal/execx"
	"git.home.luguber.info/inful/refpatrol/internal/logfields"
	"git.home.luguber.info/inful/refpatrol/internal/refs"
)

// refLinePattern extracts the commit hash and reference name from one line of
// `git ls-remote --refs` output. The exact grammar of a refname is notoriously
// tricky; since we are parsing the output of git itself we assume it is well
// formed and just bound the length.
var refLinePattern = regexp.MustCompile(`^([0-9a-f]{40})\s+(refs/\S{1,64})$`)

// GitSource lists remote references with `git ls-remote --refs`.
type GitSource struct {
	runner execx.Runner
}

// NewGitSource returns a Source backed by the git CLI. A nil runner defaults
// to executing real processes.
func NewGitSource(runner execx.Runner) *GitSource {
	if runner == nil {
		runner = execx.NewExecRunner()
	}
	return &GitSource{runner: runner}
}

func (s *GitSource) List(ctx context.Context, url string, filters []string) (refs.Snapshot, error) {
	args := append([]string{"ls-remote", "--refs", url}, filters...)
	result, err := s.runner.Run(ctx, "git", args...)
	if err != nil {
		return nil, fmt.Errorf("git ls-remote: %w", err)
	}
	if result.ExitCode != 0 {
		slog.Warn("git ls-remote failed",
			logfields.URL(url),
			slog.Int("exit_code", result.ExitCode),
			slog.String("stderr", string(bytes.TrimSpace(result.Stderr))))
		return nil, fmt.Errorf("git ls-remote exited with %d", result.ExitCode)
	}
	return ParseRefLines(result.Stdout), nil
}

// ParseRefLines converts raw ls-remote output into a Snapshot. Lines that do
// not match the `<40-hex-hash> <refname>` shape are ignored, not errors;
// ls-remote emits nothing else, but being lenient here costs nothing.
func ParseRefLines(raw []byte) refs.Snapshot {
	snapshot := refs.Snapshot{}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		m := refLinePattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		snapshot[m[2]] = m[1]
	}
	return snapshot
}
