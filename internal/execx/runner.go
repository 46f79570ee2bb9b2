// Package execx wraps external command invocation behind a narrow Runner
// interface so callers can be exercised against scripted fakes instead of
// real subprocesses.
package execx

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
)

// Result carries the outcome of one command invocation. A non-zero exit code
// is not an error at this layer; callers decide what it means.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner executes an external command and captures its output. Run returns an
// error only when the command could not be started or was interrupted; a
// command that ran to completion with a non-zero status is reported through
// Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by real subprocesses.
func NewExecRunner() *ExecRunner { return &ExecRunner{} }

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	slog.Debug("Running command", slog.String("cmd", name+" "+strings.Join(args, " ")))

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	default:
		return result, err
	}
}
