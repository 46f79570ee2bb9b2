package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/refpatrol/internal/execx"
	"git.home.luguber.info/inful/refpatrol/internal/logfields"
)

// buildIDPattern extracts the build UUID from the first column of the line
// `gcloud builds submit --async` prints for the queued build.
var buildIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// queuedStatePattern matches the STATUS column of the same line.
var queuedStatePattern = regexp.MustCompile(`^[A-Z_]+$`)

// CloudBuildRunner drives Google Cloud Build through the gcloud CLI.
type CloudBuildRunner struct {
	runner execx.Runner
}

// NewCloudBuildRunner returns a Runner backed by gcloud. A nil runner
// defaults to executing real processes.
func NewCloudBuildRunner(runner execx.Runner) *CloudBuildRunner {
	if runner == nil {
		runner = execx.NewExecRunner()
	}
	return &CloudBuildRunner{runner: runner}
}

func (r *CloudBuildRunner) Start(ctx context.Context, req SubmitRequest) (*Submission, error) {
	args := []string{"builds", "submit", "--async",
		"--config=" + req.ConfigPath,
		"--substitutions=" + formatSubstitutions(req.Substitutions),
	}
	if req.SourcePath != "" {
		args = append(args, req.SourcePath)
	} else {
		args = append(args, "--no-source")
	}

	result, err := r.runner.Run(ctx, "gcloud", args...)
	if err != nil {
		return nil, fmt.Errorf("gcloud builds submit: %w", err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("gcloud builds submit exited with %d: %s",
			result.ExitCode, bytes.TrimSpace(result.Stderr))
	}

	lines := strings.Split(strings.TrimSpace(string(result.Stdout)), "\n")
	if len(lines) == 0 || lines[len(lines)-1] == "" {
		return nil, fmt.Errorf("gcloud builds submit produced no output")
	}

	// The queued build is described on the last line: ID, creation time,
	// duration, source, images, status.
	infoLine := lines[len(lines)-1]
	rawID := buildIDPattern.FindString(infoLine)
	if rawID == "" {
		return nil, fmt.Errorf("no build id in submit output: %q", infoLine)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse build id: %w", err)
	}

	status, err := submissionStatus(id, infoLine)
	if err != nil {
		return nil, err
	}

	slog.Info("Build submitted", logfields.BuildID(id.String()))
	return &Submission{ID: id, Status: status}, nil
}

func (r *CloudBuildRunner) Await(ctx context.Context, id uuid.UUID) error {
	// Stream the build log with output disabled; we only care about the
	// command returning once the build reaches a terminal state.
	result, err := r.runner.Run(ctx, "gcloud",
		"builds", "log", "--stream", "--no-user-output-enabled", id.String())
	if err != nil {
		return fmt.Errorf("gcloud builds log: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("gcloud builds log exited with %d", result.ExitCode)
	}
	return nil
}

func (r *CloudBuildRunner) Describe(ctx context.Context, id uuid.UUID) (*Status, error) {
	result, err := r.runner.Run(ctx, "gcloud",
		"builds", "describe", "--format=json", id.String())
	if err != nil {
		return nil, fmt.Errorf("gcloud builds describe: %w", err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("gcloud builds describe exited with %d", result.ExitCode)
	}

	status, err := ParseStatus(result.Stdout)
	if err != nil {
		return nil, fmt.Errorf("parse build status: %w", err)
	}
	return status, nil
}

// submissionStatus synthesizes the submission snapshot payload from the
// submit output line. The STATUS column is normally QUEUED; if the line shape
// changes the status field is simply omitted.
func submissionStatus(id uuid.UUID, infoLine string) (*Status, error) {
	payload := statusFields{ID: id.String()}
	cols := strings.Fields(infoLine)
	if last := cols[len(cols)-1]; queuedStatePattern.MatchString(last) {
		payload.Status = last
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode submission status: %w", err)
	}
	return &Status{Raw: raw}, nil
}

// formatSubstitutions renders the substitution set in the KEY=VALUE,... form
// gcloud expects. Keys are sorted so the command line is deterministic; the
// derived TAG_NAME/BRANCH_NAME variables sort ahead of the underscore-prefixed
// user substitutions.
func formatSubstitutions(subs map[string]string) string {
	keys := make([]string, 0, len(subs))
	for k := range subs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+subs[k])
	}
	return strings.Join(pairs, ",")
}
