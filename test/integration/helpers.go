package integration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/refpatrol/internal/execx"
)

// initGitRepo creates a local repository with one commit and one annotated
// tag, returning its path. Tests using it skip when git is unavailable.
func initGitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	dir := t.TempDir()
	gitRun(t, dir,
		[]string{"init", "--quiet", "--initial-branch=master"},
		[]string{"config", "user.name", "The Author"},
		[]string{"config", "user.email", "the@author.test"},
		[]string{"commit", "--quiet", "--allow-empty", "--message=First"},
		[]string{"tag", "-a", "r0001", "-m", "Tag r0001"},
	)
	return dir
}

func gitRun(t *testing.T, dir string, commands ...[]string) {
	t.Helper()
	for _, args := range commands {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	}
}

// writeConfig writes a refpatrol configuration file into a temp dir and
// returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refpatrol.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// gcloudScript fakes the three gcloud invocations the build runner issues,
// always reporting a successful build.
func gcloudScript(buildID uuid.UUID) execx.Script {
	return func(argv []string) (execx.Result, error) {
		switch argv[2] {
		case "submit":
			out := fmt.Sprintf("Creating temporary archive...\n%s QUEUED\n", buildID)
			return execx.Result{Stdout: []byte(out)}, nil
		case "log":
			return execx.Result{Stdout: []byte("build log output\n")}, nil
		case "describe":
			out := fmt.Sprintf(`{"id":%q,"status":"SUCCESS"}`, buildID)
			return execx.Result{Stdout: []byte(out)}, nil
		default:
			return execx.Result{ExitCode: 1}, nil
		}
	}
}
