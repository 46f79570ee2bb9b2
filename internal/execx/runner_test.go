package execx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner(t *testing.T) {
	runner := NewExecRunner()

	t.Run("captures stdout on success", func(t *testing.T) {
		res, err := runner.Run(t.Context(), "sh", "-c", "echo hello")
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, "hello\n", string(res.Stdout))
	})

	t.Run("non-zero exit is not an error", func(t *testing.T) {
		res, err := runner.Run(t.Context(), "sh", "-c", "echo oops >&2; exit 3")
		require.NoError(t, err)
		assert.Equal(t, 3, res.ExitCode)
		assert.Equal(t, "oops\n", string(res.Stderr))
	})

	t.Run("missing binary is an error", func(t *testing.T) {
		_, err := runner.Run(t.Context(), "definitely-not-a-real-binary-xyz")
		assert.Error(t, err)
	})

	t.Run("canceled context is an error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := runner.Run(ctx, "sh", "-c", "sleep 5")
		assert.Error(t, err)
	})
}

func TestScriptedRunner(t *testing.T) {
	runner := NewScriptedRunner()
	runner.On("git", func(argv []string) (Result, error) {
		if argv[1] == "ls-remote" {
			return Result{Stdout: []byte("refs output")}, nil
		}
		return Result{ExitCode: 1}, nil
	})

	res, err := runner.Run(t.Context(), "git", "ls-remote", "--refs", "url")
	require.NoError(t, err)
	assert.Equal(t, "refs output", string(res.Stdout))

	res, err = runner.Run(t.Context(), "git", "fetch")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)

	_, err = runner.Run(t.Context(), "gcloud")
	assert.Error(t, err)

	assert.Len(t, runner.Calls(), 3)
	assert.True(t, runner.CalledWith("git", "ls-remote"))
	assert.False(t, runner.CalledWith("git", "push"))
}
