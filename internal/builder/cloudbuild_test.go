package builder

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/refpatrol/internal/execx"
)

const testBuildID = "7d1bb5a7-545f-4c30-b640-f5461036e2e7"

// gcloudScript emulates the three gcloud builds subcommands the runner uses.
func gcloudScript(describeJSON string) execx.Script {
	return func(argv []string) (execx.Result, error) {
		switch argv[2] {
		case "submit":
			line := testBuildID + " 2018-11-01T20:49:31+00:00 1H54M12S - - QUEUED"
			return execx.Result{Stdout: []byte(line + "\n")}, nil
		case "log":
			return execx.Result{}, nil
		case "describe":
			return execx.Result{Stdout: []byte(describeJSON)}, nil
		}
		return execx.Result{}, fmt.Errorf("unexpected gcloud command: %v", argv)
	}
}

func TestCloudBuildStart(t *testing.T) {
	t.Run("parses build id and queued status", func(t *testing.T) {
		runner := execx.NewScriptedRunner().On("gcloud", gcloudScript("{}"))
		cb := NewCloudBuildRunner(runner)

		sub, err := cb.Start(t.Context(), SubmitRequest{
			ConfigPath: "/cfg/first.yaml",
			SourcePath: "/cfg/first.tar.gz",
			Substitutions: map[string]string{
				"TAG_NAME": "r0002",
				"_VAR0":    "val0",
				"_VAR1":    "val1",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, uuid.MustParse(testBuildID), sub.ID)
		assert.JSONEq(t, fmt.Sprintf(`{"id":%q,"status":"QUEUED"}`, testBuildID), string(sub.Status.Raw))

		assert.True(t, runner.CalledWith("gcloud", "builds", "submit", "--async",
			"--config=/cfg/first.yaml",
			"--substitutions=TAG_NAME=r0002,_VAR0=val0,_VAR1=val1",
			"/cfg/first.tar.gz"))
	})

	t.Run("uses no-source when archive absent", func(t *testing.T) {
		runner := execx.NewScriptedRunner().On("gcloud", gcloudScript("{}"))
		cb := NewCloudBuildRunner(runner)

		_, err := cb.Start(t.Context(), SubmitRequest{ConfigPath: "/cfg/first.yaml"})
		require.NoError(t, err)
		assert.True(t, runner.CalledWith("gcloud", "builds", "submit", "--async",
			"--config=/cfg/first.yaml", "--substitutions=", "--no-source"))
	})

	t.Run("no build id in output is an error", func(t *testing.T) {
		runner := execx.NewScriptedRunner().OnOutput("gcloud", "Creating temporary archive...\n")
		cb := NewCloudBuildRunner(runner)

		_, err := cb.Start(t.Context(), SubmitRequest{ConfigPath: "/cfg/first.yaml"})
		assert.Error(t, err)
	})

	t.Run("non-zero exit is an error", func(t *testing.T) {
		runner := execx.NewScriptedRunner().On("gcloud", func([]string) (execx.Result, error) {
			return execx.Result{ExitCode: 1, Stderr: []byte("permission denied")}, nil
		})
		cb := NewCloudBuildRunner(runner)

		_, err := cb.Start(t.Context(), SubmitRequest{ConfigPath: "/cfg/first.yaml"})
		assert.Error(t, err)
	})
}

func TestCloudBuildAwaitAndDescribe(t *testing.T) {
	describeJSON := fmt.Sprintf(`{
		"createTime": "2018-11-01T20:49:31.802340417Z",
		"finishTime": "2018-11-01T22:44:36.303015Z",
		"id": %q,
		"startTime": "2018-11-01T20:50:24.132599935Z",
		"status": "SUCCESS"
	}`, testBuildID)

	runner := execx.NewScriptedRunner().On("gcloud", gcloudScript(describeJSON))
	cb := NewCloudBuildRunner(runner)
	id := uuid.MustParse(testBuildID)

	require.NoError(t, cb.Await(t.Context(), id))
	assert.True(t, runner.CalledWith("gcloud", "builds", "log", "--stream",
		"--no-user-output-enabled", testBuildID))

	status, err := cb.Describe(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, testBuildID, status.BuildID())
	assert.True(t, status.Succeeded())

	t.Run("await propagates failure", func(t *testing.T) {
		failing := execx.NewScriptedRunner().On("gcloud", func([]string) (execx.Result, error) {
			return execx.Result{ExitCode: 1}, nil
		})
		err := NewCloudBuildRunner(failing).Await(t.Context(), id)
		assert.Error(t, err)
	})

	t.Run("describe rejects malformed payload", func(t *testing.T) {
		broken := execx.NewScriptedRunner().OnOutput("gcloud", "not json")
		_, err := NewCloudBuildRunner(broken).Describe(t.Context(), id)
		assert.Error(t, err)
	})
}

func TestStatusTerminal(t *testing.T) {
	t.Run("success sentinel", func(t *testing.T) {
		status, err := ParseStatus([]byte(`{"id":"x","status":"SUCCESS"}`))
		require.NoError(t, err)
		terminal, ok := status.Terminal()
		assert.True(t, ok)
		assert.Equal(t, StatusSuccess, terminal)
		assert.True(t, status.Succeeded())
	})

	t.Run("non-success terminal", func(t *testing.T) {
		status, err := ParseStatus([]byte(`{"id":"x","status":"FAILURE"}`))
		require.NoError(t, err)
		assert.False(t, status.Succeeded())
	})

	t.Run("missing terminal field", func(t *testing.T) {
		status, err := ParseStatus([]byte(`{"id":"x"}`))
		require.NoError(t, err)
		_, ok := status.Terminal()
		assert.False(t, ok)
		assert.False(t, status.Succeeded())
	})
}
