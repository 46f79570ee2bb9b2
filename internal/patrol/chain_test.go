package patrol

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/refpatrol/internal/builder"
	"git.home.luguber.info/inful/refpatrol/internal/config"
	"git.home.luguber.info/inful/refpatrol/internal/journal"
)

func twoStepTarget() config.Target {
	return config.Target{
		Alias: "kernel",
		URL:   "https://git.example.com/kernel.git",
		Workflows: []config.Workflow{
			{Alias: "build", Config: "build.yaml"},
			{Alias: "publish", Config: "publish.yaml", Substitutions: map[string]string{"_CHANNEL": "stable"}},
		},
	}
}

func tagRef() journal.TriggerRef {
	return journal.TriggerRef{
		Name:   "refs/tags/v1.2.0",
		Commit: "2c26b46b68ffc68ff99b453c1d30413413422d70",
	}
}

func TestChainExecutorAllStepsSucceed(t *testing.T) {
	store := newFakeStore()
	builds := &fakeBuilder{scripts: []stepScript{
		{terminal: builder.StatusSuccess},
		{terminal: builder.StatusSuccess},
	}}
	executor := NewChainExecutor(builds, store, nil, clockwork.NewFakeClock(), "/assets")

	pollID := uuid.New()
	ok := executor.Execute(context.Background(), twoStepTarget(), pollID, tagRef())
	require.True(t, ok)

	steps := store.allSteps()
	require.Len(t, steps, 4)

	// submit+completion per step, linked: the chain root is the nil uuid,
	// each completion points at its submission, and the second step's
	// submission points at the first step's completion.
	assert.Equal(t, journal.RootParent, steps[0].Parent)
	assert.Equal(t, steps[0].ID, steps[1].Parent)
	assert.Equal(t, steps[1].ID, steps[2].Parent)
	assert.Equal(t, steps[2].ID, steps[3].Parent)

	for _, step := range steps {
		assert.Equal(t, pollID, step.PollID)
		assert.Equal(t, "kernel", step.Alias)
		assert.Equal(t, tagRef(), step.Ref)
	}
}

func TestChainExecutorSecondStepBuildFails(t *testing.T) {
	store := newFakeStore()
	builds := &fakeBuilder{scripts: []stepScript{
		{terminal: builder.StatusSuccess},
		{awaitErr: fmt.Errorf("build stream reported failure")},
	}}
	executor := NewChainExecutor(builds, store, nil, clockwork.NewFakeClock(), "/assets")

	ok := executor.Execute(context.Background(), twoStepTarget(), uuid.New(), tagRef())
	require.False(t, ok)

	// Step 1 journaled in full, step 2 only got as far as its submission.
	steps := store.allSteps()
	require.Len(t, steps, 3)
	assert.Equal(t, journal.RootParent, steps[0].Parent)
	assert.Equal(t, steps[0].ID, steps[1].Parent)
	assert.Equal(t, steps[1].ID, steps[2].Parent)
}

func TestChainExecutorNonSuccessTerminalStatus(t *testing.T) {
	store := newFakeStore()
	builds := &fakeBuilder{scripts: []stepScript{
		{terminal: "FAILURE"},
		{terminal: builder.StatusSuccess},
	}}
	executor := NewChainExecutor(builds, store, nil, clockwork.NewFakeClock(), "/assets")

	ok := executor.Execute(context.Background(), twoStepTarget(), uuid.New(), tagRef())
	require.False(t, ok)

	// The failing completion is still journaled, but the chain stops
	// there: the second workflow is never submitted.
	steps := store.allSteps()
	require.Len(t, steps, 2)

	var fields struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(steps[1].Status, &fields))
	assert.Equal(t, "FAILURE", fields.Status)
}

func TestChainExecutorMissingTerminalField(t *testing.T) {
	store := newFakeStore()
	builds := &fakeBuilder{scripts: []stepScript{{terminal: ""}}}
	executor := NewChainExecutor(builds, store, nil, clockwork.NewFakeClock(), "/assets")

	ok := executor.Execute(context.Background(), twoStepTarget(), uuid.New(), tagRef())
	assert.False(t, ok)
	assert.Len(t, store.allSteps(), 2)
}

func TestChainExecutorSubmissionFailureJournalsNothing(t *testing.T) {
	store := newFakeStore()
	builds := &fakeBuilder{scripts: []stepScript{
		{startErr: fmt.Errorf("gcloud unavailable")},
	}}
	executor := NewChainExecutor(builds, store, nil, clockwork.NewFakeClock(), "/assets")

	ok := executor.Execute(context.Background(), twoStepTarget(), uuid.New(), tagRef())
	assert.False(t, ok)
	assert.Empty(t, store.allSteps())
}

func TestChainExecutorJournalFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.failStep = true
	builds := &fakeBuilder{}
	executor := NewChainExecutor(builds, store, nil, clockwork.NewFakeClock(), "/assets")

	ok := executor.Execute(context.Background(), twoStepTarget(), uuid.New(), tagRef())
	assert.False(t, ok)
	assert.Empty(t, store.allSteps())
	// The submission went out before the journal write failed, but the
	// chain must not proceed to waiting on it.
	assert.Equal(t, 1, builds.started)
}

func TestChainSubstitutions(t *testing.T) {
	t.Run("tag ref derives TAG_NAME", func(t *testing.T) {
		subs := chainSubstitutions("refs/tags/v2.0.1", nil)
		assert.Equal(t, map[string]string{"TAG_NAME": "v2.0.1"}, subs)
	})

	t.Run("branch ref derives BRANCH_NAME", func(t *testing.T) {
		subs := chainSubstitutions("refs/heads/release/1.x", nil)
		assert.Equal(t, map[string]string{"BRANCH_NAME": "release/1.x"}, subs)
	})

	t.Run("other refs derive nothing", func(t *testing.T) {
		subs := chainSubstitutions("refs/pull/42/head", map[string]string{"_ENV": "ci"})
		assert.Equal(t, map[string]string{"_ENV": "ci"}, subs)
	})

	t.Run("declared substitutions override derived", func(t *testing.T) {
		subs := chainSubstitutions("refs/tags/v3", map[string]string{"TAG_NAME": "pinned"})
		assert.Equal(t, map[string]string{"TAG_NAME": "pinned"}, subs)
	})
}
