package patrol

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/refpatrol/internal/builder"
	"git.home.luguber.info/inful/refpatrol/internal/config"
	"git.home.luguber.info/inful/refpatrol/internal/journal"
	"git.home.luguber.info/inful/refpatrol/internal/logfields"
	"git.home.luguber.info/inful/refpatrol/internal/metrics"
)

// ChainExecutor drives the ordered workflow steps for one changed reference,
// journaling every transition as a linked chain of BuildStepRecords.
type ChainExecutor struct {
	builds   builder.Runner
	store    journal.Store
	recorder metrics.Recorder
	clock    clockwork.Clock
	assetDir string
}

// NewChainExecutor wires a chain executor. recorder may be nil.
func NewChainExecutor(builds builder.Runner, store journal.Store, recorder metrics.Recorder, clock clockwork.Clock, assetDir string) *ChainExecutor {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &ChainExecutor{
		builds:   builds,
		store:    store,
		recorder: recorder,
		clock:    clock,
		assetDir: assetDir,
	}
}

// Execute runs every workflow of the target for the triggering reference,
// strictly in order, each step gated on the previous one succeeding. It
// returns true only when every step completed with the success sentinel. Any
// failure aborts the chain immediately; the journal keeps whatever records
// were written before the abort.
func (e *ChainExecutor) Execute(ctx context.Context, target config.Target, pollID uuid.UUID, ref journal.TriggerRef) bool {
	log := slog.With(
		logfields.Alias(target.Alias),
		logfields.Ref(ref.Name),
		logfields.Commit(ref.Commit))

	parent := journal.RootParent
	for _, workflow := range target.Workflows {
		stepStart := e.clock.Now()

		submission, err := e.builds.Start(ctx, builder.SubmitRequest{
			ConfigPath:    workflow.ConfigPath(e.assetDir),
			SourcePath:    workflow.SourcesPath(e.assetDir),
			Substitutions: chainSubstitutions(ref.Name, workflow.Substitutions),
		})
		if err != nil {
			// Nothing was started, so nothing is journaled for this step.
			log.Warn("Build submission failed",
				logfields.Workflow(workflow.Alias), logfields.Error(err))
			return false
		}
		log.Info("Workflow step submitted",
			logfields.Workflow(workflow.Alias),
			logfields.BuildID(submission.ID.String()))

		submitID, err := e.store.RecordBuildStep(ctx, journal.BuildStepRecord{
			Parent: parent,
			PollID: pollID,
			Time:   e.clock.Now(),
			Alias:  target.Alias,
			Ref:    ref,
			Status: submission.Status.Raw,
		})
		if err != nil {
			log.Error("Failed to journal build submission",
				logfields.Workflow(workflow.Alias), logfields.Error(err))
			return false
		}

		if err := e.builds.Await(ctx, submission.ID); err != nil {
			log.Warn("Build wait failed",
				logfields.BuildID(submission.ID.String()), logfields.Error(err))
			return false
		}

		status, err := e.builds.Describe(ctx, submission.ID)
		if err != nil {
			log.Warn("Build describe failed",
				logfields.BuildID(submission.ID.String()), logfields.Error(err))
			return false
		}

		completionID, err := e.store.RecordBuildStep(ctx, journal.BuildStepRecord{
			Parent: submitID,
			PollID: pollID,
			Time:   e.clock.Now(),
			Alias:  target.Alias,
			Ref:    ref,
			Status: status.Raw,
		})
		if err != nil {
			log.Error("Failed to journal build completion",
				logfields.Workflow(workflow.Alias), logfields.Error(err))
			return false
		}

		e.recorder.ObserveBuildStepDuration(target.Alias, workflow.Alias, e.clock.Since(stepStart))

		terminal, ok := status.Terminal()
		if !ok || terminal != builder.StatusSuccess {
			log.Warn("Workflow step did not succeed",
				logfields.Workflow(workflow.Alias),
				slog.String("terminal_status", terminal))
			return false
		}
		log.Info("Workflow step finished", logfields.Workflow(workflow.Alias))

		parent = completionID
	}
	return true
}

// chainSubstitutions composes the substitution set for one step: a derived
// variable exposing the branch or tag name parsed from the triggering
// reference, then the workflow's declared substitutions, which may override.
func chainSubstitutions(refName string, declared map[string]string) map[string]string {
	subs := map[string]string{}
	switch {
	case strings.HasPrefix(refName, "refs/tags/"):
		subs["TAG_NAME"] = strings.TrimPrefix(refName, "refs/tags/")
	case strings.HasPrefix(refName, "refs/heads/"):
		subs["BRANCH_NAME"] = strings.TrimPrefix(refName, "refs/heads/")
	}
	for k, v := range declared {
		subs[k] = v
	}
	return subs
}
