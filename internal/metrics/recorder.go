package metrics

import "time"

// PollResult enumerates poll outcome categories for counters.
type PollResult string

const (
	PollSuccess      PollResult = "success"
	PollSourceError  PollResult = "source_error"
	PollJournalError PollResult = "journal_error"
)

// Recorder defines observability hooks for the patrol engine. Implementations
// may forward to Prometheus, OpenTelemetry, etc. The NoopRecorder allows
// optional injection.
type Recorder interface {
	ObservePollDuration(alias string, d time.Duration)
	IncPollResult(alias string, result PollResult)
	ObserveDeltaSize(alias string, n int)
	IncChainOutcome(alias string, success bool)
	ObserveBuildStepDuration(alias, workflow string, d time.Duration)
	SetConfigStale(stale bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePollDuration(string, time.Duration)              {}
func (NoopRecorder) IncPollResult(string, PollResult)                       {}
func (NoopRecorder) ObserveDeltaSize(string, int)                           {}
func (NoopRecorder) IncChainOutcome(string, bool)                           {}
func (NoopRecorder) ObserveBuildStepDuration(string, string, time.Duration) {}
func (NoopRecorder) SetConfigStale(bool)                                    {}
