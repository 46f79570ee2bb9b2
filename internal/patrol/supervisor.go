package patrol

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/refpatrol/internal/builder"
	"git.home.luguber.info/inful/refpatrol/internal/config"
	"git.home.luguber.info/inful/refpatrol/internal/journal"
	"git.home.luguber.info/inful/refpatrol/internal/logfields"
	"git.home.luguber.info/inful/refpatrol/internal/metrics"
	"git.home.luguber.info/inful/refpatrol/internal/notify"
	"git.home.luguber.info/inful/refpatrol/internal/refsource"
)

// Supervisor starts one TargetScheduler per valid configured target and runs
// them concurrently for the process lifetime. Failures stay contained inside
// the owning scheduler; the supervisor's only responsibilities are startup,
// staggering and shutdown.
type Supervisor struct {
	cfg      *config.Config
	source   refsource.Source
	store    journal.Store
	builds   builder.Runner
	recorder metrics.Recorder
	events   notify.Publisher
	clock    clockwork.Clock

	group WorkerGroup
}

// NewSupervisor wires a supervisor. recorder and events may be nil; clock
// defaults to the real clock.
func NewSupervisor(
	cfg *config.Config,
	source refsource.Source,
	store journal.Store,
	builds builder.Runner,
	recorder metrics.Recorder,
	events notify.Publisher,
	clock clockwork.Clock,
) *Supervisor {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if events == nil {
		events = notify.NoopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Supervisor{
		cfg:      cfg,
		source:   source,
		store:    store,
		builds:   builds,
		recorder: recorder,
		events:   events,
		clock:    clock,
	}
}

// Run starts every schedulable target and blocks until ctx is canceled and
// all schedulers have exited. Invalid targets are logged and skipped; they
// never prevent the rest from running.
func (s *Supervisor) Run(ctx context.Context) error {
	targets, problems := s.cfg.ValidateTargets()
	for _, problem := range problems {
		slog.Error("Target rejected by validation",
			logfields.Alias(problem.Alias), logfields.Error(problem.Err))
	}
	if len(targets) == 0 {
		slog.Warn("No schedulable targets")
	}

	chains := NewChainExecutor(s.builds, s.store, s.recorder, s.clock, s.cfg.AssetDir)

	for i, target := range targets {
		offset := StaggerOffset(i, len(targets), s.cfg.PollInterval.Std())
		scheduler := NewTargetScheduler(
			target, s.cfg.PollInterval.Std(), offset,
			s.source, s.store, chains, s.recorder, s.events, s.clock)

		slog.Info("Starting target scheduler",
			logfields.Alias(target.Alias),
			logfields.URL(target.URL),
			slog.Duration("stagger", offset))
		s.group.Go(func() { scheduler.Run(ctx) })
	}

	<-ctx.Done()
	return s.group.StopAndWait(context.Background())
}
