package patrol

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/refpatrol/internal/config"
	"git.home.luguber.info/inful/refpatrol/internal/journal"
	"git.home.luguber.info/inful/refpatrol/internal/logfields"
	"git.home.luguber.info/inful/refpatrol/internal/metrics"
	"git.home.luguber.info/inful/refpatrol/internal/notify"
	"git.home.luguber.info/inful/refpatrol/internal/refs"
	"git.home.luguber.info/inful/refpatrol/internal/refsource"
)

// TargetScheduler owns the poll loop for one watched target. It is the only
// writer of its snapshot/id state; targets share nothing but the journal
// store, which is safe for concurrent use.
type TargetScheduler struct {
	target   config.Target
	interval time.Duration
	offset   time.Duration

	source   refsource.Source
	store    journal.Store
	chains   *ChainExecutor
	recorder metrics.Recorder
	events   notify.Publisher
	clock    clockwork.Clock

	// In-memory view of the last journaled poll. Only advanced after a
	// successful journal write, so a write failure leaves the delta to be
	// recomputed, and re-triggered, on the next cycle.
	snapshot   refs.Snapshot
	lastPollID uuid.UUID
}

// NewTargetScheduler builds the scheduler for one target. recorder and events
// may be nil.
func NewTargetScheduler(
	target config.Target,
	interval, offset time.Duration,
	source refsource.Source,
	store journal.Store,
	chains *ChainExecutor,
	recorder metrics.Recorder,
	events notify.Publisher,
	clock clockwork.Clock,
) *TargetScheduler {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if events == nil {
		events = notify.NoopPublisher{}
	}
	return &TargetScheduler{
		target:   target,
		interval: interval,
		offset:   offset,
		source:   source,
		store:    store,
		chains:   chains,
		recorder: recorder,
		events:   events,
		clock:    clock,
		snapshot: refs.Snapshot{},
	}
}

// Run executes poll cycles until ctx is canceled. No failure inside a cycle
// terminates the loop; the next scheduled poll is the retry mechanism.
func (s *TargetScheduler) Run(ctx context.Context) {
	log := slog.With(logfields.Alias(s.target.Alias))

	s.restoreState(ctx, log)

	// Stagger the first wakeup so N targets do not hammer their remotes at
	// the same instant.
	nextWake := s.clock.Now().Add(s.offset + time.Second)

	for {
		sleep := nextWake.Sub(s.clock.Now())
		if sleep < 0 {
			sleep = 0
		}
		log.Debug("Sleeping until next poll", slog.Duration("sleep", sleep))

		select {
		case <-ctx.Done():
			log.Info("Target scheduler stopped")
			return
		case <-s.clock.After(sleep):
		}

		s.cycle(ctx, log)

		// Advance on the anchored cadence; a cycle that overran one or
		// more intervals causes a single catch-up poll, not a burst.
		nextWake = NextWake(nextWake.Add(s.interval), s.clock.Now(), s.interval)
	}
}

// restoreState seeds the in-memory snapshot/id from the most recent journaled
// poll, so a restart does not re-trigger builds for references it already
// acted on.
func (s *TargetScheduler) restoreState(ctx context.Context, log *slog.Logger) {
	latest, err := s.store.LatestPoll(ctx, s.target.Alias)
	switch {
	case errors.Is(err, journal.ErrNoPolls):
		log.Info("No journaled polls, starting fresh")
	case err != nil:
		// Degraded start: an empty snapshot means the first poll reports
		// everything as changed, which is safe but noisy.
		log.Warn("Failed to restore journal state", logfields.Error(err))
	default:
		s.snapshot = latest.Refs
		s.lastPollID = latest.ID
		log.Info("Restored journal state",
			logfields.PollID(latest.ID.String()),
			slog.Int("refs", len(latest.Refs)))
	}
}

// cycle runs one poll: fetch, delta, journal, trigger. All spawned build
// chains are joined before the cycle returns so successive cycles of the same
// target can never overlap.
func (s *TargetScheduler) cycle(ctx context.Context, log *slog.Logger) {
	pollStart := s.clock.Now()
	current, err := s.source.List(ctx, s.target.URL, s.target.RefFilters)
	s.recorder.ObservePollDuration(s.target.Alias, s.clock.Since(pollStart))
	if err != nil {
		// No new information this cycle; keep operating on the previous
		// snapshot and let the next poll retry.
		log.Warn("Reference poll failed", logfields.Error(err))
		s.recorder.IncPollResult(s.target.Alias, metrics.PollSourceError)
		return
	}

	delta := refs.Delta(s.snapshot, current)
	s.recorder.ObserveDeltaSize(s.target.Alias, len(delta))

	record := journal.PollRecord{
		Time:       s.clock.Now(),
		URL:        s.target.URL,
		Alias:      s.target.Alias,
		Refs:       current,
		RefFilters: s.target.RefFilters,
	}
	// The chain pointer is only set when this poll actually changed
	// references relative to the last recorded poll.
	if len(delta) > 0 {
		record.Previous = s.lastPollID
	}

	pollID, err := s.store.RecordPoll(ctx, record)
	if err != nil {
		log.Error("Failed to journal poll", logfields.Error(err))
		s.recorder.IncPollResult(s.target.Alias, metrics.PollJournalError)
		return
	}
	s.snapshot = current
	s.lastPollID = pollID
	s.recorder.IncPollResult(s.target.Alias, metrics.PollSuccess)

	changed := make([]string, 0, len(delta))
	for name := range delta {
		changed = append(changed, name)
	}
	s.events.PollCompleted(notify.PollEvent{
		Alias:       s.target.Alias,
		URL:         s.target.URL,
		PollID:      pollID.String(),
		ChangedRefs: changed,
		Time:        record.Time,
	})

	if len(delta) == 0 {
		log.Debug("No reference changes")
		return
	}
	log.Info("Reference changes detected", slog.Int("changed", len(delta)))

	// One concurrent build chain per changed reference; the join gives the
	// back-pressure that keeps cycles strictly sequential per target.
	var wg sync.WaitGroup
	for name, commit := range delta {
		ref := journal.TriggerRef{Name: name, Commit: commit}
		wg.Add(1)
		go func() {
			defer wg.Done()
			success := s.chains.Execute(ctx, s.target, pollID, ref)
			s.recorder.IncChainOutcome(s.target.Alias, success)
			s.events.ChainFinished(notify.ChainEvent{
				Alias:   s.target.Alias,
				Ref:     ref.Name,
				Commit:  ref.Commit,
				PollID:  pollID.String(),
				Success: success,
				Time:    s.clock.Now(),
			})
			if !success {
				log.Warn("Build chain failed", logfields.Ref(ref.Name))
			}
		}()
	}
	wg.Wait()
}
