package patrol

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/refpatrol/internal/journal"
	"git.home.luguber.info/inful/refpatrol/internal/logfields"
)

// Pruner periodically deletes journal rows older than the retention window so
// the journal stays bounded on long-lived deployments.
type Pruner struct {
	scheduler gocron.Scheduler
	store     journal.Store
	retention time.Duration
}

// NewPruner creates a pruner running every interval. A zero retention is
// rejected; callers should simply not construct a pruner when retention is
// disabled.
func NewPruner(store journal.Store, retention, interval time.Duration) (*Pruner, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}

	p := &Pruner{scheduler: scheduler, store: store, retention: retention}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(p.prune),
		gocron.WithName("journal-prune"),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("create prune job: %w", err)
	}
	return p, nil
}

// Start begins the prune schedule.
func (p *Pruner) Start() {
	slog.Info("Starting journal pruner", slog.Duration("retention", p.retention))
	p.scheduler.Start()
}

// Stop shuts the schedule down.
func (p *Pruner) Stop() error {
	return p.scheduler.Shutdown()
}

func (p *Pruner) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-p.retention)
	removed, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		slog.Warn("Journal prune failed", logfields.Error(err))
		return
	}
	if removed > 0 {
		slog.Info("Journal pruned", slog.Int64("removed", removed))
	}
}
