package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/refpatrol/internal/builder"
	"git.home.luguber.info/inful/refpatrol/internal/config"
	"git.home.luguber.info/inful/refpatrol/internal/journal"
	"git.home.luguber.info/inful/refpatrol/internal/metrics"
	"git.home.luguber.info/inful/refpatrol/internal/notify"
	"git.home.luguber.info/inful/refpatrol/internal/patrol"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct{}

func (d *DaemonCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return runDaemon(cfg, root.Config)
}

func runDaemon(cfg *config.Config, configPath string) error {
	slog.Info("Starting refpatrol",
		slog.Duration("poll_interval", cfg.PollInterval.Std()),
		slog.Int("targets", len(cfg.Targets)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close journal", "error", err)
		}
	}()

	source, err := newSource(cfg)
	if err != nil {
		return err
	}

	var recorder *metrics.PrometheusRecorder
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(registry)

		server := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metrics.HTTPHandler(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("Metrics endpoint listening", slog.String("listen", cfg.Metrics.Listen))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	var events notify.Publisher = notify.NoopPublisher{}
	if cfg.Notify.NATSURL != "" {
		publisher, err := notify.NewNATSPublisher(cfg.Notify.NATSURL, cfg.Notify.Subject)
		if err != nil {
			// Event publishing is an observability aid, not a dependency
			// of correct operation.
			slog.Warn("Event publisher unavailable, continuing without", "error", err)
		} else {
			events = publisher
			defer publisher.Close()
		}
	}

	if cfg.Journal.Retention > 0 {
		pruner, err := patrol.NewPruner(store, cfg.Journal.Retention.Std(), cfg.Journal.PruneInterval.Std())
		if err != nil {
			return fmt.Errorf("create journal pruner: %w", err)
		}
		pruner.Start()
		defer func() {
			if err := pruner.Stop(); err != nil {
				slog.Warn("Failed to stop journal pruner", "error", err)
			}
		}()
	}

	watcher, err := patrol.NewConfigWatcher(configPath, recorderOrNil(recorder))
	if err != nil {
		slog.Warn("Config watcher unavailable", "error", err)
	} else if err := watcher.Start(ctx); err != nil {
		slog.Warn("Config watcher failed to start", "error", err)
	}

	supervisor := patrol.NewSupervisor(
		cfg, source, store,
		builder.NewCloudBuildRunner(nil),
		recorderOrNil(recorder), events, nil)

	if err := supervisor.Run(ctx); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	slog.Info("refpatrol stopped")
	return nil
}

// recorderOrNil avoids handing callers a typed-nil metrics.Recorder, which
// would defeat their nil checks.
func recorderOrNil(r *metrics.PrometheusRecorder) metrics.Recorder {
	if r == nil {
		return nil
	}
	return r
}
