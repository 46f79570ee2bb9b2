package patrol

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/refpatrol/internal/logfields"
	"git.home.luguber.info/inful/refpatrol/internal/metrics"
)

// ConfigWatcher monitors the configuration file for changes. Engine
// configuration is immutable for the process lifetime, so a change is only
// flagged (log line plus staleness gauge) to tell the operator a restart is
// needed.
type ConfigWatcher struct {
	configPath   string
	watcher      *fsnotify.Watcher
	recorder     metrics.Recorder
	debounceTime time.Duration
}

// NewConfigWatcher creates a watcher for the given config file path.
func NewConfigWatcher(configPath string, recorder metrics.Recorder) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	return &ConfigWatcher{
		configPath:   absPath,
		watcher:      watcher,
		recorder:     recorder,
		debounceTime: 2 * time.Second,
	}, nil
}

// Start begins monitoring until ctx is canceled.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	// Watching the directory is more reliable than watching the file
	// directly, since editors replace files on save.
	configDir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(configDir); err != nil {
		return fmt.Errorf("watch config directory %s: %w", configDir, err)
	}

	slog.Info("Watching configuration file", slog.String("config_path", cw.configPath))
	go cw.watchLoop(ctx)
	return nil
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	defer func() { _ = cw.watcher.Close() }()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.configPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(cw.debounceTime, func() {
				slog.Warn("Configuration file changed; restart to apply",
					slog.String("config_path", cw.configPath))
				cw.recorder.SetConfigStale(true)
			})
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error", logfields.Error(err))
		}
	}
}
