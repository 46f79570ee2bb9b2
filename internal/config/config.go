// Package config loads and validates the refpatrol configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration decodes yaml values like "90s" or "2h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SourceKind selects the Reference Source implementation.
type SourceKind string

const (
	// SourceGit shells out to the git CLI (`git ls-remote`).
	SourceGit SourceKind = "git"
	// SourceNative speaks the git protocol in-process via go-git.
	SourceNative SourceKind = "native"
)

// Config is the full process configuration. It is loaded once at startup and
// read-only for the engine's lifetime; changing the file requires a restart.
type Config struct {
	// PollInterval is the time between poll attempts per target.
	PollInterval Duration `yaml:"poll_interval"`
	// Source selects the reference source implementation.
	Source SourceKind `yaml:"source"`
	// AssetDir is the directory holding build workflow configs and source
	// archives; workflow paths are resolved against it. Defaults to the
	// directory of the configuration file.
	AssetDir string `yaml:"asset_dir"`

	Journal JournalConfig `yaml:"journal"`
	Metrics MetricsConfig `yaml:"metrics"`
	Notify  NotifyConfig  `yaml:"notify"`

	Targets []Target `yaml:"targets"`
}

// JournalConfig configures the sqlite journal.
type JournalConfig struct {
	// Path is the database file path; ":memory:" is accepted for testing.
	Path string `yaml:"path"`
	// Retention bounds how long journal rows are kept. Zero disables
	// pruning entirely.
	Retention Duration `yaml:"retention"`
	// PruneInterval is how often the retention job runs.
	PruneInterval Duration `yaml:"prune_interval"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// NotifyConfig configures the optional NATS event publisher.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// Target is one watched repository.
type Target struct {
	Alias      string   `yaml:"alias"`
	URL        string   `yaml:"url"`
	RefFilters []string `yaml:"ref_filters"`

	Workflows []Workflow `yaml:"workflows"`
}

// Workflow is one build step in a target's chain. Steps execute strictly in
// declaration order, each gated on the previous one succeeding.
type Workflow struct {
	Alias string `yaml:"alias"`
	// Config is the build configuration file, relative to AssetDir.
	Config string `yaml:"config"`
	// Sources is an optional source archive, relative to AssetDir.
	Sources       string            `yaml:"sources,omitempty"`
	Substitutions map[string]string `yaml:"substitutions,omitempty"`
}

// ConfigPath returns the workflow's build config resolved against the asset
// directory.
func (w Workflow) ConfigPath(assetDir string) string {
	return filepath.Join(assetDir, w.Config)
}

// SourcesPath returns the workflow's source archive resolved against the
// asset directory, or "" when the workflow declares no sources.
func (w Workflow) SourcesPath(assetDir string) string {
	if w.Sources == "" {
		return ""
	}
	return filepath.Join(assetDir, w.Sources)
}

// Load reads, expands and validates the configuration file. Per-target
// problems are not errors here; see ValidateTargets.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Environment references in the file (ex: ${REPO_TOKEN}) are expanded
	// before decoding so secrets stay out of the yaml itself.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults(configPath)
	if err := cfg.validateGlobal(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env style files if present; existing process
// environment always wins.
func loadEnvFiles() {
	for _, path := range []string{".env", ".env.local"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			fmt.Fprintf(os.Stderr, "Loaded environment variables from %s\n", path)
		}
	}
}

func (c *Config) applyDefaults(configPath string) {
	if c.PollInterval == 0 {
		c.PollInterval = Duration(2 * time.Hour)
	}
	if c.Source == "" {
		c.Source = SourceGit
	}
	if c.AssetDir == "" {
		c.AssetDir = filepath.Dir(configPath)
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "refpatrol.db"
	}
	if c.Journal.PruneInterval == 0 {
		c.Journal.PruneInterval = Duration(24 * time.Hour)
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = "refpatrol.events"
	}
}

func (c *Config) validateGlobal() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.Source != SourceGit && c.Source != SourceNative {
		return fmt.Errorf("unknown source %q (expected %q or %q)", c.Source, SourceGit, SourceNative)
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("no targets configured")
	}
	return nil
}
