// Package config provides configuration management for fswatch.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	opts, err := cfg.Watch.Options()
package config

import (
	"fmt"
	"time"

	"github.com/0xmhha/fsevent-watcher/pkg/filter"
	"github.com/0xmhha/fsevent-watcher/pkg/watcher"
)

// Config represents the complete application configuration.
//
// Invariants:
// - Watch.Latency, Watch.QueueCapacity and Watch.NotificationCapacity are >= 0
// - Watch.Exclude has at most watcher.MaxExclusions distinct entries
// - Watch.CheckpointInterval must be > 0.
type Config struct {
	// Watch settings
	Watch WatchConfig `yaml:"watch"`

	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// Output settings
	Output OutputConfig `yaml:"output"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// WatchConfig contains stream settings.
type WatchConfig struct {
	// Root paths to watch recursively
	Paths []string `yaml:"paths"`

	// Subtrees that produce no events
	Exclude []string `yaml:"exclude"`

	// Glob patterns for paths dropped before output
	Ignore []string `yaml:"ignore"`

	// Coalescing window before a batch is delivered
	Latency time.Duration `yaml:"latency"`

	// Stream creation flags by name (no_defer, watch_root, ...)
	CreateFlags []string `yaml:"create_flags"`

	// Event queue bound; the oldest events are dropped beyond it
	QueueCapacity int `yaml:"queue_capacity"`

	// Notification queue bound
	NotificationCapacity int `yaml:"notification_capacity"`

	// Resume from the stored checkpoint instead of now
	Resume bool `yaml:"resume"`

	// How often the last event ID is persisted while watching
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// StorageConfig contains storage-related settings.
type StorageConfig struct {
	// Path to BoltDB checkpoint database
	DBPath string `yaml:"db_path"`
}

// OutputConfig contains output-related settings.
type OutputConfig struct {
	// Output format (table, json, simple). Empty picks table on a
	// terminal and json otherwise.
	Format string `yaml:"format"`

	// Print the decoded flag set with each event
	ShowFlags bool `yaml:"show_flags"`

	// Print event IDs
	ShowIDs bool `yaml:"show_ids"`
}

// MetricsConfig contains metrics endpoint settings.
type MetricsConfig struct {
	// Listen address for /metrics; empty disables the endpoint
	Addr string `yaml:"addr"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// Validate checks if the configuration satisfies all invariants.
//
// Returns an error if any invariant is violated:
//   - Negative latency or queue capacities
//   - Too many or malformed exclusions
//   - Ignore patterns that do not compile
//   - Unknown create flag names
//   - Non-positive checkpoint interval
//   - Invalid output format, log level or log format
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if c.Watch.Latency < 0 {
		return ErrInvalidLatency
	}
	if c.Watch.QueueCapacity < 0 || c.Watch.NotificationCapacity < 0 {
		return ErrInvalidQueueCapacity
	}
	if _, err := watcher.NewExclusionList(c.Watch.Exclude...); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExclusions, err)
	}
	if _, err := filter.New(c.Watch.Ignore); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIgnorePattern, err)
	}
	if _, err := c.Watch.createFlags(); err != nil {
		return err
	}
	if c.Watch.CheckpointInterval <= 0 {
		return ErrInvalidCheckpointInterval
	}

	validFormats := map[string]bool{
		"":       true,
		"table":  true,
		"json":   true,
		"simple": true,
	}
	if !validFormats[c.Output.Format] {
		return ErrInvalidOutputFormat
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

func (w WatchConfig) createFlags() (watcher.CreateFlags, error) {
	var flags watcher.CreateFlags
	for _, name := range w.CreateFlags {
		f, err := watcher.ParseCreateFlag(name)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidCreateFlag, err)
		}
		flags |= f
	}
	return flags, nil
}

// Options converts the watch settings to stream options. The resume
// event ID is not part of the configuration and is left unset.
func (w WatchConfig) Options() (watcher.Options, error) {
	flags, err := w.createFlags()
	if err != nil {
		return watcher.Options{}, err
	}

	opts := watcher.Options{
		ExcludedPaths:        append([]string(nil), w.Exclude...),
		Latency:              w.Latency,
		CreateFlags:          flags,
		QueueCapacity:        w.QueueCapacity,
		NotificationCapacity: w.NotificationCapacity,
	}
	if err := opts.Validate(); err != nil {
		return watcher.Options{}, err
	}
	return opts, nil
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	return &Config{
		Watch: WatchConfig{
			Latency:              100 * time.Millisecond,
			CreateFlags:          []string{"file_events"},
			QueueCapacity:        watcher.DefaultQueueCapacity,
			NotificationCapacity: watcher.DefaultNotificationCapacity,
			Resume:               true,
			CheckpointInterval:   5 * time.Second,
		},
		Storage: StorageConfig{
			DBPath: defaultDBPath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}
