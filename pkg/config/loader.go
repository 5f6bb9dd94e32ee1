package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by the loader.
const (
	EnvConfig      = "FSWATCH_CONFIG"
	EnvPaths       = "FSWATCH_PATHS"
	EnvExclude     = "FSWATCH_EXCLUDE"
	EnvIgnore      = "FSWATCH_IGNORE"
	EnvDB          = "FSWATCH_DB"
	EnvLogLevel    = "FSWATCH_LOG_LEVEL"
	EnvMetricsAddr = "FSWATCH_METRICS_ADDR"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file
	// 3. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// LoadFromFile loads configuration from a specific file. Keys absent
	// from the file keep their default values.
	LoadFromFile(path string) (*Config, error)

	// Path returns the file Load reads, or "" when none exists.
	Path() string
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, FSWATCH_CONFIG is consulted, then the config
// file is searched for in:
// 1. ./fswatch.yaml (current directory)
// 2. ~/.config/fswatch/config.yaml.
func NewLoader(configPath string) Loader {
	if configPath == "" {
		configPath = os.Getenv(EnvConfig)
	}
	return &loader{
		configPath: configPath,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	cfg := Default()

	if configPath := l.Path(); configPath != "" {
		fileCfg, err := l.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		cfg = fileCfg
	} else if l.configPath != "" {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, l.configPath)
	}

	cfg = l.applyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile implements Loader.LoadFromFile.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return cfg, nil
}

// Path implements Loader.Path.
func (l *loader) Path() string {
	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			return ""
		}
		return l.configPath
	}
	return l.findConfigFile()
}

// findConfigFile searches for a config file in standard locations.
//
// Returns empty string if no config file is found.
func (l *loader) findConfigFile() string {
	candidates := []string{
		"./fswatch.yaml",
		DefaultPath(),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// applyEnvVars applies environment variable overrides to the configuration.
//
// Supported environment variables:
//   - FSWATCH_PATHS: Comma-separated list of roots
//   - FSWATCH_EXCLUDE: Comma-separated list of excluded subtrees
//   - FSWATCH_IGNORE: Comma-separated list of ignore patterns
//   - FSWATCH_DB: Path to checkpoint database
//   - FSWATCH_LOG_LEVEL: Log level
//   - FSWATCH_METRICS_ADDR: Metrics listen address
func (l *loader) applyEnvVars(cfg *Config) *Config {
	result := *cfg

	if v := os.Getenv(EnvPaths); v != "" {
		result.Watch.Paths = splitList(v)
	}

	if v := os.Getenv(EnvExclude); v != "" {
		result.Watch.Exclude = splitList(v)
	}

	if v := os.Getenv(EnvIgnore); v != "" {
		result.Watch.Ignore = splitList(v)
	}

	if v := os.Getenv(EnvDB); v != "" {
		result.Storage.DBPath = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		result.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv(EnvMetricsAddr); v != "" {
		result.Metrics.Addr = v
	}

	return &result
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load is a convenience function that creates a loader and loads configuration.
//
// Equivalent to:
//
//	loader := NewLoader("")
//	return loader.Load()
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// LoadFromFile is a convenience function that loads configuration from a file.
//
// Equivalent to:
//
//	loader := NewLoader(path)
//	return loader.Load()
func LoadFromFile(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to a YAML file.
//
// Creates parent directories if they don't exist.
// File is created with 0600 permissions (read/write for owner only).
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
