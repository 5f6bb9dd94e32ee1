package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xmhha/fsevent-watcher/pkg/watcher"
)

// isolate points HOME at an empty directory and clears FSWATCH_* so the
// developer's own configuration cannot leak into a test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{EnvConfig, EnvPaths, EnvExclude, EnvIgnore, EnvDB, EnvLogLevel, EnvMetricsAddr} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Watch.Latency <= 0 {
		t.Error("Latency not set")
	}

	if cfg.Watch.QueueCapacity != watcher.DefaultQueueCapacity {
		t.Errorf("QueueCapacity = %d, want %d", cfg.Watch.QueueCapacity, watcher.DefaultQueueCapacity)
	}

	if !cfg.Watch.Resume {
		t.Error("Resume should default to true")
	}

	if cfg.Storage.DBPath == "" {
		t.Error("DBPath not set")
	}

	if cfg.Logging.Level == "" {
		t.Error("Log level not set")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:   "valid default config",
			mutate: func(c *Config) {},
		},
		{
			name:    "negative latency",
			mutate:  func(c *Config) { c.Watch.Latency = -time.Second },
			wantErr: ErrInvalidLatency,
		},
		{
			name:    "negative queue capacity",
			mutate:  func(c *Config) { c.Watch.QueueCapacity = -1 },
			wantErr: ErrInvalidQueueCapacity,
		},
		{
			name:    "negative notification capacity",
			mutate:  func(c *Config) { c.Watch.NotificationCapacity = -1 },
			wantErr: ErrInvalidQueueCapacity,
		},
		{
			name: "nine exclusions",
			mutate: func(c *Config) {
				for i := 0; i < 9; i++ {
					c.Watch.Exclude = append(c.Watch.Exclude, filepath.Join("/tmp/x", string(rune('a'+i))))
				}
			},
			wantErr: ErrInvalidExclusions,
		},
		{
			name:    "bad ignore pattern",
			mutate:  func(c *Config) { c.Watch.Ignore = []string{"[oops"} },
			wantErr: ErrInvalidIgnorePattern,
		},
		{
			name:    "unknown create flag",
			mutate:  func(c *Config) { c.Watch.CreateFlags = []string{"telepathy"} },
			wantErr: ErrInvalidCreateFlag,
		},
		{
			name:    "zero checkpoint interval",
			mutate:  func(c *Config) { c.Watch.CheckpointInterval = 0 },
			wantErr: ErrInvalidCheckpointInterval,
		},
		{
			name:    "invalid output format",
			mutate:  func(c *Config) { c.Output.Format = "xml" },
			wantErr: ErrInvalidOutputFormat,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: ErrInvalidLogLevel,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: ErrInvalidLogFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWatchOptions(t *testing.T) {
	cfg := Default()
	cfg.Watch.Exclude = []string{"/tmp/x/.git"}
	cfg.Watch.CreateFlags = []string{"no_defer", "watch_root"}
	cfg.Watch.Latency = 250 * time.Millisecond
	cfg.Watch.QueueCapacity = 16

	opts, err := cfg.Watch.Options()
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}

	if opts.CreateFlags != watcher.CreateFlagNoDefer|watcher.CreateFlagWatchRoot {
		t.Errorf("CreateFlags = %v", opts.CreateFlags)
	}
	if opts.Latency != 250*time.Millisecond {
		t.Errorf("Latency = %v", opts.Latency)
	}
	if opts.QueueCapacity != 16 {
		t.Errorf("QueueCapacity = %d", opts.QueueCapacity)
	}
	if len(opts.ExcludedPaths) != 1 || opts.ExcludedPaths[0] != "/tmp/x/.git" {
		t.Errorf("ExcludedPaths = %v", opts.ExcludedPaths)
	}
	if opts.Resume {
		t.Error("Options() must not set Resume")
	}

	cfg.Watch.CreateFlags = []string{"bogus"}
	if _, err := cfg.Watch.Options(); !errors.Is(err, ErrInvalidCreateFlag) {
		t.Errorf("Options() error = %v, want ErrInvalidCreateFlag", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	isolate(t)
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid config file",
			content: `
watch:
  paths:
    - /path/to/root1
    - /path/to/root2
  exclude:
    - /path/to/root1/.git
  ignore: ["*.swp", node_modules]
  latency: 250ms
  create_flags: [file_events, no_defer]
  queue_capacity: 4096
  resume: false
  checkpoint_interval: 30s
storage:
  db_path: /tmp/test.db
output:
  format: json
  show_ids: true
metrics:
  addr: 127.0.0.1:9464
logging:
  level: debug
  output: stdout
  format: json
`,
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				if len(cfg.Watch.Paths) != 2 {
					t.Errorf("got %d paths, want 2", len(cfg.Watch.Paths))
				}
				if cfg.Watch.Latency != 250*time.Millisecond {
					t.Errorf("Latency = %v, want 250ms", cfg.Watch.Latency)
				}
				if len(cfg.Watch.Ignore) != 2 || cfg.Watch.Ignore[1] != "node_modules" {
					t.Errorf("Ignore = %v", cfg.Watch.Ignore)
				}
				if cfg.Watch.QueueCapacity != 4096 {
					t.Errorf("QueueCapacity = %d, want 4096", cfg.Watch.QueueCapacity)
				}
				if cfg.Watch.Resume {
					t.Error("Resume = true, want false")
				}
				if cfg.Watch.CheckpointInterval != 30*time.Second {
					t.Errorf("CheckpointInterval = %v, want 30s", cfg.Watch.CheckpointInterval)
				}
				if cfg.Output.Format != "json" || !cfg.Output.ShowIDs {
					t.Errorf("Output = %+v", cfg.Output)
				}
				if cfg.Metrics.Addr != "127.0.0.1:9464" {
					t.Errorf("Metrics.Addr = %s", cfg.Metrics.Addr)
				}
				if cfg.Logging.Level != "debug" {
					t.Errorf("LogLevel = %s, want debug", cfg.Logging.Level)
				}
			},
		},
		{
			name: "partial config keeps defaults",
			content: `
logging:
  level: warn
`,
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Watch.Resume {
					t.Error("Resume default lost")
				}
				if cfg.Watch.NotificationCapacity != watcher.DefaultNotificationCapacity {
					t.Errorf("NotificationCapacity = %d", cfg.Watch.NotificationCapacity)
				}
				if cfg.Logging.Format != "text" {
					t.Errorf("LogFormat = %s, want text", cfg.Logging.Format)
				}
			},
		},
		{
			name:    "invalid yaml",
			content: `invalid: yaml: content: [`,
			wantErr: true,
		},
		{
			name: "invalid values",
			content: `
watch:
  latency: -1s
`,
			wantErr: true,
		},
		{
			name:    "non-existent file",
			content: "", // Will not create file
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var filePath string

			if tt.name != "non-existent file" {
				filePath = filepath.Join(tmpDir, tt.name+".yaml")
				if err := os.WriteFile(filePath, []byte(tt.content), 0600); err != nil {
					t.Fatalf("Failed to create test file: %v", err)
				}
			} else {
				filePath = filepath.Join(tmpDir, "nonexistent.yaml")
			}

			loader := NewLoader(filePath)
			cfg, err := loader.Load()

			if tt.wantErr {
				if err == nil {
					t.Error("Load() error = nil, wantErr = true")
				}
				return
			}

			if err != nil {
				t.Errorf("Load() error = %v, wantErr = false", err)
				return
			}

			if cfg == nil {
				t.Error("Load() returned nil config")
				return
			}

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Load() error = %v, want ErrConfigNotFound", err)
	}
}

func TestLoad(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Errorf("Load() error = %v, want nil", err)
	}

	if cfg == nil {
		t.Fatal("Load() returned nil")
	}

	if cfg.Watch.QueueCapacity != watcher.DefaultQueueCapacity {
		t.Error("Load() did not apply defaults")
	}

	if got := NewLoader("").Path(); got != "" {
		t.Errorf("Path() = %q, want empty", got)
	}
}

func TestLoadFromEnvConfigPath(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "env.yaml")
	if err := os.WriteFile(path, []byte("output:\n  format: simple\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfig, path)

	loader := NewLoader("")
	if loader.Path() != path {
		t.Errorf("Path() = %q, want %q", loader.Path(), path)
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Output.Format != "simple" {
		t.Errorf("Output.Format = %s, want simple", cfg.Output.Format)
	}
}

func TestSave(t *testing.T) {
	isolate(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.Watch.Latency = 2 * time.Second
	cfg.Watch.Paths = []string{"/tmp/x"}

	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Config file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	loadedCfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if loadedCfg.Logging.Level != "debug" {
		t.Errorf("Loaded config LogLevel = %s, want debug", loadedCfg.Logging.Level)
	}
	if loadedCfg.Watch.Latency != 2*time.Second {
		t.Errorf("Loaded config Latency = %v, want 2s", loadedCfg.Watch.Latency)
	}
	if len(loadedCfg.Watch.Paths) != 1 || loadedCfg.Watch.Paths[0] != "/tmp/x" {
		t.Errorf("Loaded config Paths = %v", loadedCfg.Watch.Paths)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "loud"

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(cfg, path); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("Save() error = %v, want ErrInvalidLogLevel", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid config was written")
	}
}

func TestEnvVarOverrides(t *testing.T) {
	isolate(t)

	t.Setenv(EnvPaths, "/env/dir1, /env/dir2,")
	t.Setenv(EnvExclude, "/env/dir1/.git")
	t.Setenv(EnvIgnore, "*.tmp,*.swp")
	t.Setenv(EnvDB, "/env/db.db")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvMetricsAddr, ":9464")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Watch.Paths) != 2 {
		t.Fatalf("got %d paths, want 2", len(cfg.Watch.Paths))
	}
	if cfg.Watch.Paths[1] != "/env/dir2" {
		t.Errorf("Paths[1] = %s, want /env/dir2", cfg.Watch.Paths[1])
	}

	if len(cfg.Watch.Exclude) != 1 {
		t.Errorf("Exclude = %v", cfg.Watch.Exclude)
	}

	if len(cfg.Watch.Ignore) != 2 {
		t.Errorf("Ignore = %v", cfg.Watch.Ignore)
	}

	if cfg.Storage.DBPath != "/env/db.db" {
		t.Errorf("DBPath = %s, want /env/db.db", cfg.Storage.DBPath)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.Logging.Level)
	}

	if cfg.Metrics.Addr != ":9464" {
		t.Errorf("Metrics.Addr = %s, want :9464", cfg.Metrics.Addr)
	}
}

func BenchmarkValidate(b *testing.B) {
	cfg := Default()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := cfg.Validate(); err != nil {
			b.Fatal(err)
		}
	}
}
