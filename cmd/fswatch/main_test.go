package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/fsevent-watcher/pkg/checkpoint"
	"github.com/0xmhha/fsevent-watcher/pkg/config"
	"github.com/0xmhha/fsevent-watcher/pkg/logger"
	"github.com/0xmhha/fsevent-watcher/pkg/metrics"
	"github.com/0xmhha/fsevent-watcher/pkg/watcher"
)

// isolate gives the test its own HOME and checkpoint database and clears
// the remaining FSWATCH_* variables.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{config.EnvConfig, config.EnvPaths, config.EnvExclude, config.EnvIgnore, config.EnvMetricsAddr} {
		t.Setenv(key, "")
	}
	t.Setenv(config.EnvLogLevel, "error")
	db := filepath.Join(home, "checkpoints.db")
	t.Setenv(config.EnvDB, db)
	return db
}

// syncBuffer is a bytes.Buffer safe for a concurrent writer and reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// TestParseWatchFlags tests watch command flag parsing.
func TestParseWatchFlags(t *testing.T) {
	latency := 250 * time.Millisecond

	tests := []struct {
		name      string
		args      []string
		wantCmd   watchCommand
		wantError bool
	}{
		{
			name:    "default flags",
			args:    []string{"/tmp/x"},
			wantCmd: watchCommand{paths: []string{"/tmp/x"}},
		},
		{
			name:    "format and since",
			args:    []string{"-format", "json", "-since", "now", "/tmp/x"},
			wantCmd: watchCommand{paths: []string{"/tmp/x"}, format: "json", since: "now"},
		},
		{
			name:    "numeric since",
			args:    []string{"-since", "0x10", "/a", "/b"},
			wantCmd: watchCommand{paths: []string{"/a", "/b"}, since: "0x10"},
		},
		{
			name:    "latency and exclusions",
			args:    []string{"-latency", "250ms", "-exclude", "/a/.git, /a/node_modules,", "/a"},
			wantCmd: watchCommand{paths: []string{"/a"}, latency: &latency, exclude: []string{"/a/.git", "/a/node_modules"}},
		},
		{
			name:    "ignore patterns",
			args:    []string{"-ignore", "*.swp,node_modules", "/a"},
			wantCmd: watchCommand{paths: []string{"/a"}, ignore: []string{"*.swp", "node_modules"}},
		},
		{
			name:    "display toggles",
			args:    []string{"-flags", "-ids", "-metrics", ":9464"},
			wantCmd: watchCommand{showFlags: true, showIDs: true, metricsAddr: ":9464"},
		},
		{
			name:      "invalid format",
			args:      []string{"-format", "xml"},
			wantError: true,
		},
		{
			name:      "invalid since",
			args:      []string{"-since", "yesterday"},
			wantError: true,
		},
		{
			name:      "unknown flag",
			args:      []string{"-bogus"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWatchFlags("/test/config.yaml", tt.args)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, "/test/config.yaml", got.configPath)
			assert.Equal(t, tt.wantCmd.paths, nonNilStrings(got.paths))
			assert.Equal(t, tt.wantCmd.format, got.format)
			assert.Equal(t, tt.wantCmd.since, got.since)
			assert.Equal(t, tt.wantCmd.exclude, got.exclude)
			assert.Equal(t, tt.wantCmd.ignore, got.ignore)
			assert.Equal(t, tt.wantCmd.showFlags, got.showFlags)
			assert.Equal(t, tt.wantCmd.showIDs, got.showIDs)
			assert.Equal(t, tt.wantCmd.metricsAddr, got.metricsAddr)
			if tt.wantCmd.latency == nil {
				assert.Nil(t, got.latency)
			} else {
				require.NotNil(t, got.latency)
				assert.Equal(t, *tt.wantCmd.latency, *got.latency)
			}
		})
	}
}

func nonNilStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestParseFlagWord(t *testing.T) {
	tests := []struct {
		input   string
		want    uint32
		wantErr bool
	}{
		{"0x11002", 0x11002, false},
		{"4096", 4096, false},
		{"ItemCreated|ItemIsFile", 0x10100, false},
		{"itemremoved", 0x200, false},
		{"ItemCreated|Nope", 0, true},
		{"0x1ffffffff", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseFlagWord(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunDecode(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"decode", "-format", "simple", "0x11002", "ItemRenamed"}, &out))

	assert.Equal(t, "0x00011002: UserDropped|ItemModified|ItemIsFile\n0x00000800: ItemRenamed\n", out.String())

	assert.Error(t, run([]string{"decode"}, &out))
	assert.Error(t, run([]string{"decode", "-format", "xml", "1"}, &out))
}

func TestRunGlobal(t *testing.T) {
	var out bytes.Buffer

	require.NoError(t, run([]string{"-version"}, &out))
	assert.Equal(t, "fswatch dev\n", out.String())

	out.Reset()
	require.NoError(t, run(nil, &out))
	assert.Contains(t, out.String(), "Usage:")

	err := run([]string{"frobnicate"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestResolveStart(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	require.NoError(t, store.Save(&checkpoint.Checkpoint{Key: "k", EventID: 900}))

	tests := []struct {
		name       string
		since      string
		resume     bool
		key        string
		wantResume bool
		wantID     watcher.EventID
	}{
		{"default resumes from checkpoint", "", true, "k", true, 900},
		{"resume disabled in config", "", false, "k", false, 0},
		{"explicit checkpoint ignores config", "checkpoint", false, "k", true, 900},
		{"now", "now", true, "k", false, 0},
		{"explicit id", "1234", true, "k", true, 1234},
		{"explicit SinceNow value", "0xffffffffffffffff", true, "k", false, 0},
		{"no checkpoint stored", "", true, "missing", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Watch.Resume = tt.resume

			var opts watcher.Options
			cmd := &watchCommand{since: tt.since}
			require.NoError(t, cmd.resolveStart(cfg, store, tt.key, &opts, logger.Noop()))

			assert.Equal(t, tt.wantResume, opts.Resume)
			assert.Equal(t, tt.wantID, opts.SinceEventID)
		})
	}
}

func TestResolveFormat(t *testing.T) {
	cmd := &watchCommand{out: &bytes.Buffer{}}
	assert.Equal(t, "json", string(cmd.resolveFormat("")), "non-terminal output defaults to JSON lines")
	assert.Equal(t, "simple", string(cmd.resolveFormat("simple")))
}

func TestProgressTracker(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	tracker := &progressTracker{
		store:     store,
		collector: metrics.New(),
		key:       "k",
		roots:     []string{"/tmp/x"},
		log:       logger.Noop(),
	}

	tracker.save()
	_, err := store.Get("k")
	assert.True(t, errors.Is(err, checkpoint.ErrNotFound), "nothing observed, nothing saved")

	tracker.observe(10)
	tracker.observe(7)
	tracker.observe(watcher.SinceNow)
	tracker.save()

	cp, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), cp.EventID)
	assert.Equal(t, []string{"/tmp/x"}, cp.Roots)
}

func newTestPump(tracker *progressTracker) *pump {
	return &pump{
		tracker:   tracker,
		collector: tracker.collector,
		log:       logger.Noop(),
	}
}

func TestProgressTrackerIgnoresDropNotice(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	tracker := &progressTracker{store: store, collector: metrics.New(), key: "k", log: logger.Noop()}
	p := newTestPump(tracker)

	tracker.observe(990)
	p.handle(watcher.Notification{Kind: watcher.EventsDropped, ID: 1000, Count: 4})
	tracker.save()

	cp, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, uint64(990), cp.EventID, "queued events past the drop stay unsaved until written")
}

func TestProgressTrackerWrap(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	tracker := &progressTracker{store: store, collector: metrics.New(), key: "k", log: logger.Noop()}
	p := newTestPump(tracker)

	tracker.observe(1000)
	p.handle(watcher.Notification{Kind: watcher.EventIDsWrapped, ID: 5})

	// Pre-wrap events still queued when the notice arrives.
	tracker.observe(1005)
	tracker.save()
	cp, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, uint64(1005), cp.EventID)

	tracker.observe(6)
	tracker.observe(7)
	tracker.save()
	cp, err = store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cp.EventID, "the first post-wrap ID restarts the checkpoint")

	tracker.observe(3)
	tracker.save()
	cp, err = store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cp.EventID, "IDs only move backwards once per wrap")
}

func TestProgressTrackerHistoryDoneDoesNotAdvance(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	tracker := &progressTracker{store: store, collector: metrics.New(), key: "k", log: logger.Noop()}
	p := newTestPump(tracker)

	tracker.observe(50)
	p.handle(watcher.Notification{Kind: watcher.HistoryReplayDone, ID: 80})
	tracker.save()

	cp, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), cp.EventID)
}

// runWatch starts a watch on root and returns once the stream is running.
func runWatch(t *testing.T, args ...string) (out *syncBuffer, stop func() error) {
	t.Helper()

	cmd, err := parseWatchFlags("", args)
	require.NoError(t, err)

	out = &syncBuffer{}
	cmd.out = out

	started := make(chan struct{})
	cmd.started = func(*watcher.Handle) { close(started) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.execute(ctx) }()

	select {
	case <-started:
	case err := <-done:
		cancel()
		t.Fatalf("watch exited early: %v", err)
	case <-time.After(10 * time.Second):
		cancel()
		t.Fatal("watch did not start")
	}

	return out, func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			return errors.New("watch did not stop")
		}
	}
}

func TestWatchCommandEndToEnd(t *testing.T) {
	db := isolate(t)
	root := t.TempDir()
	roots, err := resolveRoots([]string{root})
	require.NoError(t, err)
	file := filepath.Join(roots[0], "hello.txt")

	out, stop := runWatch(t, "-format", "json", "-latency", "10ms", root)

	require.NoError(t, os.WriteFile(file, []byte("hi"), 0600))
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), file)
	}, 10*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	var sawEvent bool
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line %q", line)
		if rec["type"] == "event" {
			sawEvent = true
		}
	}
	assert.True(t, sawEvent)

	store, err := checkpoint.Open(checkpoint.Config{DBPath: db}, logger.Noop())
	require.NoError(t, err)
	cp, err := store.Get(checkpoint.KeyForRoots(roots))
	require.NoError(t, err, "checkpoint persisted on exit")
	assert.NotZero(t, cp.EventID)
	require.NoError(t, store.Close())

	out, stop = runWatch(t, "-format", "json", root)
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "history_replay_done")
	}, 10*time.Second, 10*time.Millisecond, "second run resumes from the checkpoint")
	require.NoError(t, stop())
}

func TestWatchCommandIgnore(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	roots, err := resolveRoots([]string{root})
	require.NoError(t, err)
	skipped := filepath.Join(roots[0], "scratch.swp")
	kept := filepath.Join(roots[0], "kept.txt")

	out, stop := runWatch(t, "-format", "json", "-since", "now", "-latency", "10ms", "-ignore", "*.swp", root)

	require.NoError(t, os.WriteFile(skipped, []byte("x"), 0600))
	require.NoError(t, os.WriteFile(kept, []byte("x"), 0600))
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), kept)
	}, 10*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	assert.NotContains(t, out.String(), skipped)
}

func TestWatchCommandInvalidIgnore(t *testing.T) {
	isolate(t)

	cmd, err := parseWatchFlags("", []string{"-ignore", "[unclosed", t.TempDir()})
	require.NoError(t, err)
	cmd.out = &bytes.Buffer{}

	assert.ErrorIs(t, cmd.execute(context.Background()), config.ErrInvalidIgnorePattern)
}

func TestWatchCommandNoPaths(t *testing.T) {
	isolate(t)

	cmd, err := parseWatchFlags("", nil)
	require.NoError(t, err)
	cmd.out = &bytes.Buffer{}

	assert.ErrorIs(t, cmd.execute(context.Background()), errNoPaths)
}

func TestWatchCommandMissingRoot(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("FSEvents accepts roots that do not exist yet")
	}
	isolate(t)

	cmd, err := parseWatchFlags("", []string{filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)
	cmd.out = &bytes.Buffer{}

	assert.ErrorIs(t, cmd.execute(context.Background()), watcher.ErrStreamStart)
}

func TestCheckpointCommands(t *testing.T) {
	db := isolate(t)
	root := t.TempDir()
	roots, err := resolveRoots([]string{root})
	require.NoError(t, err)

	store, err := checkpoint.Open(checkpoint.Config{DBPath: db}, logger.Noop())
	require.NoError(t, err)
	require.NoError(t, store.Save(&checkpoint.Checkpoint{
		Key:     checkpoint.KeyForRoots(roots),
		EventID: 4242,
		Roots:   roots,
	}))
	require.NoError(t, store.Close())

	var out bytes.Buffer
	require.NoError(t, run([]string{"checkpoint", "list", "-format", "json"}, &out))
	var listed []checkpoint.Checkpoint
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, uint64(4242), listed[0].EventID)

	out.Reset()
	require.NoError(t, run([]string{"checkpoint", "show", "-format", "simple", root}, &out))
	assert.Contains(t, out.String(), "event 4242")

	out.Reset()
	require.NoError(t, run([]string{"checkpoint", "reset", root}, &out))
	assert.Equal(t, "Deleted 1 checkpoint(s)\n", out.String())

	out.Reset()
	require.NoError(t, run([]string{"checkpoint", "show", root}, &out))
	assert.Contains(t, out.String(), "No checkpoint stored")

	assert.Error(t, run([]string{"checkpoint", "reset"}, &out))
	assert.Error(t, run([]string{"checkpoint", "frob"}, &out))
}

func TestConfigCommands(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "fswatch.yaml")

	var out bytes.Buffer
	require.NoError(t, run([]string{"config", "reset", "-output", path}, &out))
	assert.Contains(t, out.String(), path)

	out.Reset()
	require.NoError(t, run([]string{"-config", path, "config", "show"}, &out))
	assert.Contains(t, out.String(), "# Source: "+path)
	assert.Contains(t, out.String(), "queue_capacity: 1024")

	out.Reset()
	require.NoError(t, run([]string{"-config", path, "config", "path"}, &out))
	assert.Contains(t, out.String(), "[found]")

	cmd := &configCommand{out: &out, in: strings.NewReader("n\n")}
	out.Reset()
	require.NoError(t, cmd.Execute([]string{"reset", "-output", path}))
	assert.Contains(t, out.String(), "Reset cancelled.")
}
