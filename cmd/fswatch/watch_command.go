package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/0xmhha/fsevent-watcher/pkg/checkpoint"
	"github.com/0xmhha/fsevent-watcher/pkg/config"
	"github.com/0xmhha/fsevent-watcher/pkg/display"
	"github.com/0xmhha/fsevent-watcher/pkg/filter"
	"github.com/0xmhha/fsevent-watcher/pkg/logger"
	"github.com/0xmhha/fsevent-watcher/pkg/metrics"
	"github.com/0xmhha/fsevent-watcher/pkg/watcher"
)

// errNoPaths is returned when neither the command line nor the
// configuration names a root to watch.
var errNoPaths = errors.New("no paths to watch")

// Start points accepted by -since besides a numeric event ID.
const (
	sinceNow        = "now"
	sinceCheckpoint = "checkpoint"
)

// watchCommand streams filesystem changes.
type watchCommand struct {
	configPath  string
	paths       []string
	format      string
	since       string
	latency     *time.Duration
	exclude     []string
	ignore      []string
	showFlags   bool
	showIDs     bool
	metricsAddr string

	out io.Writer

	// started, when set, is called once the stream is running.
	started func(h *watcher.Handle)
}

// parseWatchFlags parses the watch command line.
func parseWatchFlags(configPath string, args []string) (*watchCommand, error) {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	format := fs.String("format", "", "output format (table, json, simple)")
	since := fs.String("since", "", `start point: "now", "checkpoint" or an event ID`)
	latency := fs.Duration("latency", 0, "coalescing window (e.g., 50ms, 1s)")
	exclude := fs.String("exclude", "", "comma-separated subtrees the stream skips (at most 8)")
	ignore := fs.String("ignore", "", "comma-separated glob patterns dropped from output")
	showFlags := fs.Bool("flags", false, "show decoded flags with each event")
	showIDs := fs.Bool("ids", false, "show event IDs")
	metricsAddr := fs.String("metrics", "", "serve Prometheus metrics on this address")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *format != "" {
		if _, err := display.ParseFormat(*format); err != nil {
			return nil, err
		}
	}

	if err := validateSince(*since); err != nil {
		return nil, err
	}

	cmd := &watchCommand{
		configPath:  configPath,
		paths:       fs.Args(),
		format:      *format,
		since:       *since,
		showFlags:   *showFlags,
		showIDs:     *showIDs,
		metricsAddr: *metricsAddr,
		out:         os.Stdout,
	}

	cmd.exclude = splitList(*exclude)
	cmd.ignore = splitList(*ignore)

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "latency" {
			cmd.latency = latency
		}
	})

	return cmd, nil
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validateSince(since string) error {
	switch since {
	case "", sinceNow, sinceCheckpoint:
		return nil
	}
	if _, err := strconv.ParseUint(since, 0, 64); err != nil {
		return fmt.Errorf("invalid -since value %q: want now, checkpoint or an event ID", since)
	}
	return nil
}

// Execute runs the watch command until SIGINT, SIGTERM or a terminal
// stream error.
func (c *watchCommand) Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return c.execute(ctx)
}

func (c *watchCommand) execute(ctx context.Context) error {
	cfg, err := config.NewLoader(c.configPath).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c.apply(cfg)

	if len(cfg.Watch.Paths) == 0 {
		return errNoPaths
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	opts, err := cfg.Watch.Options()
	if err != nil {
		return fmt.Errorf("invalid watch options: %w", err)
	}

	ignore, err := filter.New(cfg.Watch.Ignore)
	if err != nil {
		return err
	}

	roots, err := resolveRoots(cfg.Watch.Paths)
	if err != nil {
		return err
	}

	store, err := checkpoint.Open(checkpoint.Config{DBPath: cfg.Storage.DBPath}, log)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close checkpoint store", "error", err)
		}
	}()

	key := checkpoint.KeyForRoots(roots)
	if err := c.resolveStart(cfg, store, key, &opts, log); err != nil {
		return err
	}

	collector := metrics.New()
	opts.Recorder = collector

	if cfg.Metrics.Addr != "" {
		shutdown, err := serveMetrics(cfg.Metrics.Addr, collector, log)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	h, src, err := watcher.Watch(roots, opts, log)
	if err != nil {
		return fmt.Errorf("failed to start watch: %w", err)
	}
	defer func() {
		if err := h.Close(); err != nil {
			log.Error("failed to close watch", "error", err)
		}
	}()

	log.Info("watching", "roots", roots, "resume", opts.Resume, "since", uint64(opts.SinceEventID))

	tracker := &progressTracker{
		store:     store,
		collector: collector,
		key:       key,
		roots:     roots,
		log:       log,
	}
	defer tracker.save()

	if c.started != nil {
		c.started(h)
	}

	formatter := display.New(display.Config{
		Format:    c.resolveFormat(cfg.Output.Format),
		ShowFlags: cfg.Output.ShowFlags,
		ShowIDs:   cfg.Output.ShowIDs,
		Compact:   true,
	})

	p := &pump{
		src:       src,
		formatter: formatter,
		ignore:    ignore,
		tracker:   tracker,
		collector: collector,
		out:       &lockedWriter{w: c.out},
		interval:  cfg.Watch.CheckpointInterval,
		log:       log,
	}
	return p.run(ctx)
}

// apply copies command-line overrides into cfg.
func (c *watchCommand) apply(cfg *config.Config) {
	if len(c.paths) > 0 {
		cfg.Watch.Paths = c.paths
	}
	if len(c.exclude) > 0 {
		cfg.Watch.Exclude = c.exclude
	}
	if len(c.ignore) > 0 {
		cfg.Watch.Ignore = c.ignore
	}
	if c.latency != nil {
		cfg.Watch.Latency = *c.latency
	}
	if c.format != "" {
		cfg.Output.Format = c.format
	}
	if c.showFlags {
		cfg.Output.ShowFlags = true
	}
	if c.showIDs {
		cfg.Output.ShowIDs = true
	}
	if c.metricsAddr != "" {
		cfg.Metrics.Addr = c.metricsAddr
	}
}

// resolveStart decides where the stream starts: an explicit event ID,
// now, or the stored checkpoint for these roots.
func (c *watchCommand) resolveStart(cfg *config.Config, store checkpoint.Store, key string, opts *watcher.Options, log logger.Logger) error {
	switch c.since {
	case sinceNow:
		return nil
	case "", sinceCheckpoint:
		if c.since == "" && !cfg.Watch.Resume {
			return nil
		}
	default:
		id, err := strconv.ParseUint(c.since, 0, 64)
		if err != nil {
			return err
		}
		if watcher.EventID(id) == watcher.SinceNow {
			return nil
		}
		opts.Resume = true
		opts.SinceEventID = watcher.EventID(id)
		return nil
	}

	cp, err := store.Get(key)
	if errors.Is(err, checkpoint.ErrNotFound) {
		log.Debug("no checkpoint, starting from now")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}

	opts.Resume = true
	opts.SinceEventID = watcher.EventID(cp.EventID)
	log.Info("resuming from checkpoint", "event_id", cp.EventID, "updated_at", cp.UpdatedAt)
	return nil
}

// resolveFormat picks the output format, defaulting to a table on a
// terminal and JSON lines otherwise.
func (c *watchCommand) resolveFormat(configured string) display.Format {
	if configured != "" {
		return display.Format(configured)
	}
	if f, ok := c.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return display.FormatTable
	}
	return display.FormatJSON
}

// pump copies events and notifications to the output and checkpoints
// progress.
type pump struct {
	src       *watcher.Source
	formatter display.Formatter
	ignore    *filter.Filter
	tracker   *progressTracker
	collector *metrics.Collector
	out       io.Writer
	interval  time.Duration
	log       logger.Logger
}

// run drains both sequences until ctx ends or the source closes.
func (p *pump) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		defer cancel()
		errCh <- p.events(ctx)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		errCh <- p.notifications(ctx)
	}()

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tracker.save()
			}
		}
	}()

	wg.Wait()
	close(errCh)

	for err := range errCh {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		case errors.Is(err, watcher.ErrSourceClosed):
		default:
			return err
		}
	}
	return nil
}

func (p *pump) events(ctx context.Context) error {
	for {
		ev, err := p.src.Events.Next(ctx)
		if err != nil {
			return err
		}
		if p.ignore.Skip(ev) {
			p.collector.EventFiltered()
		} else if err := p.formatter.FormatEvent(p.out, ev); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
		p.tracker.observe(ev.ID)
	}
}

func (p *pump) notifications(ctx context.Context) error {
	for {
		n, err := p.src.Notifications.Next(ctx)
		if err != nil {
			return err
		}
		p.handle(n)
		if err := p.formatter.FormatNotification(p.out, n); err != nil {
			return fmt.Errorf("failed to write notification: %w", err)
		}
	}
}

func (p *pump) handle(n watcher.Notification) {
	switch n.Kind {
	case watcher.EventIDsWrapped:
		p.log.Warn("event IDs wrapped, checkpoint reset", "event_id", uint64(n.ID))
		p.tracker.wrap()
	case watcher.HistoryReplayDone:
		p.log.Info("history replay complete", "event_id", uint64(n.ID))
	case watcher.MustRescan:
		p.log.Warn("rescan required", "path", n.Path)
	case watcher.RootChanged:
		p.log.Warn("watched root changed", "path", n.Path)
	case watcher.EventsDropped:
		p.log.Warn("events dropped", "count", n.Count, "event_id", uint64(n.ID))
	}
}

// resolveRoots makes paths absolute and resolves symlinks so they match
// the paths the stream reports.
func resolveRoots(paths []string) ([]string, error) {
	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(expandHome(p))
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", p, err)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		roots = append(roots, abs)
	}
	return roots, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// serveMetrics starts the /metrics endpoint and returns a function that
// stops it.
func serveMetrics(addr string, collector *metrics.Collector, log logger.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	log.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("failed to stop metrics server", "error", err)
		}
	}, nil
}

// progressTracker remembers the newest event ID the consumer has written
// and persists it as the resume checkpoint. Only events that went through
// the event pump move it; notification IDs can run ahead of events still
// queued for output.
type progressTracker struct {
	store     checkpoint.Store
	collector *metrics.Collector
	key       string
	roots     []string
	log       logger.Logger

	mu      sync.Mutex
	last    uint64
	wrapped bool
	saved   uint64
}

// observe records an event ID the consumer has handled. After a wrap the
// first ID below the current one starts the new sequence.
func (t *progressTracker) observe(id watcher.EventID) {
	if id == 0 || id == watcher.SinceNow {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.wrapped && uint64(id) < t.last:
		t.last = uint64(id)
		t.wrapped = false
	case uint64(id) > t.last:
		t.last = uint64(id)
	}
}

// wrap marks that event IDs restarted. Events from before the wrap may
// still be queued, so the checkpoint moves back only when the event pump
// reaches the first post-wrap ID.
func (t *progressTracker) wrap() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wrapped = true
}

// save writes the checkpoint when it moved since the last save.
func (t *progressTracker) save() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.last
	if id == 0 || id == t.saved {
		return
	}

	if err := t.store.Save(&checkpoint.Checkpoint{
		Key:     t.key,
		EventID: id,
		Roots:   t.roots,
	}); err != nil {
		t.log.Error("failed to save checkpoint", "error", err, "event_id", id)
		return
	}

	t.saved = id
	t.collector.CheckpointSaved(watcher.EventID(id))
	t.log.Debug("checkpoint saved", "event_id", id)
}

// lockedWriter serializes writes from the event and notification pumps.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
