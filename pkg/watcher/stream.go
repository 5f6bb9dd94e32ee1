package watcher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xmhha/fsevent-watcher/pkg/logger"
)

// StreamState is the lifecycle position of an EventStream. Transitions
// only move forward.
type StreamState int32

// Stream states.
const (
	StateCreated StreamState = iota + 1
	StateStarted
	StateStopped
	StateInvalidated
	StateReleased
)

// String returns a human-readable state name.
func (s StreamState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateInvalidated:
		return "invalidated"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// streamSpec is everything the backend needs to create a native stream.
type streamSpec struct {
	roots    []string
	excluded []string
	since    EventID
	latency  time.Duration
	flags    CreateFlags
	info     uintptr
}

// backend creates native streams and worker queues.
type backend interface {
	newQueue(label string) (queueImpl, error)
	createStream(spec streamSpec) (nativeStream, error)
}

// queueImpl is a native worker queue.
type queueImpl interface {
	release()
}

// nativeStream is the set of native calls the lifecycle drives. Methods
// are only called from EventStream under its mutex, in a legal order.
type nativeStream interface {
	setQueue(q queueImpl) error
	unsetQueue()
	start() error
	stop()
	flush()
	invalidate()
	release()
	latestEventID() EventID
	description() string
	pathsBeingWatched() ([]string, error)
}

// DispatchQueue is the worker queue a stream delivers on.
type DispatchQueue struct {
	mu       sync.Mutex
	impl     queueImpl
	label    string
	released bool
}

// NewDispatchQueue creates a serial worker queue.
func NewDispatchQueue(label string) (*DispatchQueue, error) {
	return newDispatchQueue(defaultBackend(), label)
}

func newDispatchQueue(be backend, label string) (*DispatchQueue, error) {
	if label == "" {
		label = defaultQueueLabel
	}
	impl, err := be.newQueue(label)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch queue %q: %w", label, err)
	}
	return &DispatchQueue{impl: impl, label: label}, nil
}

// Label returns the queue label.
func (q *DispatchQueue) Label() string {
	return q.label
}

// Release drops this reference to the queue. A stream bound to it keeps
// working until it is shut down. Safe to call more than once.
func (q *DispatchQueue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.released {
		return
	}
	q.released = true
	q.impl.release()
}

func (q *DispatchQueue) usable() (queueImpl, bool) {
	if q == nil {
		return nil, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.impl, !q.released && q.impl != nil
}

// EventStream owns one native stream from creation to release.
//
// The only teardown path is Shutdown, which may be called from any state
// and runs the native stop, invalidate and release calls exactly once each.
// All methods are safe for concurrent use.
type EventStream struct {
	mu    sync.Mutex
	state atomic.Int32

	id     uintptr
	ctx    *streamContext
	native nativeStream
	queue  *DispatchQueue

	roots []string
	opts  Options
	log   logger.Logger

	fatalHook atomic.Pointer[func(error)]
}

// CreateStream validates roots and opts and creates a native stream in
// the created state. Invalid input fails with ErrConfig before anything is
// allocated; a native failure returns ErrStreamCreate.
func CreateStream(roots []string, opts Options, log logger.Logger) (*EventStream, error) {
	return createStream(defaultBackend(), roots, opts, log)
}

func createStream(be backend, roots []string, opts Options, log logger.Logger) (*EventStream, error) {
	if log == nil {
		log = logger.Noop()
	}

	roots, err := normalizeRoots(roots)
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	excluded, err := NewExclusionList(opts.ExcludedPaths...)
	if err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	opts.ExcludedPaths = excluded.Paths()

	s := &EventStream{
		roots: roots,
		opts:  opts,
	}
	b := newBridge(opts, log.With("component", "bridge"))
	b.onFatal = s.onFatal
	s.ctx = &streamContext{bridge: b}
	s.id = streams.add(s.ctx)
	s.log = log.With("component", "stream", "stream", s.id)

	native, err := be.createStream(streamSpec{
		roots:    roots,
		excluded: opts.ExcludedPaths,
		since:    opts.since(),
		latency:  opts.Latency,
		flags:    opts.CreateFlags,
		info:     s.id,
	})
	if err != nil {
		streams.delete(s.id)
		return nil, fmt.Errorf("%w: %v", ErrStreamCreate, err)
	}

	s.native = native
	s.setState(StateCreated)
	s.log.Debug("stream created",
		"roots", roots,
		"excluded", opts.ExcludedPaths,
		"since", uint64(opts.since()),
		"latency", opts.Latency,
		"flags", opts.CreateFlags.String())

	return s, nil
}

// State returns the current lifecycle state.
func (s *EventStream) State() StreamState {
	return StreamState(s.state.Load())
}

func (s *EventStream) setState(st StreamState) {
	s.state.Store(int32(st))
}

// usable reports whether methods other than Shutdown may run. Callers
// hold s.mu.
func (s *EventStream) usable() error {
	switch st := s.State(); {
	case st == 0:
		return ErrNotCreated
	case st >= StateInvalidated:
		return ErrUseAfterShutdown
	}
	return nil
}

// Start binds the stream to q and begins delivery. It is only valid in the
// created state. On failure the stream is unbound again and stays created,
// so Start may be retried.
func (s *EventStream) Start(q *DispatchQueue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return err
	}
	if s.State() != StateCreated {
		return ErrAlreadyStarted
	}

	impl, ok := q.usable()
	if !ok {
		return fmt.Errorf("%w: dispatch queue is nil or released", ErrStreamStart)
	}
	if err := s.native.setQueue(impl); err != nil {
		return fmt.Errorf("%w: bind queue: %v", ErrStreamStart, err)
	}
	if err := s.native.start(); err != nil {
		s.native.unsetQueue()
		return fmt.Errorf("%w: %v", ErrStreamStart, err)
	}

	s.queue = q
	s.setState(StateStarted)
	s.log.Info("stream started", "roots", s.roots, "queue", q.Label())
	return nil
}

// Stop halts delivery. Stopping a stopped stream is a no-op; stopping a
// stream that was never started returns ErrNotStarted.
func (s *EventStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return err
	}

	switch s.State() {
	case StateStopped:
		return nil
	case StateCreated:
		return ErrNotStarted
	}

	s.native.stop()
	s.setState(StateStopped)
	s.log.Info("stream stopped")
	return nil
}

// Shutdown tears the stream down from any state: stop if started, then
// invalidate, wait for an in-flight callback, release, and drop the
// registry entry. Both sequences are closed. When Shutdown returns no
// callback is running and none will start. Calling it again is a no-op.
func (s *EventStream) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.State()
	switch {
	case st == 0:
		return ErrNotCreated
	case st == StateReleased:
		return nil
	}

	if st == StateStarted {
		s.native.stop()
		s.setState(StateStopped)
	}
	if s.State() < StateInvalidated {
		s.native.invalidate()
		s.setState(StateInvalidated)
	}

	s.ctx.gate.close()

	s.native.release()
	s.setState(StateReleased)
	streams.delete(s.id)

	s.ctx.bridge.close(ErrSourceClosed)
	s.log.Info("stream shut down", "last_event_id", uint64(s.LastEventID()))
	return nil
}

// Flush synchronously delivers events the native layer is still holding
// back for coalescing. Only valid while started.
func (s *EventStream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return err
	}
	if s.State() != StateStarted {
		return ErrNotStarted
	}
	s.native.flush()
	return nil
}

// LatestEventID returns the native layer's newest event ID for this stream.
func (s *EventStream) LatestEventID() (EventID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return 0, err
	}
	return s.native.latestEventID(), nil
}

// Description returns the native layer's debug description of the stream.
func (s *EventStream) Description() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return "", err
	}
	return s.native.description(), nil
}

// PathsBeingWatched returns the roots as the native layer reports them.
func (s *EventStream) PathsBeingWatched() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return nil, err
	}
	return s.native.pathsBeingWatched()
}

// Roots returns the validated root paths the stream was created with.
func (s *EventStream) Roots() []string {
	return append([]string(nil), s.roots...)
}

// LastEventID returns the newest event ID delivered to the consumer side.
// Persist it and pass it back as Options.SinceEventID to resume.
func (s *EventStream) LastEventID() EventID {
	if s.ctx == nil {
		return 0
	}
	return EventID(s.ctx.bridge.lastID.Load())
}

// Err returns the terminal delivery error, if one occurred.
func (s *EventStream) Err() error {
	if s.ctx == nil {
		return nil
	}
	return s.ctx.bridge.fatalErr()
}

// Source returns the consumer side of the stream.
func (s *EventStream) Source() *Source {
	return &Source{
		Events:        &Sequence[Event]{r: s.ctx.bridge.events},
		Notifications: &Sequence[Notification]{r: s.ctx.bridge.notes},
	}
}

// setFatalHandler replaces the reaction to a terminal delivery error.
// By default the stream shuts itself down.
func (s *EventStream) setFatalHandler(fn func(error)) {
	s.fatalHook.Store(&fn)
}

// onFatal runs on the worker queue, so the teardown it triggers must not
// run inline: Shutdown waits for the very callback that is calling it.
func (s *EventStream) onFatal(err error) {
	if fn := s.fatalHook.Load(); fn != nil {
		(*fn)(err)
		return
	}
	go func() {
		_ = s.Shutdown()
	}()
}
