package watcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/0xmhha/fsevent-watcher/pkg/logger"
)

// Sequence is a lazy, non-restartable stream of values produced by a
// watch. Once the watch ends, buffered values are still returned, then
// ErrSourceClosed or the terminal error.
type Sequence[T any] struct {
	r *ring[T]
}

// Next blocks until a value is available, the sequence ends, or ctx is done.
func (s *Sequence[T]) Next(ctx context.Context) (T, error) {
	return s.r.pop(ctx)
}

// TryNext returns the next value without blocking. ok is false when no
// value is buffered; err is non-nil once the sequence has ended.
func (s *Sequence[T]) TryNext() (v T, ok bool, err error) {
	return s.r.tryPop()
}

// Len returns the number of buffered values.
func (s *Sequence[T]) Len() int {
	return s.r.len()
}

// Source is the consumer side of a watch.
type Source struct {
	// Events yields one Event per native change record, in delivery order.
	Events *Sequence[Event]

	// Notifications yields structural signals such as MustRescan.
	Notifications *Sequence[Notification]
}

// Handle controls a running watch.
type Handle struct {
	stream *EventStream
	queue  *DispatchQueue
	log    logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// Watch creates a stream over roots, binds it to a new worker queue and
// starts it. If any step fails, everything acquired so far is torn down
// before the error is returned.
func Watch(roots []string, opts Options, log logger.Logger) (*Handle, *Source, error) {
	return watchWith(defaultBackend(), roots, opts, log)
}

func watchWith(be backend, roots []string, opts Options, log logger.Logger) (_ *Handle, _ *Source, err error) {
	if log == nil {
		log = logger.Noop()
	}

	stream, err := createStream(be, roots, opts, log)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil {
			_ = stream.Shutdown()
		}
	}()

	queue, err := newDispatchQueue(be, stream.opts.QueueLabel)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStreamStart, err)
	}
	defer func() {
		if err != nil {
			queue.Release()
		}
	}()

	h := &Handle{
		stream: stream,
		queue:  queue,
		log:    log.With("component", "watch"),
	}
	stream.setFatalHandler(h.fail)

	if err = stream.Start(queue); err != nil {
		return nil, nil, err
	}

	return h, stream.Source(), nil
}

// Close shuts the stream down, releases the worker queue and ends both
// sequences. Safe to call more than once and from any goroutine.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.stream.Shutdown()
		h.queue.Release()
		h.log.Debug("watch closed", "last_event_id", uint64(h.stream.LastEventID()))
	})
	return h.closeErr
}

// fail runs on the worker queue after a terminal error.
func (h *Handle) fail(err error) {
	h.log.Error("watch failed, shutting down", "error", err)
	go func() {
		_ = h.Close()
	}()
}

// Err returns the terminal error that ended the watch, if any.
func (h *Handle) Err() error {
	return h.stream.Err()
}

// LastEventID returns the newest event ID seen so far.
func (h *Handle) LastEventID() EventID {
	return h.stream.LastEventID()
}

// Stream returns the underlying stream for flushing and inspection.
func (h *Handle) Stream() *EventStream {
	return h.stream
}
