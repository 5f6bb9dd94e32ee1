package watcher

import (
	"errors"
	"sync"
)

// fakeBackend records every native call in order.
type fakeBackend struct {
	mu        sync.Mutex
	calls     []string
	createErr error
	queueErr  error
	startErr  error
	streams   []*fakeStream
	queues    []*fakeQueue
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) count(call string) int {
	n := 0
	for _, c := range b.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (b *fakeBackend) newQueue(label string) (queueImpl, error) {
	if b.queueErr != nil {
		return nil, b.queueErr
	}
	b.record("queue.create")
	q := &fakeQueue{b: b, label: label}
	b.mu.Lock()
	b.queues = append(b.queues, q)
	b.mu.Unlock()
	return q, nil
}

func (b *fakeBackend) createStream(spec streamSpec) (nativeStream, error) {
	if b.createErr != nil {
		return nil, b.createErr
	}
	b.record("create")
	s := &fakeStream{b: b, spec: spec}
	b.mu.Lock()
	b.streams = append(b.streams, s)
	b.mu.Unlock()
	return s, nil
}

// last returns the most recently created stream.
func (b *fakeBackend) last() *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

// fire delivers a batch the way the native callback would.
func (b *fakeBackend) fire(paths []string, flags []uint32, ids []uint64) {
	dispatchCallback(b.last().spec.info, rawBatch{
		paths: stringArray(paths),
		flags: flags,
		ids:   ids,
	})
}

type fakeQueue struct {
	b     *fakeBackend
	label string
}

func (q *fakeQueue) release() {
	q.b.record("queue.release")
}

type fakeStream struct {
	b    *fakeBackend
	spec streamSpec
}

func (s *fakeStream) setQueue(q queueImpl) error {
	if _, ok := q.(*fakeQueue); !ok {
		return errors.New("foreign queue")
	}
	s.b.record("setQueue")
	return nil
}

func (s *fakeStream) unsetQueue() { s.b.record("unsetQueue") }

func (s *fakeStream) start() error {
	s.b.record("start")
	s.b.mu.Lock()
	err := s.b.startErr
	s.b.mu.Unlock()
	return err
}

func (s *fakeStream) stop()       { s.b.record("stop") }
func (s *fakeStream) flush()      { s.b.record("flush") }
func (s *fakeStream) invalidate() { s.b.record("invalidate") }
func (s *fakeStream) release()    { s.b.record("release") }

func (s *fakeStream) latestEventID() EventID { return 42 }

func (s *fakeStream) description() string { return "fake stream" }

func (s *fakeStream) pathsBeingWatched() ([]string, error) {
	return decodePathList(stringArray(s.spec.roots))
}

// countingRecorder counts Recorder calls. block, when set, holds
// BatchReceived until it is closed.
type countingRecorder struct {
	mu            sync.Mutex
	batches       int
	records       int
	delivered     map[EventKind]int
	dropped       int
	notifications map[NotificationKind]int

	enterOnce sync.Once
	entered   chan struct{}
	block     chan struct{}
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		delivered:     make(map[EventKind]int),
		notifications: make(map[NotificationKind]int),
	}
}

func (r *countingRecorder) BatchReceived(n int) {
	if r.entered != nil {
		r.enterOnce.Do(func() { close(r.entered) })
	}
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches++
	r.records += n
}

func (r *countingRecorder) EventDelivered(kind EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered[kind]++
}

func (r *countingRecorder) EventsDropped(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped += n
}

func (r *countingRecorder) NotificationRaised(kind NotificationKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[kind]++
}
