//go:build !darwin || !cgo

package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// portableBackend emulates the native stream with fsnotify. It synthesizes
// the same flag words, so everything above the backend is shared. History
// replay is not available: a resumed stream reports HistoryReplayDone
// immediately.
type portableBackend struct{}

func defaultBackend() backend {
	return portableBackend{}
}

func (portableBackend) newQueue(label string) (queueImpl, error) {
	return newPortableQueue(label), nil
}

func (portableBackend) createStream(spec streamSpec) (nativeStream, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	excluded, err := NewExclusionList(spec.excluded...)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}

	s := &portableStream{
		spec:     spec,
		excluded: excluded,
		fsw:      fsw,
		flushReq: make(chan chan struct{}),
		stopCh:   make(chan struct{}),
	}
	if spec.since != SinceNow {
		s.nextID.Store(uint64(spec.since))
	}
	return s, nil
}

// portableQueue is a serial worker: one goroutine runs submitted
// functions in order. It is reference counted like a dispatch queue; the
// worker exits when the last reference is released.
type portableQueue struct {
	label string

	mu     sync.Mutex
	refs   int
	closed bool
	work   chan func()
	done   chan struct{}
}

func newPortableQueue(label string) *portableQueue {
	q := &portableQueue{
		label: label,
		refs:  1,
		work:  make(chan func(), 16),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *portableQueue) run() {
	defer close(q.done)
	for fn := range q.work {
		fn()
	}
}

// submit queues fn. It reports false once the queue is released.
func (q *portableQueue) submit(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.work <- fn
	return true
}

// drain returns once every function queued before it has run.
func (q *portableQueue) drain() {
	barrier := make(chan struct{})
	if !q.submit(func() { close(barrier) }) {
		<-q.done
		return
	}
	<-barrier
}

// retain takes a reference. It reports false once the queue has shut down.
func (q *portableQueue) retain() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.refs++
	return true
}

// release drops a reference and stops the worker after the last one.
func (q *portableQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.refs--
	if q.refs > 0 {
		return
	}
	q.closed = true
	close(q.work)
}

// portableRecord is one synthesized native record.
type portableRecord struct {
	path  string
	flags EventFlag
	id    uint64
}

type portableStream struct {
	spec     streamSpec
	excluded ExclusionList
	fsw      *fsnotify.Watcher

	queue  *portableQueue
	nextID atomic.Uint64

	closeOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	flushReq  chan chan struct{}
	wg        sync.WaitGroup

	// Owned by the run goroutine.
	pending     []portableRecord
	lastRename  string
	windowTimer *time.Timer
	windowC     <-chan time.Time
}

func (s *portableStream) setQueue(q queueImpl) error {
	pq, ok := q.(*portableQueue)
	if !ok {
		return errors.New("not a portable worker queue")
	}
	if !pq.retain() {
		return errors.New("portable worker queue released")
	}
	s.queue = pq
	return nil
}

func (s *portableStream) unsetQueue() {
	if s.queue != nil {
		s.queue.release()
		s.queue = nil
	}
}

func (s *portableStream) start() error {
	for _, root := range s.spec.roots {
		if err := s.addTree(root); err != nil {
			return err
		}
	}

	if s.spec.since != SinceNow {
		s.pending = append(s.pending, portableRecord{
			path:  s.spec.roots[0],
			flags: HistoryDone,
			id:    uint64(s.spec.since),
		})
		s.deliverPending()
	}

	s.wg.Add(1)
	go s.run()
	return nil
}

// addTree watches dir and every directory below it that is not excluded.
func (s *portableStream) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("failed to walk %s: %w", dir, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if s.excluded.Contains(path) {
			return filepath.SkipDir
		}
		if err := s.fsw.Add(path); err != nil {
			if path == dir {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
		return nil
	})
}

func (s *portableStream) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return

		case ev, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			s.handle(ev)
			s.schedule()

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				for _, root := range s.spec.roots {
					s.pending = append(s.pending, portableRecord{
						path:  root,
						flags: KernelDropped | MustScanSubDirs,
						id:    s.nextID.Add(1),
					})
				}
				s.deliverPending()
			}

		case <-s.windowC:
			s.windowTimer = nil
			s.windowC = nil
			s.deliverPending()

		case done := <-s.flushReq:
			s.deliverPending()
			close(done)
		}
	}
}

// schedule applies the latency window: immediate delivery with zero
// latency, otherwise batch until the window closes. With NoDefer the
// first record after a quiet period goes out at once and opens a window.
func (s *portableStream) schedule() {
	if len(s.pending) == 0 {
		return
	}
	if s.spec.latency <= 0 {
		s.deliverPending()
		return
	}
	if s.windowTimer != nil {
		return
	}
	if s.spec.flags&CreateFlagNoDefer != 0 {
		s.deliverPending()
	}
	s.windowTimer = time.NewTimer(s.spec.latency)
	s.windowC = s.windowTimer.C
}

func (s *portableStream) handle(ev fsnotify.Event) {
	if s.excluded.Contains(ev.Name) {
		return
	}

	if s.isRoot(ev.Name) && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) &&
		s.spec.flags&CreateFlagWatchRoot != 0 {
		s.pending = append(s.pending, portableRecord{path: ev.Name, flags: RootChangedFlag})
		return
	}

	var flags EventFlag
	if ev.Has(fsnotify.Create) {
		// A rename inside the tree arrives as Rename(old) then Create(new).
		if s.lastRename != "" {
			flags |= ItemRenamed
		} else {
			flags |= ItemCreated
		}
	}
	if ev.Has(fsnotify.Write) {
		flags |= ItemModified
	}
	if ev.Has(fsnotify.Remove) {
		flags |= ItemRemoved
	}
	if ev.Has(fsnotify.Rename) {
		flags |= ItemRenamed
	}
	if ev.Has(fsnotify.Chmod) {
		flags |= ItemInodeMetaMod
	}

	if ev.Has(fsnotify.Rename) {
		s.lastRename = ev.Name
	} else {
		s.lastRename = ""
	}

	if info, err := os.Lstat(ev.Name); err == nil {
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			flags |= ItemIsSymlink
		case info.IsDir():
			flags |= ItemIsDir
			if ev.Has(fsnotify.Create) {
				_ = s.addTree(ev.Name)
			}
		default:
			flags |= ItemIsFile
		}
	}

	path := ev.Name
	if s.spec.flags&CreateFlagFileEvents == 0 {
		path = filepath.Dir(ev.Name)
		flags = 0
	}

	s.pending = append(s.pending, portableRecord{
		path:  path,
		flags: flags,
		id:    s.nextID.Add(1),
	})
}

func (s *portableStream) isRoot(path string) bool {
	for _, r := range s.spec.roots {
		if strings.TrimSuffix(r, "/") == strings.TrimSuffix(path, "/") {
			return true
		}
	}
	return false
}

// deliverPending hands the pending records to the worker queue as one batch.
func (s *portableStream) deliverPending() {
	if len(s.pending) == 0 {
		return
	}
	records := s.pending
	s.pending = nil

	batch := rawBatch{
		paths: make(stringArray, len(records)),
		flags: make([]uint32, len(records)),
		ids:   make([]uint64, len(records)),
	}
	paths := batch.paths.(stringArray)
	for i, r := range records {
		paths[i] = r.path
		batch.flags[i] = uint32(r.flags)
		batch.ids[i] = r.id
	}

	info := s.spec.info
	if q := s.queue; q != nil {
		q.submit(func() { dispatchCallback(info, batch) })
	}
}

func (s *portableStream) stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		if s.windowTimer != nil {
			s.windowTimer.Stop()
		}
	})
}

// flush delivers pending records and waits until the worker ran them.
func (s *portableStream) flush() {
	done := make(chan struct{})
	select {
	case s.flushReq <- done:
		<-done
	case <-s.stopCh:
		return
	}
	if s.queue != nil {
		s.queue.drain()
	}
}

func (s *portableStream) invalidate() {
	s.closeWatcher()
	if s.queue != nil {
		s.queue.drain()
	}
}

func (s *portableStream) release() {
	s.closeWatcher()
	if s.queue != nil {
		s.queue.release()
	}
}

func (s *portableStream) closeWatcher() {
	s.closeOnce.Do(func() {
		_ = s.fsw.Close()
	})
}

func (s *portableStream) latestEventID() EventID {
	return EventID(s.nextID.Load())
}

func (s *portableStream) description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FSEventStream(portable) {\n")
	fmt.Fprintf(&b, "    paths = %s\n", strings.Join(s.spec.roots, ", "))
	fmt.Fprintf(&b, "    excluded = %s\n", strings.Join(s.excluded.Paths(), ", "))
	fmt.Fprintf(&b, "    latestEventId = %d\n", s.nextID.Load())
	fmt.Fprintf(&b, "    latency = %v\n", s.spec.latency)
	fmt.Fprintf(&b, "    flags = %s\n", s.spec.flags)
	b.WriteString("}")
	return b.String()
}

func (s *portableStream) pathsBeingWatched() ([]string, error) {
	return decodePathList(stringArray(s.spec.roots))
}
