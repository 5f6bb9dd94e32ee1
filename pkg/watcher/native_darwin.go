//go:build darwin && cgo

package watcher

/*
#cgo LDFLAGS: -framework CoreServices
#include <CoreServices/CoreServices.h>
#include <dispatch/dispatch.h>
#include <stdint.h>
#include <stdlib.h>

extern void goStreamCallback(uintptr_t info, size_t n, void *paths, FSEventStreamEventFlags *flags, FSEventStreamEventId *ids);
extern void goRetainInfo(uintptr_t info);
extern void goReleaseInfo(uintptr_t info);

static void streamCallback(
	ConstFSEventStreamRef ref,
	void *info,
	size_t n,
	void *paths,
	const FSEventStreamEventFlags flags[],
	const FSEventStreamEventId ids[]
) {
	goStreamCallback((uintptr_t)info, n, paths, (FSEventStreamEventFlags *)flags, (FSEventStreamEventId *)ids);
}

static const void *retainInfo(const void *info) {
	goRetainInfo((uintptr_t)info);
	return info;
}

static void releaseInfo(const void *info) {
	goReleaseInfo((uintptr_t)info);
}

static FSEventStreamRef createStream(
	CFArrayRef paths,
	uintptr_t info,
	FSEventStreamEventId since,
	double latency,
	FSEventStreamCreateFlags flags
) {
	FSEventStreamContext ctx = {0, (void *)info, retainInfo, releaseInfo, NULL};
	return FSEventStreamCreate(NULL, streamCallback, &ctx, paths, since, latency, flags);
}

static FSEventStreamEventId latestEventId(FSEventStreamRef s) {
	return FSEventStreamGetLatestEventId(s);
}

static CFStringRef copyDescription(FSEventStreamRef s) {
	return FSEventStreamCopyDescription(s);
}

static CFArrayRef copyPathsBeingWatched(FSEventStreamRef s) {
	return FSEventStreamCopyPathsBeingWatched(s);
}

static dispatch_queue_t createQueue(const char *label) {
	return dispatch_queue_create(label, DISPATCH_QUEUE_SERIAL);
}

static void releaseQueue(dispatch_queue_t q) {
	dispatch_release(q);
}

static void noop(void *ctx) {}

// drainQueue returns once every block queued before it has run.
static void drainQueue(dispatch_queue_t q) {
	dispatch_sync_f(q, NULL, noop);
}
*/
import "C"

import (
	"errors"
	"unsafe"
)

type darwinBackend struct{}

func defaultBackend() backend {
	return darwinBackend{}
}

type darwinQueue struct {
	q C.dispatch_queue_t
}

func (q *darwinQueue) release() {
	C.releaseQueue(q.q)
}

func (darwinBackend) newQueue(label string) (queueImpl, error) {
	cl := C.CString(label)
	defer C.free(unsafe.Pointer(cl))

	q := C.createQueue(cl)
	if q == nil {
		return nil, errors.New("dispatch_queue_create returned NULL")
	}
	return &darwinQueue{q: q}, nil
}

func (darwinBackend) createStream(spec streamSpec) (nativeStream, error) {
	roots, err := encodePathArray(spec.roots)
	if err != nil {
		return nil, err
	}
	defer cfRelease(C.CFTypeRef(roots))

	ref := C.createStream(
		roots,
		C.uintptr_t(spec.info),
		C.FSEventStreamEventId(spec.since),
		C.double(latencySeconds(spec.latency)),
		C.FSEventStreamCreateFlags(spec.flags),
	)
	if ref == nil {
		return nil, errors.New("FSEventStreamCreate returned NULL")
	}

	s := &darwinStream{ref: ref}
	if len(spec.excluded) > 0 {
		excl, err := encodePathArray(spec.excluded)
		if err != nil {
			s.release()
			return nil, err
		}
		ok := C.FSEventStreamSetExclusionPaths(ref, excl)
		cfRelease(C.CFTypeRef(excl))
		if ok == 0 {
			s.release()
			return nil, errors.New("FSEventStreamSetExclusionPaths rejected the exclusion list")
		}
	}
	return s, nil
}

type darwinStream struct {
	ref   C.FSEventStreamRef
	queue *darwinQueue
}

func (s *darwinStream) setQueue(q queueImpl) error {
	dq, ok := q.(*darwinQueue)
	if !ok || dq.q == nil {
		return errors.New("not a dispatch queue")
	}
	C.FSEventStreamSetDispatchQueue(s.ref, dq.q)
	s.queue = dq
	return nil
}

func (s *darwinStream) unsetQueue() {
	C.FSEventStreamSetDispatchQueue(s.ref, nil)
	s.queue = nil
}

func (s *darwinStream) start() error {
	if C.FSEventStreamStart(s.ref) == 0 {
		return errors.New("FSEventStreamStart failed")
	}
	return nil
}

func (s *darwinStream) stop() {
	C.FSEventStreamStop(s.ref)
}

func (s *darwinStream) flush() {
	C.FSEventStreamFlushSync(s.ref)
}

// invalidate unschedules the stream, then waits for blocks already queued
// on its dispatch queue.
func (s *darwinStream) invalidate() {
	// FSEventStreamInvalidate requires a scheduled stream; one that never
	// got a queue has nothing to unschedule and goes straight to release.
	if s.queue == nil {
		return
	}
	C.FSEventStreamInvalidate(s.ref)
	C.drainQueue(s.queue.q)
}

func (s *darwinStream) release() {
	C.FSEventStreamRelease(s.ref)
	s.ref = nil
}

func (s *darwinStream) latestEventID() EventID {
	return EventID(C.latestEventId(s.ref))
}

func (s *darwinStream) description() string {
	ref := C.copyDescription(s.ref)
	defer cfRelease(C.CFTypeRef(ref))

	desc, err := decodeCFString(ref)
	if err != nil {
		return ""
	}
	return desc
}

func (s *darwinStream) pathsBeingWatched() ([]string, error) {
	arr := C.copyPathsBeingWatched(s.ref)
	defer cfRelease(C.CFTypeRef(arr))
	return decodePathList(newCFPathArray(arr))
}
