package watcher

import (
	"context"
	"sync"
)

// ring is a bounded FIFO that never blocks the producer. When full, push
// discards the oldest item. A single consumer may block in pop.
type ring[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   int
	n      int
	closed bool
	err    error

	// overflowing is set from the first discard until the next pop, so
	// one burst of drops is reported once.
	overflowing bool
	dropped     uint64

	// signal carries at most one pending wakeup.
	signal chan struct{}
	done   chan struct{}
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{
		buf:    make([]T, capacity),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push appends v. It reports whether an item was discarded to make room
// and whether that discard started a new overflow episode.
func (r *ring[T]) push(v T) (dropped bool, episodeStarted bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false, false
	}

	if r.n == len(r.buf) {
		var zero T
		r.buf[r.head] = zero
		r.head = (r.head + 1) % len(r.buf)
		r.n--
		r.dropped++
		dropped = true
		if !r.overflowing {
			r.overflowing = true
			episodeStarted = true
		}
	}

	r.buf[(r.head+r.n)%len(r.buf)] = v
	r.n++
	r.mu.Unlock()

	r.wake()
	return dropped, episodeStarted
}

// droppedTotal returns the number of items discarded so far.
func (r *ring[T]) droppedTotal() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// tryPop removes the oldest item without blocking. When the ring is empty
// it returns ok=false and the terminal error, if the ring is closed.
func (r *ring[T]) tryPop() (v T, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n == 0 {
		if r.closed {
			return v, false, r.err
		}
		return v, false, nil
	}

	v = r.buf[r.head]
	var zero T
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	r.overflowing = false
	return v, true, nil
}

// pop blocks until an item is available, the ring is closed and drained,
// or ctx is done.
func (r *ring[T]) pop(ctx context.Context) (T, error) {
	for {
		v, ok, err := r.tryPop()
		if ok {
			return v, nil
		}
		if err != nil {
			return v, err
		}

		select {
		case <-r.signal:
		case <-r.done:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// close terminates the ring. Buffered items remain poppable; afterwards pop
// returns err. Only the first close has an effect.
func (r *ring[T]) close(err error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.err = err
	r.mu.Unlock()

	close(r.done)
}

// len returns the number of buffered items.
func (r *ring[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func (r *ring[T]) wake() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}
