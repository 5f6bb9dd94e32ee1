package watcher

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// callbackGate lets shutdown wait for an in-flight callback and reject
// every later one.
type callbackGate struct {
	mu     sync.RWMutex
	closed bool
}

// enter reports whether a callback may run. A true result must be paired
// with exit.
func (g *callbackGate) enter() bool {
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return false
	}
	return true
}

func (g *callbackGate) exit() {
	g.mu.RUnlock()
}

// close blocks until running callbacks have exited.
func (g *callbackGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// streamContext is the record behind the native info pointer. The native
// layer only ever sees its registry key.
type streamContext struct {
	gate   callbackGate
	bridge *bridge

	// refs mirrors the native retain/release calls on the info pointer.
	refs atomic.Int32
}

// streamRegistry maps info keys to contexts, so no Go pointer crosses
// into C.
type streamRegistry struct {
	m      *xsync.MapOf[uintptr, *streamContext]
	lastID atomic.Uintptr
}

var streams = &streamRegistry{m: xsync.NewMapOf[uintptr, *streamContext]()}

func (r *streamRegistry) add(c *streamContext) uintptr {
	id := r.lastID.Add(1)
	r.m.Store(id, c)
	return id
}

func (r *streamRegistry) get(id uintptr) *streamContext {
	c, _ := r.m.Load(id)
	return c
}

func (r *streamRegistry) delete(id uintptr) {
	r.m.Delete(id)
}

func (r *streamRegistry) len() int {
	return r.m.Size()
}

// dispatchCallback is the single entry point for native batches.
func dispatchCallback(info uintptr, batch rawBatch) {
	c := streams.get(info)
	if c == nil {
		return
	}
	if !c.gate.enter() {
		return
	}
	defer c.gate.exit()

	c.bridge.deliver(batch)
}

func retainInfo(info uintptr) {
	if c := streams.get(info); c != nil {
		c.refs.Add(1)
	}
}

func releaseInfo(info uintptr) {
	if c := streams.get(info); c != nil {
		c.refs.Add(-1)
	}
}
