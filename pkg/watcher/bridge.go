package watcher

import (
	"sync"
	"sync/atomic"

	"github.com/0xmhha/fsevent-watcher/pkg/logger"
)

// rawBatch is one native callback invocation: three aligned arrays.
// paths is only valid for the duration of deliver.
type rawBatch struct {
	paths pathArray
	flags []uint32
	ids   []uint64
}

// bridge turns native batches into events and notifications. deliver runs
// on the stream's worker queue and never blocks on the consumer.
type bridge struct {
	log    logger.Logger
	rec    Recorder
	events *ring[Event]
	notes  *ring[Notification]

	lastID atomic.Uint64

	failOnce sync.Once
	failed   atomic.Bool
	errMu    sync.Mutex
	err      error

	// onFatal is called once, after both sequences were closed with the
	// terminal error. It must not block.
	onFatal func(error)
}

func newBridge(opts Options, log logger.Logger) *bridge {
	return &bridge{
		log:    log,
		rec:    opts.Recorder,
		events: newRing[Event](opts.QueueCapacity),
		notes:  newRing[Notification](opts.NotificationCapacity),
	}
}

// deliver processes one batch in order. Each record yields at most one
// Event and zero or more notifications; records are never merged.
func (b *bridge) deliver(batch rawBatch) {
	if b.failed.Load() {
		return
	}

	n := len(batch.flags)
	if len(batch.ids) < n {
		n = len(batch.ids)
	}
	switch {
	case batch.paths == nil:
		n = 0
	case batch.paths.Len() < n:
		n = batch.paths.Len()
	}
	b.rec.BatchReceived(n)

	for i := 0; i < n; i++ {
		path, err := decodePath(batch.paths, i)
		if err != nil {
			b.fail(err)
			return
		}

		flags := DecodeFlags(batch.flags[i])
		id := EventID(batch.ids[i])
		b.trackID(id, flags)

		for _, kind := range flags.notifications() {
			b.notify(Notification{Kind: kind, Path: path, ID: id})
		}

		if !flags.carriesEvent() {
			continue
		}

		b.push(Event{
			Paths: []string{path},
			Kind:  Classify(flags),
			ID:    id,
			Flags: flags,
		})
	}
}

func (b *bridge) push(ev Event) {
	dropped, episode := b.events.push(ev)
	b.rec.EventDelivered(ev.Kind)
	if !dropped {
		return
	}

	b.rec.EventsDropped(1)
	if episode {
		total := b.events.droppedTotal()
		b.log.Warn("event queue overflow, dropping oldest events",
			"capacity", len(b.events.buf),
			"dropped_total", total)
		b.notify(Notification{
			Kind:  EventsDropped,
			ID:    EventID(b.lastID.Load()),
			Count: total,
		})
	}
}

func (b *bridge) notify(n Notification) {
	if dropped, episode := b.notes.push(n); dropped && episode {
		b.log.Warn("notification queue overflow, dropping oldest notifications",
			"capacity", len(b.notes.buf))
	}
	b.rec.NotificationRaised(n.Kind)
	b.log.Debug("notification raised", "kind", n.Kind.String(), "path", n.Path, "id", uint64(n.ID))
}

// trackID records the newest event ID. Records without an ID (zero) do not
// move it; a wrap resets it to the wrapping record's ID.
func (b *bridge) trackID(id EventID, flags FlagSet) {
	if id == 0 {
		return
	}
	if flags.Has(EventIdsWrapped) {
		b.lastID.Store(uint64(id))
		return
	}
	for {
		cur := b.lastID.Load()
		if uint64(id) <= cur || b.lastID.CompareAndSwap(cur, uint64(id)) {
			return
		}
	}
}

// fail terminates both sequences with err and hands err to onFatal.
func (b *bridge) fail(err error) {
	b.failOnce.Do(func() {
		b.failed.Store(true)
		b.errMu.Lock()
		b.err = err
		b.errMu.Unlock()

		b.log.Error("terminal delivery error", "error", err)
		b.events.close(err)
		b.notes.close(err)
		if b.onFatal != nil {
			b.onFatal(err)
		}
	})
}

// close terminates both sequences without an error of its own. A terminal
// error recorded earlier wins.
func (b *bridge) close(err error) {
	b.events.close(err)
	b.notes.close(err)
}

// fatalErr returns the terminal error, if any.
func (b *bridge) fatalErr() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.err
}
