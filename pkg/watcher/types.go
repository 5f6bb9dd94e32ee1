// Package watcher provides recursive filesystem change notification on top
// of the macOS FSEvents stream facility.
//
// A watch owns one native event stream end to end. The stream delivers
// batches of raw records (path, flag word, event ID) on a worker queue; each
// record is decoded into an Event with exactly one EventKind, or into an
// out-of-band Notification when it only carries a structural signal such as
// dropped events or a root change. Consumers drain both sequences at their
// own pace; delivery never blocks the worker.
//
// On platforms without FSEvents (or with cgo disabled) the same stream
// lifecycle and decoding run over fsnotify, which synthesizes equivalent
// flag words.
//
// Example usage:
//
//	h, src, err := watcher.Watch([]string{"/tmp/x"}, watcher.Options{
//	    Latency:       50 * time.Millisecond,
//	    ExcludedPaths: []string{"/tmp/x/.git"},
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close()
//
//	for {
//	    ev, err := src.Events.Next(ctx)
//	    if err != nil {
//	        break
//	    }
//	    fmt.Printf("%s %v\n", ev.Kind, ev.Paths)
//	}
package watcher

import "time"

// EventID identifies a record in the volume journal. IDs increase
// monotonically per stream until an EventIdsWrapped record is seen.
type EventID uint64

// SinceNow asks the stream to deliver only changes made after it starts.
const SinceNow EventID = 0xFFFFFFFFFFFFFFFF

// EventKind is the normalized classification of a change record.
type EventKind uint8

// Event kinds.
const (
	Created EventKind = iota + 1
	Deleted
	Updated
	Renamed
)

// String returns a human-readable kind name.
func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	case Updated:
		return "updated"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event is one normalized change record. Events are immutable once built
// and safe to share between goroutines.
type Event struct {
	// Paths holds the affected paths, never empty and without duplicates.
	Paths []string

	// Kind is the single classification derived from Flags.
	Kind EventKind

	// ID is the journal event ID of the record.
	ID EventID

	// Flags is the full decoded flag set, including metadata flags
	// such as ItemIsDir that do not affect Kind.
	Flags FlagSet
}

// Path returns the first affected path, or "" for an event without paths.
func (e Event) Path() string {
	if len(e.Paths) == 0 {
		return ""
	}
	return e.Paths[0]
}

// NotificationKind names a structural signal that is not a per-path change.
type NotificationKind uint8

// Notification kinds.
const (
	// MustRescan means the native layer coalesced changes below Path and
	// the consumer has to rescan that subtree to resynchronize.
	MustRescan NotificationKind = iota + 1

	// EventsDropped means events were lost, either in the kernel, in the
	// native user-space layer, or in this package's bounded queue.
	EventsDropped

	// HistoryReplayDone marks the end of historical events when the watch
	// was resumed from an earlier event ID.
	HistoryReplayDone

	// RootChanged means a watched root or one of its parents was moved
	// or deleted.
	RootChanged

	// VolumeMounted means a volume was mounted under a watched root.
	VolumeMounted

	// VolumeUnmounted means a volume was unmounted under a watched root.
	VolumeUnmounted

	// EventIDsWrapped means the journal ID space wrapped around; stored
	// resume IDs are no longer comparable and a full resync is required.
	EventIDsWrapped
)

// String returns a human-readable notification name.
func (k NotificationKind) String() string {
	switch k {
	case MustRescan:
		return "must_rescan"
	case EventsDropped:
		return "events_dropped"
	case HistoryReplayDone:
		return "history_replay_done"
	case RootChanged:
		return "root_changed"
	case VolumeMounted:
		return "volume_mounted"
	case VolumeUnmounted:
		return "volume_unmounted"
	case EventIDsWrapped:
		return "event_ids_wrapped"
	default:
		return "unknown"
	}
}

// Notification is an out-of-band structural signal.
type Notification struct {
	Kind NotificationKind

	// Path is the record path the signal arrived with. Empty for
	// notifications raised by this package rather than the native layer.
	Path string

	// ID is the event ID of the record that carried the signal, or of the
	// newest record seen when the signal was raised locally.
	ID EventID

	// Count is the total number of events the local queue has discarded.
	// Only set on EventsDropped notifications raised by queue overflow.
	Count uint64
}

// Recorder observes delivery. Implementations must be safe for use from
// the worker queue and must not block.
type Recorder interface {
	// BatchReceived is called once per native callback invocation.
	BatchReceived(records int)

	// EventDelivered is called for every event placed in the queue.
	EventDelivered(kind EventKind)

	// EventsDropped is called when the queue discards events.
	EventsDropped(n int)

	// NotificationRaised is called for every notification.
	NotificationRaised(kind NotificationKind)
}

type noopRecorder struct{}

func (noopRecorder) BatchReceived(int)                   {}
func (noopRecorder) EventDelivered(EventKind)            {}
func (noopRecorder) EventsDropped(int)                   {}
func (noopRecorder) NotificationRaised(NotificationKind) {}

// Options contains per-watch configuration. Options are copied when the
// stream is created and cannot change afterwards.
type Options struct {
	// ExcludedPaths are subtrees that must not produce events.
	// At most MaxExclusions distinct paths are accepted.
	ExcludedPaths []string

	// Resume starts the stream from SinceEventID instead of now, replaying
	// journal history up to a HistoryReplayDone notification.
	Resume bool

	// SinceEventID is the resume token. Ignored unless Resume is set.
	SinceEventID EventID

	// Latency is the coalescing window the native layer waits before
	// delivering a batch. Must not be negative. Default: 0.
	Latency time.Duration

	// CreateFlags tunes the native stream. Default: CreateFlagFileEvents.
	CreateFlags CreateFlags

	// QueueCapacity bounds undelivered events. When full, the oldest
	// event is discarded. Default: 1024.
	QueueCapacity int

	// NotificationCapacity bounds undelivered notifications. Default: 64.
	NotificationCapacity int

	// QueueLabel names the worker queue. Default: "fsevent-watcher".
	QueueLabel string

	// Recorder observes delivery. Default: no-op.
	Recorder Recorder
}
