package display

import (
	"encoding/json"
	"io"

	"github.com/0xmhha/fsevent-watcher/pkg/checkpoint"
	"github.com/0xmhha/fsevent-watcher/pkg/watcher"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

type eventRecord struct {
	Type  string   `json:"type"`
	Kind  string   `json:"kind"`
	Paths []string `json:"paths"`
	ID    uint64   `json:"id"`
	Flags []string `json:"flags"`
}

type notificationRecord struct {
	Type  string `json:"type"`
	Kind  string `json:"kind"`
	Path  string `json:"path,omitempty"`
	ID    uint64 `json:"id"`
	Count uint64 `json:"count,omitempty"`
}

type flagsRecord struct {
	Word       uint32   `json:"word"`
	Flags      []string `json:"flags"`
	Kind       string   `json:"kind"`
	Structural []string `json:"structural,omitempty"`
}

func (f *jsonFormatter) encode(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}

	return encoder.Encode(v)
}

// FormatEvent implements Formatter.FormatEvent. Events are always written
// as a single line so the output can be consumed as JSON lines.
func (f *jsonFormatter) FormatEvent(w io.Writer, ev watcher.Event) error {
	return json.NewEncoder(w).Encode(eventRecord{
		Type:  "event",
		Kind:  ev.Kind.String(),
		Paths: ev.Paths,
		ID:    uint64(ev.ID),
		Flags: nonNil(ev.Flags.Strings()),
	})
}

// FormatNotification implements Formatter.FormatNotification.
func (f *jsonFormatter) FormatNotification(w io.Writer, n watcher.Notification) error {
	return json.NewEncoder(w).Encode(notificationRecord{
		Type:  "notification",
		Kind:  n.Kind.String(),
		Path:  n.Path,
		ID:    uint64(n.ID),
		Count: n.Count,
	})
}

// FormatCheckpoints implements Formatter.FormatCheckpoints.
func (f *jsonFormatter) FormatCheckpoints(w io.Writer, cps []*checkpoint.Checkpoint) error {
	if cps == nil {
		cps = []*checkpoint.Checkpoint{}
	}
	return f.encode(w, cps)
}

// FormatFlags implements Formatter.FormatFlags.
func (f *jsonFormatter) FormatFlags(w io.Writer, word uint32, flags watcher.FlagSet) error {
	return f.encode(w, flagsRecord{
		Word:       word,
		Flags:      nonNil(flags.Strings()),
		Kind:       watcher.Classify(flags).String(),
		Structural: flags.Structural().Strings(),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
