// Package display renders watch output: change events, notifications,
// stored checkpoints and decoded flag words.
//
// It supports multiple output formats (table, JSON lines, simple text).
// Events and notifications are written one per call so output can be
// streamed while a watch runs.
package display

import (
	"io"

	"github.com/0xmhha/fsevent-watcher/pkg/checkpoint"
	"github.com/0xmhha/fsevent-watcher/pkg/watcher"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays aligned columns.
	FormatTable Format = "table"

	// FormatJSON displays one JSON object per line.
	FormatJSON Format = "json"

	// FormatSimple displays plain text.
	FormatSimple Format = "simple"
)

// ParseFormat returns the format named by s.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatSimple:
		return f, nil
	default:
		return "", &UnknownFormatError{Name: s}
	}
}

// UnknownFormatError is returned by ParseFormat.
type UnknownFormatError struct {
	Name string
}

func (e *UnknownFormatError) Error() string {
	return "unknown output format: " + e.Name
}

// Formatter formats watch output.
type Formatter interface {
	// FormatEvent writes a single change event.
	FormatEvent(w io.Writer, ev watcher.Event) error

	// FormatNotification writes a single structural notification.
	FormatNotification(w io.Writer, n watcher.Notification) error

	// FormatCheckpoints writes stored checkpoints.
	FormatCheckpoints(w io.Writer, cps []*checkpoint.Checkpoint) error

	// FormatFlags writes the flags decoded from one raw flag word.
	//
	// Parameters:
	//   - w: Output writer
	//   - word: The raw flag word
	//   - flags: Flags decoded from word
	//
	// Returns error if formatting fails.
	FormatFlags(w io.Writer, word uint32, flags watcher.FlagSet) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// ShowFlags adds the full flag set to each event.
	// Default: false.
	ShowFlags bool

	// ShowIDs adds event IDs to each event and notification.
	// Default: false.
	ShowIDs bool

	// Compact enables compact output (less whitespace).
	// Default: false.
	Compact bool
}
