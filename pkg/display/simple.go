package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/0xmhha/fsevent-watcher/pkg/checkpoint"
	"github.com/0xmhha/fsevent-watcher/pkg/watcher"
)

// simpleFormatter formats output as simple text.
type simpleFormatter struct {
	config Config
}

// FormatEvent implements Formatter.FormatEvent.
func (f *simpleFormatter) FormatEvent(w io.Writer, ev watcher.Event) error {
	var b strings.Builder
	b.WriteString(ev.Kind.String())
	b.WriteByte(' ')
	b.WriteString(strings.Join(ev.Paths, " "))
	if f.config.ShowIDs {
		fmt.Fprintf(&b, " #%d", ev.ID)
	}
	if f.config.ShowFlags {
		fmt.Fprintf(&b, " [%s]", ev.Flags)
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

// FormatNotification implements Formatter.FormatNotification.
func (f *simpleFormatter) FormatNotification(w io.Writer, n watcher.Notification) error {
	var b strings.Builder
	b.WriteString("! ")
	b.WriteString(n.Kind.String())
	if n.Path != "" {
		b.WriteByte(' ')
		b.WriteString(n.Path)
	}
	if n.Count > 0 {
		fmt.Fprintf(&b, " (dropped %s)", formatNumber(n.Count))
	}
	if f.config.ShowIDs {
		fmt.Fprintf(&b, " #%d", n.ID)
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

// FormatCheckpoints implements Formatter.FormatCheckpoints.
func (f *simpleFormatter) FormatCheckpoints(w io.Writer, cps []*checkpoint.Checkpoint) error {
	for _, cp := range cps {
		if _, err := fmt.Fprintf(w, "%s: event %d (updated %s)\n",
			strings.Join(cp.Roots, ", "),
			cp.EventID,
			formatTime(cp.UpdatedAt)); err != nil {
			return err
		}
	}

	return nil
}

// FormatFlags implements Formatter.FormatFlags.
func (f *simpleFormatter) FormatFlags(w io.Writer, word uint32, flags watcher.FlagSet) error {
	names := flags.String()
	if names == "" {
		names = "none"
	}
	_, err := fmt.Fprintf(w, "0x%08x: %s\n", word, names)
	return err
}
