package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/0xmhha/fsevent-watcher/pkg/checkpoint"
	"github.com/0xmhha/fsevent-watcher/pkg/watcher"
)

// Column widths for streamed rows. Streamed output cannot measure its
// rows in advance, so the kind and ID columns are fixed.
const (
	kindWidth = 19
	idWidth   = 20
)

// tableFormatter formats output as tables.
type tableFormatter struct {
	config Config
}

// FormatEvent implements Formatter.FormatEvent.
func (f *tableFormatter) FormatEvent(w io.Writer, ev watcher.Event) error {
	cells := []string{ev.Kind.String()}
	widths := []int{kindWidth}
	if f.config.ShowIDs {
		cells = append(cells, fmt.Sprintf("%d", ev.ID))
		widths = append(widths, idWidth)
	}
	cells = append(cells, strings.Join(ev.Paths, " -> "))
	widths = append(widths, 0)
	if f.config.ShowFlags {
		cells = append(cells, ev.Flags.String())
		widths = append(widths, 0)
	}

	return f.writeRow(w, cells, widths)
}

// FormatNotification implements Formatter.FormatNotification.
func (f *tableFormatter) FormatNotification(w io.Writer, n watcher.Notification) error {
	cells := []string{strings.ToUpper(n.Kind.String())}
	widths := []int{kindWidth}
	if f.config.ShowIDs {
		cells = append(cells, fmt.Sprintf("%d", n.ID))
		widths = append(widths, idWidth)
	}

	detail := n.Path
	if n.Count > 0 {
		detail = strings.TrimSpace(fmt.Sprintf("%s (%s dropped)", detail, formatNumber(n.Count)))
	}
	cells = append(cells, detail)
	widths = append(widths, 0)

	return f.writeRow(w, cells, widths)
}

// FormatCheckpoints implements Formatter.FormatCheckpoints.
func (f *tableFormatter) FormatCheckpoints(w io.Writer, cps []*checkpoint.Checkpoint) error {
	if err := writeHeader(w, "Checkpoints", f.config.Compact); err != nil {
		return err
	}

	header := []string{"Roots", "Event ID", "Updated"}

	rows := make([][]string, len(cps))
	for i, cp := range cps {
		rows[i] = []string{
			strings.Join(cp.Roots, ", "),
			formatNumber(cp.EventID),
			formatTime(cp.UpdatedAt),
		}
	}

	return f.writeTable(w, header, rows)
}

// FormatFlags implements Formatter.FormatFlags.
func (f *tableFormatter) FormatFlags(w io.Writer, word uint32, flags watcher.FlagSet) error {
	title := fmt.Sprintf("Flags 0x%08x (%s)", word, watcher.Classify(flags))
	if err := writeHeader(w, title, f.config.Compact); err != nil {
		return err
	}

	metadata := flags.Metadata()
	structural := flags.Structural()

	rows := make([][]string, len(flags))
	for i, flag := range flags {
		class := "item"
		switch {
		case metadata.Has(flag):
			class = "metadata"
		case structural.Has(flag):
			class = "structural"
		}
		rows[i] = []string{flag.String(), fmt.Sprintf("0x%08x", uint32(flag)), class}
	}

	return f.writeTable(w, []string{"Flag", "Bit", "Class"}, rows)
}

// writeTable writes a formatted table.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	// Calculate column widths.
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	if err := f.writeRow(w, header, widths); err != nil {
		return err
	}

	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, separator, widths); err != nil {
			return err
		}
	}

	for _, row := range rows {
		if err := f.writeRow(w, row, widths); err != nil {
			return err
		}
	}

	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}

	return nil
}

// writeRow writes a single table row. A zero width leaves the cell
// unpadded; trailing whitespace is trimmed.
func (f *tableFormatter) writeRow(w io.Writer, cells []string, widths []int) error {
	sep := "  "
	if f.config.Compact {
		sep = " "
	}

	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString(sep)
		}
		if i < len(widths) && widths[i] > 0 {
			fmt.Fprintf(&b, "%-*s", widths[i], cell)
		} else {
			b.WriteString(cell)
		}
	}

	_, err := fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	return err
}
