package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/0xmhha/fsevent-watcher/pkg/display"
	"github.com/0xmhha/fsevent-watcher/pkg/watcher"
)

// runDecodeCommand prints the flags carried by raw flag words. A word is
// a number (decimal, 0x hex or 0 octal) or a '|'-separated list of flag
// names, which is encoded first.
func runDecodeCommand(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	format := fs.String("format", "table", "output format (table, json, simple)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := display.ParseFormat(*format)
	if err != nil {
		return err
	}

	if fs.NArg() == 0 {
		return fmt.Errorf("decode requires at least one flag word")
	}

	formatter := display.New(display.Config{Format: f})
	for _, arg := range fs.Args() {
		word, err := parseFlagWord(arg)
		if err != nil {
			return err
		}
		if err := formatter.FormatFlags(out, word, watcher.DecodeFlags(word)); err != nil {
			return err
		}
	}

	return nil
}

func parseFlagWord(s string) (uint32, error) {
	if n, err := strconv.ParseUint(s, 0, 32); err == nil {
		return uint32(n), nil
	}

	var word uint32
	for _, name := range strings.Split(s, "|") {
		f, err := watcher.ParseEventFlag(strings.TrimSpace(name))
		if err != nil {
			return 0, fmt.Errorf("invalid flag word %q: %w", s, err)
		}
		word |= uint32(f)
	}
	return word, nil
}
