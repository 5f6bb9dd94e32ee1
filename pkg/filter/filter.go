// Package filter drops events whose paths match ignore patterns.
//
// Exclusions on the stream itself are limited to a handful of subtrees;
// ignore patterns are applied after delivery and have no such limit.
//
// Pattern syntax:
//
//	*.swp          any path whose last element matches, at any depth
//	node_modules   the named element and everything below it
//	/var/log/*.gz  anchored to the absolute path
//	!keep.swp      negation; the first matching pattern decides
//
// '*' and '?' never cross a '/', '**' does.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/0xmhha/fsevent-watcher/pkg/watcher"
)

// ErrInvalidPattern is returned for patterns that do not compile.
var ErrInvalidPattern = errors.New("invalid ignore pattern")

type pattern struct {
	raw     string
	include bool
	match   []glob.Glob
}

// Filter is an ordered list of ignore patterns. The zero value and a nil
// *Filter ignore nothing.
type Filter struct {
	patterns []pattern
}

// New compiles patterns. Blank lines and lines starting with '#' are
// skipped.
func New(patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, line := range patterns {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p := pattern{raw: line}
		if strings.HasPrefix(line, "!") {
			line = line[1:]
			p.include = true
		}
		if line == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, p.raw)
		}

		var sources []string
		if strings.HasPrefix(line, "/") {
			// Rooted at the absolute path
			sources = []string{line, line + "/**"}
		} else {
			sources = []string{"**/" + line, "**/" + line + "/**"}
		}

		for _, src := range sources {
			g, err := glob.Compile(src, '/')
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p.raw, err)
			}
			p.match = append(p.match, g)
		}
		f.patterns = append(f.patterns, p)
	}
	return f, nil
}

// Len returns the number of compiled patterns.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.patterns)
}

// Patterns returns the patterns as given, in order.
func (f *Filter) Patterns() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.patterns))
	for i, p := range f.patterns {
		out[i] = p.raw
	}
	return out
}

// Ignored reports whether path is ignored.
func (f *Filter) Ignored(path string) bool {
	if f == nil {
		return false
	}
	for _, p := range f.patterns {
		for _, g := range p.match {
			if g.Match(path) {
				return !p.include
			}
		}
	}
	return false
}

// Skip reports whether every path of ev is ignored.
func (f *Filter) Skip(ev watcher.Event) bool {
	if f.Len() == 0 || len(ev.Paths) == 0 {
		return false
	}
	for _, path := range ev.Paths {
		if !f.Ignored(path) {
			return false
		}
	}
	return true
}
