package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/fsevent-watcher/pkg/watcher"
)

func TestIgnored(t *testing.T) {
	f, err := New([]string{
		"# editor droppings",
		"!keep.swp",
		"*.swp",
		"",
		"node_modules",
		"/var/log/*.gz",
		".DS_Store",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, f.Len())

	tests := []struct {
		path string
		want bool
	}{
		{"/src/a.swp", true},
		{"/src/deep/er/b.swp", true},
		{"/src/keep.swp", false},
		{"/src/a.go", false},
		{"/src/node_modules", true},
		{"/src/node_modules/x/y.js", true},
		{"/src/node_modules_old/y.js", false},
		{"/var/log/syslog.1.gz", true},
		{"/var/log/nested/syslog.gz", false},
		{"/other/var/log/a.gz", false},
		{"/Users/me/.DS_Store", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Ignored(tt.path))
		})
	}
}

func TestInvalidPattern(t *testing.T) {
	_, err := New([]string{"[unclosed"})
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = New([]string{"!"})
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestSkip(t *testing.T) {
	f, err := New([]string{"*.tmp"})
	require.NoError(t, err)

	assert.True(t, f.Skip(watcher.Event{Paths: []string{"/a/x.tmp"}}))
	assert.False(t, f.Skip(watcher.Event{Paths: []string{"/a/x.tmp", "/a/x.txt"}}), "one kept path keeps the event")
	assert.False(t, f.Skip(watcher.Event{Paths: []string{"/a/x.txt"}}))
	assert.Equal(t, []string{"*.tmp"}, f.Patterns())
}

func TestNilFilter(t *testing.T) {
	var f *Filter
	assert.Zero(t, f.Len())
	assert.False(t, f.Ignored("/a"))
	assert.False(t, f.Skip(watcher.Event{Paths: []string{"/a"}}))
	assert.Nil(t, f.Patterns())
}
