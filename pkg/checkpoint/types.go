// Package checkpoint persists resume tokens for filesystem watches.
//
// A checkpoint records the newest event ID a consumer has processed for a
// set of watched roots. Passing it back as the stream's since event ID
// replays everything that happened while the consumer was not running.
//
// Example usage:
//
//	store, err := checkpoint.Open(checkpoint.Config{
//	    DBPath: "~/.config/fswatch/checkpoints.db",
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	key := checkpoint.KeyForRoots([]string{"/tmp/x"})
//	cp, err := store.Get(key)
//	if errors.Is(err, checkpoint.ErrNotFound) {
//	    // first run, start from now
//	}
package checkpoint

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Checkpoint is the persisted resume state for one set of roots.
type Checkpoint struct {
	// Key identifies the watch, see KeyForRoots.
	Key string `json:"key"`

	// EventID is the newest event ID the consumer has processed.
	EventID uint64 `json:"event_id"`

	// Roots are the watched root paths, for display.
	Roots []string `json:"roots"`

	// UpdatedAt is the time of the last save.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides checkpoint persistence.
type Store interface {
	// Get returns the checkpoint stored under key.
	//
	// Returns ErrNotFound if no checkpoint exists.
	Get(key string) (*Checkpoint, error)

	// Save stores cp under cp.Key, replacing any previous value.
	// UpdatedAt is set by the store.
	Save(cp *Checkpoint) error

	// Delete removes the checkpoint stored under key.
	//
	// Returns ErrNotFound if no checkpoint exists.
	Delete(key string) error

	// List returns all checkpoints ordered by key.
	List() ([]*Checkpoint, error)

	// Close releases the underlying storage.
	Close() error
}

// Config contains store configuration.
type Config struct {
	// DBPath is the BoltDB file path. A leading ~ is expanded.
	DBPath string

	// Timeout bounds waiting for the database file lock.
	// Default: 1 second.
	Timeout time.Duration
}

// KeyForRoots derives a stable key from a set of roots: cleaned, sorted,
// de-duplicated and joined with a newline.
func KeyForRoots(roots []string) string {
	seen := make(map[string]struct{}, len(roots))
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		c := filepath.Clean(r)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		clean = append(clean, c)
	}
	sort.Strings(clean)
	return strings.Join(clean, "\n")
}
