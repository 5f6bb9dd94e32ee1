package watcher

import (
	"fmt"
	"strings"
	"time"
)

// MaxExclusions is the platform limit on excluded paths per stream.
const MaxExclusions = 8

// Queue bounds used when the corresponding option is zero.
const (
	DefaultQueueCapacity        = 1024
	DefaultNotificationCapacity = 64
)

const (
	defaultQueueLabel  = "fsevent-watcher"
	defaultCreateFlags = CreateFlagFileEvents
)

// ExclusionList is a validated set of excluded subtrees in insertion order.
type ExclusionList struct {
	paths []string
}

// NewExclusionList builds an exclusion list. Duplicate paths collapse;
// more than MaxExclusions distinct paths, or an empty or NUL-containing
// path, fails with ErrConfig.
func NewExclusionList(paths ...string) (ExclusionList, error) {
	seen := make(map[string]struct{}, len(paths))
	list := ExclusionList{}

	for _, p := range paths {
		if err := checkPath(p); err != nil {
			return ExclusionList{}, fmt.Errorf("%w: excluded path: %v", ErrConfig, err)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		list.paths = append(list.paths, p)
	}

	if len(list.paths) > MaxExclusions {
		return ExclusionList{}, fmt.Errorf("%w: %d excluded paths exceeds limit of %d",
			ErrConfig, len(list.paths), MaxExclusions)
	}

	return list, nil
}

// Paths returns a copy of the excluded paths.
func (l ExclusionList) Paths() []string {
	out := make([]string, len(l.paths))
	copy(out, l.paths)
	return out
}

// Len returns the number of distinct excluded paths.
func (l ExclusionList) Len() int {
	return len(l.paths)
}

// Contains reports whether path is excluded, either exactly or because it
// lies below an excluded directory.
func (l ExclusionList) Contains(path string) bool {
	for _, p := range l.paths {
		if path == p {
			return true
		}
		prefix := strings.TrimSuffix(p, "/") + "/"
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func checkPath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if strings.IndexByte(p, 0) >= 0 {
		return fmt.Errorf("path %q contains NUL", p)
	}
	return nil
}

// Validate checks the options without applying defaults.
func (o Options) Validate() error {
	if o.Latency < 0 {
		return fmt.Errorf("%w: latency must not be negative, got %v", ErrConfig, o.Latency)
	}
	if o.QueueCapacity < 0 {
		return fmt.Errorf("%w: queue capacity must not be negative, got %d", ErrConfig, o.QueueCapacity)
	}
	if o.NotificationCapacity < 0 {
		return fmt.Errorf("%w: notification capacity must not be negative, got %d", ErrConfig, o.NotificationCapacity)
	}
	if unknown := o.CreateFlags &^ knownCreateFlags; unknown != 0 {
		return fmt.Errorf("%w: unsupported create flags %#x", ErrConfig, uint32(unknown))
	}
	if o.Resume && o.SinceEventID == SinceNow {
		return fmt.Errorf("%w: resume requires a concrete event ID", ErrConfig)
	}
	if _, err := NewExclusionList(o.ExcludedPaths...); err != nil {
		return err
	}
	return nil
}

// since returns the event ID the stream starts from.
func (o Options) since() EventID {
	if o.Resume {
		return o.SinceEventID
	}
	return SinceNow
}

// withDefaults returns a copy of o with zero values replaced.
func (o Options) withDefaults() Options {
	if o.QueueCapacity == 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.NotificationCapacity == 0 {
		o.NotificationCapacity = DefaultNotificationCapacity
	}
	if o.QueueLabel == "" {
		o.QueueLabel = defaultQueueLabel
	}
	if o.CreateFlags == 0 {
		o.CreateFlags = defaultCreateFlags
	}
	o.CreateFlags |= CreateFlagUseCFTypes
	if o.Recorder == nil {
		o.Recorder = noopRecorder{}
	}
	o.ExcludedPaths = append([]string(nil), o.ExcludedPaths...)
	return o
}

// normalizeRoots validates root paths and removes duplicates, keeping the
// first occurrence.
func normalizeRoots(roots []string) ([]string, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: at least one root path is required", ErrConfig)
	}

	seen := make(map[string]struct{}, len(roots))
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if err := checkPath(r); err != nil {
			return nil, fmt.Errorf("%w: root path: %v", ErrConfig, err)
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

// latencySeconds converts the latency to the native interval type.
func latencySeconds(d time.Duration) float64 {
	return d.Seconds()
}
