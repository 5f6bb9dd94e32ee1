package watcher

import (
	"errors"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("path is not valid UTF-8")

// pathArray is the boundary between native path storage and Go strings.
// Implementations copy each path out during At and never keep references
// to native memory after the callback returns.
type pathArray interface {
	Len() int
	At(i int) (string, error)
}

// stringArray is a pathArray over Go strings, used by the portable
// backend and in tests.
type stringArray []string

func (a stringArray) Len() int {
	return len(a)
}

func (a stringArray) At(i int) (string, error) {
	s := a[i]
	if !utf8.ValidString(s) {
		return "", errInvalidUTF8
	}
	return s, nil
}

// decodePath decodes element i, wrapping failures in a PathDecodeError.
func decodePath(arr pathArray, i int) (string, error) {
	s, err := arr.At(i)
	if err != nil {
		return "", &PathDecodeError{Index: i, Err: err}
	}
	return s, nil
}

// decodePathList decodes every element into an owned list, keeping the
// first occurrence of duplicates.
func decodePathList(arr pathArray) ([]string, error) {
	n := arr.Len()
	out := make([]string, 0, n)
	seen := make(map[string]struct{}, n)

	for i := 0; i < n; i++ {
		s, err := decodePath(arr, i)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}
