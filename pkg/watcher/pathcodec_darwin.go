//go:build darwin && cgo

package watcher

/*
#include <CoreServices/CoreServices.h>
#include <stdlib.h>

static CFMutableArrayRef newPathArray(void) {
	return CFArrayCreateMutable(NULL, 0, &kCFTypeArrayCallBacks);
}

static Boolean appendPath(CFMutableArrayRef arr, const char *path) {
	CFStringRef s = CFStringCreateWithCString(NULL, path, kCFStringEncodingUTF8);
	if (s == NULL) {
		return false;
	}
	CFArrayAppendValue(arr, s);
	CFRelease(s);
	return true;
}

static CFStringRef newPathString(const char *path) {
	return CFStringCreateWithCString(NULL, path, kCFStringEncodingUTF8);
}

static CFStringRef pathAt(CFArrayRef arr, CFIndex i) {
	return (CFStringRef)CFArrayGetValueAtIndex(arr, i);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
	"unsafe"
)

var (
	errNilString = errors.New("native string handle is NULL")
	errEncode    = errors.New("native string conversion failed")
)

const utf8Encoding = C.CFStringEncoding(C.kCFStringEncodingUTF8)

// cfPathArray reads a CFArray of CFString paths. It borrows ref and must
// not outlive the call that handed it out.
type cfPathArray struct {
	ref C.CFArrayRef
	n   int
}

func newCFPathArray(ref C.CFArrayRef) cfPathArray {
	if ref == 0 {
		return cfPathArray{}
	}
	return cfPathArray{ref: ref, n: int(C.CFArrayGetCount(ref))}
}

func (a cfPathArray) Len() int {
	return a.n
}

func (a cfPathArray) At(i int) (string, error) {
	if i < 0 || i >= a.n {
		return "", fmt.Errorf("index %d out of range [0,%d)", i, a.n)
	}
	return decodeCFString(C.pathAt(a.ref, C.CFIndex(i)))
}

// decodeCFString copies ref into a Go string. The fast path reads the
// internal UTF-8 buffer when the string has one; otherwise the string is
// converted into a buffer sized for the worst case.
func decodeCFString(ref C.CFStringRef) (string, error) {
	if ref == 0 {
		return "", errNilString
	}

	var s string
	if p := C.CFStringGetCStringPtr(ref, utf8Encoding); p != nil {
		s = C.GoString(p)
	} else {
		length := C.CFStringGetLength(ref)
		size := C.CFStringGetMaximumSizeForEncoding(length, utf8Encoding)
		if size < 0 {
			return "", fmt.Errorf("%w: string of length %d too large", errEncode, int(length))
		}
		size++

		buf := (*C.char)(C.malloc(C.size_t(size)))
		defer C.free(unsafe.Pointer(buf))

		if C.CFStringGetCString(ref, buf, size, utf8Encoding) == 0 {
			return "", errEncode
		}
		s = C.GoString(buf)
	}

	if !utf8.ValidString(s) {
		return "", errInvalidUTF8
	}
	return s, nil
}

// encodeCFString returns an owned CFString. The caller releases it.
func encodeCFString(s string) (C.CFStringRef, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return 0, fmt.Errorf("%w: path %q contains NUL", errEncode, s)
	}

	cs := C.CString(s)
	defer C.free(unsafe.Pointer(cs))

	ref := C.newPathString(cs)
	if ref == 0 {
		return 0, fmt.Errorf("%w: %q", errEncode, s)
	}
	return ref, nil
}

// encodePathArray returns an owned CFArray of CFStrings. The caller
// releases it.
func encodePathArray(paths []string) (C.CFArrayRef, error) {
	arr := C.newPathArray()
	if arr == 0 {
		return 0, fmt.Errorf("%w: array allocation", errEncode)
	}

	for _, p := range paths {
		if strings.IndexByte(p, 0) >= 0 {
			cfRelease(C.CFTypeRef(arr))
			return 0, fmt.Errorf("%w: path %q contains NUL", errEncode, p)
		}

		cp := C.CString(p)
		ok := C.appendPath(arr, cp)
		C.free(unsafe.Pointer(cp))
		if ok == 0 {
			cfRelease(C.CFTypeRef(arr))
			return 0, fmt.Errorf("%w: %q", errEncode, p)
		}
	}
	return C.CFArrayRef(arr), nil
}

func cfRelease(ref C.CFTypeRef) {
	if ref != 0 {
		C.CFRelease(ref)
	}
}

// cfRoundTrip encodes s and decodes it back.
func cfRoundTrip(s string) (string, error) {
	ref, err := encodeCFString(s)
	if err != nil {
		return "", err
	}
	defer cfRelease(C.CFTypeRef(ref))
	return decodeCFString(ref)
}

// cfRoundTripList encodes paths as an array and decodes it back.
func cfRoundTripList(paths []string) ([]string, error) {
	arr, err := encodePathArray(paths)
	if err != nil {
		return nil, err
	}
	defer cfRelease(C.CFTypeRef(arr))
	return decodePathList(newCFPathArray(arr))
}
