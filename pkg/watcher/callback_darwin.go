//go:build darwin && cgo

package watcher

/*
#include <CoreServices/CoreServices.h>
#include <stdint.h>
*/
import "C"

import "unsafe"

// goStreamCallback receives every native batch. paths is a CFArray of
// CFStrings owned by the native layer for the duration of the call.
//
//export goStreamCallback
func goStreamCallback(info C.uintptr_t, n C.size_t, paths unsafe.Pointer, flags *C.FSEventStreamEventFlags, ids *C.FSEventStreamEventId) {
	count := int(n)
	if count == 0 {
		return
	}

	batch := rawBatch{
		paths: cfPathArray{ref: C.CFArrayRef(uintptr(paths)), n: count},
		flags: make([]uint32, count),
		ids:   make([]uint64, count),
	}
	for i, f := range unsafe.Slice(flags, count) {
		batch.flags[i] = uint32(f)
	}
	for i, id := range unsafe.Slice(ids, count) {
		batch.ids[i] = uint64(id)
	}

	dispatchCallback(uintptr(info), batch)
}

//export goRetainInfo
func goRetainInfo(info C.uintptr_t) {
	retainInfo(uintptr(info))
}

//export goReleaseInfo
func goReleaseInfo(info C.uintptr_t) {
	releaseInfo(uintptr(info))
}
