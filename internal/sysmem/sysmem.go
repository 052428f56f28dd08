// File: internal/sysmem/sysmem.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// System allocator behind every allocator strategy. Blocks of MapThreshold
// bytes or more are anonymous private mappings outside the Go heap and are
// returned to the OS on Release; smaller blocks live on the Go heap and are
// reclaimed by the collector once unreferenced.

package sysmem

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/hioload-rt/internal/fatal"
)

// MapThreshold is the smallest request served by an OS mapping.
const MapThreshold = 64 << 10

var (
	mu       sync.Mutex
	mappings = make(map[uintptr][]byte) // base address -> full mapping

	mappedBytes atomic.Int64
)

// Alloc returns a zeroed block of exactly size bytes. Failure is fatal.
func Alloc(size int) []byte {
	if size < 0 {
		fatal.Violation("sysmem: negative allocation size %d", size)
	}
	if size >= MapThreshold {
		if b, ok := mapBlock(size); ok {
			return b
		}
	}
	return make([]byte, size)
}

func mapBlock(size int) ([]byte, bool) {
	full, err := platformMap(size)
	if err == ErrUnsupported {
		return nil, false
	}
	if err != nil {
		fatal.Exhausted("sysmem: map %d bytes: %v", size, err)
	}
	mu.Lock()
	mappings[base(full)] = full
	mu.Unlock()
	mappedBytes.Add(int64(len(full)))
	return full[:size:size], true
}

// Release returns a mapped block to the OS. Heap blocks are left to the
// collector. The block must be the exact slice returned by Alloc.
func Release(b []byte) {
	if cap(b) == 0 {
		return
	}
	addr := base(b)
	mu.Lock()
	full, ok := mappings[addr]
	if ok {
		delete(mappings, addr)
	}
	mu.Unlock()
	if !ok {
		return
	}
	mappedBytes.Add(-int64(len(full)))
	if err := platformUnmap(full); err != nil {
		fatal.Violation("sysmem: unmap %#x: %v", addr, err)
	}
}

// Mapped reports whether b starts an OS mapping owned by this package.
func Mapped(b []byte) bool {
	if cap(b) == 0 {
		return false
	}
	mu.Lock()
	_, ok := mappings[base(b)]
	mu.Unlock()
	return ok
}

// Stats returns the number of live mappings and the bytes they hold.
func Stats() (count int, bytes int64) {
	mu.Lock()
	n := len(mappings)
	mu.Unlock()
	return n, mappedBytes.Load()
}

func base(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b[:cap(b)])))
}
