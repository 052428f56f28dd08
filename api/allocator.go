// File: api/allocator.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Allocator contract shared by every allocation strategy and the memory facade.

package api

import (
	"fmt"
	"unsafe"
)

// Origin records where an allocation was requested.
type Origin struct {
	File     string
	Function string
	TypeName string
	Line     int
}

func (o Origin) String() string {
	if o.File == "" && o.Function == "" {
		if o.TypeName != "" {
			return o.TypeName
		}
		return "<unknown>"
	}
	s := fmt.Sprintf("%s:%d %s", o.File, o.Line, o.Function)
	if o.TypeName != "" {
		s += " (" + o.TypeName + ")"
	}
	return s
}

// Allocator is a pluggable allocation strategy. Blocks are identified by
// their first byte (see AddressOf). Allocate never returns nil: failure is
// fatal. Misuse such as double free is a contract violation, not an error.
type Allocator interface {
	// Allocate returns a block of len size. size<=0 yields an empty block
	// that still owns one byte of storage.
	Allocate(size int, origin Origin) []byte

	// Free releases a block obtained from Allocate or adopted by Transfer.
	Free(block []byte)

	// Transfer adopts bookkeeping for a block allocated before this
	// allocator was installed.
	Transfer(block []byte, origin Origin)

	// Watch registers external memory for leak reporting without owning it.
	Watch(block []byte, origin Origin)

	// Unwatch drops a watched block.
	Unwatch(block []byte)

	// IsValid reports whether block is live for this allocator.
	IsValid(block []byte) bool

	// IsFinalizable reports whether Finalize produces a real leak dump.
	IsFinalizable() bool

	// Finalize reports outstanding blocks.
	Finalize()
}

// Memory is the allocation entry point handed to runtime components.
type Memory interface {
	Malloc(size int) []byte
	MallocContext(size int, origin Origin) []byte
	Free(block []byte)
}

// AddressOf returns the identity of a block: the address of its first byte,
// or 0 for a block without storage.
func AddressOf(block []byte) uintptr {
	if cap(block) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(block[:1])))
}
