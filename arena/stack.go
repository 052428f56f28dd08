// File: arena/stack.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package arena

import (
	"encoding/binary"

	"github.com/momentics/hioload-rt/api"
)

const headerSize = 8

// Stack is an arena with LIFO Free: each allocation carries a size header
// and only the most recent live allocation can be popped.
type Stack struct {
	chain
}

var _ api.Allocator = (*Stack)(nil)

// NewStack creates an empty stack arena.
func NewStack(cfg Config) *Stack {
	return &Stack{chain: newChain(cfg, "arena")}
}

// Allocate pushes size bytes onto the stack.
func (s *Stack) Allocate(size int, _ api.Origin) []byte {
	size = max(size, 0)
	body := alignUp(max(size, 1))
	r, off := s.reserve(headerSize + body)
	binary.LittleEndian.PutUint64(r.buf[off:off+headerSize], uint64(size))
	start := off + headerSize
	return r.buf[start : start+size : start+body]
}

// Free pops block if it is the most recent allocation; otherwise it does
// nothing.
func (s *Stack) Free(block []byte) {
	r := s.cur
	addr := api.AddressOf(block)
	if r == nil || addr == 0 || !r.holds(addr) {
		return
	}
	start := int(addr - r.base())
	if start < headerSize {
		return
	}
	off := start - headerSize
	size := int(binary.LittleEndian.Uint64(r.buf[off:start]))
	n := headerSize + alignUp(max(size, 1))
	if off+n != r.free {
		return
	}
	r.free = off
	s.used -= n
	for s.cur.free == 0 && s.cur.prev != nil {
		s.cur = s.cur.prev
	}
}

// Transfer keeps block until FlushRegions releases it.
func (s *Stack) Transfer(block []byte, _ api.Origin) { s.adopt(block) }

func (s *Stack) Watch([]byte, api.Origin) {}
func (s *Stack) Unwatch([]byte)           {}

// IsValid reports whether block lies in a live part of the stack.
func (s *Stack) IsValid(block []byte) bool { return s.owns(block) }

func (s *Stack) IsFinalizable() bool { return false }

// Finalize releases every region.
func (s *Stack) Finalize() { s.FlushRegions() }

// Reset pops everything.
func (s *Stack) Reset() { s.reset() }

// FlushRegions returns every region to the system allocator.
func (s *Stack) FlushRegions() { s.flush() }

// Capacity returns the current first-region size.
func (s *Stack) Capacity() int { return s.capacity }

// Used returns bytes held by live allocations, headers included.
func (s *Stack) Used() int { return s.used }

// Peak returns the highest Used value observed.
func (s *Stack) Peak() int { return s.peak }

// Regions returns the length of the region chain.
func (s *Stack) Regions() int { return s.regions }
