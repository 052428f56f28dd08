// File: arena/linear.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package arena

import "github.com/momentics/hioload-rt/api"

// Linear is a bump allocator whose Free is a no-op.
type Linear struct {
	chain
}

var _ api.Allocator = (*Linear)(nil)

// NewLinear creates an empty linear arena. Regions are mapped on first use.
func NewLinear(cfg Config) *Linear {
	return &Linear{chain: newChain(cfg, "arena")}
}

// Allocate bumps size bytes, rounded up to 8, from the current region.
func (a *Linear) Allocate(size int, _ api.Origin) []byte {
	n := alignUp(max(size, 1))
	r, off := a.reserve(n)
	return r.buf[off : off+max(size, 0) : off+n]
}

// Free does nothing; memory returns on Reset or FlushRegions.
func (a *Linear) Free([]byte) {}

// Transfer keeps block until FlushRegions releases it.
func (a *Linear) Transfer(block []byte, _ api.Origin) { a.adopt(block) }

func (a *Linear) Watch([]byte, api.Origin) {}
func (a *Linear) Unwatch([]byte)           {}

// IsValid reports whether block was allocated since the last Reset.
func (a *Linear) IsValid(block []byte) bool { return a.owns(block) }

func (a *Linear) IsFinalizable() bool { return false }

// Finalize releases every region.
func (a *Linear) Finalize() { a.FlushRegions() }

// Reset rewinds all regions. Previously returned blocks become invalid.
func (a *Linear) Reset() { a.reset() }

// FlushRegions returns every region to the system allocator.
func (a *Linear) FlushRegions() { a.flush() }

// Capacity returns the current first-region size.
func (a *Linear) Capacity() int { return a.capacity }

// Used returns bytes handed out since the last Reset.
func (a *Linear) Used() int { return a.used }

// Peak returns the highest Used value observed.
func (a *Linear) Peak() int { return a.peak }

// Regions returns the length of the region chain.
func (a *Linear) Regions() int { return a.regions }
