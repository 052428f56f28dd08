// File: memory/passthrough.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pass-through allocator: a thin wrapper over the system allocator.

package memory

import (
	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/internal/sysmem"
)

// Passthrough forwards to the system allocator and keeps no bookkeeping.
type Passthrough struct{}

var _ api.Allocator = (*Passthrough)(nil)

// NewPassthrough returns a pass-through allocator.
func NewPassthrough() *Passthrough { return &Passthrough{} }

func (p *Passthrough) Allocate(size int, _ api.Origin) []byte { return systemBlock(size) }
func (p *Passthrough) Free(block []byte)                      { sysmem.Release(block) }
func (p *Passthrough) Transfer([]byte, api.Origin)            {}
func (p *Passthrough) Watch([]byte, api.Origin)               {}
func (p *Passthrough) Unwatch([]byte)                         {}
func (p *Passthrough) IsValid([]byte) bool                    { return true }
func (p *Passthrough) IsFinalizable() bool                    { return false }
func (p *Passthrough) Finalize()                              {}

// systemBlock serves size<=0 as an empty block over one byte of storage.
func systemBlock(size int) []byte {
	if size <= 0 {
		return sysmem.Alloc(1)[:0]
	}
	return sysmem.Alloc(size)
}
