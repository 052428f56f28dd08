// File: memory/facade.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Allocation routing: thread-local allocator, then global, then the system
// allocator with a pending table for blocks no allocator has adopted yet.

package memory

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/internal/concurrency"
	"github.com/momentics/hioload-rt/internal/fatal"
	"github.com/momentics/hioload-rt/internal/logging"
	"github.com/momentics/hioload-rt/internal/sysmem"
)

type pendingBlock struct {
	block  []byte
	origin api.Origin
}

type allocatorRef struct {
	a api.Allocator
}

// Facade is safe for concurrent use. Local allocators are bound to the OS
// thread of the caller and only take effect on locked threads.
type Facade struct {
	global atomic.Pointer[allocatorRef]
	local  *concurrency.ThreadLocal[api.Allocator]

	mu       sync.Mutex
	pending  map[uintptr]pendingBlock
	nPending atomic.Int64

	log *logging.Logger
}

var _ api.Memory = (*Facade)(nil)

// NewFacade returns a facade with no allocator installed.
func NewFacade() *Facade {
	return &Facade{
		local:   concurrency.NewThreadLocal[api.Allocator](),
		pending: make(map[uintptr]pendingBlock),
		log:     logging.New("memory"),
	}
}

// Malloc allocates size bytes attributed to the caller.
func (f *Facade) Malloc(size int) []byte {
	return f.MallocContext(size, CallerOrigin(1))
}

// MallocContext allocates size bytes attributed to origin.
func (f *Facade) MallocContext(size int, origin api.Origin) []byte {
	if a := f.active(); a != nil {
		return a.Allocate(size, origin)
	}
	b := systemBlock(size)
	f.mu.Lock()
	f.pending[api.AddressOf(b)] = pendingBlock{block: b, origin: origin}
	f.mu.Unlock()
	f.nPending.Add(1)
	return b
}

// Free releases block through whichever party owns it.
func (f *Facade) Free(block []byte) {
	if cap(block) == 0 {
		return
	}
	if f.nPending.Load() > 0 {
		addr := api.AddressOf(block)
		f.mu.Lock()
		p, ok := f.pending[addr]
		if ok {
			delete(f.pending, addr)
		}
		f.mu.Unlock()
		if ok {
			f.nPending.Add(-1)
			sysmem.Release(p.block)
			return
		}
	}
	local := f.Local()
	if local != nil && local.IsValid(block) {
		local.Free(block)
		return
	}
	if g := f.Global(); g != nil {
		g.Free(block)
		return
	}
	if local != nil {
		local.Free(block)
		return
	}
	fatal.Violation("memory: free of unknown address %#x", api.AddressOf(block))
}

// SetGlobalAllocator installs a as the process-wide allocator and returns the
// previous one. Pending system blocks are transferred to a.
func (f *Facade) SetGlobalAllocator(a api.Allocator) api.Allocator {
	var ref *allocatorRef
	if a != nil {
		ref = &allocatorRef{a: a}
	}
	prev := f.global.Swap(ref)
	if a != nil {
		f.mu.Lock()
		moved := len(f.pending)
		for addr, p := range f.pending {
			a.Transfer(p.block, p.origin)
			delete(f.pending, addr)
		}
		f.nPending.Add(-int64(moved))
		f.mu.Unlock()
		if moved > 0 {
			f.log.Debugf("transferred %d pending block(s) to %T", moved, a)
		}
	}
	if prev == nil {
		return nil
	}
	return prev.a
}

// SetLocalAllocator installs a for the calling OS thread; nil removes it.
// The caller must hold runtime.LockOSThread.
func (f *Facade) SetLocalAllocator(a api.Allocator) {
	if a == nil {
		f.local.Clear()
		return
	}
	f.local.Set(a)
}

// Global returns the process-wide allocator, if any.
func (f *Facade) Global() api.Allocator {
	if ref := f.global.Load(); ref != nil {
		return ref.a
	}
	return nil
}

// Local returns the calling thread's allocator, if any.
func (f *Facade) Local() api.Allocator {
	a, ok := f.local.Get()
	if !ok {
		return nil
	}
	return a
}

func (f *Facade) active() api.Allocator {
	if a := f.Local(); a != nil {
		return a
	}
	return f.Global()
}

// Watch registers external memory with the active allocator.
func (f *Facade) Watch(block []byte, origin api.Origin) {
	if a := f.active(); a != nil {
		a.Watch(block, origin)
	}
}

// Unwatch drops external memory from the active allocator.
func (f *Facade) Unwatch(block []byte) {
	if a := f.active(); a != nil {
		a.Unwatch(block)
	}
}

// IsValidAddress reports whether block is live for the active allocator, or
// pending when none is installed.
func (f *Facade) IsValidAddress(block []byte) bool {
	if a := f.active(); a != nil {
		return a.IsValid(block)
	}
	f.mu.Lock()
	_, ok := f.pending[api.AddressOf(block)]
	f.mu.Unlock()
	return ok
}

// Pending returns the number of system blocks awaiting adoption.
func (f *Facade) Pending() int {
	return int(f.nPending.Load())
}

// Finalize runs the leak report of every finalizable allocator reachable
// from the calling thread.
func (f *Facade) Finalize() {
	local, global := f.Local(), f.Global()
	if local != nil && local.IsFinalizable() {
		local.Finalize()
	}
	if global != nil && global != local && global.IsFinalizable() {
		global.Finalize()
	}
}
