// File: fiber/host.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Host multiplexes fibers on the OS thread that created it.

package fiber

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/internal/concurrency"
	"github.com/momentics/hioload-rt/internal/fatal"
	"github.com/momentics/hioload-rt/internal/logging"
	"github.com/momentics/hioload-rt/memory"
)

const (
	// DefaultStackSize is the per-fiber scratch buffer size. Bodies run on
	// their own goroutine stack; the buffer is only handed to them.
	DefaultStackSize = 4 << 10
	// DefaultCacheLimit bounds the finished fibers kept for reuse.
	DefaultCacheLimit = 64
)

// Options configures a Host.
type Options struct {
	// Name labels the host in logs and diagnostics.
	Name string
	// StackSize is the per-fiber scratch buffer size.
	StackSize int
	// Memory serves fiber scratch buffers. Defaults to memory.Default().
	Memory api.Memory
	// OnWake is called when a suspended fiber becomes resumable.
	OnWake func()
	// CacheLimit bounds the cache of finished fibers.
	CacheLimit int
}

type slot struct {
	fiber *Fiber
	gen   uint32
}

// Host owns the fibers of one OS thread. Except for Activate and Lookup,
// its methods must be called from that thread.
type Host struct {
	name       string
	owner      int
	master     ExecutionContext
	mem        api.Memory
	stackSize  int
	cacheLimit int
	onWake     func()

	slotMu    sync.Mutex
	slots     []slot
	freeSlots []uint32

	used    []*Fiber
	cache   []*Fiber
	current atomic.Pointer[Fiber]
	epoch   uint64
	closed  bool

	log *logging.Logger
}

// NewHost binds a new host to the calling goroutine's OS thread. The
// goroutine stays locked to that thread until Close.
func NewHost(opts Options) *Host {
	if opts.StackSize <= 0 {
		opts.StackSize = DefaultStackSize
	}
	if opts.CacheLimit <= 0 {
		opts.CacheLimit = DefaultCacheLimit
	}
	if opts.Memory == nil {
		opts.Memory = memory.Default()
	}
	if opts.Name == "" {
		opts.Name = "host"
	}
	master := newMasterContext()
	return &Host{
		name:       opts.Name,
		owner:      concurrency.ThreadID(),
		master:     master,
		mem:        opts.Memory,
		stackSize:  opts.StackSize,
		cacheLimit: opts.CacheLimit,
		onWake:     opts.OnWake,
		log:        logging.New("fiber"),
	}
}

// Name returns the host label.
func (h *Host) Name() string { return h.name }

// Owner returns the id of the owning OS thread.
func (h *Host) Owner() int { return h.owner }

// Current returns the fiber running on this host, if any.
func (h *Host) Current() *Fiber { return h.current.Load() }

func (h *Host) assertOwner(op string) {
	if tid := concurrency.EffectiveThreadID(); tid != h.owner {
		fatal.Violation("fiber: %s of %s called on thread %d, owned by thread %d", op, h.name, tid, h.owner)
	}
	if h.closed {
		fatal.Violation("fiber: %s of closed %s", op, h.name)
	}
}

// Pop returns a fiber ready to run fn, recycling a cached one if possible.
func (h *Host) Pop(fn Func) *Fiber {
	h.assertOwner("Pop")
	var f *Fiber
	if n := len(h.cache); n > 0 {
		f = h.cache[n-1]
		h.cache[n-1] = nil
		h.cache = h.cache[:n-1]
		f.ctx.rebind(h.trampoline(f))
	} else {
		f = &Fiber{host: h}
		f.ctx = newGoroutineContext(h.owner, h.mem, h.stackSize, h.trampoline(f))
	}
	f.fn = fn
	f.after = nil
	f.user = nil
	f.epoch = 0
	f.permit = false
	f.setState(Active)
	f.handle = h.claimSlot(f)
	h.used = append(h.used, f)
	return f
}

func (h *Host) trampoline(f *Fiber) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				f.panicked, f.panicVal, f.panicDump = true, r, debug.Stack()
			}
			f.setState(Finished)
		}()
		f.fn(f)
	}
}

// Execute runs f until it finishes or suspends and returns its state.
// Suspended and finished fibers are returned as is. A continuation left by
// DeactivateThen runs before Execute returns; a panic in the body is
// re-raised here.
func (h *Host) Execute(f *Fiber) State {
	h.assertOwner("Execute")
	switch {
	case f.host != h:
		fatal.Violation("fiber: %s executed by foreign host %s", f.handle, h.name)
	case f.ctx.destroyed:
		fatal.Violation("fiber: execute of destroyed %s", f.handle)
	case f.running():
		fatal.Violation("fiber: re-entrant execute of %s", f.handle)
	}

	f.mu.Lock()
	if s := f.State(); s == Suspended || s == Finished {
		f.mu.Unlock()
		return s
	}
	f.setState(Active)
	f.mu.Unlock()

	prev := h.current.Swap(f)
	f.ctx.switchIn()
	h.current.Store(prev)

	if after := f.after; after != nil {
		f.after = nil
		after()
	}
	if f.panicked {
		p, dump := f.panicVal, f.panicDump
		f.panicked, f.panicVal, f.panicDump = false, nil, nil
		h.log.Errorf("%s: %s panicked: %v\n%s", h.name, f.handle, p, dump)
		h.Reuse(f)
		panic(p)
	}
	return f.State()
}

// running reports whether f is on the host's current execution chain.
func (f *Fiber) running() bool {
	return f.ctx.started && f.State() == Active
}

// Dispatch executes every live fiber once, round robin. Finished fibers are
// recycled at once and the pass restarts, skipping fibers already run in
// this pass. It reports whether any fiber ran.
func (h *Host) Dispatch() bool {
	h.assertOwner("Dispatch")
	h.epoch++
	progress := false
	for i := 0; i < len(h.used); {
		f := h.used[i]
		if f.epoch == h.epoch || f.running() || f.State() == Suspended {
			i++
			continue
		}
		f.epoch = h.epoch
		progress = true
		if h.Execute(f) == Finished {
			h.Reuse(f)
			i = 0
			continue
		}
		i++
	}
	return progress
}

// Reuse moves a finished fiber from the live set to the cache.
func (h *Host) Reuse(f *Fiber) {
	h.assertOwner("Reuse")
	if f.State() != Finished {
		fatal.Violation("fiber: reuse of %s in state %s", f.handle, f.State())
	}
	if !h.removeUsed(f) {
		return
	}
	h.releaseSlot(f)
	if len(h.cache) >= h.cacheLimit {
		f.ctx.destroy()
		return
	}
	f.fn = nil
	f.user = nil
	h.cache = append(h.cache, f)
}

// Push destroys f outright. A parked body never resumes.
func (h *Host) Push(f *Fiber) {
	h.assertOwner("Push")
	if h.removeUsed(f) {
		h.releaseSlot(f)
	} else {
		for i, c := range h.cache {
			if c == f {
				h.cache = append(h.cache[:i], h.cache[i+1:]...)
				break
			}
		}
	}
	f.ctx.destroy()
}

func (h *Host) removeUsed(f *Fiber) bool {
	for i, u := range h.used {
		if u == f {
			copy(h.used[i:], h.used[i+1:])
			h.used[len(h.used)-1] = nil
			h.used = h.used[:len(h.used)-1]
			return true
		}
	}
	return false
}

func (h *Host) claimSlot(f *Fiber) Handle {
	h.slotMu.Lock()
	defer h.slotMu.Unlock()
	var idx uint32
	if n := len(h.freeSlots); n > 0 {
		idx = h.freeSlots[n-1]
		h.freeSlots = h.freeSlots[:n-1]
	} else {
		idx = uint32(len(h.slots))
		h.slots = append(h.slots, slot{gen: 1})
	}
	h.slots[idx].fiber = f
	return Handle{Index: idx, Generation: h.slots[idx].gen}
}

func (h *Host) releaseSlot(f *Fiber) {
	h.slotMu.Lock()
	defer h.slotMu.Unlock()
	s := &h.slots[f.handle.Index]
	if s.fiber == f {
		s.fiber = nil
		s.gen++
		h.freeSlots = append(h.freeSlots, f.handle.Index)
	}
}

// Lookup resolves a handle to its live fiber. Safe from any thread.
func (h *Host) Lookup(hd Handle) (*Fiber, bool) {
	h.slotMu.Lock()
	defer h.slotMu.Unlock()
	if int(hd.Index) >= len(h.slots) {
		return nil, false
	}
	s := h.slots[hd.Index]
	if s.fiber == nil || s.gen != hd.Generation {
		return nil, false
	}
	return s.fiber, true
}

// Activate resumes the fiber behind hd. A stale handle is a contract
// violation. Safe from any thread.
func (h *Host) Activate(hd Handle) {
	f, ok := h.Lookup(hd)
	if !ok {
		fatal.Violation("fiber: activate of stale handle %s on %s", hd, h.name)
		return
	}
	f.Activate()
}

func (h *Host) wake() {
	if h.onWake != nil {
		h.onWake()
	}
}

// Alive returns the number of live fibers.
func (h *Host) Alive() int { return len(h.used) }

// Cached returns the number of finished fibers kept for reuse.
func (h *Host) Cached() int { return len(h.cache) }

// Resumable returns the number of live fibers waiting to be resumed.
func (h *Host) Resumable() int {
	n := 0
	for _, f := range h.used {
		if f.State() == Resumable {
			n++
		}
	}
	return n
}

// Runnable reports whether Dispatch would run any fiber.
func (h *Host) Runnable() bool {
	for _, f := range h.used {
		if s := f.State(); s == Resumable || (s == Active && !f.running()) {
			return true
		}
	}
	return false
}

// Close destroys every live and cached fiber and releases the host thread.
// It returns the number of live fibers destroyed.
func (h *Host) Close() int {
	h.assertOwner("Close")
	live := len(h.used)
	for _, f := range h.used {
		h.releaseSlot(f)
		f.ctx.destroy()
	}
	for _, f := range h.cache {
		f.ctx.destroy()
	}
	h.used, h.cache = nil, nil
	h.closed = true
	h.master.destroy()
	if live > 0 {
		h.log.Debugf("%s closed with %d live fiber(s)", h.name, live)
	}
	return live
}
