// File: fiber/fiber.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fiber

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-rt/internal/fatal"
)

// State is the lifecycle state of a Fiber.
type State int32

const (
	// Active fibers may run or are running.
	Active State = iota
	// Suspended fibers parked themselves and wait for Activate.
	Suspended
	// Resumable fibers were activated and wait for their host to run them.
	Resumable
	// Finished fibers returned from their body.
	Finished
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Suspended:
		return "suspended"
	case Resumable:
		return "resumable"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Func is a fiber body.
type Func func(f *Fiber)

// Handle is a generation-checked reference to a live fiber of a Host.
type Handle struct {
	Index      uint32
	Generation uint32
}

func (h Handle) String() string { return fmt.Sprintf("fiber#%d.%d", h.Index, h.Generation) }

// Fiber is one cooperative unit of execution.
type Fiber struct {
	mu     sync.Mutex
	state  atomic.Int32
	permit bool

	fn     Func
	after  func()
	host   *Host
	ctx    *goroutineContext
	handle Handle
	user   any
	epoch  uint64

	panicked  bool
	panicVal  any
	panicDump []byte
}

// State returns the current state.
func (f *Fiber) State() State { return State(f.state.Load()) }

// Handle returns the fiber's current handle. It goes stale once the fiber
// is recycled or destroyed.
func (f *Fiber) Handle() Handle { return f.handle }

// Host returns the owning host.
func (f *Fiber) Host() *Host { return f.host }

// Stack returns the scratch buffer owned by the fiber's context. Bodies may
// use it as per-fiber working memory; it is released with the fiber.
func (f *Fiber) Stack() []byte { return f.ctx.Stack() }

// SetUserData stores an opaque value on the fiber.
func (f *Fiber) SetUserData(v any) { f.user = v }

// UserData returns the value stored by SetUserData.
func (f *Fiber) UserData() any { return f.user }

func (f *Fiber) setState(s State) { f.state.Store(int32(s)) }

// Deactivate suspends the calling fiber until Activate and the next
// Execute. A pending Activate permit is consumed instead of suspending.
// Must be called from inside the fiber's own body.
func (f *Fiber) Deactivate() { f.deactivate(nil) }

// DeactivateThen suspends like Deactivate and runs cont on the resuming
// thread once the fiber is fully parked, before Execute returns. If a
// permit is pending the fiber keeps running and cont runs at once.
func (f *Fiber) DeactivateThen(cont func()) { f.deactivate(cont) }

func (f *Fiber) deactivate(cont func()) {
	if f.host == nil || f.host.current.Load() != f {
		fatal.Violation("fiber: %s deactivated from outside its body", f.handle)
	}
	f.mu.Lock()
	if f.permit {
		f.permit = false
		f.mu.Unlock()
		if cont != nil {
			cont()
		}
		return
	}
	f.after = cont
	f.setState(Suspended)
	f.mu.Unlock()
	if !f.ctx.switchOut() {
		runtime.Goexit()
	}
}

// Activate makes a suspended fiber resumable and wakes its host. On an
// active fiber it leaves a permit for the next Deactivate. Safe from any
// thread.
func (f *Fiber) Activate() {
	f.mu.Lock()
	wake := false
	switch f.State() {
	case Active:
		f.permit = true
	case Suspended:
		f.setState(Resumable)
		wake = true
	}
	host := f.host
	f.mu.Unlock()
	if wake && host != nil {
		host.wake()
	}
}
