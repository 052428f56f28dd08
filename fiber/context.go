// File: fiber/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Execution contexts: the switchable unit behind a Fiber, plus the master
// context standing for the host thread itself.

package fiber

import (
	"runtime"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/internal/concurrency"
	"github.com/momentics/hioload-rt/internal/fatal"
)

// ExecutionContext is the saved execution state of one fiber.
type ExecutionContext interface {
	// switchIn runs the context until it switches out or finishes.
	// Called from the host thread.
	switchIn()

	// switchOut parks the context until the next switchIn. Called from
	// inside the context. False means the context was destroyed meanwhile.
	switchOut() bool

	// Stack returns the scratch buffer owned by the context. It is not the
	// execution stack: the body runs on its goroutine's own stack.
	Stack() []byte

	// destroy releases the context. A parked body never resumes.
	destroy()
}

// goroutineContext runs its entry on a dedicated goroutine started on first
// switch-in. Unbuffered channels carry the baton.
type goroutineContext struct {
	owner int
	mem   api.Memory
	stack []byte // scratch buffer for the body, allocated through mem
	entry func()

	in  chan struct{}
	out chan struct{}

	started   bool
	destroyed bool
	release   func()
}

func newGoroutineContext(owner int, mem api.Memory, stackSize int, entry func()) *goroutineContext {
	return &goroutineContext{
		owner: owner,
		mem:   mem,
		stack: mem.MallocContext(stackSize, api.Origin{TypeName: "fiber.stack"}),
		entry: entry,
		in:    make(chan struct{}),
		out:   make(chan struct{}),
	}
}

func (c *goroutineContext) switchIn() {
	if c.destroyed {
		fatal.Violation("fiber: switch into a destroyed context")
	}
	if !c.started {
		c.started = true
		go c.run()
	}
	c.in <- struct{}{}
	<-c.out
}

func (c *goroutineContext) run() {
	if _, ok := <-c.in; !ok {
		return
	}
	c.enter()
	c.entry()
	c.leave()
	c.started = false
	c.out <- struct{}{}
}

// enter binds the fiber goroutine to an OS thread sharing the host
// thread's thread-local slots.
func (c *goroutineContext) enter() {
	runtime.LockOSThread()
	c.release = concurrency.AliasThread(c.owner)
}

func (c *goroutineContext) leave() {
	if c.release != nil {
		c.release()
		c.release = nil
	}
	runtime.UnlockOSThread()
}

func (c *goroutineContext) switchOut() bool {
	c.leave()
	c.out <- struct{}{}
	if _, ok := <-c.in; !ok {
		return false
	}
	c.enter()
	return true
}

func (c *goroutineContext) Stack() []byte { return c.stack }

// rebind prepares a finished context for a new body. The stack is kept.
func (c *goroutineContext) rebind(entry func()) {
	c.entry = entry
	c.started = false
}

func (c *goroutineContext) destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	close(c.in)
	c.mem.Free(c.stack)
	c.stack = nil
}

// masterContext is the host thread's own execution. Creating one locks the
// calling goroutine to its OS thread; destroying it restores the thread.
type masterContext struct{}

func newMasterContext() *masterContext {
	runtime.LockOSThread()
	return &masterContext{}
}

func (m *masterContext) switchIn() {}

func (m *masterContext) switchOut() bool {
	fatal.Violation("fiber: switch out of a master context")
	return false
}

func (m *masterContext) Stack() []byte { return nil }

func (m *masterContext) destroy() { runtime.UnlockOSThread() }
