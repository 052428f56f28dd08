// Package fiber
// Author: momentics <momentics@gmail.com>
//
// Cooperative coroutines for hioload-rt. A Host is bound to one OS thread
// and multiplexes Fibers on it; a Fiber runs until it returns or suspends
// itself with Deactivate, and is resumed with Activate from any thread.
//
// Each Fiber owns an ExecutionContext. The goroutine-backed context hands a
// single baton between the host thread and the fiber body, so exactly one
// side runs at a time and the fiber observes the host thread's thread-local
// state while it runs.
package fiber
