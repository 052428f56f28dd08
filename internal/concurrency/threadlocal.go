// File: internal/concurrency/threadlocal.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// OS-thread-local slots keyed by ThreadID. Only meaningful for goroutines
// holding runtime.LockOSThread. A thread may alias another thread's slots,
// which is how fiber goroutines see the values of the worker hosting them.

package concurrency

import (
	"sync"
	"sync/atomic"
)

type threadState struct {
	values sync.Map // uint64 key -> value
}

var (
	threads sync.Map // tid -> *threadState
	aliases sync.Map // tid -> owner tid
	nextKey atomic.Uint64
)

func lookupState(create bool) *threadState {
	tid := ThreadID()
	if st, ok := threads.Load(tid); ok {
		return st.(*threadState)
	}
	if !create {
		return nil
	}
	st, _ := threads.LoadOrStore(tid, &threadState{})
	return st.(*threadState)
}

// ThreadLocal is a typed slot holding one value per OS thread.
type ThreadLocal[T any] struct {
	key uint64
}

// NewThreadLocal allocates a new slot key.
func NewThreadLocal[T any]() *ThreadLocal[T] {
	return &ThreadLocal[T]{key: nextKey.Add(1)}
}

// Get returns the calling thread's value.
func (l *ThreadLocal[T]) Get() (T, bool) {
	var zero T
	st := lookupState(false)
	if st == nil {
		return zero, false
	}
	v, ok := st.values.Load(l.key)
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// Set stores v for the calling thread.
func (l *ThreadLocal[T]) Set(v T) {
	lookupState(true).values.Store(l.key, v)
}

// Clear removes the calling thread's value.
func (l *ThreadLocal[T]) Clear() {
	if st := lookupState(false); st != nil {
		st.values.Delete(l.key)
	}
}

// AliasThread makes the calling thread share the slots of thread owner until
// the returned release func runs. The caller must hold runtime.LockOSThread
// for the whole aliasing window.
func AliasThread(owner int) (release func()) {
	tid := ThreadID()
	if tid == owner {
		return func() {}
	}
	ownerState, _ := threads.LoadOrStore(owner, &threadState{})
	prev, hadPrev := threads.Swap(tid, ownerState)
	prevOwner, hadOwner := aliases.Swap(tid, owner)
	return func() {
		if hadOwner {
			aliases.Store(tid, prevOwner)
		} else {
			aliases.Delete(tid)
		}
		if hadPrev {
			threads.Store(tid, prev)
			return
		}
		threads.Delete(tid)
	}
}

// EffectiveThreadID returns the thread whose slots the caller sees: the
// owner inside an AliasThread window, ThreadID otherwise.
func EffectiveThreadID() int {
	tid := ThreadID()
	if owner, ok := aliases.Load(tid); ok {
		return owner.(int)
	}
	return tid
}

// ReleaseThread drops every slot value of the calling thread.
func ReleaseThread() {
	threads.Delete(ThreadID())
}
