// File: internal/concurrency/threadlocal_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreadLocalPerThread(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if ThreadID() == 0 {
		t.Skip("no OS thread ids on this platform")
	}

	slot := NewThreadLocal[int]()
	slot.Set(7)
	defer slot.Clear()
	v, ok := slot.Get()
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	other := make(chan bool)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		_, ok := slot.Get()
		other <- ok
	}()
	assert.False(t, <-other)
}

func TestAliasThreadSharesOwnerSlots(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if ThreadID() == 0 {
		t.Skip("no OS thread ids on this platform")
	}
	owner := ThreadID()
	slot := NewThreadLocal[string]()
	slot.Set("owner")
	defer slot.Clear()

	type result struct {
		during, after string
		effective     int
	}
	ch := make(chan result)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		var r result
		release := AliasThread(owner)
		r.during, _ = slot.Get()
		r.effective = EffectiveThreadID()
		release()
		r.after, _ = slot.Get()
		ch <- r
	}()
	r := <-ch
	assert.Equal(t, "owner", r.during)
	assert.Equal(t, owner, r.effective)
	assert.Empty(t, r.after)
	assert.Equal(t, owner, EffectiveThreadID())
}
