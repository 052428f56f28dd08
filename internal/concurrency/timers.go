// File: internal/concurrency/timers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ordered table of pending timers: a binary min-heap keyed by
// (expiry, insertion sequence), so equal expiries keep submission order.

package concurrency

import (
	"container/heap"
	"sync"
	"time"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/internal/clock"
)

// MinInterval is the smallest re-arm period accepted for repeating timers.
const MinInterval = time.Millisecond

// TimerID identifies a scheduled entry. Zero is never issued.
type TimerID = api.TimerID

// TimerEntry is one scheduled or interval callback.
type TimerEntry struct {
	ID       TimerID
	Expiry   time.Time
	Interval time.Duration
	Repeat   bool
	Fn       func()

	seq   uint64
	index int
}

type timerHeap []*TimerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].Expiry.Equal(h[j].Expiry) {
		return h[i].seq < h[j].seq
	}
	return h[i].Expiry.Before(h[j].Expiry)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	e := x.(*TimerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// TimerTable is safe for concurrent use.
type TimerTable struct {
	mu     sync.Mutex
	heap   timerHeap
	byID   map[TimerID]*TimerEntry
	nextID uint64
	seq    uint64
	wake   chan struct{}
}

// NewTimerTable creates an empty table.
func NewTimerTable() *TimerTable {
	return &TimerTable{
		byID: make(map[TimerID]*TimerEntry),
		wake: make(chan struct{}, 1),
	}
}

// Schedule registers fn to run after delay; repeat re-arms it every delay.
func (t *TimerTable) Schedule(delay time.Duration, fn func(), repeat bool) TimerID {
	if delay < 0 {
		delay = 0
	}
	if repeat && delay < MinInterval {
		delay = MinInterval
	}
	t.mu.Lock()
	t.nextID++
	t.seq++
	e := &TimerEntry{
		ID:       TimerID(t.nextID),
		Expiry:   clock.Now().Add(delay),
		Interval: delay,
		Repeat:   repeat,
		Fn:       fn,
		seq:      t.seq,
	}
	heap.Push(&t.heap, e)
	t.byID[e.ID] = e
	top := t.heap[0] == e
	t.mu.Unlock()
	if top {
		t.notify()
	}
	return e.ID
}

// Cancel removes a not-yet-fired entry. It reports whether one was removed.
func (t *TimerTable) Cancel(id TimerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[id]
	if !ok {
		return false
	}
	delete(t.byID, id)
	if e.index >= 0 {
		heap.Remove(&t.heap, e.index)
	}
	return true
}

// Fire pops every entry expired at now and passes its callback to handoff.
// Repeating entries are re-armed at now+Interval under the same lock, so a
// concurrent Cancel either removes the next round or loses to this one.
func (t *TimerTable) Fire(now time.Time, handoff func(fn func())) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	fired := 0
	for len(t.heap) > 0 && !t.heap[0].Expiry.After(now) {
		e := heap.Pop(&t.heap).(*TimerEntry)
		handoff(e.Fn)
		fired++
		if e.Repeat {
			t.seq++
			e.seq = t.seq
			e.Expiry = now.Add(e.Interval)
			heap.Push(&t.heap, e)
			continue
		}
		delete(t.byID, e.ID)
	}
	return fired
}

// Next returns the nearest expiry.
func (t *TimerTable) Next() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.heap) == 0 {
		return time.Time{}, false
	}
	return t.heap[0].Expiry, true
}

// Len returns the number of pending entries.
func (t *TimerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.heap)
}

// Clear drops every pending entry.
func (t *TimerTable) Clear() {
	t.mu.Lock()
	t.heap = nil
	t.byID = make(map[TimerID]*TimerEntry)
	t.mu.Unlock()
	t.notify()
}

// Wakeup is signalled whenever the nearest expiry moves earlier.
func (t *TimerTable) Wakeup() <-chan struct{} {
	return t.wake
}

func (t *TimerTable) notify() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}
