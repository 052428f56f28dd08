// File: internal/concurrency/task_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TaskQueue is an unbounded blocking multi-producer/multi-consumer FIFO.
// Storage is an eapache ring deque guarded by a mutex; waiters park on a
// one-slot token channel that is handed on while items remain.

package concurrency

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// TaskQueue is safe for concurrent use.
type TaskQueue[T any] struct {
	mu    sync.Mutex
	items *queue.Queue
	ready chan struct{}
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue[T any]() *TaskQueue[T] {
	return &TaskQueue[T]{
		items: queue.New(),
		ready: make(chan struct{}, 1),
	}
}

func (q *TaskQueue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Push appends v and wakes one waiter.
func (q *TaskQueue[T]) Push(v T) {
	q.mu.Lock()
	q.items.Add(v)
	q.mu.Unlock()
	q.signal()
}

// TryPop removes the oldest item without blocking.
func (q *TaskQueue[T]) TryPop() (T, bool) {
	var zero T
	q.mu.Lock()
	if q.items.Length() == 0 {
		q.mu.Unlock()
		return zero, false
	}
	v := q.items.Remove().(T)
	more := q.items.Length() > 0
	q.mu.Unlock()
	if more {
		q.signal()
	}
	return v, true
}

// PopBatch appends up to max items to dst without blocking, in FIFO order.
func (q *TaskQueue[T]) PopBatch(dst []T, max int) []T {
	if max <= 0 {
		return dst
	}
	q.mu.Lock()
	n := q.items.Length()
	if n > max {
		n = max
	}
	for i := 0; i < n; i++ {
		dst = append(dst, q.items.Remove().(T))
	}
	more := q.items.Length() > 0
	q.mu.Unlock()
	if more {
		q.signal()
	}
	return dst
}

// WaitBatch blocks until at least one item is available, the timeout
// elapses or done is closed, then behaves like PopBatch. After done is
// closed the remaining items are still returned batch by batch; ok turns
// false only once done is closed and the queue is empty.
func (q *TaskQueue[T]) WaitBatch(dst []T, max int, timeout time.Duration, done <-chan struct{}) (batch []T, ok bool) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		batch = q.PopBatch(dst, max)
		if len(batch) > len(dst) {
			return batch, true
		}
		select {
		case <-done:
			return batch, false
		default:
		}
		if timer == nil {
			timer = time.NewTimer(timeout)
		}
		select {
		case <-q.ready:
		case <-done:
		case <-timer.C:
			return batch, true
		}
	}
}

// Ready exposes the wake token for callers multiplexing several sources.
// A receive consumes the token; callers must re-check Len.
func (q *TaskQueue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued items.
func (q *TaskQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Drain removes and returns every queued item.
func (q *TaskQueue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, 0, q.items.Length())
	for q.items.Length() > 0 {
		out = append(out, q.items.Remove().(T))
	}
	return out
}
