// File: scheduler/worker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker identity and the per-class worker loops.

package scheduler

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-rt/fiber"
	"github.com/momentics/hioload-rt/internal/clock"
	"github.com/momentics/hioload-rt/internal/concurrency"
	"github.com/momentics/hioload-rt/internal/fatal"
)

// Class is a workload class.
type Class int

const (
	Coroutine Class = iota
	Task
	Timer
)

func (c Class) String() string {
	switch c {
	case Coroutine:
		return "coroutine"
	case Task:
		return "task"
	case Timer:
		return "timer"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Worker is one OS thread serving a single class.
type Worker struct {
	Class       Class
	GlobalIndex int
	LocalIndex  int
	Daemon      bool

	sched *Scheduler
	host  *fiber.Host
	tid   atomic.Int64
	alive atomic.Int64
	wake  chan struct{}
}

var current = concurrency.NewThreadLocal[*Worker]()

func init() {
	fatal.SetContextLookup(describeCurrent)
}

// CurrentWorker returns the worker running the caller, including callers
// inside a fiber hosted by that worker.
func CurrentWorker() *Worker {
	w, _ := current.Get()
	return w
}

func describeCurrent() string {
	w := CurrentWorker()
	if w == nil {
		return ""
	}
	if w.host != nil {
		if f := w.host.Current(); f != nil {
			return w.String() + "/" + f.Handle().String()
		}
	}
	return w.String()
}

func newWorker(s *Scheduler, class Class, global, local int) *Worker {
	return &Worker{
		Class:       class,
		GlobalIndex: global,
		LocalIndex:  local,
		sched:       s,
		wake:        make(chan struct{}, 1),
	}
}

func (w *Worker) String() string { return fmt.Sprintf("%s#%d", w.Class, w.LocalIndex) }

// ThreadID returns the OS thread the worker runs on, 0 before it started.
func (w *Worker) ThreadID() int { return int(w.tid.Load()) }

// Host returns the fiber host of a coroutine worker.
func (w *Worker) Host() *fiber.Host { return w.host }

// Scheduler returns the owning scheduler.
func (w *Worker) Scheduler() *Scheduler { return w.sched }

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// bind locks the calling goroutine to its thread, pins it when configured
// and publishes w as the thread's current worker.
func (s *Scheduler) bind(w *Worker) {
	cpu := -1
	if s.cfg.PinThreads {
		cpu = w.GlobalIndex
	}
	if err := concurrency.PinCurrentThread(cpu); err != nil {
		s.log.Errorf("pin %s to cpu %d: %v", w, cpu, err)
	}
	w.tid.Store(int64(concurrency.ThreadID()))
	current.Set(w)
	s.log.Debugf("%s started on thread %d", w, w.ThreadID())
}

func (s *Scheduler) unbind(w *Worker) {
	concurrency.ReleaseThread()
	if err := concurrency.UnpinCurrentThread(); err != nil {
		s.log.Errorf("unpin %s: %v", w, err)
	}
	s.log.Debugf("%s exited", w)
}

func (s *Scheduler) spawn(w *Worker, loop func(*Worker)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.bind(w)
		defer s.unbind(w)
		loop(w)
	}()
}

// runTimer fires due entries and hands their callbacks to the task queue.
func (s *Scheduler) runTimer(w *Worker) {
	t := time.NewTimer(s.cfg.PollTimeout)
	defer t.Stop()
	handoff := func(fn func()) { s.tasks.Push(fn) }
	for {
		s.gate.wait(s.done)
		if s.stopping() {
			return
		}
		if w.Daemon && s.cfg.KeepAlive != nil && !s.cfg.KeepAlive() {
			s.log.Infof("%s: keep-alive released", w)
			return
		}
		if n := s.timers.Fire(clock.Now(), handoff); n > 0 {
			s.stats.timersFired.Add(uint64(n))
		}

		wait := s.cfg.PollTimeout
		if next, ok := s.timers.Next(); ok {
			if d := next.Sub(clock.Now()); d < wait {
				wait = d
			}
		}
		if wait <= 0 {
			continue
		}
		t.Reset(wait)
		select {
		case <-s.done:
			return
		case <-s.timers.Wakeup():
		case <-w.wake:
		case <-t.C:
		}
	}
}

// runTask runs queued callbacks in FIFO batches and drains the queue on
// shutdown.
func (s *Scheduler) runTask(w *Worker) {
	batch := make([]func(), 0, s.cfg.TaskBatch)
	for {
		var ok bool
		batch, ok = s.tasks.WaitBatch(batch[:0], s.cfg.TaskBatch, s.cfg.PollTimeout, s.done)
		s.gate.wait(s.done)
		for i, fn := range batch {
			batch[i] = nil
			fn()
		}
		s.stats.tasksRun.Add(uint64(len(batch)))
		if !ok {
			return
		}
	}
}

// runCoroutine turns submissions into fibers while capacity allows and
// dispatches until no fiber makes progress.
func (s *Scheduler) runCoroutine(w *Worker) {
	host := fiber.NewHost(fiber.Options{
		Name:      w.String(),
		StackSize: s.cfg.FiberStackSize,
		Memory:    s.cfg.Memory,
		OnWake:    w.signal,
	})
	w.host = host
	defer func() {
		if n := host.Close(); n > 0 {
			s.log.Infof("%s destroyed %d live fiber(s)", w, n)
		}
		w.alive.Store(0)
	}()

	t := time.NewTimer(s.cfg.PollTimeout)
	defer t.Stop()
	batch := make([]fiber.Func, 0, 64)
	for {
		s.gate.wait(s.done)
		if s.stopping() {
			return
		}
		if spare := s.cfg.MaxFibers - host.Alive(); spare > 0 {
			batch = s.coros.PopBatch(batch[:0], spare)
			for i, fn := range batch {
				batch[i] = nil
				host.Pop(fn)
			}
		}
		for host.Dispatch() {
			s.stats.dispatches.Add(1)
			if s.stopping() {
				return
			}
		}
		w.alive.Store(int64(host.Alive()))

		if host.Runnable() {
			continue
		}
		var ready <-chan struct{}
		if host.Alive() < s.cfg.MaxFibers {
			if s.coros.Len() > 0 {
				continue
			}
			ready = s.coros.Ready()
		}
		t.Reset(s.cfg.PollTimeout)
		select {
		case <-s.done:
			return
		case <-w.wake:
		case <-ready:
		case <-t.C:
		}
	}
}
