// File: scheduler/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler lifecycle and submission surface.

package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/cpu"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/fiber"
	"github.com/momentics/hioload-rt/internal/clock"
	"github.com/momentics/hioload-rt/internal/concurrency"
	"github.com/momentics/hioload-rt/internal/logging"
)

const (
	stateStopped int32 = iota
	stateRunning
	stateStopping
)

// counters are bumped by different workers; keep them on separate lines.
type counters struct {
	tasksRun    atomic.Uint64
	_           cpu.CacheLinePad
	timersFired atomic.Uint64
	_           cpu.CacheLinePad
	dispatches  atomic.Uint64
	_           cpu.CacheLinePad
	coroutines  atomic.Uint64
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Active           bool
	Parallel         bool
	Suspended        bool
	Workers          map[Class]int
	QueuedTasks      int
	QueuedCoroutines int
	PendingTimers    int
	LiveFibers       int
	TasksRun         uint64
	TimersFired      uint64
	Dispatches       uint64
	Coroutines       uint64
}

// Scheduler runs tasks, coroutines and timers on per-class workers.
type Scheduler struct {
	mu     sync.Mutex // guards cfg, workers and the latches
	stopMu sync.Mutex // serializes complete
	state  atomic.Int32
	cfg    Config

	tasks  *concurrency.TaskQueue[func()]
	coros  *concurrency.TaskQueue[fiber.Func]
	timers *concurrency.TimerTable
	gate   gate

	workers []*Worker
	inline  atomic.Pointer[Worker]
	wg      sync.WaitGroup
	done    chan struct{}
	stopped chan struct{}

	stats counters
	log   *logging.Logger
}

var _ api.Scheduler = (*Scheduler)(nil)

// New returns a stopped scheduler. Submissions made before Start are kept.
func New() *Scheduler {
	s := &Scheduler{
		tasks:  concurrency.NewTaskQueue[func()](),
		coros:  concurrency.NewTaskQueue[fiber.Func](),
		timers: concurrency.NewTimerTable(),
		log:    logging.New("scheduler"),
	}
	s.gate.init()
	return s
}

// Start launches the workers described by cfg. In daemon mode Start runs
// the timer loop itself and returns once the scheduler has stopped.
func (s *Scheduler) Start(cfg Config) error {
	if s.state.Load() != stateStopped {
		return errors.Wrap(api.ErrAlreadyStarted, "scheduler: start")
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state.Load() != stateStopped {
		s.mu.Unlock()
		return errors.Wrap(api.ErrAlreadyStarted, "scheduler: start")
	}
	s.cfg = cfg
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	s.gate.reset()

	if !cfg.Parallel {
		s.startInline()
		s.state.Store(stateRunning)
		s.mu.Unlock()
		s.log.Infof("started in immediate mode")
		return nil
	}

	var daemon *Worker
	global := 0
	if cfg.TimerThreads > 0 {
		w := newWorker(s, Timer, global, 0)
		global++
		s.workers = append(s.workers, w)
		if cfg.Daemon {
			w.Daemon = true
			daemon = w
		} else {
			s.spawn(w, s.runTimer)
		}
	}
	for i := 0; i < cfg.CoroutineThreads; i++ {
		w := newWorker(s, Coroutine, global, i)
		global++
		s.workers = append(s.workers, w)
		s.spawn(w, s.runCoroutine)
	}
	for i := 0; i < cfg.TaskThreads; i++ {
		w := newWorker(s, Task, global, i)
		global++
		s.workers = append(s.workers, w)
		s.spawn(w, s.runTask)
	}
	s.state.Store(stateRunning)
	s.mu.Unlock()
	s.log.Infof("started: coroutine=%d task=%d timer=%d daemon=%v",
		cfg.CoroutineThreads, cfg.TaskThreads, cfg.TimerThreads, cfg.Daemon)

	if daemon != nil {
		s.bind(daemon)
		s.runTimer(daemon)
		s.unbind(daemon)
		s.Stop()
	}
	return nil
}

func (s *Scheduler) startInline() {
	w := newWorker(s, Coroutine, 0, 0)
	// NewHost locks the caller to its thread.
	w.host = fiber.NewHost(fiber.Options{
		Name:      "inline",
		StackSize: s.cfg.FiberStackSize,
		Memory:    s.cfg.Memory,
		OnWake:    w.signal,
	})
	w.tid.Store(int64(concurrency.ThreadID()))
	current.Set(w)
	s.inline.Store(w)
}

func (s *Scheduler) stopping() bool { return s.state.Load() != stateRunning }

// initiate moves a running scheduler to stopping. Only the first caller
// wins.
func (s *Scheduler) initiate() bool {
	if !s.state.CompareAndSwap(stateRunning, stateStopping) {
		return false
	}
	close(s.done)
	s.log.Infof("stop requested")
	return true
}

// reentrant reports whether the caller runs on one of s's workers or fibers.
func (s *Scheduler) reentrant() bool {
	w := CurrentWorker()
	if w == nil || w.sched != s {
		return false
	}
	if w == s.inline.Load() {
		return w.host.Current() != nil
	}
	return true
}

// Stop shuts the scheduler down and joins its non-daemon workers. Called
// from a worker or fiber of this scheduler it only initiates shutdown;
// Wait joins later. In immediate mode a call from a thread other than the
// one that started the scheduler also only initiates; the next Poll or Wait
// on the starting thread completes it. Queued tasks still run; unstarted
// coroutines are dropped, live fibers destroyed and timers cleared.
func (s *Scheduler) Stop() {
	if s.reentrant() || s.offOwner() {
		if s.initiate() && s.inline.Load() == nil {
			go s.complete()
		}
		return
	}
	s.initiate()
	s.complete()
}

// offOwner reports whether immediate mode is running and the caller is not
// on the thread owning the inline worker.
func (s *Scheduler) offOwner() bool {
	w := s.inline.Load()
	return w != nil && concurrency.EffectiveThreadID() != w.ThreadID()
}

// complete joins the workers without holding mu, so workers may still read
// stats or config while they drain.
func (s *Scheduler) complete() {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.state.Load() != stateStopping {
		return
	}
	s.wg.Wait()
	if w := s.inline.Load(); w != nil {
		if n := w.host.Close(); n > 0 {
			s.log.Infof("inline host destroyed %d live fiber(s)", n)
		}
		current.Clear()
		s.inline.Store(nil)
	}
	if n := len(s.coros.Drain()); n > 0 {
		s.log.Infof("dropped %d unstarted coroutine(s)", n)
	}
	if n := len(s.tasks.Drain()); n > 0 {
		s.log.Infof("dropped %d late task(s)", n)
	}
	s.timers.Clear()
	s.mu.Lock()
	s.workers = nil
	stopped := s.stopped
	s.state.Store(stateStopped)
	s.mu.Unlock()
	close(stopped)
	s.log.Infof("stopped")
}

// Wait blocks until a stop initiated from inside the scheduler completes.
// In immediate mode it completes the stop on the calling thread.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	stopped, done, inline := s.stopped, s.done, s.inline.Load() != nil
	s.mu.Unlock()
	if stopped == nil {
		return
	}
	if inline && !s.reentrant() && !s.offOwner() {
		<-done
		s.complete()
	}
	<-stopped
}

// SetTask runs fn on a task worker, or inline in immediate mode.
func (s *Scheduler) SetTask(fn func()) {
	if s.inlineWorker() != nil {
		s.stats.tasksRun.Add(1)
		fn()
		return
	}
	s.tasks.Push(fn)
}

// SetCoroutine runs fn as a fiber on a coroutine worker. In immediate mode
// it runs on the calling thread until the fiber first suspends.
func (s *Scheduler) SetCoroutine(fn fiber.Func) {
	s.stats.coroutines.Add(1)
	if w := s.inlineWorker(); w != nil {
		h := w.host
		if h.Alive() < s.cfg.MaxFibers {
			h.Execute(h.Pop(fn))
			return
		}
	}
	s.coros.Push(fn)
}

func (s *Scheduler) inlineWorker() *Worker {
	if s.state.Load() != stateRunning {
		return nil
	}
	return s.inline.Load()
}

// SetTimeout runs fn once after delay.
func (s *Scheduler) SetTimeout(delay time.Duration, fn func()) api.TimerID {
	return s.timers.Schedule(delay, fn, false)
}

// SetInterval runs fn every interval until cleared. Each round is armed
// from the moment the previous one fired.
func (s *Scheduler) SetInterval(interval time.Duration, fn func()) api.TimerID {
	return s.timers.Schedule(interval, fn, true)
}

// ClearTimeout cancels a pending timer. It loses to a concurrent fire.
func (s *Scheduler) ClearTimeout(id api.TimerID) bool {
	return s.timers.Cancel(id)
}

// Poll drives immediate mode: it runs due timers, admits queued coroutines
// and dispatches resumed fibers. It reports whether anything ran.
func (s *Scheduler) Poll() bool {
	w := s.inline.Load()
	if w == nil {
		return false
	}
	if s.state.Load() == stateStopping {
		if !s.reentrant() && !s.offOwner() {
			s.complete()
		}
		return false
	}
	if s.gate.paused() {
		return false
	}

	var due []func()
	if n := s.timers.Fire(clock.Now(), func(fn func()) { due = append(due, fn) }); n > 0 {
		s.stats.timersFired.Add(uint64(n))
	}
	progress := false
	for _, fn := range due {
		if s.stopping() {
			break
		}
		s.stats.tasksRun.Add(1)
		fn()
		progress = true
	}

	h := w.host
	for !s.stopping() && h.Alive() < s.cfg.MaxFibers {
		fn, ok := s.coros.TryPop()
		if !ok {
			break
		}
		h.Pop(fn)
	}
	for !s.stopping() && h.Dispatch() {
		s.stats.dispatches.Add(1)
		progress = true
	}
	if !s.stopping() {
		w.alive.Store(int64(h.Alive()))
	}

	if s.state.Load() == stateStopping && !s.reentrant() {
		s.complete()
	}
	return progress
}

// Wakeup nudges every idle worker to re-check its queues.
func (s *Scheduler) Wakeup() {
	s.mu.Lock()
	workers := s.workers
	s.mu.Unlock()
	for _, w := range workers {
		w.signal()
	}
}

// Suspend pauses all workers after their current callback. Submissions
// keep queueing.
func (s *Scheduler) Suspend() {
	s.gate.pause()
	s.log.Debugf("suspended")
}

// Resume releases workers paused by Suspend.
func (s *Scheduler) Resume() {
	s.gate.resume()
	s.log.Debugf("resumed")
}

// IsActive reports whether the scheduler is running.
func (s *Scheduler) IsActive() bool { return s.state.Load() == stateRunning }

// HasAnyTasks reports whether tasks, coroutines, timers or live fibers are
// outstanding.
func (s *Scheduler) HasAnyTasks() bool {
	if s.tasks.Len() > 0 || s.coros.Len() > 0 || s.timers.Len() > 0 {
		return true
	}
	return s.liveFibers() > 0
}

func (s *Scheduler) liveFibers() int {
	s.mu.Lock()
	workers := s.workers
	s.mu.Unlock()
	n := 0
	for _, w := range workers {
		n += int(w.alive.Load())
	}
	if inline := s.inline.Load(); inline != nil {
		n += int(inline.alive.Load())
	}
	return n
}

// Config returns the configuration of the current run.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Workers returns the workers of the current run.
func (s *Scheduler) Workers() []*Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Worker(nil), s.workers...)
}

// Stats returns a snapshot of queues, workers and counters.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		Active:           s.IsActive(),
		Suspended:        s.gate.paused(),
		Workers:          make(map[Class]int),
		QueuedTasks:      s.tasks.Len(),
		QueuedCoroutines: s.coros.Len(),
		PendingTimers:    s.timers.Len(),
		LiveFibers:       s.liveFibers(),
		TasksRun:         s.stats.tasksRun.Load(),
		TimersFired:      s.stats.timersFired.Load(),
		Dispatches:       s.stats.dispatches.Load(),
		Coroutines:       s.stats.coroutines.Load(),
	}
	s.mu.Lock()
	st.Parallel = s.cfg.Parallel && st.Active
	for _, w := range s.workers {
		st.Workers[w.Class]++
	}
	s.mu.Unlock()
	return st
}

// gate blocks workers while the scheduler is suspended.
type gate struct {
	mu     sync.Mutex
	closed bool
	ch     chan struct{}
}

func (g *gate) init() {
	g.ch = make(chan struct{})
	close(g.ch)
}

func (g *gate) reset() {
	g.mu.Lock()
	if g.closed {
		g.closed = false
		close(g.ch)
	}
	g.mu.Unlock()
}

func (g *gate) pause() {
	g.mu.Lock()
	if !g.closed {
		g.closed = true
		g.ch = make(chan struct{})
	}
	g.mu.Unlock()
}

func (g *gate) resume() { g.reset() }

func (g *gate) paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *gate) wait(done <-chan struct{}) {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()
	select {
	case <-ch:
	case <-done:
	}
}
