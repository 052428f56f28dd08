// File: adapters/executor_adapter.go
// Package adapters provides glue between the scheduler and api.Executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ExecutorAdapter implements api.Executor on top of a scheduler's task
// workers.

package adapters

import (
	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/scheduler"
)

// ExecutorAdapter wraps a scheduler to satisfy the api.Executor contract.
type ExecutorAdapter struct {
	sched *scheduler.Scheduler
	wrap  func(func()) func()
}

var _ api.Executor = (*ExecutorAdapter)(nil)

// NewExecutorAdapter wraps s. The scheduler's lifecycle stays with the caller.
func NewExecutorAdapter(s *scheduler.Scheduler) *ExecutorAdapter {
	return &ExecutorAdapter{sched: s}
}

// WithTaskWrapper decorates every submitted task, e.g. to trace it.
func (ea *ExecutorAdapter) WithTaskWrapper(wrap func(func()) func()) *ExecutorAdapter {
	ea.wrap = wrap
	return ea
}

// Submit queues task on a task worker. It fails once the scheduler stops.
func (ea *ExecutorAdapter) Submit(task func()) error {
	if task == nil {
		return api.ErrInvalidArgument
	}
	if !ea.sched.IsActive() {
		return api.ErrNotStarted
	}
	if ea.wrap != nil {
		task = ea.wrap(task)
	}
	ea.sched.SetTask(task)
	return nil
}

// NumWorkers returns the number of task workers. In immediate mode the
// caller's thread counts as the single worker.
func (ea *ExecutorAdapter) NumWorkers() int {
	if !ea.sched.IsActive() {
		return 0
	}
	cfg := ea.sched.Config()
	if !cfg.Parallel {
		return 1
	}
	return cfg.TaskThreads
}
