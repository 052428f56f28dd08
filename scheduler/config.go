// File: scheduler/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package scheduler

import (
	"runtime"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/fiber"
)

// Config is the run configuration supplied to Start. Zero thread counts
// are derived from Cores.
type Config struct {
	// Cores is the core count thread defaults derive from. Zero means
	// runtime.NumCPU().
	Cores int `yaml:"cores"`

	CoroutineThreads int `yaml:"coroutineThreads"`
	TaskThreads      int `yaml:"taskThreads"`
	// TimerThreads is 0 or 1: a single timer worker serves every entry.
	TimerThreads int `yaml:"timerThreads"`

	// FiberStackSize is the scratch buffer each fiber gets from Memory.
	FiberStackSize int `yaml:"fiberStackSize"`
	// MaxFibers bounds the live fibers of one coroutine worker.
	MaxFibers int `yaml:"maxFibers"`
	// PollTimeout bounds every idle wait.
	PollTimeout time.Duration `yaml:"pollTimeout"`
	// TaskBatch is the most tasks a task worker takes per wake.
	TaskBatch int `yaml:"taskBatch"`

	// Parallel enables worker threads; otherwise the scheduler runs inline.
	Parallel bool `yaml:"parallel"`
	// Daemon runs the timer loop on the goroutine calling Start until
	// KeepAlive reports false or Stop is called.
	Daemon bool `yaml:"daemon"`
	// PinThreads restricts each worker thread to one CPU.
	PinThreads bool `yaml:"pinThreads"`

	KeepAlive func() bool `yaml:"-"`
	// Memory serves fiber scratch buffers. Nil means memory.Default().
	Memory api.Memory `yaml:"-"`
}

// DefaultConfig returns a parallel configuration sized to this machine.
func DefaultConfig() Config {
	return Config{
		FiberStackSize: fiber.DefaultStackSize,
		MaxFibers:      1024,
		PollTimeout:    100 * time.Millisecond,
		TaskBatch:      32,
		Parallel:       true,
	}
}

// Normalized fills derived fields: cores, then one fifth of them (at least
// one) for coroutines, the rest but one (at least one) for tasks and a
// single timer thread.
func (c Config) Normalized() Config {
	if c.Cores <= 0 {
		c.Cores = runtime.NumCPU()
	}
	if c.CoroutineThreads == 0 {
		c.CoroutineThreads = max(1, c.Cores/5)
	}
	if c.TaskThreads == 0 {
		c.TaskThreads = max(1, c.Cores-c.CoroutineThreads-1)
	}
	if c.TimerThreads == 0 {
		c.TimerThreads = 1
	}
	d := DefaultConfig()
	if c.FiberStackSize == 0 {
		c.FiberStackSize = d.FiberStackSize
	}
	if c.MaxFibers == 0 {
		c.MaxFibers = d.MaxFibers
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.TaskBatch == 0 {
		c.TaskBatch = d.TaskBatch
	}
	return c
}

// Validate checks a normalized configuration.
func (c Config) Validate() error {
	invalid := func(field string, v any) error {
		return errors.Wrapf(api.ErrInvalidConfig, "scheduler: %s %v", field, v)
	}
	switch {
	case c.Cores < 0:
		return invalid("cores", c.Cores)
	case c.CoroutineThreads < 0:
		return invalid("coroutineThreads", c.CoroutineThreads)
	case c.TaskThreads < 0:
		return invalid("taskThreads", c.TaskThreads)
	case c.TimerThreads < 0 || c.TimerThreads > 1:
		return invalid("timerThreads", c.TimerThreads)
	case c.FiberStackSize < 0:
		return invalid("fiberStackSize", c.FiberStackSize)
	case c.MaxFibers < 0:
		return invalid("maxFibers", c.MaxFibers)
	case c.PollTimeout < 0:
		return invalid("pollTimeout", c.PollTimeout)
	case c.TaskBatch < 0:
		return invalid("taskBatch", c.TaskBatch)
	case c.Daemon && !c.Parallel:
		return errors.Wrap(api.ErrInvalidConfig, "scheduler: daemon mode requires parallel")
	}
	return nil
}
