// Package api
// Author: momentics
//
// Executor contract for plain task dispatch.

package api

// Executor abstracts parallel task execution.
type Executor interface {
	// Submit schedules task for execution.
	Submit(task func()) error

	// NumWorkers returns the number of workers running tasks.
	NumWorkers() int
}
