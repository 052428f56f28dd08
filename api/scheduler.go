// Package api
// Author: momentics
//
// Scheduler contract for task, coroutine and timer submission.

package api

import "time"

// TimerID identifies a pending timeout or interval. Zero is never issued.
type TimerID uint64

// Scheduler is the submission and lifecycle surface consumed by the other
// subsystems. Coroutine submission is typed by the fiber package and lives
// on the concrete scheduler.
type Scheduler interface {
	// SetTask queues fn for a task worker, or runs it inline in immediate mode.
	SetTask(fn func())

	// SetTimeout runs fn once, no earlier than delay from now.
	SetTimeout(delay time.Duration, fn func()) TimerID

	// SetInterval runs fn every interval until cleared.
	SetInterval(interval time.Duration, fn func()) TimerID

	// ClearTimeout cancels a pending timer; it loses to a concurrent fire.
	ClearTimeout(id TimerID) bool

	Wakeup()
	Suspend()
	Resume()
	Stop()
	IsActive() bool
	HasAnyTasks() bool
}
