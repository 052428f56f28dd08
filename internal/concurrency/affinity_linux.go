//go:build linux

// File: internal/concurrency/affinity_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux thread identity and affinity through sched_setaffinity, no cgo needed.

package concurrency

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

func platformThreadID() int {
	return unix.Gettid()
}

// platformPinCurrentThread binds the calling OS thread to cpuID.
func platformPinCurrentThread(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return errors.Wrapf(err, "sched_setaffinity(cpu=%d)", cpuID)
	}
	return nil
}

// platformUnpinCurrentThread allows the thread on every CPU again.
func platformUnpinCurrentThread() error {
	var set unix.CPUSet
	set.Zero()
	for i := 0; i < NumCPUs(); i++ {
		set.Set(i)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return errors.Wrap(err, "sched_setaffinity(unpin)")
	}
	return nil
}
