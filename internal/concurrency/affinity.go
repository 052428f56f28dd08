// File: internal/concurrency/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cross-platform OS thread identity and CPU affinity management.
// Worker goroutines lock themselves to an OS thread for their whole lifetime,
// so ThreadID is stable for them and for code they run.

package concurrency

import (
	"runtime"
)

// ThreadID returns the id of the OS thread running the caller.
// The value is only stable while the caller holds runtime.LockOSThread.
// Platforms without a thread id query return 0.
func ThreadID() int {
	return platformThreadID()
}

// PinCurrentThread locks the calling goroutine to its OS thread and, when
// cpuID >= 0, restricts that thread to the given logical CPU.
// The lock is kept even if setting the CPU mask fails.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	if cpuID < 0 {
		return nil
	}
	return platformPinCurrentThread(cpuID % NumCPUs())
}

// UnpinCurrentThread widens the thread's CPU mask back to all CPUs and
// releases the goroutine/thread lock taken by PinCurrentThread.
func UnpinCurrentThread() error {
	defer runtime.UnlockOSThread()
	return platformUnpinCurrentThread()
}

// NumCPUs returns the number of logical CPUs.
func NumCPUs() int {
	return runtime.NumCPU()
}
