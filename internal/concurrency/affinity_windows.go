//go:build windows

// File: internal/concurrency/affinity_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows thread identity and CPU pinning for the current OS thread.

package concurrency

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/windows"
)

var (
	modkernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procSetThreadAffinityMask = modkernel32.NewProc("SetThreadAffinityMask")
	procGetCurrentThread      = modkernel32.NewProc("GetCurrentThread")
)

func platformThreadID() int {
	return int(windows.GetCurrentThreadId())
}

// platformPinCurrentThread pins the current OS thread to the specified CPU.
func platformPinCurrentThread(cpuID int) error {
	if cpuID >= 64 {
		return errors.Newf("SetThreadAffinityMask: cpu %d outside the 64-bit mask", cpuID)
	}
	handle, _, _ := procGetCurrentThread.Call()
	mask := uintptr(1) << uint(cpuID)
	old, _, err := procSetThreadAffinityMask.Call(handle, mask)
	if old == 0 {
		return errors.Wrap(err, "SetThreadAffinityMask")
	}
	return nil
}

// platformUnpinCurrentThread resets affinity to all CPUs.
func platformUnpinCurrentThread() error {
	handle, _, _ := procGetCurrentThread.Call()
	total := NumCPUs()
	if total <= 0 {
		total = 1
	}
	if total > 63 {
		total = 63
	}
	mask := (uintptr(1) << uint(total)) - 1
	old, _, err := procSetThreadAffinityMask.Call(handle, mask)
	if old == 0 {
		return errors.Wrap(err, "SetThreadAffinityMask(unpin)")
	}
	return nil
}
