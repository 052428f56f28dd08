// Package api
// Author: momentics@gmail.com
//
// CPU affinity and thread pinning.

package api

// Affinity controls which CPU the calling OS thread runs on.
type Affinity interface {
	// Pin locks the calling goroutine to its OS thread and binds that thread
	// to cpuID.
	Pin(cpuID int) error
	// Unpin removes the binding and releases the OS thread.
	Unpin() error
	// Get returns the bound CPU, or -1 and false when unpinned.
	Get() (cpuID int, pinned bool)
}
