// File: adapters/affinity_adapter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
// Description:
//   Adapter implementing the api.Affinity interface, delegating to
//   internal concurrency primitives for CPU pinning.
//
// Package adapters provides glue code between the core API contracts
// and the internal implementation.

package adapters

import (
	"github.com/cockroachdb/errors"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/internal/concurrency"
)

// AffinityAdapter implements api.Affinity for the calling thread.
// It is not safe for concurrent use; keep one per pinned goroutine.
type AffinityAdapter struct {
	cpu    int
	pinned bool
}

// NewAffinityAdapter creates an unpinned adapter.
func NewAffinityAdapter() *AffinityAdapter {
	return &AffinityAdapter{cpu: -1}
}

var _ api.Affinity = (*AffinityAdapter)(nil)

// Pin binds the calling thread to cpuID; -1 only locks the OS thread.
func (a *AffinityAdapter) Pin(cpuID int) error {
	if cpuID < -1 {
		return errors.Wrapf(api.ErrInvalidArgument, "affinity: cpu %d", cpuID)
	}
	if a.pinned {
		if err := a.Unpin(); err != nil {
			return err
		}
	}
	if err := concurrency.PinCurrentThread(cpuID); err != nil {
		// the thread lock is held even on failure
		_ = concurrency.UnpinCurrentThread()
		return err
	}
	if cpuID >= 0 {
		cpuID %= concurrency.NumCPUs()
	}
	a.cpu = cpuID
	a.pinned = true
	return nil
}

// Unpin clears the binding, letting the OS migrate the thread again.
func (a *AffinityAdapter) Unpin() error {
	if !a.pinned {
		return nil
	}
	a.pinned = false
	a.cpu = -1
	return concurrency.UnpinCurrentThread()
}

// Get returns the bound CPU.
func (a *AffinityAdapter) Get() (cpuID int, pinned bool) {
	return a.cpu, a.pinned
}
