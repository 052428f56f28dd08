// File: memory/default.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-wide facade for boundary call sites.

package memory

import "github.com/momentics/hioload-rt/api"

var defaultFacade = NewFacade()

// Default returns the process-wide facade.
func Default() *Facade { return defaultFacade }

// Malloc allocates through the default facade.
func Malloc(size int) []byte {
	return defaultFacade.MallocContext(size, CallerOrigin(1))
}

// MallocContext allocates through the default facade.
func MallocContext(size int, origin api.Origin) []byte {
	return defaultFacade.MallocContext(size, origin)
}

// Free releases through the default facade.
func Free(block []byte) { defaultFacade.Free(block) }

// SetGlobalAllocator installs the process-wide allocator of the default facade.
func SetGlobalAllocator(a api.Allocator) api.Allocator {
	return defaultFacade.SetGlobalAllocator(a)
}

// SetLocalAllocator installs the calling thread's allocator of the default facade.
func SetLocalAllocator(a api.Allocator) { defaultFacade.SetLocalAllocator(a) }

// Watch registers external memory with the default facade.
func Watch(block []byte, origin api.Origin) { defaultFacade.Watch(block, origin) }

// Unwatch drops external memory from the default facade.
func Unwatch(block []byte) { defaultFacade.Unwatch(block) }

// IsValidAddress queries the default facade.
func IsValidAddress(block []byte) bool { return defaultFacade.IsValidAddress(block) }
