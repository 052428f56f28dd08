// Package arena
// Author: momentics <momentics@gmail.com>
//
// Bump-region arenas for hioload-rt. Linear hands out memory by advancing a
// free pointer through a chain of regions and only releases it wholesale on
// Reset or FlushRegions. Stack adds a size header per allocation so the most
// recent one can be popped.
//
// Arenas are single-goroutine by contract: share one only with external
// synchronization.
package arena
