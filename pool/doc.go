// Package pool
// Author: momentics <momentics@gmail.com>
//
// Pooled allocator for hioload-rt. Same-size requests share pages of
// fixed-size slots; page slot counts adapt to element size and to how hot a
// size class is relative to the others. Idle pages are returned to the
// system allocator once they outlive Config.MinPageLifetime.
// See slab_pool.go for the allocator and config.go for its settings.
package pool
