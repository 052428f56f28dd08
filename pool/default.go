// File: pool/default.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

var (
	defaultOnce  sync.Once
	defaultAlloc *Allocator
)

// Default returns a process-wide pooled allocator built from DefaultConfig,
// so independent components share pages instead of fragmenting them.
func Default() *Allocator {
	defaultOnce.Do(func() {
		defaultAlloc = New(DefaultConfig())
	})
	return defaultAlloc
}
