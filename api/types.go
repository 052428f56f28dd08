// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations.

package api

import "time"

// ServiceInfo exposes descriptive runtime info for external tools.
type ServiceInfo struct {
	Name      string
	Version   string
	ID        string
	Allocator string
	StartedAt time.Time
}
