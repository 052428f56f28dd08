// File: scheduler/default.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package scheduler

var defaultScheduler = New()

// Default returns the process-wide scheduler for boundary call sites.
func Default() *Scheduler { return defaultScheduler }
