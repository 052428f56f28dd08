// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for hioload-rt: OS thread identity and pinning,
// thread-local slots, the blocking per-class TaskQueue and the TimerTable
// backing the scheduler's timer class.
//
// Thread id and affinity are implemented per platform (Linux/Windows) with a
// no-op fallback elsewhere.
package concurrency
