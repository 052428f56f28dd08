//go:build !linux && !windows

// File: internal/concurrency/affinity_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fallback for platforms without thread id or affinity queries. All threads
// report id 0, so thread-local slots degrade to process-wide slots.

package concurrency

func platformThreadID() int { return 0 }

func platformPinCurrentThread(cpuID int) error { return nil }

func platformUnpinCurrentThread() error { return nil }
