// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown groups components that stop cleanly.
type GracefulShutdown interface {
	// Shutdown stops every internal service and releases its resources.
	Shutdown() error
}
