//go:build !(linux || darwin || freebsd || netbsd || openbsd || windows)

// File: internal/sysmem/sysmem_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platforms without anonymous mappings serve every block from the Go heap.

package sysmem

import "github.com/cockroachdb/errors"

// ErrUnsupported signals that the platform has no mapping primitive.
var ErrUnsupported = errors.New("sysmem: mappings not supported")

// PageSize is the assumed page size.
var PageSize = 4096

func platformMap(size int) ([]byte, error) { return nil, ErrUnsupported }

func platformUnmap(b []byte) error { return ErrUnsupported }
