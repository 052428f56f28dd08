//go:build linux || darwin || freebsd || netbsd || openbsd

// File: internal/sysmem/sysmem_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sysmem

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// ErrUnsupported signals that the platform has no mapping primitive.
var ErrUnsupported = errors.New("sysmem: mappings not supported")

// PageSize is the OS page size.
var PageSize = unix.Getpagesize()

func platformMap(size int) ([]byte, error) {
	n := (size + PageSize - 1) / PageSize * PageSize
	return unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func platformUnmap(b []byte) error {
	return unix.Munmap(b)
}
