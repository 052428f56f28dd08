//go:build windows

// File: internal/sysmem/sysmem_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sysmem

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/windows"
)

// ErrUnsupported signals that the platform has no mapping primitive.
var ErrUnsupported = errors.New("sysmem: mappings not supported")

// PageSize is the OS page size.
var PageSize = windows.Getpagesize()

func platformMap(size int) ([]byte, error) {
	n := (size + PageSize - 1) / PageSize * PageSize
	addr, err := windows.VirtualAlloc(0, uintptr(n), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n), nil
}

func platformUnmap(b []byte) error {
	return windows.VirtualFree(uintptr(unsafe.Pointer(unsafe.SliceData(b))), 0, windows.MEM_RELEASE)
}
