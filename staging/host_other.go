//go:build !unix

package staging

import (
	"os"
	"unsafe"
)

var pageSize = os.Getpagesize()

// PageSize returns the system page size.
func PageSize() int {
	return pageSize
}

func allocHost(size int) ([]byte, bool, func() error, error) {
	raw := make([]byte, size+pageSize)
	offset := pageSize - int(uintptr(unsafe.Pointer(&raw[0]))%uintptr(pageSize))
	return raw[offset : offset+size], false, func() error { return nil }, nil
}
