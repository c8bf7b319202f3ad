//go:build unix

package staging

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

var pageSize = unix.Getpagesize()

// PageSize returns the system page size.
func PageSize() int {
	return pageSize
}

func roundUpToPageSize(size int) int {
	return (size + pageSize - 1) &^ (pageSize - 1)
}

// allocHost maps anonymous memory so the region starts on a page boundary, which DMA
// engines require, and locks it when the process is allowed to.
func allocHost(size int) ([]byte, bool, func() error, error) {
	region, err := unix.Mmap(-1, 0, roundUpToPageSize(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, false, nil, errors.Wrap(err, "mmap")
	}
	pinned := unix.Mlock(region) == nil
	unmap := func() error {
		var err error
		if pinned {
			err = multierr.Append(err, errors.Wrap(unix.Munlock(region), "munlock"))
		}
		return multierr.Append(err, errors.Wrap(unix.Munmap(region), "munmap"))
	}
	return region, pinned, unmap, nil
}
