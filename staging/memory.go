package staging

import (
	"context"
	"io"
)

// DeviceMemory is a fixed-size region of accelerator memory. Implementations need not be
// safe for concurrent use; Buffer serializes every access.
type DeviceMemory interface {
	io.ReaderAt
	// Len is the size of the region in bytes. It never changes.
	Len() int
	// CopyFromHost starts copying src into the region at offset. The copy is only
	// guaranteed complete after Sync returns.
	CopyFromHost(ctx context.Context, offset int, src []byte) error
	// Sync blocks until all copies issued so far have landed.
	Sync(ctx context.Context) error
	// Free releases the region. Using the region after Free is an error.
	Free() error
}

// HostMapped is implemented by device memory that is also addressable from the host, such as
// unified or pinned memory. Engines may read Bytes directly instead of copying out.
type HostMapped interface {
	Bytes() []byte
}
