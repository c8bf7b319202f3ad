package staging

import (
	"context"
	"io"
	"sync"

	"github.com/docker/go-units"
	"github.com/pkg/errors"

	"go.viam.com/bevdet/logging"
)

// errMemoryFreed is returned by HostMemory once it has been freed.
var errMemoryFreed = errors.New("device memory already freed")

// HostMemory is a DeviceMemory backed by page-aligned host memory. It stands in for pinned
// staging memory on machines without an accelerator and is what the CPU engines read.
type HostMemory struct {
	mu     sync.Mutex
	region []byte
	size   int
	pinned bool
	unmap  func() error
	logger logging.Logger
}

// NewHostMemory allocates size bytes of page-aligned host memory and tries to lock it into RAM.
func NewHostMemory(size int, logger logging.Logger) (*HostMemory, error) {
	if size <= 0 {
		return nil, errors.Errorf("device memory size must be positive, got %d", size)
	}
	region, pinned, unmap, err := allocHost(size)
	if err != nil {
		return nil, errors.Wrapf(err, "allocating %d bytes of staging memory", size)
	}
	m := &HostMemory{region: region[:size], size: size, pinned: pinned, unmap: unmap, logger: logger}
	logger.Infow("allocated staging memory",
		"size", units.BytesSize(float64(size)),
		"mapped", units.BytesSize(float64(len(region))),
		"page_size", PageSize(),
		"pinned", pinned)
	return m, nil
}

// Len returns the size in bytes.
func (m *HostMemory) Len() int {
	return m.size
}

// Pinned reports whether the region is locked into RAM.
func (m *HostMemory) Pinned() bool {
	return m.pinned
}

// CopyFromHost copies synchronously; Sync is a no-op.
func (m *HostMemory) CopyFromHost(ctx context.Context, offset int, src []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.region == nil {
		return errMemoryFreed
	}
	if offset < 0 || offset+len(src) > m.size {
		return errors.Errorf("copy of %d bytes at offset %d exceeds device memory of %d bytes", len(src), offset, m.size)
	}
	copy(m.region[offset:], src)
	return nil
}

// Sync returns immediately because copies are synchronous.
func (m *HostMemory) Sync(ctx context.Context) error {
	return ctx.Err()
}

// ReadAt implements io.ReaderAt.
func (m *HostMemory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.region == nil {
		return 0, errMemoryFreed
	}
	if off < 0 || off > int64(m.size) {
		return 0, errors.Errorf("read offset %d outside device memory of %d bytes", off, m.size)
	}
	n := copy(p, m.region[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Bytes returns the region itself. It is nil after Free.
func (m *HostMemory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.region
}

// Free unmaps the region. A second call returns an error.
func (m *HostMemory) Free() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.region == nil {
		return errMemoryFreed
	}
	m.region = nil
	return m.unmap()
}
