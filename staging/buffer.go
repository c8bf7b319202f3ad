// Package staging owns the fixed-size device buffer that receives each cycle's camera
// images in channel-planar layout.
//
// The buffer holds N images, each stored as three w×h planes, concatenated in camera order:
//
//	[cam0 c0][cam0 c1][cam0 c2][cam1 c0]...
//
// A single token guards it. Stage takes the token while repacking and copying, and Lend
// hands the token to a reader until the Lease is released, so a frame is never overwritten
// while an engine reads it and never read while a copy is in flight.
package staging

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/bevdet/logging"
)

// Capacity returns the number of bytes needed for numCameras images of width×height.
func Capacity(numCameras, width, height int) int {
	return numCameras * 3 * width * height
}

// Buffer is the staging buffer. It must be created with NewBuffer.
type Buffer struct {
	mem        DeviceMemory
	numCameras int
	width      int
	height     int
	order      ChannelOrder
	logger     logging.Logger

	token chan struct{}

	// guarded by token
	scratch    []byte
	staged     bool
	closed     bool
	generation uint64

	leased    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewBuffer takes ownership of mem, which must be exactly Capacity(numCameras, width, height)
// bytes long.
func NewBuffer(
	mem DeviceMemory,
	numCameras, width, height int,
	order ChannelOrder,
	logger logging.Logger,
) (*Buffer, error) {
	if numCameras <= 0 || width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid buffer shape %d cameras of %dx%d", numCameras, width, height)
	}
	capacity := Capacity(numCameras, width, height)
	if mem.Len() != capacity {
		return nil, errors.Errorf("device memory is %d bytes, buffer needs %d", mem.Len(), capacity)
	}
	b := &Buffer{
		mem:        mem,
		numCameras: numCameras,
		width:      width,
		height:     height,
		order:      order,
		logger:     logger,
		token:      make(chan struct{}, 1),
		scratch:    make([]byte, capacity),
	}
	b.token <- struct{}{}
	return b, nil
}

// NewHostBuffer allocates host staging memory and wraps it in a Buffer.
func NewHostBuffer(numCameras, width, height int, order ChannelOrder, logger logging.Logger) (*Buffer, error) {
	if numCameras <= 0 || width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid buffer shape %d cameras of %dx%d", numCameras, width, height)
	}
	mem, err := NewHostMemory(Capacity(numCameras, width, height), logger)
	if err != nil {
		return nil, err
	}
	return NewBuffer(mem, numCameras, width, height, order, logger)
}

// Shape returns the buffer's tensor shape: cameras, channels, height, width.
func (b *Buffer) Shape() (int, int, int, int) {
	return b.numCameras, 3, b.height, b.width
}

// Len returns the capacity in bytes.
func (b *Buffer) Len() int {
	return b.mem.Len()
}

// Order returns the channel order of the planes.
func (b *Buffer) Order() ChannelOrder {
	return b.order
}

func (b *Buffer) acquire(ctx context.Context) error {
	select {
	case <-b.token:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Buffer) release() {
	b.token <- struct{}{}
}

// CheckShape returns a ShapeMismatchError if images cannot be staged.
func (b *Buffer) CheckShape(images []image.Image) error {
	if len(images) != b.numCameras {
		return &ShapeMismatchError{WantCount: b.numCameras, GotCount: len(images), Camera: -1}
	}
	want := image.Pt(b.width, b.height)
	for i, img := range images {
		var got image.Point
		if img != nil {
			got = img.Bounds().Size()
		}
		if img == nil || got != want {
			return &ShapeMismatchError{WantCount: b.numCameras, GotCount: len(images), Camera: i, Want: want, Got: got}
		}
		if detail := checkPixels(img); detail != "" {
			return &ShapeMismatchError{
				WantCount: b.numCameras, GotCount: len(images), Camera: i, Want: want, Got: got, Detail: detail,
			}
		}
	}
	return nil
}

// Stage converts images into the device buffer. Either all images are staged or, on a
// shape mismatch, the buffer keeps its previous contents. Stage waits for any outstanding
// Lease to be released.
func (b *Buffer) Stage(ctx context.Context, images []image.Image) error {
	if err := b.CheckShape(images); err != nil {
		return err
	}
	if err := b.acquire(ctx); err != nil {
		return errors.Wrap(err, "waiting for staging buffer")
	}
	defer b.release()
	if b.closed {
		return ErrClosed
	}

	start := time.Now()
	plane := 3 * b.width * b.height
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			repack(b.scratch[i*plane:(i+1)*plane], img, b.order)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// scratch is host-side only; the device still holds the previous frame
		return errors.Wrap(err, "repacking images")
	}
	packed := time.Now()

	// from here on a failure may leave the device region partially written
	b.staged = false
	if err := b.mem.CopyFromHost(ctx, 0, b.scratch); err != nil {
		return errors.Wrap(err, "copying frame to device")
	}
	if err := b.mem.Sync(ctx); err != nil {
		return errors.Wrap(err, "waiting for device copy")
	}
	b.staged = true
	b.generation++
	b.logger.Debugw("staged frame",
		"generation", b.generation,
		"bytes", len(b.scratch),
		"repack", packed.Sub(start),
		"copy", time.Since(packed))
	return nil
}

// Lease is read access to the staged frame. The buffer cannot be restaged until Release
// is called.
type Lease struct {
	buf        *Buffer
	generation uint64
	once       sync.Once
}

// Lend returns a Lease on the most recently staged frame.
func (b *Buffer) Lend(ctx context.Context) (*Lease, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, errors.Wrap(err, "waiting for staging buffer")
	}
	if b.closed {
		b.release()
		return nil, ErrClosed
	}
	if !b.staged {
		b.release()
		return nil, ErrNotStaged
	}
	b.leased.Store(true)
	return &Lease{buf: b, generation: b.generation}, nil
}

// Leased reports whether a Lease is outstanding.
func (b *Buffer) Leased() bool {
	return b.leased.Load()
}

// Release returns the buffer. Calling it more than once is a no-op.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.buf.leased.Store(false)
		l.buf.release()
	})
}

// Generation counts successful Stage calls; it identifies the leased frame.
func (l *Lease) Generation() uint64 {
	return l.generation
}

// Shape returns cameras, channels, height, width.
func (l *Lease) Shape() (int, int, int, int) {
	return l.buf.Shape()
}

// Order returns the channel order of the planes.
func (l *Lease) Order() ChannelOrder {
	return l.buf.order
}

// Memory returns the device memory holding the frame.
func (l *Lease) Memory() DeviceMemory {
	return l.buf.mem
}

// Bytes returns the frame as host bytes. For host-mapped memory this is the buffer itself
// and must not be modified or retained after Release; otherwise it is a copy.
func (l *Lease) Bytes() ([]byte, error) {
	if hm, ok := l.buf.mem.(HostMapped); ok {
		return hm.Bytes(), nil
	}
	out := make([]byte, l.buf.mem.Len())
	if _, err := l.buf.mem.ReadAt(out, 0); err != nil {
		return nil, errors.Wrap(err, "reading staged frame")
	}
	return out, nil
}

// Digest hashes the device buffer contents. It waits for any in-flight Stage or Lease.
func (b *Buffer) Digest(ctx context.Context) (uint64, error) {
	if err := b.acquire(ctx); err != nil {
		return 0, errors.Wrap(err, "waiting for staging buffer")
	}
	defer b.release()
	if b.closed {
		return 0, ErrClosed
	}
	out := make([]byte, b.mem.Len())
	if _, err := b.mem.ReadAt(out, 0); err != nil {
		return 0, errors.Wrap(err, "reading staging buffer")
	}
	return xxhash.Sum64(out), nil
}

// Close frees the device memory exactly once. It waits for an outstanding Lease; if ctx
// ends first the memory is not freed and Close may be called again.
func (b *Buffer) Close(ctx context.Context) error {
	if err := b.acquire(ctx); err != nil {
		return errors.Wrap(err, "waiting for staging buffer before close")
	}
	defer b.release()
	b.closeOnce.Do(func() {
		b.closed = true
		b.staged = false
		b.closeErr = b.mem.Free()
		b.logger.Debugw("freed staging memory", "bytes", b.mem.Len())
	})
	return b.closeErr
}
