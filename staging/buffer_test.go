package staging_test

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/staging"
	"go.viam.com/bevdet/testutils"
)

func newBuffer(t *testing.T, n, w, h int, order staging.ChannelOrder) (*staging.Buffer, *testutils.InstrumentedMemory) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	host, err := staging.NewHostMemory(staging.Capacity(n, w, h), logger)
	test.That(t, err, test.ShouldBeNil)
	mem := testutils.NewInstrumentedMemory(host, nil)
	buf, err := staging.NewBuffer(mem, n, w, h, order, logger)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, buf.Close(context.Background()), test.ShouldBeNil)
	})
	return buf, mem
}

func leasedBytes(t *testing.T, buf *staging.Buffer) []byte {
	t.Helper()
	lease, err := buf.Lend(context.Background())
	test.That(t, err, test.ShouldBeNil)
	defer lease.Release()
	b, err := lease.Bytes()
	test.That(t, err, test.ShouldBeNil)
	return append([]byte(nil), b...)
}

func TestStageLayout(t *testing.T) {
	const w, h = 4, 2
	red := testutils.SolidImage(w, h, color.NRGBA{R: 200, G: 10, B: 30, A: 255})
	blue := testutils.SolidImage(w, h, color.NRGBA{R: 1, G: 2, B: 250, A: 255})
	plane := w * h

	t.Run("bgr", func(t *testing.T) {
		buf, _ := newBuffer(t, 2, w, h, staging.BGR)
		test.That(t, buf.Stage(context.Background(), []image.Image{red, blue}), test.ShouldBeNil)
		out := leasedBytes(t, buf)
		test.That(t, out, test.ShouldHaveLength, 2*3*plane)
		// camera 0 planes: B, G, R
		test.That(t, out[0], test.ShouldEqual, byte(30))
		test.That(t, out[plane], test.ShouldEqual, byte(10))
		test.That(t, out[2*plane], test.ShouldEqual, byte(200))
		// camera 1 starts after three planes
		test.That(t, out[3*plane], test.ShouldEqual, byte(250))
		test.That(t, out[5*plane+plane-1], test.ShouldEqual, byte(1))
	})

	t.Run("rgb", func(t *testing.T) {
		buf, _ := newBuffer(t, 1, w, h, staging.RGB)
		test.That(t, buf.Stage(context.Background(), []image.Image{red}), test.ShouldBeNil)
		out := leasedBytes(t, buf)
		test.That(t, out[0], test.ShouldEqual, byte(200))
		test.That(t, out[plane], test.ShouldEqual, byte(10))
		test.That(t, out[2*plane], test.ShouldEqual, byte(30))
	})
}

func TestStageImageKinds(t *testing.T) {
	const w, h = 5, 3
	pattern := testutils.PatternImage(w, h, 7)

	bgr := staging.NewPackedImage(w, h, staging.BGR)
	rgb := staging.NewPackedImage(w, h, staging.RGB)
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	rgba64 := image.NewRGBA64(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := pattern.NRGBAAt(x, y)
			i := bgr.PixOffset(x, y)
			bgr.Pix[i], bgr.Pix[i+1], bgr.Pix[i+2] = c.B, c.G, c.R
			rgb.Pix[i], rgb.Pix[i+1], rgb.Pix[i+2] = c.R, c.G, c.B
			rgba.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
			rgba64.Set(x, y, c)
		}
	}

	buf, _ := newBuffer(t, 1, w, h, staging.BGR)
	test.That(t, buf.Stage(context.Background(), []image.Image{pattern}), test.ShouldBeNil)
	want := leasedBytes(t, buf)

	for name, img := range map[string]image.Image{"packed bgr": bgr, "packed rgb": rgb, "rgba": rgba, "rgba64": rgba64} {
		t.Run(name, func(t *testing.T) {
			test.That(t, buf.Stage(context.Background(), []image.Image{img}), test.ShouldBeNil)
			test.That(t, leasedBytes(t, buf), test.ShouldResemble, want)
		})
	}
}

func TestStageShapeMismatchLeavesBuffer(t *testing.T) {
	const n, w, h = 3, 8, 6
	buf, mem := newBuffer(t, n, w, h, staging.BGR)
	ctx := context.Background()

	test.That(t, buf.Stage(ctx, testutils.Frame(n, w, h, 1)), test.ShouldBeNil)
	before, err := buf.Digest(ctx)
	test.That(t, err, test.ShouldBeNil)
	copies := mem.Copies()

	wrongSize := testutils.Frame(n, w, h, 2)
	wrongSize[2] = testutils.PatternImage(w, h+1, 9)
	shortPix := testutils.Frame(n, w, h, 2)
	shortPix[1] = &staging.PackedImage{Pix: make([]byte, 10), Stride: 3 * w, Rect: image.Rect(0, 0, w, h)}
	shortStride := testutils.Frame(n, w, h, 2)
	shortStride[0] = &staging.PackedImage{Pix: make([]byte, 3*w*h), Stride: 3*w - 3, Rect: image.Rect(0, 0, w, h)}
	shortNRGBA := testutils.Frame(n, w, h, 2)
	shortNRGBA[2] = &image.NRGBA{Pix: make([]byte, 4*w), Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}
	for name, frame := range map[string][]image.Image{
		"too few":      testutils.Frame(n-1, w, h, 2),
		"too many":     testutils.Frame(n+1, w, h, 2),
		"wrong size":   wrongSize,
		"nil image":    {nil, nil, nil},
		"short pixels": shortPix,
		"short stride": shortStride,
		"short nrgba":  shortNRGBA,
	} {
		t.Run(name, func(t *testing.T) {
			err := buf.Stage(ctx, frame)
			test.That(t, staging.IsShapeMismatchError(err), test.ShouldBeTrue)
			after, err := buf.Digest(ctx)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, after, test.ShouldEqual, before)
			test.That(t, mem.Copies(), test.ShouldEqual, copies)
		})
	}

	var shapeErr *staging.ShapeMismatchError
	test.That(t, errors.As(buf.Stage(ctx, wrongSize), &shapeErr), test.ShouldBeTrue)
	test.That(t, shapeErr.Camera, test.ShouldEqual, 2)
	test.That(t, shapeErr.Got, test.ShouldResemble, image.Pt(w, h+1))
	test.That(t, shapeErr.Error(), test.ShouldContainSubstring, "8x7")

	test.That(t, errors.As(buf.Stage(ctx, shortPix), &shapeErr), test.ShouldBeTrue)
	test.That(t, shapeErr.Camera, test.ShouldEqual, 1)
	test.That(t, shapeErr.Error(), test.ShouldContainSubstring, "pixel buffer holds 10 bytes")
}

func TestStageIsDeterministic(t *testing.T) {
	const n, w, h = 2, 16, 9
	a, _ := newBuffer(t, n, w, h, staging.BGR)
	b, _ := newBuffer(t, n, w, h, staging.BGR)
	ctx := context.Background()
	test.That(t, a.Stage(ctx, testutils.Frame(n, w, h, 3)), test.ShouldBeNil)
	test.That(t, b.Stage(ctx, testutils.Frame(n, w, h, 3)), test.ShouldBeNil)
	da, err := a.Digest(ctx)
	test.That(t, err, test.ShouldBeNil)
	db, err := b.Digest(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, da, test.ShouldEqual, db)
}

func TestLeaseBlocksStage(t *testing.T) {
	const n, w, h = 2, 4, 4
	buf, mem := newBuffer(t, n, w, h, staging.BGR)
	ctx := context.Background()

	_, err := buf.Lend(ctx)
	test.That(t, errors.Is(err, staging.ErrNotStaged), test.ShouldBeTrue)

	test.That(t, buf.Stage(ctx, testutils.Frame(n, w, h, 1)), test.ShouldBeNil)
	lease, err := buf.Lend(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lease.Generation(), test.ShouldEqual, uint64(1))
	test.That(t, buf.Leased(), test.ShouldBeTrue)

	staged := make(chan error, 1)
	go func() {
		staged <- buf.Stage(ctx, testutils.Frame(n, w, h, 2))
	}()
	select {
	case <-staged:
		t.Fatal("stage finished while the buffer was leased")
	case <-time.After(50 * time.Millisecond):
	}
	test.That(t, mem.Copies(), test.ShouldEqual, 1)

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = buf.Lend(timeoutCtx)
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)

	lease.Release()
	lease.Release()
	test.That(t, <-staged, test.ShouldBeNil)
	test.That(t, mem.Copies(), test.ShouldEqual, 2)

	lease, err = buf.Lend(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lease.Generation(), test.ShouldEqual, uint64(2))
	c, ch, hh, ww := lease.Shape()
	test.That(t, []int{c, ch, hh, ww}, test.ShouldResemble, []int{n, 3, h, w})
	lease.Release()
}

func TestFailedCopyIsNotLent(t *testing.T) {
	const n, w, h = 1, 4, 4
	buf, mem := newBuffer(t, n, w, h, staging.BGR)
	ctx := context.Background()
	test.That(t, buf.Stage(ctx, testutils.Frame(n, w, h, 1)), test.ShouldBeNil)

	mem.FailCopies(errors.New("dma fault"))
	err := buf.Stage(ctx, testutils.Frame(n, w, h, 2))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "dma fault")
	_, err = buf.Lend(ctx)
	test.That(t, errors.Is(err, staging.ErrNotStaged), test.ShouldBeTrue)

	mem.FailCopies(nil)
	test.That(t, buf.Stage(ctx, testutils.Frame(n, w, h, 2)), test.ShouldBeNil)
	lease, err := buf.Lend(ctx)
	test.That(t, err, test.ShouldBeNil)
	lease.Release()
}

func TestCloseFreesOnce(t *testing.T) {
	logger := logging.NewTestLogger(t)
	host, err := staging.NewHostMemory(staging.Capacity(1, 2, 2), logger)
	test.That(t, err, test.ShouldBeNil)
	mem := testutils.NewInstrumentedMemory(host, nil)
	buf, err := staging.NewBuffer(mem, 1, 2, 2, staging.BGR, logger)
	test.That(t, err, test.ShouldBeNil)
	ctx := context.Background()
	test.That(t, buf.Stage(ctx, testutils.Frame(1, 2, 2, 0)), test.ShouldBeNil)

	lease, err := buf.Lend(ctx)
	test.That(t, err, test.ShouldBeNil)
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	test.That(t, buf.Close(timeoutCtx), test.ShouldNotBeNil)
	test.That(t, mem.Frees(), test.ShouldEqual, 0)
	lease.Release()

	test.That(t, buf.Close(ctx), test.ShouldBeNil)
	test.That(t, buf.Close(ctx), test.ShouldBeNil)
	test.That(t, mem.Frees(), test.ShouldEqual, 1)

	test.That(t, errors.Is(buf.Stage(ctx, testutils.Frame(1, 2, 2, 0)), staging.ErrClosed), test.ShouldBeTrue)
	_, err = buf.Lend(ctx)
	test.That(t, errors.Is(err, staging.ErrClosed), test.ShouldBeTrue)
}

func TestNewBufferChecksCapacity(t *testing.T) {
	logger := logging.NewTestLogger(t)
	host, err := staging.NewHostMemory(100, logger)
	test.That(t, err, test.ShouldBeNil)
	defer host.Free()
	_, err = staging.NewBuffer(host, 1, 4, 4, staging.BGR, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = staging.NewBuffer(host, 0, 4, 4, staging.BGR, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
