package fake

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/ml/inference"
	"go.viam.com/bevdet/staging"
	"go.viam.com/bevdet/testutils"
)

func TestFakeEngine(t *testing.T) {
	const w, h = 8, 4
	names := testutils.NuScenesCameras
	calib := testutils.SyntheticCalibration(t, names, w, h, nil)
	logger := logging.NewTestLogger(t)
	ctx := context.Background()

	attrs := inference.Attributes{
		"boxes": []interface{}{
			map[string]interface{}{"x": 10, "l": 4.5, "w": 1.9, "h": 1.6, "score": 0.9, "label": 0},
		},
		"fail_every":  3,
		"check_frame": true,
		"delay":       "1ms",
	}
	engine, err := inference.New(ctx, Model, calib, attrs, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, engine.Close(ctx), test.ShouldBeNil)
	}()

	buf, err := staging.NewHostBuffer(len(names), w, h, staging.RGB, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, buf.Close(ctx), test.ShouldBeNil)
	}()
	test.That(t, buf.Stage(ctx, testutils.Frame(len(names), w, h, 0)), test.ShouldBeNil)
	lease, err := buf.Lend(ctx)
	test.That(t, err, test.ShouldBeNil)
	defer lease.Release()

	res, err := engine.Infer(ctx, lease, calib)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Boxes, test.ShouldHaveLength, 1)
	test.That(t, res.Boxes[0].Center.X, test.ShouldEqual, 10.)
	test.That(t, res.Boxes[0].Length, test.ShouldEqual, 4.5)
	test.That(t, res.Elapsed, test.ShouldBeGreaterThanOrEqualTo, time.Millisecond)

	// callers own the returned slice
	res.Boxes[0].Center.X = 99
	_, err = engine.Infer(ctx, lease, calib)
	test.That(t, err, test.ShouldBeNil)
	_, err = engine.Infer(ctx, lease, calib)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "call 3")
	res, err = engine.Infer(ctx, lease, calib)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Boxes[0].Center.X, test.ShouldEqual, 10.)
	test.That(t, engine.(*Engine).Calls(), test.ShouldEqual, 4)
}

func TestFakeEngineChecksFrame(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()
	calib := testutils.SyntheticCalibration(t, testutils.NuScenesCameras, 8, 4, nil)
	engine, err := NewEngine(Config{CheckFrame: true}, logger)
	test.That(t, err, test.ShouldBeNil)

	buf, err := staging.NewHostBuffer(2, 8, 4, staging.BGR, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, buf.Close(ctx), test.ShouldBeNil)
	}()
	test.That(t, buf.Stage(ctx, testutils.Frame(2, 8, 4, 0)), test.ShouldBeNil)
	lease, err := buf.Lend(ctx)
	test.That(t, err, test.ShouldBeNil)
	defer lease.Release()
	_, err = engine.Infer(ctx, lease, calib)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "does not match")
}

func TestFakeEngineHonorsContext(t *testing.T) {
	engine, err := NewEngine(Config{Delay: time.Minute}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = engine.Infer(ctx, fakeFrame{}, nil)
	test.That(t, err, test.ShouldEqual, context.DeadlineExceeded)

	_, err = NewEngine(Config{FailEvery: -1}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = inference.New(context.Background(), Model, nil, inference.Attributes{"dely": "1s"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

type fakeFrame struct{}

func (fakeFrame) Shape() (int, int, int, int) { return 0, 3, 0, 0 }
func (fakeFrame) Order() staging.ChannelOrder { return staging.BGR }
func (fakeFrame) Generation() uint64 { return 0 }
func (fakeFrame) Bytes() ([]byte, error) { return nil, nil }
