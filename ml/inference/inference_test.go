package inference

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/bevdet/calibration"
	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/staging"
	"go.viam.com/bevdet/testutils"
)

type nopEngine struct{}

func (nopEngine) Infer(context.Context, Frame, *calibration.Calibration) (Result, error) {
	return Result{}, nil
}

func (nopEngine) Close(context.Context) error {
	return nil
}

func TestRegistry(t *testing.T) {
	Register("nop-test", func(context.Context, *calibration.Calibration, Attributes, logging.Logger) (Engine, error) {
		return nopEngine{}, nil
	})
	test.That(t, Registered(), test.ShouldContain, "nop-test")
	test.That(t, func() {
		Register("nop-test", func(context.Context, *calibration.Calibration, Attributes, logging.Logger) (Engine, error) {
			return nopEngine{}, nil
		})
	}, test.ShouldPanic)

	logger := logging.NewTestLogger(t)
	engine, err := New(context.Background(), "nop-test", nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, engine, test.ShouldResemble, nopEngine{})

	_, err = New(context.Background(), "tensorrt-missing", nil, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "nop-test")
}

func TestDecodeAttributes(t *testing.T) {
	type conf struct {
		Engine string        `json:"engine_path"`
		Batch  int           `json:"batch"`
		Wait   time.Duration `json:"wait"`
	}
	var c conf
	err := DecodeAttributes(Attributes{"engine_path": "bev.engine", "batch": 6, "wait": "150ms"}, &c)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c, test.ShouldResemble, conf{Engine: "bev.engine", Batch: 6, Wait: 150 * time.Millisecond})

	err = DecodeAttributes(Attributes{"engin_path": "bev.engine"}, &c)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "engin_path")
}

func TestFailureError(t *testing.T) {
	err := NewTimeoutError("bevdet", 2*time.Second)
	test.That(t, IsFailureError(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "timed out")
	test.That(t, err.Error(), test.ShouldContainSubstring, "2s")

	err = NewFailureError("bevdet", context.Canceled)
	test.That(t, IsFailureError(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed")
}

func TestTensors(t *testing.T) {
	const w, h = 6, 4
	names := testutils.NuScenesCameras
	calib := testutils.SyntheticCalibration(t, names, w, h, nil)
	logger := logging.NewTestLogger(t)
	buf, err := staging.NewHostBuffer(len(names), w, h, staging.BGR, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, buf.Close(context.Background()), test.ShouldBeNil)
	}()
	ctx := context.Background()
	test.That(t, buf.Stage(ctx, testutils.Frame(len(names), w, h, 4)), test.ShouldBeNil)

	lease, err := buf.Lend(ctx)
	test.That(t, err, test.ShouldBeNil)
	defer lease.Release()
	frame, err := FrameTensor(lease)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, []int(frame.Shape()), test.ShouldResemble, []int{6, 3, h, w})
	raw, err := lease.Bytes()
	test.That(t, err, test.ShouldBeNil)
	// last camera, third plane, last pixel
	v, err := frame.At(5, 2, h-1, w-1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldEqual, raw[len(raw)-1])

	k := IntrinsicsTensor(calib)
	test.That(t, []int(k.Shape()), test.ShouldResemble, []int{6, 3, 3})
	fx, err := k.At(1, 0, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fx, test.ShouldEqual, float64(w)/2)

	s2e := SensorToEgoTensor(calib)
	test.That(t, []int(s2e.Shape()), test.ShouldResemble, []int{6, 4, 4})
	tz, err := s2e.At(0, 2, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tz, test.ShouldEqual, 1.5)
	one, err := s2e.At(3, 3, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, one, test.ShouldEqual, 1.)
}
