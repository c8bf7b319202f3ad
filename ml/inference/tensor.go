package inference

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"go.viam.com/bevdet/calibration"
)

// FrameTensor views a staged frame as a (cameras, 3, height, width) uint8 tensor. For
// host-mapped memory the tensor shares the frame's bytes and must not outlive it.
func FrameTensor(frame Frame) (*tensor.Dense, error) {
	n, c, h, w := frame.Shape()
	data, err := frame.Bytes()
	if err != nil {
		return nil, err
	}
	if len(data) != n*c*h*w {
		return nil, errors.Errorf("frame holds %d bytes, shape (%d, %d, %d, %d) needs %d", len(data), n, c, h, w, n*c*h*w)
	}
	return tensor.New(tensor.WithShape(n, c, h, w), tensor.WithBacking(data)), nil
}

// IntrinsicsTensor stacks the camera matrices into a (cameras, 3, 3) tensor in ingestion order.
func IntrinsicsTensor(calib *calibration.Calibration) *tensor.Dense {
	cams := calib.Cameras()
	backing := make([]float64, 0, 9*len(cams))
	for _, cam := range cams {
		k := cam.Intrinsics.Matrix()
		backing = append(backing, k[:]...)
	}
	return tensor.New(tensor.WithShape(len(cams), 3, 3), tensor.WithBacking(backing))
}

// SensorToEgoTensor stacks the camera to ego transforms into a (cameras, 4, 4) tensor of
// homogeneous matrices in ingestion order.
func SensorToEgoTensor(calib *calibration.Calibration) *tensor.Dense {
	cams := calib.Cameras()
	backing := make([]float64, 0, 16*len(cams))
	for _, cam := range cams {
		rm := cam.SensorToEgo.Orientation().RotationMatrix()
		t := cam.SensorToEgo.Point()
		rows := [3]float64{t.X, t.Y, t.Z}
		for i := 0; i < 3; i++ {
			r := rm.Row(i)
			backing = append(backing, r.X, r.Y, r.Z, rows[i])
		}
		backing = append(backing, 0, 0, 0, 1)
	}
	return tensor.New(tensor.WithShape(len(cams), 4, 4), tensor.WithBacking(backing))
}
