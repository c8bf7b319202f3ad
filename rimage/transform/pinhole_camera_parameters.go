// Package transform holds camera models used to relate image pixels to 3D points.
package transform

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined or invalid.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
	// Skew is K[0][1]; nonzero only for unusual sensors.
	Skew float64 `json:"skew,omitempty"`
}

// NewPinholeCameraIntrinsicsFromMatrix builds intrinsics from a row-major 3x3 camera matrix
// of the form [[fx s ppx] [0 fy ppy] [0 0 1]].
func NewPinholeCameraIntrinsicsFromMatrix(k [][]float64, width, height int) (*PinholeCameraIntrinsics, error) {
	if len(k) != 3 {
		return nil, NewNoIntrinsicsError(fmt.Sprintf("camera matrix needs 3 rows, got %d", len(k)))
	}
	for i, row := range k {
		if len(row) != 3 {
			return nil, NewNoIntrinsicsError(fmt.Sprintf("camera matrix row %d needs 3 values, got %d", i, len(row)))
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, NewNoIntrinsicsError("camera matrix has non-finite entries")
			}
		}
	}
	if k[1][0] != 0 || k[2][0] != 0 || k[2][1] != 0 || math.Abs(k[2][2]-1) > 1e-9 {
		return nil, NewNoIntrinsicsError(fmt.Sprintf("camera matrix is not upper triangular with K[2][2]=1: %v", k))
	}
	params := &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     k[0][0],
		Fy:     k[1][1],
		Ppx:    k[0][2],
		Ppy:    k[1][2],
		Skew:   k[0][1],
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	return params, nil
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// PixelToPoint transforms a pixel with depth to a 3D point in the camera frame.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) r3.Vector {
	yOverZ := (y - params.Ppy) / params.Fy
	xOverZ := (x - params.Ppx - params.Skew*yOverZ) / params.Fx
	return r3.Vector{X: xOverZ * z, Y: yOverZ * z, Z: z}
}

// PointToPixel projects a 3D point in the camera frame to the image plane. Points at or
// behind the camera return ok=false.
func (params *PinholeCameraIntrinsics) PointToPixel(pt r3.Vector) (float64, float64, bool) {
	if pt.Z <= 0 {
		return -1, -1, false
	}
	xPx := (pt.X/pt.Z)*params.Fx + params.Skew*(pt.Y/pt.Z) + params.Ppx
	yPx := (pt.Y/pt.Z)*params.Fy + params.Ppy
	return xPx, yPx, true
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx s ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(0, 1, params.Skew)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// Matrix returns the camera matrix as row-major values, the layout inference engines expect.
func (params *PinholeCameraIntrinsics) Matrix() [9]float64 {
	return [9]float64{
		params.Fx, params.Skew, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	}
}

// InverseCameraMatrix returns K⁻¹.
func (params *PinholeCameraIntrinsics) InverseCameraMatrix() (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(params.GetCameraMatrix()); err != nil {
		return nil, errors.Wrap(err, "camera matrix is not invertible")
	}
	return &inv, nil
}
