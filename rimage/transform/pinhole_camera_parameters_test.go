package transform

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

var nuscenesFront = [][]float64{
	{1266.417203046554, 0, 816.2670197447984},
	{0, 1266.417203046554, 491.50706579294757},
	{0, 0, 1},
}

func TestNewPinholeCameraIntrinsicsFromMatrix(t *testing.T) {
	params, err := NewPinholeCameraIntrinsicsFromMatrix(nuscenesFront, 1600, 900)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.Fx, test.ShouldEqual, 1266.417203046554)
	test.That(t, params.Ppy, test.ShouldEqual, 491.50706579294757)
	test.That(t, params.Matrix()[2], test.ShouldEqual, 816.2670197447984)

	_, err = NewPinholeCameraIntrinsicsFromMatrix(nuscenesFront[:2], 1600, 900)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	_, err = NewPinholeCameraIntrinsicsFromMatrix([][]float64{{0, 0, 1}, {0, 1, 1}, {0, 0, 1}}, 10, 10)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "Fx")

	_, err = NewPinholeCameraIntrinsicsFromMatrix([][]float64{{1, 0, 1}, {0, 1, 1}, {0, 1, 1}}, 10, 10)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewPinholeCameraIntrinsicsFromMatrix([][]float64{{math.NaN(), 0, 1}, {0, 1, 1}, {0, 0, 1}}, 10, 10)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewPinholeCameraIntrinsicsFromMatrix(nuscenesFront, 0, 900)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestProjectionRoundTrip(t *testing.T) {
	params, err := NewPinholeCameraIntrinsicsFromMatrix(nuscenesFront, 1600, 900)
	test.That(t, err, test.ShouldBeNil)

	pt := r3.Vector{X: 1.5, Y: -0.4, Z: 12}
	u, v, ok := params.PointToPixel(pt)
	test.That(t, ok, test.ShouldBeTrue)
	back := params.PixelToPoint(u, v, pt.Z)
	test.That(t, back.Sub(pt).Norm(), test.ShouldBeLessThan, 1e-9)

	_, _, ok = params.PointToPixel(r3.Vector{X: 1, Z: -1})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestInverseCameraMatrix(t *testing.T) {
	params, err := NewPinholeCameraIntrinsicsFromMatrix(nuscenesFront, 1600, 900)
	test.That(t, err, test.ShouldBeNil)
	inv, err := params.InverseCameraMatrix()
	test.That(t, err, test.ShouldBeNil)

	var id mat.Dense
	id.Mul(params.GetCameraMatrix(), inv)
	test.That(t, mat.EqualApprox(&id, mat.NewDiagDense(3, []float64{1, 1, 1}), 1e-9), test.ShouldBeTrue)
}
