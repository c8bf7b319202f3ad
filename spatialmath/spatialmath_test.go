package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func axisAngle(axis r3.Vector, theta float64) quat.Number {
	axis = axis.Normalize()
	s := math.Sin(theta / 2)
	return quat.Number{Real: math.Cos(theta / 2), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

func mulMatrices(a, b *RotationMatrix) *RotationMatrix {
	out := &RotationMatrix{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out.mat[i*3+j] += a.At(i, k) * b.At(k, j)
			}
		}
	}
	return out
}

func matricesAlmostEqual(t *testing.T, a, b *RotationMatrix) {
	t.Helper()
	for i := 0; i < 9; i++ {
		test.That(t, a.mat[i], test.ShouldAlmostEqual, b.mat[i], 1e-9)
	}
}

var (
	xAxis = r3.Vector{X: 1}
	yAxis = r3.Vector{Y: 1}
	zAxis = r3.Vector{Z: 1}
)

func TestZeroOrientation(t *testing.T) {
	zero := NewZeroOrientation()
	test.That(t, zero.Quaternion(), test.ShouldResemble, quat.Number{Real: 1})
	test.That(t, zero.EulerAngles(), test.ShouldResemble, &EulerAngles{})
	matricesAlmostEqual(t, zero.RotationMatrix(), &RotationMatrix{mat: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}})
}

func TestNewQuaternion(t *testing.T) {
	q, err := NewQuaternion(1.0000001, 0, 0, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, quat.Abs(q.Quaternion()), test.ShouldAlmostEqual, 1)

	_, err = NewQuaternion(2, 0, 0, 0)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "norm")

	_, err = NewQuaternion(math.NaN(), 0, 0, 0)
	test.That(t, err, test.ShouldNotBeNil)

	// -q is the same rotation and normalizes to w >= 0
	neg, err := NewQuaternion(-1, 0, 0, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, neg.Quaternion().Real, test.ShouldEqual, 1.)
}

func TestOrientationConversions(t *testing.T) {
	ea := &EulerAngles{Roll: 0.1, Pitch: -0.2, Yaw: 1.3}
	q := Quaternion(ea.Quaternion())
	back := q.EulerAngles()
	test.That(t, back.Roll, test.ShouldAlmostEqual, ea.Roll)
	test.That(t, back.Pitch, test.ShouldAlmostEqual, ea.Pitch)
	test.That(t, back.Yaw, test.ShouldAlmostEqual, ea.Yaw)

	rm := q.RotationMatrix()
	test.That(t, rm.CheckValid(1e-9), test.ShouldBeNil)
	test.That(t, QuaternionAlmostEqual(rm.Quaternion(), q.Quaternion(), 1e-9), test.ShouldBeTrue)

	yaw90 := Quaternion(axisAngle(zAxis, math.Pi/2))
	test.That(t, yaw90.EulerAngles().Yaw, test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, OrientationAlmostEqual(&yaw90, yaw90.RotationMatrix()), test.ShouldBeTrue)
}

func TestRotationMatrixValidation(t *testing.T) {
	_, err := NewRotationMatrix([]float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	test.That(t, err, test.ShouldBeNil)

	_, err = NewRotationMatrix([]float64{1, 0, 0, 0, 1, 0})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewRotationMatrix([]float64{2, 0, 0, 0, 1, 0, 0, 0, 1})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "orthonormal")

	// reflection: orthonormal but det = -1
	_, err = NewRotationMatrix([]float64{1, 0, 0, 0, 1, 0, 0, 0, -1})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "determinant")

	_, err = NewRotationMatrix([]float64{1, 0, 0, 0, math.Inf(1), 0, 0, 0, 1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEulerXYZReconstructs(t *testing.T) {
	for _, q := range []quat.Number{
		axisAngle(zAxis, 0.7),
		axisAngle(zAxis, -2.5),
		axisAngle(xAxis, 0.3),
		axisAngle(xAxis, -0.3),
		axisAngle(r3.Vector{X: 0.2, Y: -0.4, Z: 1}, 1.1),
		quat.Mul(axisAngle(zAxis, -1.57), axisAngle(yAxis, 0.05)),
	} {
		rm := QuatToRotationMatrix(q)
		a0, a1, a2 := EulerXYZ(rm)
		test.That(t, a0, test.ShouldBeBetweenOrEqual, 0, math.Pi)

		rx := QuatToRotationMatrix(axisAngle(xAxis, a0))
		ry := QuatToRotationMatrix(axisAngle(yAxis, a1))
		rz := QuatToRotationMatrix(axisAngle(zAxis, a2))
		matricesAlmostEqual(t, mulMatrices(mulMatrices(rx, ry), rz), rm)
	}
}

func TestEulerXYZPureYaw(t *testing.T) {
	for _, yaw := range []float64{0, 0.4, math.Pi / 2, -1.2, 3} {
		a0, a1, a2 := EulerXYZ(QuatToRotationMatrix(axisAngle(zAxis, yaw)))
		test.That(t, a0, test.ShouldAlmostEqual, 0)
		test.That(t, a1, test.ShouldAlmostEqual, 0)
		test.That(t, a2, test.ShouldAlmostEqual, yaw)
	}
}

func TestEulerXYZNegativeRollFolds(t *testing.T) {
	// a small negative roll folds the first angle near pi, moving the third term by pi
	_, _, a2 := EulerXYZ(QuatToRotationMatrix(axisAngle(xAxis, -0.01)))
	test.That(t, math.Abs(a2), test.ShouldAlmostEqual, math.Pi)

	heading := Heading(QuatToRotationMatrix(axisAngle(xAxis, -0.01)))
	test.That(t, heading, test.ShouldAlmostEqual, 0)
}

func TestPoseComposeAndInverse(t *testing.T) {
	a := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, &EulerAngles{Roll: 0.1, Yaw: 0.5})
	b := NewPose(r3.Vector{X: -4, Y: 0.5}, &EulerAngles{Pitch: -0.3, Yaw: 2})

	test.That(t, PoseAlmostEqual(Compose(a, PoseInverse(a)), NewZeroPose()), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(Compose(a, PoseBetween(a, b)), b), test.ShouldBeTrue)

	p := r3.Vector{X: 0.3, Y: -7, Z: 1.5}
	viaCompose := TransformPoint(Compose(a, b), p)
	viaSteps := TransformPoint(a, TransformPoint(b, p))
	test.That(t, viaCompose.Sub(viaSteps).Norm(), test.ShouldBeLessThan, 1e-9)

	back := InverseTransformPoint(a, TransformPoint(a, p))
	test.That(t, back.Sub(p).Norm(), test.ShouldBeLessThan, 1e-9)

	composed := a
	for i := 0; i < 1000; i++ {
		composed = Compose(composed, b)
	}
	test.That(t, quat.Abs(composed.Orientation().Quaternion()), test.ShouldAlmostEqual, 1, 1e-12)
}

func TestInverseTransformPointYaw90(t *testing.T) {
	p := NewPose(r3.Vector{}, &EulerAngles{Yaw: math.Pi / 2})
	got := InverseTransformPoint(p, r3.Vector{X: 10, Y: 2, Z: 1})
	test.That(t, got.X, test.ShouldAlmostEqual, 2)
	test.That(t, got.Y, test.ShouldAlmostEqual, -10)
	test.That(t, got.Z, test.ShouldAlmostEqual, 1)
}
