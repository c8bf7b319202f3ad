package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// unitTolerance is how far from 1 a quaternion norm may be before it is rejected rather
// than silently renormalized.
const unitTolerance = 1e-3

// Quaternion is an orientation stored as a unit quaternion (Real=w, Imag=x, Jmag=y, Kmag=z).
type Quaternion quat.Number

// NewQuaternion builds a unit quaternion from w, x, y, z. Inputs within a small tolerance of
// unit norm are renormalized; anything else is an error.
func NewQuaternion(w, x, y, z float64) (*Quaternion, error) {
	q := quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
	n := quat.Abs(q)
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, errors.New("quaternion has non-finite components")
	}
	if math.Abs(n-1) > unitTolerance {
		return nil, errors.Errorf("quaternion norm %.6f is not 1", n)
	}
	ret := Quaternion(Normalize(q))
	return &ret, nil
}

// Quaternion returns the underlying quaternion.
func (q *Quaternion) Quaternion() quat.Number {
	return quat.Number(*q)
}

// EulerAngles returns roll, pitch, yaw of the rotation.
func (q *Quaternion) EulerAngles() *EulerAngles {
	return QuatToEulerAngles(q.Quaternion())
}

// RotationMatrix returns the row-major rotation matrix of the quaternion.
func (q *Quaternion) RotationMatrix() *RotationMatrix {
	return QuatToRotationMatrix(q.Quaternion())
}

// Normalize scales q to unit norm. The zero quaternion maps to the identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	q = quat.Scale(1/n, q)
	// keep w >= 0 so that identical rotations have identical representations
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return q
}

// QuaternionAlmostEqual reports whether a and b are the same rotation within tol, treating
// q and -q as equal.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	same := math.Abs(a.Real-b.Real) < tol && math.Abs(a.Imag-b.Imag) < tol &&
		math.Abs(a.Jmag-b.Jmag) < tol && math.Abs(a.Kmag-b.Kmag) < tol
	flipped := math.Abs(a.Real+b.Real) < tol && math.Abs(a.Imag+b.Imag) < tol &&
		math.Abs(a.Jmag+b.Jmag) < tol && math.Abs(a.Kmag+b.Kmag) < tol
	return same || flipped
}

// RotateVector rotates v by the unit quaternion q.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// QuatToRotationMatrix converts a unit quaternion to a row-major rotation matrix.
func QuatToRotationMatrix(q quat.Number) *RotationMatrix {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return &RotationMatrix{mat: [9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}}
}

// QuatToEulerAngles converts a unit quaternion to roll, pitch, yaw (Z-Y-X convention).
func QuatToEulerAngles(q quat.Number) *EulerAngles {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	sinp := 2 * (w*y - z*x)
	var pitch float64
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}
	return &EulerAngles{
		Roll:  math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y)),
		Pitch: pitch,
		Yaw:   math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z)),
	}
}
