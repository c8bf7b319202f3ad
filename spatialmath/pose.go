package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform: an orientation followed by a translation. Applied to a point
// p it yields R·p + t.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

type pose struct {
	point r3.Vector
	q     quat.Number
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return &pose{q: quat.Number{Real: 1}}
}

// NewPose returns a pose with the given translation and orientation. The orientation is
// stored as a renormalized quaternion.
func NewPose(point r3.Vector, o Orientation) Pose {
	if o == nil {
		o = NewZeroOrientation()
	}
	return &pose{point: point, q: Normalize(o.Quaternion())}
}

// NewPoseFromPoint returns a pure translation.
func NewPoseFromPoint(point r3.Vector) Pose {
	return &pose{point: point, q: quat.Number{Real: 1}}
}

func (p *pose) Point() r3.Vector {
	return p.point
}

func (p *pose) Orientation() Orientation {
	q := Quaternion(p.q)
	return &q
}

func (p *pose) String() string {
	return fmt.Sprintf("{t: (%.4f, %.4f, %.4f), q: (%.6f, %.6f, %.6f, %.6f)}",
		p.point.X, p.point.Y, p.point.Z, p.q.Real, p.q.Imag, p.q.Jmag, p.q.Kmag)
}

// Compose returns the pose that applies b then a: Compose(a, b)·p = a·(b·p).
// The resulting rotation is renormalized so chains of compositions do not drift.
func Compose(a, b Pose) Pose {
	qa := a.Orientation().Quaternion()
	qb := b.Orientation().Quaternion()
	return &pose{
		point: RotateVector(qa, b.Point()).Add(a.Point()),
		q:     Normalize(quat.Mul(qa, qb)),
	}
}

// PoseInverse returns the pose that undoes p.
func PoseInverse(p Pose) Pose {
	qi := quat.Conj(p.Orientation().Quaternion())
	return &pose{
		point: RotateVector(qi, p.Point()).Mul(-1),
		q:     Normalize(qi),
	}
}

// PoseBetween returns the pose that takes a to b, so Compose(a, PoseBetween(a, b)) == b.
func PoseBetween(a, b Pose) Pose {
	return Compose(PoseInverse(a), b)
}

// TransformPoint applies p to a point.
func TransformPoint(p Pose, v r3.Vector) r3.Vector {
	return RotateVector(p.Orientation().Quaternion(), v).Add(p.Point())
}

// InverseTransformPoint applies the inverse of p to a point: R⁻¹·(v − t).
func InverseTransformPoint(p Pose, v r3.Vector) r3.Vector {
	return p.Orientation().RotationMatrix().Transpose().MulVec(v.Sub(p.Point()))
}

// PoseAlmostEqual reports whether a and b agree within 1e-5 in orientation and 1e-8 in
// translation.
func PoseAlmostEqual(a, b Pose) bool {
	return PoseAlmostEqualEps(a, b, 1e-8)
}

// PoseAlmostEqualEps is PoseAlmostEqual with a caller chosen translation tolerance.
func PoseAlmostEqualEps(a, b Pose, epsilon float64) bool {
	return a.Point().Sub(b.Point()).Norm() <= epsilon && OrientationAlmostEqual(a.Orientation(), b.Orientation())
}
