package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// EulerAngles are roll, pitch and yaw in radians, applied as yaw about Z, then pitch about
// the new Y, then roll about the new X.
type EulerAngles struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Quaternion converts the angles to a unit quaternion.
func (ea *EulerAngles) Quaternion() quat.Number {
	cr, sr := math.Cos(ea.Roll/2), math.Sin(ea.Roll/2)
	cp, sp := math.Cos(ea.Pitch/2), math.Sin(ea.Pitch/2)
	cy, sy := math.Cos(ea.Yaw/2), math.Sin(ea.Yaw/2)
	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

// EulerAngles returns the angles themselves.
func (ea *EulerAngles) EulerAngles() *EulerAngles {
	return ea
}

// RotationMatrix converts the angles to a rotation matrix.
func (ea *EulerAngles) RotationMatrix() *RotationMatrix {
	return QuatToRotationMatrix(ea.Quaternion())
}

// EulerXYZ decomposes rm into angles (a0, a1, a2) such that rm = Rx(a0)·Ry(a1)·Rz(a2).
// The first angle is folded into [0, pi], which is the decomposition many calibration
// toolchains emit. When rm also rolls or pitches, a2 is not the vehicle heading; see Heading.
func EulerXYZ(rm *RotationMatrix) (a0, a1, a2 float64) {
	res0 := math.Atan2(rm.At(1, 2), rm.At(2, 2))
	c2 := math.Hypot(rm.At(0, 0), rm.At(0, 1))
	var res1 float64
	if res0 > 0 {
		res0 -= math.Pi
		res1 = math.Atan2(-rm.At(0, 2), -c2)
	} else {
		res1 = math.Atan2(-rm.At(0, 2), c2)
	}
	s1, c1 := math.Sincos(res0)
	res2 := math.Atan2(s1*rm.At(2, 0)-c1*rm.At(1, 0), c1*rm.At(1, 1)-s1*rm.At(2, 1))
	return -res0, -res1, -res2
}

// Heading returns the angle of the rotated X axis projected onto the XY plane.
func Heading(rm *RotationMatrix) float64 {
	return math.Atan2(rm.At(1, 0), rm.At(0, 0))
}
