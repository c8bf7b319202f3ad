package spatialmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// DefaultOrthonormalTolerance bounds |RᵀR − I| and |det R − 1| for a matrix to be
// accepted as a rotation.
const DefaultOrthonormalTolerance = 1e-3

// RotationMatrix is a 3x3 rotation stored row-major.
type RotationMatrix struct {
	mat [9]float64
}

// NewRotationMatrix builds a rotation from 9 row-major values. It returns an error when
// the matrix is not a proper rotation within DefaultOrthonormalTolerance.
func NewRotationMatrix(values []float64) (*RotationMatrix, error) {
	if len(values) != 9 {
		return nil, errors.Errorf("rotation matrix needs 9 values, got %d", len(values))
	}
	rm := &RotationMatrix{}
	copy(rm.mat[:], values)
	if err := rm.CheckValid(DefaultOrthonormalTolerance); err != nil {
		return nil, err
	}
	return rm, nil
}

// CheckValid returns an error if the matrix has non-finite entries, is not orthonormal,
// or is a reflection.
func (rm *RotationMatrix) CheckValid(tol float64) error {
	for _, v := range rm.mat {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("rotation matrix has non-finite entries")
		}
	}
	m := mat.NewDense(3, 3, rm.mat[:])
	var rtr mat.Dense
	rtr.Mul(m.T(), m)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.
			if i == j {
				want = 1
			}
			if d := math.Abs(rtr.At(i, j) - want); d > tol {
				return errors.Errorf("rotation matrix is not orthonormal (|RᵀR-I| entry %d,%d off by %.2e)", i, j, d)
			}
		}
	}
	if det := mat.Det(m); math.Abs(det-1) > tol {
		return errors.Errorf("rotation matrix determinant is %.6f, expected 1", det)
	}
	return nil
}

// At returns the value at row, col.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat[row*3+col]
}

// Row returns one row of the matrix.
func (rm *RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm.mat[row*3], Y: rm.mat[row*3+1], Z: rm.mat[row*3+2]}
}

// Transpose returns the transpose, which for a rotation is its inverse.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	t := &RotationMatrix{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t.mat[j*3+i] = rm.mat[i*3+j]
		}
	}
	return t
}

// MulVec returns rm·v.
func (rm *RotationMatrix) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.Row(0).Dot(v),
		Y: rm.Row(1).Dot(v),
		Z: rm.Row(2).Dot(v),
	}
}

// Values returns a copy of the row-major entries.
func (rm *RotationMatrix) Values() []float64 {
	out := make([]float64, 9)
	copy(out, rm.mat[:])
	return out
}

// Quaternion converts the matrix to a unit quaternion.
func (rm *RotationMatrix) Quaternion() quat.Number {
	m3 := mgl64.Mat3FromRows(
		mgl64.Vec3{rm.At(0, 0), rm.At(0, 1), rm.At(0, 2)},
		mgl64.Vec3{rm.At(1, 0), rm.At(1, 1), rm.At(1, 2)},
		mgl64.Vec3{rm.At(2, 0), rm.At(2, 1), rm.At(2, 2)},
	)
	q := mgl64.Mat4ToQuat(m3.Mat4())
	return Normalize(quat.Number{Real: q.W, Imag: q.X(), Jmag: q.Y(), Kmag: q.Z()})
}

// EulerAngles converts the matrix to roll, pitch, yaw.
func (rm *RotationMatrix) EulerAngles() *EulerAngles {
	return QuatToEulerAngles(rm.Quaternion())
}

// RotationMatrix returns the matrix itself.
func (rm *RotationMatrix) RotationMatrix() *RotationMatrix {
	return rm
}
