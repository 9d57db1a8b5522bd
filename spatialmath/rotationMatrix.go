package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/compnetx/utils"
)

// gimbalEpsilon is the value of cos(pitch) below which roll and yaw share an axis.
const gimbalEpsilon = 1e-9

// RotationMatrix is a 3x3 matrix in row major order.
// m[3*r + c] is the element in the r'th row and c'th column.
type RotationMatrix struct {
	mat [9]float64
}

// NewRotationMatrix creates the rotation matrix from a slice of 9 values in row major order.
func NewRotationMatrix(m []float64) (*RotationMatrix, error) {
	if len(m) != 9 {
		return nil, errors.Errorf("input slice has %d elements, need exactly 9", len(m))
	}
	mat := [9]float64{}
	copy(mat[:], m)
	return &RotationMatrix{mat}, nil
}

// AxisAngles returns the orientation in axis angle representation.
func (rm *RotationMatrix) AxisAngles() *R4AA {
	aa := QuatToR4AA(rm.Quaternion())
	return &aa
}

// Quaternion returns orientation in quaternion representation.
// reference: http://www.euclideanspace.com/maths/geometry/rotations/conversions/matrixToQuaternion/index.htm
func (rm *RotationMatrix) Quaternion() quat.Number {
	var q quat.Number
	m := rm.mat
	tr := m[0] + m[4] + m[8]
	switch {
	case tr > 0:
		s := 0.5 / math.Sqrt(tr+1.0)
		q.Real = 0.25 / s
		q.Imag = (m[7] - m[5]) * s
		q.Jmag = (m[2] - m[6]) * s
		q.Kmag = (m[3] - m[1]) * s
	case m[0] > m[4] && m[0] > m[8]:
		s := 2.0 * math.Sqrt(1.0+m[0]-m[4]-m[8])
		q.Real = (m[7] - m[5]) / s
		q.Imag = 0.25 * s
		q.Jmag = (m[1] + m[3]) / s
		q.Kmag = (m[2] + m[6]) / s
	case m[4] > m[8]:
		s := 2.0 * math.Sqrt(1.0+m[4]-m[0]-m[8])
		q.Real = (m[2] - m[6]) / s
		q.Imag = (m[1] + m[3]) / s
		q.Jmag = 0.25 * s
		q.Kmag = (m[5] + m[7]) / s
	default:
		s := 2.0 * math.Sqrt(1.0+m[8]-m[0]-m[4])
		q.Real = (m[3] - m[1]) / s
		q.Imag = (m[2] + m[6]) / s
		q.Jmag = (m[5] + m[7]) / s
		q.Kmag = 0.25 * s
	}
	return Normalize(q)
}

// EulerAngles returns orientation in roll-pitch-yaw representation.
func (rm *RotationMatrix) EulerAngles() *EulerAngles {
	return rm.EulerAnglesWithHint(nil)
}

// EulerAnglesWithHint decomposes the matrix as Rz(yaw)*Ry(pitch)*Rx(roll). When pitch is at +-pi/2 only the
// sum or difference of roll and yaw is defined; rollHint, if non-nil, is used as the roll and yaw absorbs the rest.
// Without a hint roll is set to zero.
func (rm *RotationMatrix) EulerAnglesWithHint(rollHint *float64) *EulerAngles {
	m := rm.mat
	cp := math.Hypot(m[0], m[3])
	pitch := math.Atan2(-m[6], cp)
	if cp > gimbalEpsilon {
		return &EulerAngles{
			Roll:  math.Atan2(m[7], m[8]),
			Pitch: pitch,
			Yaw:   math.Atan2(m[3], m[0]),
		}
	}
	roll := 0.
	if rollHint != nil {
		roll = *rollHint
	}
	var yaw float64
	if m[6] < 0 {
		// pitch = pi/2: m01 = sin(roll-yaw), m02 = cos(roll-yaw)
		yaw = roll - math.Atan2(m[1], m[2])
	} else {
		// pitch = -pi/2: m01 = -sin(roll+yaw), m02 = -cos(roll+yaw)
		yaw = math.Atan2(-m[1], -m[2]) - roll
	}
	return &EulerAngles{Roll: roll, Pitch: pitch, Yaw: utils.WrapAngle(yaw)}
}

// RotationMatrix returns the orientation in rotation matrix representation.
func (rm *RotationMatrix) RotationMatrix() *RotationMatrix {
	return rm
}

// At returns the float corresponding to the element at the specified location.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat[row*3+col]
}

// Row returns the a 3 element vector corresponding to the specified row.
func (rm *RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm.mat[row*3], Y: rm.mat[row*3+1], Z: rm.mat[row*3+2]}
}

// Col returns the a 3 element vector corresponding to the specified col.
func (rm *RotationMatrix) Col(col int) r3.Vector {
	return r3.Vector{X: rm.At(0, col), Y: rm.At(1, col), Z: rm.At(2, col)}
}

// Mul returns the product rm*other.
func (rm *RotationMatrix) Mul(other *RotationMatrix) *RotationMatrix {
	out := &RotationMatrix{}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.mat[r*3+c] = rm.Row(r).Dot(other.Col(c))
		}
	}
	return out
}

// MulVec returns the vector rotated by this matrix.
func (rm *RotationMatrix) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{X: rm.Row(0).Dot(v), Y: rm.Row(1).Dot(v), Z: rm.Row(2).Dot(v)}
}

// Transpose returns the transposed matrix, which for a rotation is its inverse.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	m := rm.mat
	return &RotationMatrix{[9]float64{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}}
}
