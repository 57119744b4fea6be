package geometry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Transform is a 4x4 homogeneous transform in row-major order.
type Transform [16]float64

// Identity returns the 4x4 identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns the element at row r, column c.
func (t Transform) At(r, c int) float64 { return t[r*4+c] }

// Translation returns the last column of the upper 3x4 block.
func (t Transform) Translation() r3.Vector {
	return r3.Vector{X: t[3], Y: t[7], Z: t[11]}
}

// Dense returns a gonum copy of the transform.
func (t Transform) Dense() *mat.Dense {
	data := make([]float64, 16)
	copy(data, t[:])
	return mat.NewDense(4, 4, data)
}

// TransformFromDense copies a 4x4 gonum matrix into a Transform.
func TransformFromDense(m mat.Matrix) (Transform, error) {
	var t Transform
	if r, c := m.Dims(); r != 4 || c != 4 {
		return t, fmt.Errorf("transform must be 4x4, got %dx%d", r, c)
	}
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			t[r*4+c] = m.At(r, c)
		}
	}
	return t, nil
}

// Compose returns a*b. Applied to a point, b acts first.
func Compose(a, b Transform) Transform {
	var out mat.Dense
	out.Mul(a.Dense(), b.Dense())
	t, _ := TransformFromDense(&out)
	return t
}

// InvertRigid returns the analytic inverse of a rigid transform: rotation R^T
// and translation -R^T*t. The rotation block must be orthonormal; no general
// matrix inversion is attempted.
func InvertRigid(t Transform) Transform {
	var inv Transform
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			inv[r*4+c] = t[c*4+r]
		}
	}
	tx, ty, tz := t[3], t[7], t[11]
	for r := 0; r < 3; r++ {
		inv[r*4+3] = -(inv[r*4]*tx + inv[r*4+1]*ty + inv[r*4+2]*tz)
	}
	inv[15] = 1
	return inv
}

// Apply maps p through the affine part of t (bottom row assumed [0 0 0 1]).
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: t[0]*p.X + t[1]*p.Y + t[2]*p.Z + t[3],
		Y: t[4]*p.X + t[5]*p.Y + t[6]*p.Z + t[7],
		Z: t[8]*p.X + t[9]*p.Y + t[10]*p.Z + t[11],
	}
}

// RotationAngle returns the angle in radians of the rotation block.
func (t Transform) RotationAngle() float64 {
	c := (t[0] + t[5] + t[10] - 1) / 2
	return math.Acos(math.Max(-1, math.Min(1, c)))
}

// String formats the transform as a matrix.
func (t Transform) String() string {
	return fmt.Sprintf("%v", mat.Formatted(t.Dense(), mat.Prefix(""), mat.Squeeze()))
}
