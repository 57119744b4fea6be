package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MatrixValidationTolerance is the tolerance for checking rotation matrix validity.
const MatrixValidationTolerance = 0.01

// Validation is the outcome of checking a transform.
type Validation struct {
	Valid  bool
	Issues []string
}

// ValidateRigid checks that t is a proper rigid transform:
//  1. the rotation block is orthonormal (R*R^T = I)
//  2. det(R) = +1, so it is a rotation rather than a reflection
//  3. the last row is [0 0 0 1]
func ValidateRigid(t Transform) Validation {
	v := Validation{Issues: make([]string, 0)}

	rot := mat.NewDense(3, 3, []float64{
		t[0], t[1], t[2],
		t[4], t[5], t[6],
		t[8], t[9], t[10],
	})
	for _, x := range t {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			v.Issues = append(v.Issues, "transform contains non-finite values")
			return v
		}
	}

	var rrt mat.Dense
	rrt.Mul(rot, rot.T())
	if !mat.EqualApprox(&rrt, eye3(), MatrixValidationTolerance) {
		v.Issues = append(v.Issues, "rotation block is not orthonormal")
	}
	if det := mat.Det(rot); math.Abs(det-1) > MatrixValidationTolerance {
		v.Issues = append(v.Issues, fmt.Sprintf("rotation determinant %.4f, want 1", det))
	}
	if !floats.EqualApprox(t[12:15], []float64{0, 0, 0}, 1e-9) || math.Abs(t[15]-1) > 1e-3 {
		v.Issues = append(v.Issues, "last row is not [0 0 0 1]")
	}

	v.Valid = len(v.Issues) == 0
	return v
}

// IsRigid reports whether ValidateRigid finds no issues.
func IsRigid(t Transform) bool {
	return ValidateRigid(t).Valid
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}
