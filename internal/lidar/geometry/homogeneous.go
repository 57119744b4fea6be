package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// DegenerateEpsilon is the smallest homogeneous component magnitude that is
// still divided through. Rows at or below it lie on rays at infinity.
const DegenerateEpsilon = 1e-12

// ErrHomogeneousShape is returned when a matrix cannot act on [x y z 1].
var ErrHomogeneousShape = errors.New("matrix must have 4 columns and at least 2 rows")

// Homogeneous is the result of applying a 4-column matrix to a point set.
// Row i of Raw and Normalized corresponds to input point i.
type Homogeneous struct {
	// Raw is n x rows, before perspective normalisation.
	Raw *mat.Dense
	// Normalized is n x (rows-1); rows flagged invalid hold NaN.
	Normalized *mat.Dense
	// Valid[i] is false when point i had a degenerate homogeneous component.
	Valid []bool
	// Degenerate counts the invalid rows.
	Degenerate int
}

// Len returns the number of input points.
func (h Homogeneous) Len() int { return len(h.Valid) }

// ApplyToPoints appends 1 to each point, multiplies by m^T and divides the
// leading components by the last one. Points whose last component is zero,
// within DegenerateEpsilon, or not finite are flagged and never divided.
func ApplyToPoints(m mat.Matrix, points []r3.Vector) (Homogeneous, error) {
	rows, cols := m.Dims()
	if cols != 4 || rows < 2 {
		return Homogeneous{}, fmt.Errorf("%w: got %dx%d", ErrHomogeneousShape, rows, cols)
	}
	n := len(points)
	if n == 0 {
		return Homogeneous{Valid: []bool{}}, nil
	}

	ph := mat.NewDense(n, 4, nil)
	for i, p := range points {
		ph.SetRow(i, []float64{p.X, p.Y, p.Z, 1})
	}
	raw := mat.NewDense(n, rows, nil)
	raw.Mul(ph, m.T())

	out := Homogeneous{
		Raw:        raw,
		Normalized: mat.NewDense(n, rows-1, nil),
		Valid:      make([]bool, n),
	}
	last := rows - 1
	for i := 0; i < n; i++ {
		w := raw.At(i, last)
		if math.Abs(w) <= DegenerateEpsilon || math.IsNaN(w) || math.IsInf(w, 0) {
			out.Degenerate++
			for j := 0; j < last; j++ {
				out.Normalized.Set(i, j, math.NaN())
			}
			continue
		}
		out.Valid[i] = true
		for j := 0; j < last; j++ {
			out.Normalized.Set(i, j, raw.At(i, j)/w)
		}
	}
	return out, nil
}

// TransformPoints applies t to points with perspective normalisation and
// returns the Euclidean results in input order, skipping degenerate points.
// The second return value is the number of points dropped.
func TransformPoints(t Transform, points []r3.Vector) ([]r3.Vector, int) {
	h, _ := ApplyToPoints(t.Dense(), points)
	out := make([]r3.Vector, 0, h.Len()-h.Degenerate)
	for i := 0; i < h.Len(); i++ {
		if !h.Valid[i] {
			continue
		}
		out = append(out, r3.Vector{
			X: h.Normalized.At(i, 0),
			Y: h.Normalized.At(i, 1),
			Z: h.Normalized.At(i, 2),
		})
	}
	return out, h.Degenerate
}
