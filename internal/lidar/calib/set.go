package calib

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lidarcal/internal/lidar/geometry"
)

// Set is the immutable calibration of one camera/LiDAR rig. It is safe to
// share between goroutines; every modifier returns a copy.
type Set struct {
	proj      [12]float64
	rect      geometry.Transform
	extrinsic geometry.Transform
}

// NewSet builds a Set from a row-major 3x4 projection, a 4x4 rectification
// and a 4x4 LiDAR-to-camera extrinsic.
func NewSet(proj [12]float64, rect, extrinsic geometry.Transform) *Set {
	return &Set{proj: proj, rect: rect, extrinsic: extrinsic}
}

// Proj returns a copy of the 3x4 projection matrix.
func (s *Set) Proj() *mat.Dense {
	data := make([]float64, 12)
	copy(data, s.proj[:])
	return mat.NewDense(3, 4, data)
}

// Rect returns the 4x4 rectification matrix.
func (s *Set) Rect() geometry.Transform { return s.rect }

// Extrinsic returns the 4x4 LiDAR-to-camera transform.
func (s *Set) Extrinsic() geometry.Transform { return s.extrinsic }

// WithExtrinsic returns a copy of s using t as the extrinsic.
func (s *Set) WithExtrinsic(t geometry.Transform) *Set {
	c := *s
	c.extrinsic = t
	return &c
}

// Validate checks that the extrinsic is a proper rigid transform and the
// rectification block is a rotation.
func (s *Set) Validate() geometry.Validation {
	v := geometry.ValidateRigid(s.extrinsic)
	for _, issue := range geometry.ValidateRigid(s.rect).Issues {
		v.Issues = append(v.Issues, "rectification: "+issue)
	}
	v.Valid = len(v.Issues) == 0
	return v
}

// values returns the flattened file values for a role.
func (s *Set) values(r Role) []float64 {
	switch r {
	case RoleProjection:
		return s.proj[:]
	case RoleRectification:
		out := make([]float64, 0, 9)
		for row := 0; row < 3; row++ {
			out = append(out, s.rect[row*4:row*4+3]...)
		}
		return out
	default:
		return s.extrinsic[:12]
	}
}

// Format writes s in the calibration text format accepted by Parse.
func (s *Set) Format(w io.Writer) error {
	for _, r := range Roles() {
		vals := s.values(r)
		fields := make([]string, len(vals))
		for i, v := range vals {
			fields[i] = strconv.FormatFloat(v, 'e', -1, 64)
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", r.ID(), strings.Join(fields, " ")); err != nil {
			return err
		}
	}
	return nil
}
