package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"

	"github.com/banshee-data/lidarcal/internal/monitoring"
)

// QuaternionTolerance is how far |q| may drift from 1 before the
// renormalisation is reported. Quaternions are always normalised before use.
// Set it once at startup; it is read without synchronisation.
var QuaternionTolerance = 1e-3

// Pose is a rigid-body correction: a unit quaternion (w, x, y, z) and a
// translation. Poses are values and are never mutated after construction.
type Pose struct {
	Rotation    mgl64.Quat
	Translation r3.Vector
}

// NewPose builds a pose from quaternion components (w first) and a translation.
func NewPose(w, x, y, z, tx, ty, tz float64) Pose {
	return Pose{
		Rotation:    mgl64.Quat{W: w, V: mgl64.Vec3{x, y, z}},
		Translation: r3.Vector{X: tx, Y: ty, Z: tz},
	}
}

// PoseFromComponents reads the 7-vector layout (w, x, y, z, tx, ty, tz) that
// predictors emit.
func PoseFromComponents(v [7]float64) Pose {
	return NewPose(v[0], v[1], v[2], v[3], v[4], v[5], v[6])
}

// IdentityPose is the pose with no rotation or translation.
func IdentityPose() Pose {
	return Pose{Rotation: mgl64.QuatIdent()}
}

// Components returns (w, x, y, z, tx, ty, tz).
func (p Pose) Components() [7]float64 {
	q := p.Rotation
	return [7]float64{q.W, q.V[0], q.V[1], q.V[2], p.Translation.X, p.Translation.Y, p.Translation.Z}
}

// Transform converts the pose to a 4x4 rigid transform.
func (p Pose) Transform() Transform {
	return QuaternionToTransform(p.Rotation, p.Translation)
}

// QuaternionToTransform builds the rotation block from q using the standard
// quaternion-to-matrix formula, places t in the last column and fixes the
// bottom row to [0 0 0 1]. q is normalised first; the zero quaternion maps
// to the identity rotation.
func QuaternionToTransform(q mgl64.Quat, t r3.Vector) Transform {
	if n := q.Len(); math.Abs(n-1) > QuaternionTolerance {
		monitoring.Debugf("geometry: renormalising quaternion with norm %.6f", n)
	}
	rot := q.Normalize().Mat4()

	var out Transform
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*4+c] = rot.At(r, c)
		}
	}
	out[3], out[7], out[11] = t.X, t.Y, t.Z
	out[15] = 1
	return out
}
