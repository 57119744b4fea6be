package calib

import "github.com/banshee-data/lidarcal/internal/lidar/geometry"

// Role names one of the three matrices a sensor rig needs.
type Role int

const (
	// RoleProjection is the 3x4 intrinsic projection matrix (KITTI "P2").
	RoleProjection Role = iota
	// RoleRectification is the 3x3 rectifying rotation (KITTI "R0_rect"),
	// stored identity-augmented as a 4x4.
	RoleRectification
	// RoleExtrinsic is the LiDAR-to-camera rigid transform (KITTI "Tr_velo_to_cam").
	RoleExtrinsic

	roleCount
)

var roleIDs = [roleCount]string{"P2", "R0_rect", "Tr_velo_to_cam"}

var roleValueCounts = [roleCount]int{12, 9, 12}

// Roles returns every role in file order.
func Roles() []Role {
	return []Role{RoleProjection, RoleRectification, RoleExtrinsic}
}

// RoleFromID maps a calibration file ID to its role.
func RoleFromID(id string) (Role, bool) {
	for r, s := range roleIDs {
		if s == id {
			return Role(r), true
		}
	}
	return 0, false
}

// ID is the identifier used in calibration files.
func (r Role) ID() string { return roleIDs[r] }

// ValueCount is the number of floats a file line for this role carries.
func (r Role) ValueCount() int { return roleValueCounts[r] }

func (r Role) String() string {
	if r < 0 || r >= roleCount {
		return "unknown"
	}
	return roleIDs[r]
}

// reshape3x4 places 12 row-major values into the top three rows of a 4x4
// with bottom row [0 0 0 1].
func reshape3x4(vals []float64) geometry.Transform {
	var t geometry.Transform
	copy(t[:12], vals)
	t[15] = 1
	return t
}

// reshape3x3 places 9 row-major values into the rotation block of a 4x4
// whose fourth row and column are zero apart from the homogeneous 1.
func reshape3x3(vals []float64) geometry.Transform {
	var t geometry.Transform
	for r := 0; r < 3; r++ {
		copy(t[r*4:r*4+3], vals[r*3:r*3+3])
	}
	t[15] = 1
	return t
}
