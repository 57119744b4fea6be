// Package refine applies a predicted pose correction to a reference
// calibration and re-projects the point cloud through the result.
//
// The predictor estimates the pose error of the reference extrinsic, so the
// correction is the rigid inverse of that pose, applied on the LiDAR side:
//
//	refined = Extrinsic * inverse(T(q, t))
package refine

import (
	"errors"
	"fmt"

	"github.com/banshee-data/lidarcal/internal/lidar/calib"
	"github.com/banshee-data/lidarcal/internal/lidar/geometry"
	"github.com/banshee-data/lidarcal/internal/lidar/pointcloud"
	"github.com/banshee-data/lidarcal/internal/lidar/projection"
)

// ErrNoCalibration is returned when Refine is given a nil set.
var ErrNoCalibration = errors.New("refine: calibration set is nil")

// Correction returns the transform that undoes pose.
func Correction(pose geometry.Pose) geometry.Transform {
	return geometry.InvertRigid(pose.Transform())
}

// RefinedExtrinsic right-multiplies extrinsic by the correction for pose.
func RefinedExtrinsic(extrinsic geometry.Transform, pose geometry.Pose) geometry.Transform {
	return geometry.Compose(extrinsic, Correction(pose))
}

// Refinement holds a corrected calibration and its projection.
type Refinement struct {
	// Set is a copy of the input set carrying the refined extrinsic.
	Set        *calib.Set
	Correction geometry.Transform
	Projection projection.Result
}

// Refiner combines a pose with a calibration set. A nil Projector uses the
// zero-value projector.
type Refiner struct {
	Projector *projection.Projector
}

// Refine builds the refined calibration for pose and projects cloud through
// it. set is not modified.
func (r *Refiner) Refine(set *calib.Set, pose geometry.Pose, cloud pointcloud.Cloud, height, width int) (Refinement, error) {
	if set == nil {
		return Refinement{}, ErrNoCalibration
	}

	corr := Correction(pose)
	refined := set.WithExtrinsic(geometry.Compose(set.Extrinsic(), corr))

	var proj *projection.Projector
	if r != nil {
		proj = r.Projector
	}
	if proj == nil {
		proj = &projection.Projector{}
	}
	res, err := proj.Project(refined, cloud, height, width)
	if err != nil {
		return Refinement{}, fmt.Errorf("project refined calibration: %w", err)
	}
	return Refinement{Set: refined, Correction: corr, Projection: res}, nil
}
