package refine

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarcal/internal/lidar/calib"
	"github.com/banshee-data/lidarcal/internal/lidar/geometry"
	"github.com/banshee-data/lidarcal/internal/lidar/pointcloud"
	"github.com/banshee-data/lidarcal/internal/lidar/projection"
)

// kittiSet is a KITTI-style camera with the LiDAR 0.3m behind and pointing
// along the camera z axis.
func kittiSet() *calib.Set {
	proj := [12]float64{
		700, 0, 600, 45,
		0, 700, 180, 0,
		0, 0, 1, 0.003,
	}
	ext := geometry.Transform{
		0, -1, 0, 0,
		0, 0, -1, -0.08,
		1, 0, 0, -0.3,
		0, 0, 0, 1,
	}
	return calib.NewSet(proj, geometry.Identity(), ext)
}

func testCloud() pointcloud.Cloud {
	return pointcloud.Cloud{Points: []pointcloud.Point{
		{Position: r3.Vector{X: 10, Y: 1, Z: 0.5}, Reflectance: 0.2},
		{Position: r3.Vector{X: 20, Y: -2, Z: -1}, Reflectance: 0.4},
		{Position: r3.Vector{X: 5, Y: 0, Z: 0}, Reflectance: 0.6},
		{Position: r3.Vector{X: -5, Y: 0, Z: 0}, Reflectance: 0.8},
	}}
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestRefine_IdentityPoseIsNoOp(t *testing.T) {
	set := kittiSet()
	cloud := testCloud()

	ref, err := projection.Project(set, cloud, 375, 1242)
	require.NoError(t, err)

	r := &Refiner{}
	out, err := r.Refine(set, geometry.IdentityPose(), cloud, 375, 1242)
	require.NoError(t, err)

	if diff := cmp.Diff(set.Extrinsic(), out.Set.Extrinsic(), approx); diff != "" {
		t.Errorf("extrinsic changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ref, out.Projection, approx); diff != "" {
		t.Errorf("projection changed (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, out.Projection.Visible())
}

func TestRefine_DoesNotModifyInput(t *testing.T) {
	set := kittiSet()
	before := set.Extrinsic()

	pose := geometry.NewPose(math.Cos(0.05), 0, 0, math.Sin(0.05), 0.1, 0, 0)
	out, err := (&Refiner{}).Refine(set, pose, testCloud(), 375, 1242)
	require.NoError(t, err)

	assert.Equal(t, before, set.Extrinsic())
	assert.NotEqual(t, set.Extrinsic(), out.Set.Extrinsic())
	assert.Equal(t, geometry.Compose(before, out.Correction), out.Set.Extrinsic())
}

func TestRefine_CorrectionUndoesPerturbation(t *testing.T) {
	set := kittiSet()
	cloud := testCloud()

	// Perturb the extrinsic by pose, then refine with the same pose.
	pose := geometry.NewPose(math.Cos(0.1), math.Sin(0.1), 0, 0, 0.05, -0.02, 0.1)
	perturbed := set.WithExtrinsic(geometry.Compose(set.Extrinsic(), pose.Transform()))

	out, err := (&Refiner{Projector: &projection.Projector{Workers: 2, ChunkSize: 1}}).
		Refine(perturbed, pose, cloud, 375, 1242)
	require.NoError(t, err)

	want, err := projection.Project(set, cloud, 375, 1242)
	require.NoError(t, err)

	for i := range 16 {
		assert.InDelta(t, set.Extrinsic()[i], out.Set.Extrinsic()[i], 1e-9, "extrinsic[%d]", i)
	}
	require.Len(t, out.Projection.Points, len(want.Points))
	for i, p := range out.Projection.Points {
		assert.InDelta(t, want.Points[i].X, p.X, 1e-6)
		assert.InDelta(t, want.Points[i].Y, p.Y, 1e-6)
		assert.InDelta(t, want.Points[i].Depth, p.Depth, 1e-9)
	}
}

func TestCorrection_InverseOfPose(t *testing.T) {
	pose := geometry.NewPose(0.9, 0.1, -0.3, 0.2, 1, 2, 3)
	got := geometry.Compose(pose.Transform(), Correction(pose))

	if diff := cmp.Diff(geometry.Identity(), got, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("pose * correction != identity (-want +got):\n%s", diff)
	}
	assert.Equal(t, geometry.Compose(geometry.Identity(), Correction(pose)),
		RefinedExtrinsic(geometry.Identity(), pose))
}

func TestRefine_Errors(t *testing.T) {
	_, err := (&Refiner{}).Refine(nil, geometry.IdentityPose(), testCloud(), 10, 10)
	assert.ErrorIs(t, err, ErrNoCalibration)

	_, err = (&Refiner{}).Refine(kittiSet(), geometry.IdentityPose(), testCloud(), 0, 10)
	assert.ErrorIs(t, err, projection.ErrImageSize)
}
