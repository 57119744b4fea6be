package projection

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarcal/internal/lidar/calib"
	"github.com/banshee-data/lidarcal/internal/lidar/geometry"
	"github.com/banshee-data/lidarcal/internal/lidar/pointcloud"
)

const identityCalib = `P2: 1 0 0 0 0 1 0 0 0 0 1 0
R0_rect: 1 0 0 0 1 0 0 0 1
Tr_velo_to_cam: 1 0 0 0 0 1 0 0 0 0 1 0
`

const kittiCalib = `P2: 7.215377e+02 0.000000e+00 6.095593e+02 4.485728e+01 0.000000e+00 7.215377e+02 1.728540e+02 2.163791e-01 0.000000e+00 0.000000e+00 1.000000e+00 2.745884e-03
R0_rect: 9.999239e-01 9.837760e-03 -7.445048e-03 -9.869795e-03 9.999421e-01 -4.278459e-03 7.402527e-03 4.351614e-03 9.999631e-01
Tr_velo_to_cam: 7.533745e-03 -9.999714e-01 -6.166020e-04 -4.069766e-03 1.480249e-02 7.280733e-04 -9.998902e-01 -7.631618e-02 9.998621e-01 7.523790e-03 1.480755e-02 -2.717806e-01
`

func mustParse(t *testing.T, text string) *calib.Set {
	t.Helper()
	s, err := calib.Parse(strings.NewReader(text))
	require.NoError(t, err)
	return s
}

// randomCloud scatters points around a forward-looking velodyne.
func randomCloud(n int, seed uint64) pointcloud.Cloud {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	c := pointcloud.Cloud{Points: make([]pointcloud.Point, n)}
	for i := range c.Points {
		c.Points[i] = pointcloud.Point{
			Position: r3.Vector{
				X: rng.Float64()*160 - 80,
				Y: rng.Float64()*160 - 80,
				Z: rng.Float64()*6 - 3,
			},
			Reflectance: rng.Float64(),
		}
	}
	return c
}

func TestProject_IdentityCalibration(t *testing.T) {
	set := mustParse(t, identityCalib)
	cloud := pointcloud.FromPositions([]r3.Vector{
		{X: 50, Y: 20, Z: 10},
		{X: 5, Y: 2, Z: 10},
	})

	res, err := Project(set, cloud, 100, 100)
	require.NoError(t, err)
	require.Equal(t, 2, res.Visible())

	// The pixel is (x/z, y/z) and the depth is z.
	assert.InDelta(t, 5.0, res.Points[0].X, 1e-12)
	assert.InDelta(t, 2.0, res.Points[0].Y, 1e-12)
	assert.InDelta(t, 10.0, res.Points[0].Depth, 1e-12)

	assert.InDelta(t, 0.5, res.Points[1].X, 1e-12)
	assert.InDelta(t, 0.2, res.Points[1].Y, 1e-12)
	assert.InDelta(t, 10.0, res.Points[1].Depth, 1e-12)
}

func TestProject_BoundsAndDepthFilter(t *testing.T) {
	set := mustParse(t, identityCalib)
	cloud := pointcloud.FromPositions([]r3.Vector{
		{X: 9, Y: 9, Z: 1},    // exactly on the far corner: kept
		{X: 9.5, Y: 0, Z: 1},  // x > width-1
		{X: 0, Y: 9.01, Z: 1}, // y > height-1
		{X: -1, Y: 0, Z: 1},   // x < 0
		{X: 2, Y: 2, Z: -1},   // behind the camera: pixel (-2,-2)
		{X: -2, Y: -2, Z: -1}, // behind the camera: pixel (2,2), negative depth
		{X: 1, Y: 1, Z: 0},    // degenerate ray
		{X: 0, Y: 0, Z: 2},    // origin pixel: kept
	})

	res, err := Project(set, cloud, 10, 10)
	require.NoError(t, err)

	assert.Equal(t, 8, res.Total)
	assert.Equal(t, 1, res.Degenerate)
	require.Equal(t, 2, res.Visible())
	assert.Equal(t, Point{X: 9, Y: 9, Depth: 1}, res.Points[0])
	assert.Equal(t, Point{X: 0, Y: 0, Depth: 2}, res.Points[1])
}

func TestProject_ZeroDepthIsKept(t *testing.T) {
	// w = z + 1 so a point on the camera plane is not degenerate.
	set := calib.NewSet(
		[12]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 1},
		geometry.Identity(), geometry.Identity(),
	)
	cloud := pointcloud.FromPositions([]r3.Vector{
		{X: 0, Y: 0, Z: 0},    // depth 0: kept
		{X: 0, Y: 0, Z: -0.5}, // depth -0.5, pixel (0,0): dropped
		{X: 1, Y: 1, Z: 0},    // depth 0, pixel (1,1): kept
	})

	res, err := Project(set, cloud, 4, 4)
	require.NoError(t, err)
	require.Equal(t, 2, res.Visible())
	assert.Equal(t, 0.0, res.Points[0].Depth)
	assert.Equal(t, Point{X: 1, Y: 1, Depth: 0}, res.Points[1])
}

func TestProject_KITTIInvariants(t *testing.T) {
	set := mustParse(t, kittiCalib)
	const h, w = 375, 1242
	cloud := randomCloud(20000, 7)

	res, err := Project(set, cloud, h, w)
	require.NoError(t, err)
	require.NotZero(t, res.Visible(), "a forward-facing cloud should hit the image")
	assert.Less(t, res.Visible(), cloud.Len())

	for i, p := range res.Points {
		if p.X < 0 || p.X > w-1 || p.Y < 0 || p.Y > h-1 {
			t.Fatalf("point %d out of bounds: %+v", i, p)
		}
		if p.Depth < 0 {
			t.Fatalf("point %d has negative depth: %+v", i, p)
		}
	}
}

func TestProject_ParallelMatchesSequential(t *testing.T) {
	set := mustParse(t, kittiCalib)
	cloud := randomCloud(10007, 11)

	seq := Projector{Workers: 1, ChunkSize: 1 << 20}
	par := Projector{Workers: 8, ChunkSize: 97}

	want, err := seq.Project(set, cloud, 375, 1242)
	require.NoError(t, err)
	got, err := par.Project(set, cloud, 375, 1242)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestProject_ReflectancePassesThrough(t *testing.T) {
	set := mustParse(t, identityCalib)
	cloud := pointcloud.Cloud{Points: []pointcloud.Point{
		{Position: r3.Vector{X: 1, Y: 1, Z: 1}, Reflectance: 0.3},
		{Position: r3.Vector{X: -5, Y: 1, Z: 1}, Reflectance: 0.9},
		{Position: r3.Vector{X: 2, Y: 2, Z: 1}, Reflectance: 0.6},
	}}
	res, err := Project(set, cloud, 5, 5)
	require.NoError(t, err)
	require.Equal(t, 2, res.Visible())
	assert.Equal(t, 0.3, res.Points[0].Reflectance)
	assert.Equal(t, 0.6, res.Points[1].Reflectance)
}

func TestProject_EmptyCloud(t *testing.T) {
	res, err := Project(mustParse(t, identityCalib), pointcloud.Cloud{}, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Visible())
	assert.NotNil(t, res.Points)
}

func TestProject_Errors(t *testing.T) {
	_, err := Project(nil, pointcloud.Cloud{}, 10, 10)
	assert.ErrorIs(t, err, ErrNoCalibration)

	_, err = Project(mustParse(t, identityCalib), pointcloud.Cloud{}, 0, 10)
	assert.ErrorIs(t, err, ErrImageSize)
}

func TestMatrices(t *testing.T) {
	set := mustParse(t, kittiCalib)
	depth, pixel := Matrices(set)

	r, c := depth.Dims()
	assert.Equal(t, [2]int{4, 4}, [2]int{r, c})
	r, c = pixel.Dims()
	assert.Equal(t, [2]int{3, 4}, [2]int{r, c})

	// Depth matrix keeps the affine bottom row.
	assert.Equal(t, []float64{0, 0, 0, 1}, depth.RawRowView(3))
}
