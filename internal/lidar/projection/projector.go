package projection

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lidarcal/internal/lidar/calib"
	"github.com/banshee-data/lidarcal/internal/lidar/geometry"
	"github.com/banshee-data/lidarcal/internal/lidar/pointcloud"
	"github.com/banshee-data/lidarcal/internal/monitoring"
)

// DefaultChunkSize is the number of points each worker projects at a time.
const DefaultChunkSize = 4096

var (
	// ErrNoCalibration is returned when Project is given a nil set.
	ErrNoCalibration = errors.New("calibration set is nil")
	// ErrImageSize is returned for a non-positive image height or width.
	ErrImageSize = errors.New("image dimensions must be positive")
)

// Point is a visible LiDAR point in image space. X and Y are real-valued
// pixel coordinates (not yet rounded); Depth is the camera-frame z.
type Point struct {
	X, Y        float64
	Depth       float64
	Reflectance float64
}

// Result is the outcome of one projection.
type Result struct {
	// Points are the visible points in input order.
	Points []Point
	// Total is the number of input points.
	Total int
	// Degenerate counts points dropped for a zero homogeneous component.
	Degenerate int
}

// Visible returns the number of points that survived filtering.
func (r Result) Visible() int { return len(r.Points) }

// Projector projects point clouds through a calibration set. The zero value
// is ready to use and runs one worker per CPU.
type Projector struct {
	// Workers bounds concurrent chunks; <= 0 means GOMAXPROCS.
	Workers int
	// ChunkSize is the number of points per chunk; <= 0 means DefaultChunkSize.
	ChunkSize int
}

// Project is shorthand for a zero-value Projector.
func Project(set *calib.Set, cloud pointcloud.Cloud, height, width int) (Result, error) {
	var p Projector
	return p.Project(set, cloud, height, width)
}

// Matrices returns the composed depth (4x4) and pixel (3x4) matrices.
func Matrices(set *calib.Set) (depth, pixel *mat.Dense) {
	depth = geometry.Compose(set.Rect(), set.Extrinsic()).Dense()
	pixel = mat.NewDense(3, 4, nil)
	pixel.Mul(set.Proj(), depth)
	return depth, pixel
}

// Project maps cloud into a height x width image. Chunks of points are
// processed concurrently and merged in chunk order, so the output is the
// same as a sequential pass.
func (p *Projector) Project(set *calib.Set, cloud pointcloud.Cloud, height, width int) (Result, error) {
	if set == nil {
		return Result{}, ErrNoCalibration
	}
	if height <= 0 || width <= 0 {
		return Result{}, fmt.Errorf("%w: %dx%d", ErrImageSize, width, height)
	}

	n := cloud.Len()
	res := Result{Points: make([]Point, 0, n), Total: n}
	if n == 0 {
		return res, nil
	}

	depthM, pixelM := Matrices(set)
	size := p.chunkSize()
	parts := make([]Result, (n+size-1)/size)

	var g errgroup.Group
	g.SetLimit(p.workers())
	for i := range parts {
		lo := i * size
		hi := min(lo+size, n)
		g.Go(func() error {
			r, err := projectChunk(depthM, pixelM, cloud.Points[lo:hi], float64(height), float64(width))
			parts[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	for _, part := range parts {
		res.Points = append(res.Points, part.Points...)
		res.Degenerate += part.Degenerate
	}
	if res.Degenerate > 0 {
		monitoring.Debugf("projection: dropped %d of %d points on degenerate rays", res.Degenerate, n)
	}
	return res, nil
}

func (p *Projector) workers() int {
	if p == nil || p.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return p.Workers
}

func (p *Projector) chunkSize() int {
	if p == nil || p.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return p.ChunkSize
}

func projectChunk(depthM, pixelM mat.Matrix, pts []pointcloud.Point, height, width float64) (Result, error) {
	positions := make([]r3.Vector, len(pts))
	for i, pt := range pts {
		positions[i] = pt.Position
	}

	cam, err := geometry.ApplyToPoints(depthM, positions)
	if err != nil {
		return Result{}, fmt.Errorf("depth transform: %w", err)
	}
	pix, err := geometry.ApplyToPoints(pixelM, positions)
	if err != nil {
		return Result{}, fmt.Errorf("pixel transform: %w", err)
	}

	out := Result{Points: make([]Point, 0, len(pts)), Total: len(pts)}
	for i := range pts {
		if !cam.Valid[i] || !pix.Valid[i] {
			out.Degenerate++
			continue
		}
		depth := cam.Raw.At(i, 2)
		x, y := pix.Normalized.At(i, 0), pix.Normalized.At(i, 1)
		if x >= 0 && x <= width-1 && y >= 0 && y <= height-1 && depth >= 0 {
			out.Points = append(out.Points, Point{X: x, Y: y, Depth: depth, Reflectance: pts[i].Reflectance})
		}
	}
	return out, nil
}
