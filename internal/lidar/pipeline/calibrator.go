package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/lidarcal/internal/lidar/calib"
	"github.com/banshee-data/lidarcal/internal/lidar/depthimage"
	"github.com/banshee-data/lidarcal/internal/lidar/pointcloud"
	"github.com/banshee-data/lidarcal/internal/lidar/predict"
	"github.com/banshee-data/lidarcal/internal/lidar/projection"
	"github.com/banshee-data/lidarcal/internal/lidar/refine"
	"github.com/banshee-data/lidarcal/internal/lidar/storage/sqlite"
	"github.com/banshee-data/lidarcal/internal/monitoring"
)

var (
	// ErrNoPredictor is returned by Run when the Calibrator has no Predictor.
	ErrNoPredictor = errors.New("pipeline: predictor is required")
	// ErrNonFinitePrediction is returned when the predicted pose or score
	// contains NaN or Inf.
	ErrNonFinitePrediction = errors.New("pipeline: prediction is not finite")
)

// Recorder persists calibration runs. *sqlite.CalibrationRunStore
// satisfies it.
type Recorder interface {
	Insert(run *sqlite.CalibrationRun) error
}

// Frame is one synchronised camera image and LiDAR sweep with the reference
// calibration they were captured under.
type Frame struct {
	ID          string
	SensorID    string
	Calibration *calib.Set
	Cloud       pointcloud.Cloud
	// Camera may be nil, in which case a blank image of the camera size is
	// passed to the predictor.
	Camera image.Image
	Height int
	Width  int
	Crop   predict.Crop
}

// Outcome is the result of calibrating one frame.
type Outcome struct {
	FrameID        string
	Reference      projection.Result
	ReferenceDepth *image.Gray
	Prediction     predict.Prediction
	Refinement     refine.Refinement
	RefinedDepth   *image.Gray
	// InputImage and InputDepth are the model inputs restored for display.
	// They are set when KeepInputs is on and the predictor returned them.
	InputImage *image.RGBA
	InputDepth *image.Gray
	// RunID is set when the run was recorded.
	RunID string
}

// Calibrator runs the predict-then-refine flow. Refiner and Rasterizer may
// be nil, in which case defaults are used; Recorder is optional.
// KeepInputs restores the predictor's normalised inputs into the Outcome.
type Calibrator struct {
	Predictor  predict.Predictor
	Refiner    *refine.Refiner
	Rasterizer *depthimage.Rasterizer
	Recorder   Recorder
	KeepInputs bool
}

func (c *Calibrator) refiner() *refine.Refiner {
	if c.Refiner == nil {
		return &refine.Refiner{}
	}
	return c.Refiner
}

func (c *Calibrator) rasterizer() *depthimage.Rasterizer {
	if c.Rasterizer == nil {
		return depthimage.NewRasterizer()
	}
	return c.Rasterizer
}

// Run projects the frame with its reference calibration, renders the sparse
// depth image, asks the predictor for a correction, applies it and renders
// the refined depth image. The run is recorded when a Recorder is set.
func (c *Calibrator) Run(ctx context.Context, f Frame) (Outcome, error) {
	if c.Predictor == nil {
		return Outcome{}, ErrNoPredictor
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	ref := c.refiner()
	proj := ref.Projector
	if proj == nil {
		proj = &projection.Projector{}
	}
	raster := c.rasterizer()

	refRes, err := proj.Project(f.Calibration, f.Cloud, f.Height, f.Width)
	if err != nil {
		return Outcome{}, fmt.Errorf("frame %s: project reference: %w", f.ID, err)
	}
	out := Outcome{
		FrameID:        f.ID,
		Reference:      refRes,
		ReferenceDepth: raster.Rasterize(refRes.Points, f.Height, f.Width),
	}

	camera := f.Camera
	if camera == nil {
		camera = image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	}
	out.Prediction, err = c.Predictor.Predict(ctx, camera, out.ReferenceDepth, f.Crop)
	if err != nil {
		return Outcome{}, fmt.Errorf("frame %s: predict: %w", f.ID, err)
	}
	if !finitePrediction(out.Prediction) {
		return Outcome{}, fmt.Errorf("frame %s: %w: pose %v score %v",
			f.ID, ErrNonFinitePrediction, out.Prediction.Pose.Components(), out.Prediction.Score)
	}
	if c.KeepInputs {
		if err := restoreInputs(&out); err != nil {
			return Outcome{}, fmt.Errorf("frame %s: restore inputs: %w", f.ID, err)
		}
	}

	out.Refinement, err = ref.Refine(f.Calibration, out.Prediction.Pose, f.Cloud, f.Height, f.Width)
	if err != nil {
		return Outcome{}, fmt.Errorf("frame %s: refine: %w", f.ID, err)
	}
	out.RefinedDepth = raster.Rasterize(out.Refinement.Projection.Points, f.Height, f.Width)

	monitoring.Logf("frame %s: %d points, %d visible with reference, %d visible refined (score %.3f, correction %.3f rad)",
		f.ID, refRes.Total, refRes.Visible(), out.Refinement.Projection.Visible(),
		out.Prediction.Score, out.Refinement.Correction.RotationAngle())

	if c.Recorder != nil {
		run := &sqlite.CalibrationRun{
			SensorID:           f.SensorID,
			Pose:               out.Prediction.Pose,
			Score:              out.Prediction.Score,
			ReferenceExtrinsic: f.Calibration.Extrinsic(),
			RefinedExtrinsic:   out.Refinement.Set.Extrinsic(),
			PointsTotal:        refRes.Total,
			PointsReference:    refRes.Visible(),
			PointsRefined:      out.Refinement.Projection.Visible(),
			Notes:              f.ID,
		}
		if err := c.Recorder.Insert(run); err != nil {
			return Outcome{}, fmt.Errorf("frame %s: record run: %w", f.ID, err)
		}
		out.RunID = run.RunID
	}
	return out, nil
}

func finitePrediction(p predict.Prediction) bool {
	for _, v := range p.Pose.Components() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !math.IsNaN(p.Score) && !math.IsInf(p.Score, 0)
}

func restoreInputs(out *Outcome) error {
	in := out.Prediction.Inputs
	if in == nil {
		monitoring.Debugf("frame %s: predictor returned no inputs", out.FrameID)
		return nil
	}
	img, err := in.Preprocessing.RestoreImage(in.Image)
	if err != nil {
		return fmt.Errorf("image: %w", err)
	}
	depth, err := in.Preprocessing.RestoreDepth(in.Depth)
	if err != nil {
		return fmt.Errorf("depth: %w", err)
	}
	out.InputImage, out.InputDepth = img, depth
	return nil
}

// RunBatch calibrates frames concurrently, at most workers at a time
// (<= 0 means GOMAXPROCS). Outcomes are returned in input order. The first
// error cancels frames that have not started yet.
func (c *Calibrator) RunBatch(ctx context.Context, frames []Frame, workers int) ([]Outcome, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]Outcome, len(frames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range frames {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o, err := c.Run(gctx, frames[i])
			if err != nil {
				return err
			}
			out[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
