// Package predict is the boundary to the learned calibration model. The
// model itself lives outside this module; callers plug it in through the
// Predictor interface.
package predict

import (
	"context"
	"errors"
	"image"

	"github.com/banshee-data/lidarcal/internal/lidar/geometry"
)

// ErrNoInput is returned when a predictor is called without a camera image
// or depth image.
var ErrNoInput = errors.New("predict: camera image and depth image are required")

// Crop holds the four crop parameters the model was trained with.
type Crop [4]float64

// Prediction is the model's estimate of the pose error of the reference
// extrinsic, with an optional confidence score. Inputs is set only by
// predictors asked to return the tensors they consumed.
type Prediction struct {
	Pose   geometry.Pose
	Score  float64
	Inputs *Inputs
}

// Predictor estimates a pose correction from a camera image and the sparse
// depth image rendered with the reference calibration.
type Predictor interface {
	Predict(ctx context.Context, camera image.Image, depth *image.Gray, crop Crop) (Prediction, error)
}

// Func adapts an ordinary function to the Predictor interface.
type Func func(ctx context.Context, camera image.Image, depth *image.Gray, crop Crop) (Prediction, error)

// Predict calls f.
func (f Func) Predict(ctx context.Context, camera image.Image, depth *image.Gray, crop Crop) (Prediction, error) {
	return f(ctx, camera, depth, crop)
}

// Static always returns the same prediction. It is used for replaying
// recorded model outputs and in tests. With WithInputs set it also returns
// the camera and depth images normalised by Preprocessing.
type Static struct {
	Prediction    Prediction
	WithInputs    bool
	Preprocessing Preprocessing
}

// NewStatic returns a Static predictor for pose with a score of 1.
func NewStatic(pose geometry.Pose) *Static {
	return &Static{Prediction: Prediction{Pose: pose, Score: 1}}
}

// Predict returns s.Prediction unless ctx is done or an input is missing.
func (s *Static) Predict(ctx context.Context, camera image.Image, depth *image.Gray, _ Crop) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	if camera == nil || depth == nil {
		return Prediction{}, ErrNoInput
	}
	p := s.Prediction
	if s.WithInputs {
		p.Inputs = &Inputs{
			Image:         s.Preprocessing.NormalizeImage(camera),
			Depth:         s.Preprocessing.NormalizeDepth(depth),
			Preprocessing: s.Preprocessing,
		}
	}
	return p, nil
}
