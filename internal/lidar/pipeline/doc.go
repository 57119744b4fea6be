// Package pipeline provides orchestration for one calibration pass over a
// camera/LiDAR frame.
//
// It wires the projector, depth rasterizer, predictor, refiner and run
// store into the predict-then-calibrate flow. The pipeline does not own
// geometry; it delegates to the layer packages, none of which import
// pipeline/.
package pipeline
