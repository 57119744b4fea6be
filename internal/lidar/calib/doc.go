// Package calib parses and holds the calibration matrices of a camera/LiDAR
// rig: the intrinsic projection (P2), the rectification (R0_rect) and the
// LiDAR-to-camera extrinsic (Tr_velo_to_cam).
//
// A Set is loaded once per calibration file and never modified afterwards;
// refinement produces a new Set through WithExtrinsic.
package calib
