// Package geometry implements the homogeneous-coordinate algebra shared by
// projection and calibration refinement: rigid 4x4 transforms built from
// quaternion poses, their composition and analytic inverse, and batch
// application of 4-column matrices to point sets with perspective
// normalisation.
//
// Transforms are row-major [16]float64 values (m00,m01,m02,m03,m10,...),
// the same layout used for sensor poses elsewhere in the LiDAR stack.
// Composition follows the "rightmost transform applies first" convention:
// Compose(A, B) maps p to A*(B*p).
package geometry
