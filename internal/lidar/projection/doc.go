// Package projection maps LiDAR points into a camera image using a
// calibration set.
//
// Depth and pixel position are computed from two separately composed
// matrices. Depth is a camera-frame quantity and only needs
// Rect*Extrinsic; the pixel position additionally goes through the
// intrinsic projection:
//
//	M_depth = Rect * Extrinsic        (4x4)
//	M_pixel = Proj * M_depth          (3x4)
//
// Points that fall outside [0,width-1]x[0,height-1], lie behind the camera
// (negative depth) or sit on a degenerate projective ray are dropped. The
// survivors keep their input order. Input indices are not carried through:
// once filtered, a projected point cannot be traced back to its source
// index, only its reflectance travels with it.
package projection
