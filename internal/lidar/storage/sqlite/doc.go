// Package sqlite contains SQLite repository implementations for LiDAR
// calibration types.
//
// Database reads and writes for calibration runs belong here rather than in
// the geometry or pipeline packages, so those stay free of SQL and can be
// tested without a database.
package sqlite
