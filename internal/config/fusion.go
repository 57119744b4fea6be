package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/lidarcal/internal/fsutil"
	"github.com/banshee-data/lidarcal/internal/lidar/depthimage"
)

// DefaultConfigPath is the path to the canonical fusion defaults file.
const DefaultConfigPath = "config/fusion.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// FusionConfig holds the tunables for projection and depth rasterisation.
// Fields are pointers so a partial file only overrides what it names; the
// Get* methods supply defaults for the rest.
type FusionConfig struct {
	// Depth encoding
	DepthMode       *string  `json:"depth_mode,omitempty"` // "inverse" or "standard"
	DepthMax        *float64 `json:"depth_max,omitempty"`  // metres
	DepthMin        *float64 `json:"depth_min,omitempty"`  // metres
	CollisionPolicy *string  `json:"collision_policy,omitempty"`

	// Projection
	Workers   *int `json:"workers,omitempty"`
	ChunkSize *int `json:"chunk_size,omitempty"`

	QuaternionTolerance *float64 `json:"quaternion_tolerance,omitempty"`

	// Camera resolution, used when the command line does not give one.
	ImageHeight *int `json:"image_height,omitempty"`
	ImageWidth  *int `json:"image_width,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyFusionConfig returns a FusionConfig with all fields nil.
func EmptyFusionConfig() *FusionConfig {
	return &FusionConfig{}
}

// DefaultFusionConfig returns a FusionConfig with every field set to its
// default. It mirrors config/fusion.defaults.json.
func DefaultFusionConfig() *FusionConfig {
	return &FusionConfig{
		DepthMode:           ptrString("inverse"),
		DepthMax:            ptrFloat64(depthimage.DefaultMaxDistance),
		DepthMin:            ptrFloat64(depthimage.DefaultMinDistance),
		CollisionPolicy:     ptrString("last"),
		Workers:             ptrInt(0),
		ChunkSize:           ptrInt(4096),
		QuaternionTolerance: ptrFloat64(1e-3),
		ImageHeight:         ptrInt(375),
		ImageWidth:          ptrInt(1242),
	}
}

// LoadFusionConfig loads a FusionConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadFusionConfig(fsys fsutil.FileSystem, path string) (*FusionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFusionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *FusionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/lidar/<pkg>/
		"../../../../" + DefaultConfigPath, // from internal/lidar/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadFusionConfig(fsutil.OSFileSystem{}, path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *FusionConfig) Validate() error {
	if c.DepthMode != nil {
		if _, err := depthimage.ParseMode(*c.DepthMode); err != nil {
			return fmt.Errorf("depth_mode: %w", err)
		}
	}
	if c.CollisionPolicy != nil {
		if _, err := depthimage.ParseCollisionPolicy(*c.CollisionPolicy); err != nil {
			return fmt.Errorf("collision_policy: %w", err)
		}
	}
	if c.DepthMax != nil && *c.DepthMax <= 0 {
		return fmt.Errorf("depth_max must be positive, got %f", *c.DepthMax)
	}
	if c.DepthMin != nil && *c.DepthMin <= 0 {
		return fmt.Errorf("depth_min must be positive, got %f", *c.DepthMin)
	}
	if c.GetDepthMin() >= c.GetDepthMax() {
		return fmt.Errorf("depth_min (%f) must be below depth_max (%f)", c.GetDepthMin(), c.GetDepthMax())
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.ChunkSize != nil && *c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", *c.ChunkSize)
	}
	if c.QuaternionTolerance != nil && (*c.QuaternionTolerance <= 0 || *c.QuaternionTolerance >= 1) {
		return fmt.Errorf("quaternion_tolerance must be in (0, 1), got %f", *c.QuaternionTolerance)
	}
	if c.ImageHeight != nil && *c.ImageHeight <= 0 {
		return fmt.Errorf("image_height must be positive, got %d", *c.ImageHeight)
	}
	if c.ImageWidth != nil && *c.ImageWidth <= 0 {
		return fmt.Errorf("image_width must be positive, got %d", *c.ImageWidth)
	}
	return nil
}

// GetDepthMode returns the parsed depth_mode or ModeInverse.
func (c *FusionConfig) GetDepthMode() depthimage.Mode {
	if c.DepthMode == nil {
		return depthimage.ModeInverse
	}
	m, err := depthimage.ParseMode(*c.DepthMode)
	if err != nil {
		return depthimage.ModeInverse // default on parse error
	}
	return m
}

// GetDepthMax returns the depth_max value or the default.
func (c *FusionConfig) GetDepthMax() float64 {
	if c.DepthMax == nil {
		return depthimage.DefaultMaxDistance
	}
	return *c.DepthMax
}

// GetDepthMin returns the depth_min value or the default.
func (c *FusionConfig) GetDepthMin() float64 {
	if c.DepthMin == nil {
		return depthimage.DefaultMinDistance
	}
	return *c.DepthMin
}

// GetCollisionPolicy returns the parsed collision_policy or CollisionLastWrite.
func (c *FusionConfig) GetCollisionPolicy() depthimage.CollisionPolicy {
	if c.CollisionPolicy == nil {
		return depthimage.CollisionLastWrite
	}
	p, err := depthimage.ParseCollisionPolicy(*c.CollisionPolicy)
	if err != nil {
		return depthimage.CollisionLastWrite
	}
	return p
}

// GetWorkers returns the workers value or 0 (one per CPU).
func (c *FusionConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetChunkSize returns the chunk_size value or the default.
func (c *FusionConfig) GetChunkSize() int {
	if c.ChunkSize == nil {
		return 4096
	}
	return *c.ChunkSize
}

// GetQuaternionTolerance returns the quaternion_tolerance value or the default.
func (c *FusionConfig) GetQuaternionTolerance() float64 {
	if c.QuaternionTolerance == nil {
		return 1e-3
	}
	return *c.QuaternionTolerance
}

// GetImageHeight returns the image_height value or the KITTI default.
func (c *FusionConfig) GetImageHeight() int {
	if c.ImageHeight == nil {
		return 375
	}
	return *c.ImageHeight
}

// GetImageWidth returns the image_width value or the KITTI default.
func (c *FusionConfig) GetImageWidth() int {
	if c.ImageWidth == nil {
		return 1242
	}
	return *c.ImageWidth
}

// DepthParams returns the depth encoding parameters.
func (c *FusionConfig) DepthParams() depthimage.Params {
	return depthimage.Params{
		Mode:        c.GetDepthMode(),
		MaxDistance: c.GetDepthMax(),
		MinDistance: c.GetDepthMin(),
	}
}

// Rasterizer returns a depth rasterizer configured from c.
func (c *FusionConfig) Rasterizer() *depthimage.Rasterizer {
	return &depthimage.Rasterizer{Params: c.DepthParams(), Collision: c.GetCollisionPolicy()}
}
