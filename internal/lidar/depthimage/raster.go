package depthimage

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"strings"

	"github.com/banshee-data/lidarcal/internal/lidar/projection"
)

// CollisionPolicy decides which point wins when several round to one pixel.
type CollisionPolicy int

const (
	// CollisionLastWrite keeps the last point in input order.
	CollisionLastWrite CollisionPolicy = iota
	// CollisionNearest keeps the smallest depth regardless of order.
	CollisionNearest
)

func (c CollisionPolicy) String() string {
	if c == CollisionNearest {
		return "nearest"
	}
	return "last"
}

// ParseCollisionPolicy maps "last" (or "") and "nearest" to a policy.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last":
		return CollisionLastWrite, nil
	case "nearest":
		return CollisionNearest, nil
	default:
		return 0, fmt.Errorf("unknown collision policy %q", s)
	}
}

// Rasterizer turns projected points into a depth image.
type Rasterizer struct {
	Params    Params
	Collision CollisionPolicy
}

// NewRasterizer returns a Rasterizer with default params and last-write collisions.
func NewRasterizer() *Rasterizer {
	return &Rasterizer{Params: DefaultParams()}
}

// Rasterize allocates a zeroed height x width image and writes the encoded
// depth of each point at its rounded pixel. Points rounding outside the grid
// are skipped. A non-positive height or width yields an empty image.
func (r *Rasterizer) Rasterize(points []projection.Point, height, width int) *image.Gray {
	if height <= 0 || width <= 0 {
		return image.NewGray(image.Rectangle{})
	}
	img := image.NewGray(image.Rect(0, 0, width, height))
	var nearest []float64
	if r.Collision == CollisionNearest {
		nearest = make([]float64, width*height)
		for i := range nearest {
			nearest[i] = math.Inf(1)
		}
	}

	for _, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		x := int(math.RoundToEven(p.X))
		y := int(math.RoundToEven(p.Y))
		if x < 0 || x >= width || y < 0 || y >= height {
			continue
		}
		idx := y*width + x
		if nearest != nil {
			if p.Depth >= nearest[idx] {
				continue
			}
			nearest[idx] = p.Depth
		}
		img.Pix[y*img.Stride+x] = DistanceToIntensity(p.Depth, r.Params)
	}
	return img
}

// EncodePNG writes img as an 8-bit greyscale PNG.
func EncodePNG(w io.Writer, img *image.Gray) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode depth png: %w", err)
	}
	return nil
}
