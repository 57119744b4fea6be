// Package monitor renders projected LiDAR points for visual inspection of a
// calibration: a static PNG overlay and an interactive echarts page.
package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/lidarcal/internal/lidar/projection"
)

// ErrImageSize is returned for a non-positive image height or width.
var ErrImageSize = errors.New("monitor: image dimensions must be positive")

// overlayWidth is the rendered PNG width; the height follows the camera
// aspect ratio.
const overlayWidth = 14 * vg.Inch

// depthRange returns the min and max depth of points, widened so the range
// is never empty.
func depthRange(points []projection.Point) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range points {
		lo = math.Min(lo, p.Depth)
		hi = math.Max(hi, p.Depth)
	}
	if len(points) == 0 {
		return 0, 1
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

func depthColors(points []projection.Point) palette.ColorMap {
	cm := moreland.ExtendedKindlmann()
	lo, hi := depthRange(points)
	cm.SetMin(lo)
	cm.SetMax(hi)
	return cm
}

// WriteOverlayPNG draws points in image coordinates, coloured by depth, and
// writes a PNG to w. The y axis runs downwards as in the camera image.
func WriteOverlayPNG(w io.Writer, title string, points []projection.Point, height, width int) error {
	if height <= 0 || width <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrImageSize, width, height)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "u (px)"
	p.Y.Label.Text = "v (px)"

	if len(points) > 0 {
		xys := make(plotter.XYs, len(points))
		for i, pt := range points {
			xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("overlay scatter: %w", err)
		}

		cm := depthColors(points)
		sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			c, err := cm.At(points[i].Depth)
			if err != nil {
				c = color.Black
			}
			return draw.GlyphStyle{Color: c, Radius: vg.Points(1), Shape: draw.CircleGlyph{}}
		}
		p.Add(sc)
	}

	p.X.Min, p.X.Max = 0, float64(width-1)
	p.Y.Min, p.Y.Max = 0, float64(height-1)
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	// Leave an inch for the title and axis labels.
	h := overlayWidth*vg.Length(height)/vg.Length(width) + vg.Inch
	wt, err := p.WriterTo(overlayWidth, h, "png")
	if err != nil {
		return fmt.Errorf("overlay canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write overlay png: %w", err)
	}
	return nil
}
