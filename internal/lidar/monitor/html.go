package monitor

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lidarcal/internal/lidar/projection"
)

// DefaultMaxPoints caps the points per series in the HTML page.
const DefaultMaxPoints = 20000

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// ProjectionPage describes an interactive comparison of two projections of
// the same cloud.
type ProjectionPage struct {
	Title     string
	Subtitle  string
	Height    int
	Width     int
	Reference []projection.Point
	Refined   []projection.Point
	// MaxPoints per series; <= 0 means DefaultMaxPoints.
	MaxPoints int
}

func scatterData(points []projection.Point, maxPoints int) []opts.ScatterData {
	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(points) > maxPoints {
		stride = int(math.Ceil(float64(len(points)) / float64(maxPoints)))
	}
	data := make([]opts.ScatterData, 0, len(points)/stride+1)
	for i := 0; i < len(points); i += stride {
		p := points[i]
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, p.Depth}})
	}
	return data
}

// WriteProjectionHTML renders page as a self-contained echarts scatter with
// one series per projection and a visual map over depth.
func WriteProjectionHTML(w io.Writer, page ProjectionPage) error {
	if page.Height <= 0 || page.Width <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrImageSize, page.Width, page.Height)
	}
	maxPoints := page.MaxPoints
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}

	all := make([]projection.Point, 0, len(page.Reference)+len(page.Refined))
	all = append(all, page.Reference...)
	all = append(all, page.Refined...)
	lo, hi := depthRange(all)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: page.Title, Theme: "dark", Width: "1400px", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: page.Title, Subtitle: page.Subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: page.Width - 1, Name: "u (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: page.Height - 1, Name: "v (px)", NameLocation: "middle", NameGap: 35, Inverse: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)

	scatter.AddSeries("reference", scatterData(page.Reference, maxPoints), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	scatter.AddSeries("refined", scatterData(page.Refined, maxPoints), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2, Symbol: "diamond"}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
