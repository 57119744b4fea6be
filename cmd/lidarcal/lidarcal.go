// Command lidarcal refines a LiDAR-to-camera calibration for one frame with
// a given pose correction and writes the refined depth image, overlays and
// calibration file.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/banshee-data/lidarcal/internal/config"
	"github.com/banshee-data/lidarcal/internal/db"
	"github.com/banshee-data/lidarcal/internal/fsutil"
	"github.com/banshee-data/lidarcal/internal/lidar/calib"
	"github.com/banshee-data/lidarcal/internal/lidar/depthimage"
	"github.com/banshee-data/lidarcal/internal/lidar/geometry"
	"github.com/banshee-data/lidarcal/internal/lidar/monitor"
	"github.com/banshee-data/lidarcal/internal/lidar/pipeline"
	"github.com/banshee-data/lidarcal/internal/lidar/pointcloud"
	"github.com/banshee-data/lidarcal/internal/lidar/predict"
	"github.com/banshee-data/lidarcal/internal/lidar/projection"
	"github.com/banshee-data/lidarcal/internal/lidar/refine"
	"github.com/banshee-data/lidarcal/internal/lidar/storage/sqlite"
	"github.com/banshee-data/lidarcal/internal/monitoring"
	"github.com/banshee-data/lidarcal/internal/version"
)

var (
	calibFile   = flag.String("calib", "", "Path to the KITTI calibration file (P2, R0_rect, Tr_velo_to_cam)")
	pointsFile  = flag.String("points", "", "Path to the velodyne point cloud (.bin, float32 x,y,z,reflectance)")
	poseFlag    = flag.String("pose", "1,0,0,0,0,0,0", "Predicted pose correction as w,x,y,z,tx,ty,tz")
	scoreFlag   = flag.Float64("score", 1, "Confidence score recorded with the pose")
	height      = flag.Int("height", 0, "Camera image height in pixels (0: from config)")
	width       = flag.Int("width", 0, "Camera image width in pixels (0: from config)")
	configFile  = flag.String("config", "", "Path to a fusion config JSON file (default: built-in defaults)")
	depthOut    = flag.String("depth-out", "", "Write the refined depth image PNG here")
	overlayOut  = flag.String("overlay-out", "", "Write a PNG scatter of the refined projection here")
	htmlOut     = flag.String("html-out", "", "Write an interactive reference vs refined projection page here")
	calibOut    = flag.String("calib-out", "", "Write the refined calibration file here")
	inputsOut   = flag.String("inputs-out", "", "Write the model's image and depth inputs, de-normalised, to this directory")
	preprocFlag = flag.String("preprocessing", "vgg", "Model preprocessing name (vgg, vgg_16, vgg_19, inception_v1)")
	dbFile      = flag.String("db", "", "Record the run in this SQLite database (optional)")
	sensorID    = flag.String("sensor", "default", "Sensor ID recorded with the run")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

// options is the parsed command line.
type options struct {
	CalibPath  string
	PointsPath string
	Pose       geometry.Pose
	Score      float64
	Height     int
	Width      int
	ConfigPath string
	DepthOut   string
	OverlayOut string
	HTMLOut    string
	CalibOut   string
	InputsOut  string
	DBPath     string
	SensorID   string

	// Preprocessing names the model normalisation; "" means vgg.
	Preprocessing string
}

// parsePose reads "w,x,y,z,tx,ty,tz".
func parsePose(s string) (geometry.Pose, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 7 {
		return geometry.Pose{}, fmt.Errorf("pose needs 7 comma-separated values (w,x,y,z,tx,ty,tz), got %d", len(fields))
	}
	var v [7]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return geometry.Pose{}, fmt.Errorf("pose value %d: %w", i, err)
		}
		v[i] = x
	}
	return geometry.PoseFromComponents(v), nil
}

func loadConfig(fsys fsutil.FileSystem, path string) (*config.FusionConfig, error) {
	if path == "" {
		return config.DefaultFusionConfig(), nil
	}
	return config.LoadFusionConfig(fsys, path)
}

// writeOutput creates path (and its parent directory) and fills it with write.
func writeOutput(fsys fsutil.FileSystem, path string, write func(w io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	monitoring.Logf("wrote %s", path)
	return nil
}

func run(ctx context.Context, fsys fsutil.FileSystem, opts options) error {
	cfg, err := loadConfig(fsys, opts.ConfigPath)
	if err != nil {
		return err
	}
	geometry.QuaternionTolerance = cfg.GetQuaternionTolerance()

	h, w := opts.Height, opts.Width
	if h <= 0 {
		h = cfg.GetImageHeight()
	}
	if w <= 0 {
		w = cfg.GetImageWidth()
	}

	set, err := calib.LoadFile(fsys, opts.CalibPath)
	if err != nil {
		return err
	}
	if v := set.Validate(); !v.Valid {
		monitoring.Logf("warning: reference calibration is not rigid: %s", strings.Join(v.Issues, "; "))
	}
	cloud, err := pointcloud.LoadKITTI(fsys, opts.PointsPath)
	if err != nil {
		return err
	}

	predictor := &predict.Static{Prediction: predict.Prediction{Pose: opts.Pose, Score: opts.Score}}
	if opts.InputsOut != "" {
		name := opts.Preprocessing
		if name == "" {
			name = "vgg"
		}
		predictor.Preprocessing, err = predict.ParsePreprocessing(name)
		if err != nil {
			return err
		}
		predictor.WithInputs = true
	}

	c := &pipeline.Calibrator{
		Predictor:  predictor,
		Refiner:    &refine.Refiner{Projector: &projection.Projector{Workers: cfg.GetWorkers(), ChunkSize: cfg.GetChunkSize()}},
		Rasterizer: cfg.Rasterizer(),
		KeepInputs: opts.InputsOut != "",
	}
	if opts.DBPath != "" {
		database, err := db.OpenAndMigrate(opts.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()
		c.Recorder = sqlite.NewCalibrationRunStore(database.DB)
	}

	out, err := c.Run(ctx, pipeline.Frame{
		ID:          filepath.Base(opts.PointsPath),
		SensorID:    opts.SensorID,
		Calibration: set,
		Cloud:       cloud,
		Height:      h,
		Width:       w,
		Crop:        predict.Crop{0, 0, float64(h), float64(w)},
	})
	if err != nil {
		return err
	}

	if opts.DepthOut != "" {
		err := writeOutput(fsys, opts.DepthOut, func(wr io.Writer) error {
			return depthimage.EncodePNG(wr, out.RefinedDepth)
		})
		if err != nil {
			return err
		}
	}
	if opts.OverlayOut != "" {
		err := writeOutput(fsys, opts.OverlayOut, func(wr io.Writer) error {
			return monitor.WriteOverlayPNG(wr, out.FrameID, out.Refinement.Projection.Points, h, w)
		})
		if err != nil {
			return err
		}
	}
	if opts.HTMLOut != "" {
		err := writeOutput(fsys, opts.HTMLOut, func(wr io.Writer) error {
			return monitor.WriteProjectionHTML(wr, monitor.ProjectionPage{
				Title:     "Calibration " + out.FrameID,
				Subtitle:  fmt.Sprintf("sensor=%s score=%.3f correction=%.4f rad", opts.SensorID, out.Prediction.Score, out.Refinement.Correction.RotationAngle()),
				Height:    h,
				Width:     w,
				Reference: out.Reference.Points,
				Refined:   out.Refinement.Projection.Points,
			})
		})
		if err != nil {
			return err
		}
	}
	if opts.CalibOut != "" {
		if err := writeOutput(fsys, opts.CalibOut, out.Refinement.Set.Format); err != nil {
			return err
		}
	}
	if opts.InputsOut != "" && out.InputImage != nil {
		err := writeOutput(fsys, filepath.Join(opts.InputsOut, out.FrameID+"_image.png"), func(wr io.Writer) error {
			return png.Encode(wr, out.InputImage)
		})
		if err != nil {
			return err
		}
		err = writeOutput(fsys, filepath.Join(opts.InputsOut, out.FrameID+"_depth.png"), func(wr io.Writer) error {
			return depthimage.EncodePNG(wr, out.InputDepth)
		})
		if err != nil {
			return err
		}
	}

	if out.RunID != "" {
		monitoring.Logf("recorded run %s", out.RunID)
	}
	monitoring.Logf("refined Tr_velo_to_cam:\n%v", out.Refinement.Set.Extrinsic())
	return nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("lidarcal"))
		return
	}
	if *debug {
		monitoring.SetDebugLogger(log.Printf)
	}
	if *calibFile == "" || *pointsFile == "" {
		log.Fatal("-calib and -points are required")
	}

	pose, err := parsePose(*poseFlag)
	if err != nil {
		log.Fatalf("invalid -pose: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := options{
		CalibPath:  *calibFile,
		PointsPath: *pointsFile,
		Pose:       pose,
		Score:      *scoreFlag,
		Height:     *height,
		Width:      *width,
		ConfigPath: *configFile,
		DepthOut:   *depthOut,
		OverlayOut: *overlayOut,
		HTMLOut:    *htmlOut,
		CalibOut:   *calibOut,
		InputsOut:  *inputsOut,
		DBPath:     *dbFile,
		SensorID:   *sensorID,

		Preprocessing: *preprocFlag,
	}
	if err := run(ctx, fsutil.OSFileSystem{}, opts); err != nil {
		log.Fatalf("lidarcal: %v", err)
	}
}
