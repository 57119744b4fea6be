package predict

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
)

// Per-channel means subtracted by VGG-style preprocessing.
const (
	MeanRed   = 123.68
	MeanGreen = 116.78
	MeanBlue  = 103.94
)

// MeanGrey is the offset used for single-channel inputs.
const MeanGrey = (MeanRed + MeanGreen + MeanBlue) / 3

// Preprocessing names the normalisation applied to model inputs.
type Preprocessing int

const (
	// VGG subtracts per-channel means.
	VGG Preprocessing = iota
	// Inception scales [0,255] to [-1,1].
	Inception
)

// ErrUnknownPreprocessing is returned by ParsePreprocessing.
var ErrUnknownPreprocessing = errors.New("unknown preprocessing")

// ParsePreprocessing maps a model preprocessing name to its normalisation:
// "vgg", "vgg_16" and "vgg_19" subtract means, "inception_v1" (or
// "inception") scales to [-1,1].
func ParsePreprocessing(name string) (Preprocessing, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "vgg", "vgg_16", "vgg_19":
		return VGG, nil
	case "inception", "inception_v1":
		return Inception, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownPreprocessing, name)
	}
}

func (p Preprocessing) String() string {
	switch p {
	case VGG:
		return "vgg"
	case Inception:
		return "inception"
	default:
		return fmt.Sprintf("Preprocessing(%d)", int(p))
	}
}

// Tensor is a normalised H x W x C image in row-major, channel-last order.
type Tensor struct {
	Height, Width, Channels int
	Data                    []float64
}

// Inputs are the normalised tensors a model consumed for one prediction.
type Inputs struct {
	Image         Tensor
	Depth         Tensor
	Preprocessing Preprocessing
}

func (t Tensor) at(y, x, c int) float64 {
	return t.Data[(y*t.Width+x)*t.Channels+c]
}

func (t Tensor) check(channels int) error {
	if t.Channels != channels {
		return fmt.Errorf("tensor has %d channels, want %d", t.Channels, channels)
	}
	if t.Height <= 0 || t.Width <= 0 || len(t.Data) != t.Height*t.Width*t.Channels {
		return fmt.Errorf("tensor %dx%dx%d does not match %d values", t.Height, t.Width, t.Channels, len(t.Data))
	}
	return nil
}

func (p Preprocessing) normalize(v, mean float64) float64 {
	if p == Inception {
		return v*2/255 - 1
	}
	return v - mean
}

// NormalizeImage converts img to a 3-channel tensor the way the model's
// input pipeline does.
func (p Preprocessing) NormalizeImage(img image.Image) Tensor {
	b := img.Bounds()
	t := Tensor{Height: b.Dy(), Width: b.Dx(), Channels: 3, Data: make([]float64, 0, b.Dx()*b.Dy()*3)}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			t.Data = append(t.Data,
				p.normalize(float64(c.R), MeanRed),
				p.normalize(float64(c.G), MeanGreen),
				p.normalize(float64(c.B), MeanBlue))
		}
	}
	return t
}

// NormalizeDepth converts a depth image to a single-channel tensor.
func (p Preprocessing) NormalizeDepth(img *image.Gray) Tensor {
	b := img.Bounds()
	t := Tensor{Height: b.Dy(), Width: b.Dx(), Channels: 1, Data: make([]float64, 0, b.Dx()*b.Dy())}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			t.Data = append(t.Data, p.normalize(float64(img.GrayAt(x, y).Y), MeanGrey))
		}
	}
	return t
}

// restore rounds to the nearest level and clamps to [0,255] instead of
// truncating, so NormalizeImage followed by RestoreImage returns the input
// pixels exactly.
func (p Preprocessing) restore(v, mean float64) uint8 {
	if p == Inception {
		v = (v + 1) * 255 / 2
	} else {
		v += mean
	}
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

// RestoreImage undoes the normalisation of a 3-channel RGB tensor for
// display. Values are rounded and clamped rather than truncated.
func (p Preprocessing) RestoreImage(t Tensor) (*image.RGBA, error) {
	if err := t.check(3); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, t.Width, t.Height))
	for y := range t.Height {
		for x := range t.Width {
			img.SetRGBA(x, y, color.RGBA{
				R: p.restore(t.at(y, x, 0), MeanRed),
				G: p.restore(t.at(y, x, 1), MeanGreen),
				B: p.restore(t.at(y, x, 2), MeanBlue),
				A: 255,
			})
		}
	}
	return img, nil
}

// RestoreDepth undoes the normalisation of a single-channel depth tensor,
// rounding and clamping like RestoreImage.
func (p Preprocessing) RestoreDepth(t Tensor) (*image.Gray, error) {
	if err := t.check(1); err != nil {
		return nil, err
	}
	img := image.NewGray(image.Rect(0, 0, t.Width, t.Height))
	for y := range t.Height {
		for x := range t.Width {
			img.Pix[y*img.Stride+x] = p.restore(t.at(y, x, 0), MeanGrey)
		}
	}
	return img, nil
}
