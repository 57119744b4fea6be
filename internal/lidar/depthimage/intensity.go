// Package depthimage rasterises projected LiDAR points into dense 8-bit
// depth images of the camera resolution. Zero means "no data".
package depthimage

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Default clamp range in metres.
const (
	DefaultMaxDistance = 100.0
	DefaultMinDistance = 1.0
)

// ErrUnknownMode is returned by ParseMode for an unrecognised encoding name.
var ErrUnknownMode = errors.New("unknown depth encoding mode")

// Mode selects the depth-to-intensity law.
type Mode int

const (
	// ModeInverse encodes round(255/d): near points are bright.
	ModeInverse Mode = iota
	// ModeStandard encodes round(d*255/max): far points are bright.
	ModeStandard
)

func (m Mode) String() string {
	switch m {
	case ModeInverse:
		return "inverse"
	case ModeStandard:
		return "standard"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps "inverse" and "standard" (case-insensitive) to a Mode. The
// empty string selects ModeInverse. Anything else is an error rather than a
// silent fallback.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inverse":
		return ModeInverse, nil
	case "standard":
		return ModeStandard, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Params configures DistanceToIntensity.
type Params struct {
	Mode        Mode
	MaxDistance float64
	MinDistance float64
}

// DefaultParams returns inverse encoding over [1, 100] metres.
func DefaultParams() Params {
	return Params{Mode: ModeInverse, MaxDistance: DefaultMaxDistance, MinDistance: DefaultMinDistance}
}

func (p Params) bounds() (lo, hi float64) {
	lo, hi = p.MinDistance, p.MaxDistance
	if hi <= 0 {
		hi = DefaultMaxDistance
	}
	if lo <= 0 {
		lo = DefaultMinDistance
	}
	return lo, hi
}

// DistanceToIntensity clamps d into [MinDistance, MaxDistance] and encodes it
// as a byte. Rounding is half-to-even, so 127.5 becomes 128 and 2.5 becomes 2.
// Zero-valued bounds fall back to the defaults; values that would exceed 255
// saturate.
func DistanceToIntensity(d float64, p Params) uint8 {
	lo, hi := p.bounds()
	if math.IsNaN(d) {
		d = hi
	}
	d = math.Max(lo, math.Min(hi, d))

	var v float64
	if p.Mode == ModeStandard {
		v = d * 255 / hi
	} else {
		v = 255 / d
	}
	return uint8(math.Max(0, math.Min(255, math.RoundToEven(v))))
}
