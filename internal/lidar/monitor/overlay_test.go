package monitor

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarcal/internal/lidar/projection"
)

func samplePoints() []projection.Point {
	return []projection.Point{
		{X: 10, Y: 5, Depth: 4},
		{X: 600, Y: 180, Depth: 25},
		{X: 1200, Y: 370, Depth: 80},
	}
}

func TestWriteOverlayPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOverlayPNG(&buf, "frame 0", samplePoints(), 375, 1242))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	b := img.Bounds()
	assert.Greater(t, b.Dx(), b.Dy(), "overlay keeps the landscape aspect")
}

func TestWriteOverlayPNG_NoPoints(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOverlayPNG(&buf, "empty", nil, 10, 10))
	_, err := png.Decode(&buf)
	assert.NoError(t, err)
}

func TestWriteOverlayPNG_BadSize(t *testing.T) {
	var buf bytes.Buffer
	err := WriteOverlayPNG(&buf, "x", samplePoints(), 0, 10)
	assert.ErrorIs(t, err, ErrImageSize)
	assert.Zero(t, buf.Len())
}

func TestDepthRange(t *testing.T) {
	lo, hi := depthRange(samplePoints())
	assert.Equal(t, 4.0, lo)
	assert.Equal(t, 80.0, hi)

	lo, hi = depthRange([]projection.Point{{Depth: 7}})
	assert.Equal(t, 7.0, lo)
	assert.Equal(t, 8.0, hi)

	lo, hi = depthRange(nil)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)
}
