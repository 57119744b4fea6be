package predict

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarcal/internal/lidar/geometry"
)

func TestStatic_Predict(t *testing.T) {
	pose := geometry.NewPose(1, 0, 0, 0, 0.1, 0.2, 0.3)
	p := NewStatic(pose)
	cam := image.NewRGBA(image.Rect(0, 0, 4, 4))
	depth := image.NewGray(image.Rect(0, 0, 4, 4))

	got, err := p.Predict(context.Background(), cam, depth, Crop{0, 0, 4, 4})
	require.NoError(t, err)
	assert.Equal(t, pose, got.Pose)
	assert.Equal(t, 1.0, got.Score)

	_, err = p.Predict(context.Background(), nil, depth, Crop{})
	assert.ErrorIs(t, err, ErrNoInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Predict(ctx, cam, depth, Crop{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFunc_Predict(t *testing.T) {
	var gotCrop Crop
	f := Func(func(_ context.Context, _ image.Image, _ *image.Gray, crop Crop) (Prediction, error) {
		gotCrop = crop
		return Prediction{Pose: geometry.IdentityPose(), Score: 0.5}, nil
	})

	var p Predictor = f
	got, err := p.Predict(context.Background(), nil, nil, Crop{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, Crop{1, 2, 3, 4}, gotCrop)
	assert.Equal(t, 0.5, got.Score)
}

func TestRestoreImage_VGG(t *testing.T) {
	tensor := Tensor{Height: 1, Width: 2, Channels: 3, Data: []float64{
		0, 0, 0,
		10, -200, 300,
	}}
	img, err := VGG.RestoreImage(tensor)
	require.NoError(t, err)

	c := img.RGBAAt(0, 0)
	assert.Equal(t, []uint8{124, 117, 104, 255}, []uint8{c.R, c.G, c.B, c.A})
	c = img.RGBAAt(1, 0)
	assert.Equal(t, []uint8{134, 0, 255}, []uint8{c.R, c.G, c.B})
}

func TestRestoreDepth(t *testing.T) {
	tensor := Tensor{Height: 1, Width: 3, Channels: 1, Data: []float64{-1, 0, 1}}

	img, err := Inception.RestoreDepth(tensor)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 128, 255}, img.Pix)

	img, err = VGG.RestoreDepth(Tensor{Height: 1, Width: 1, Channels: 1, Data: []float64{0}})
	require.NoError(t, err)
	assert.Equal(t, uint8(115), img.Pix[0]) // round(114.8)
}

func TestRestore_ShapeErrors(t *testing.T) {
	_, err := VGG.RestoreImage(Tensor{Height: 1, Width: 1, Channels: 1, Data: []float64{0}})
	assert.Error(t, err)

	_, err = Inception.RestoreDepth(Tensor{Height: 2, Width: 2, Channels: 1, Data: []float64{0}})
	assert.Error(t, err)

	assert.Equal(t, "inception", Inception.String())
}

func TestParsePreprocessing(t *testing.T) {
	tests := []struct {
		name string
		want Preprocessing
	}{
		{"vgg", VGG},
		{"vgg_16", VGG},
		{"VGG_19", VGG},
		{"inception_v1", Inception},
		{"inception", Inception},
	}
	for _, tt := range tests {
		got, err := ParsePreprocessing(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	_, err := ParsePreprocessing("resnet_50")
	assert.ErrorIs(t, err, ErrUnknownPreprocessing)
}

func TestNormalize_RoundTrip(t *testing.T) {
	cam := image.NewRGBA(image.Rect(0, 0, 3, 2))
	depth := image.NewGray(image.Rect(0, 0, 3, 2))
	for i := range cam.Pix {
		cam.Pix[i] = uint8(i * 11)
	}
	for i := range cam.Pix {
		if i%4 == 3 {
			cam.Pix[i] = 255
		}
	}
	for i := range depth.Pix {
		depth.Pix[i] = uint8(i * 40)
	}

	for _, p := range []Preprocessing{VGG, Inception} {
		imgT := p.NormalizeImage(cam)
		assert.Equal(t, 3, imgT.Channels)
		assert.Len(t, imgT.Data, 3*2*3)

		img, err := p.RestoreImage(imgT)
		require.NoError(t, err, p.String())
		assert.Equal(t, cam.Pix, img.Pix, p.String())

		d, err := p.RestoreDepth(p.NormalizeDepth(depth))
		require.NoError(t, err, p.String())
		assert.Equal(t, depth.Pix, d.Pix, p.String())
	}

	assert.InDelta(t, -MeanRed, VGG.NormalizeImage(image.NewRGBA(image.Rect(0, 0, 1, 1))).Data[0], 1e-12)
	assert.InDelta(t, 1.0, Inception.NormalizeDepth(&image.Gray{Pix: []uint8{255}, Stride: 1, Rect: image.Rect(0, 0, 1, 1)}).Data[0], 1e-12)
}

func TestStatic_WithInputs(t *testing.T) {
	cam := image.NewRGBA(image.Rect(0, 0, 4, 2))
	depth := image.NewGray(image.Rect(0, 0, 4, 2))
	depth.Pix[5] = 200

	p := &Static{Prediction: Prediction{Pose: geometry.IdentityPose()}, WithInputs: true, Preprocessing: Inception}
	got, err := p.Predict(context.Background(), cam, depth, Crop{})
	require.NoError(t, err)
	require.NotNil(t, got.Inputs)
	assert.Equal(t, Inception, got.Inputs.Preprocessing)
	assert.Equal(t, 2, got.Inputs.Depth.Height)
	assert.Equal(t, 4, got.Inputs.Depth.Width)

	restored, err := got.Inputs.Preprocessing.RestoreDepth(got.Inputs.Depth)
	require.NoError(t, err)
	assert.Equal(t, depth.Pix, restored.Pix)

	got, err = NewStatic(geometry.IdentityPose()).Predict(context.Background(), cam, depth, Crop{})
	require.NoError(t, err)
	assert.Nil(t, got.Inputs)
}
