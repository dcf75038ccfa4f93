package compose

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/pagesnap/internal/annotation"
	"github.com/lehigh-university-libraries/pagesnap/internal/raster"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func overlay(t *testing.T, w, h int, block image.Rectangle, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, block, image.NewUniform(c), image.Point{}, draw.Src)
	data, err := raster.EncodePNG(img)
	require.NoError(t, err)
	return data
}

var (
	blue = color.RGBA{B: 255, A: 255}
	red  = color.RGBA{R: 255, A: 255}
	gray = color.RGBA{R: 150, G: 150, B: 150, A: 255}
)

func TestComposeWithoutOverlaysIsIdentical(t *testing.T) {
	base := solid(100, 80, blue)
	base.SetRGBA(3, 4, red)

	out := Compose(base, nil)
	assert.Equal(t, base.Pix, out.Pix)
	assert.Equal(t, base.Bounds(), out.Bounds())
}

func TestComposeScalesOverlays(t *testing.T) {
	base := solid(100, 80, blue)
	overlays := Overlays{
		annotation.KindPen: overlay(t, 50, 40, image.Rect(10, 10, 20, 20), red),
	}

	out := Compose(base, overlays)
	c := out.RGBAAt(30, 30)
	assert.Greater(t, c.R, uint8(250))
	assert.Less(t, c.B, uint8(5))
	assert.Equal(t, blue, out.RGBAAt(5, 5))
	assert.Equal(t, blue, out.RGBAAt(60, 60))
}

func TestComposeStacksInLayerOrder(t *testing.T) {
	base := solid(40, 40, blue)
	area := image.Rect(0, 0, 40, 40)
	overlays := Overlays{
		annotation.KindPen:    overlay(t, 40, 40, area, red),
		annotation.KindMosaic: overlay(t, 40, 40, area, gray),
	}

	out := Compose(base, overlays)
	assert.Equal(t, red, out.RGBAAt(20, 20))
}

func TestComposeSkipsBadOverlay(t *testing.T) {
	base := solid(40, 40, blue)
	overlays := Overlays{
		annotation.KindMosaic: []byte("not a png"),
		annotation.KindRect:   nil,
		annotation.KindArrow:  overlay(t, 40, 40, image.Rect(0, 0, 10, 10), red),
	}

	out := Compose(base, overlays)
	assert.Equal(t, red, out.RGBAAt(5, 5))
	assert.Equal(t, blue, out.RGBAAt(30, 30))
}

func TestComposePNG(t *testing.T) {
	data, err := ComposePNG(solid(12, 8, blue), nil)
	require.NoError(t, err)
	img, err := raster.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(12, 8), img.Bounds().Size())
}
