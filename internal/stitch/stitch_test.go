package stitch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/pagesnap/internal/capture"
	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
	"github.com/lehigh-university-libraries/pagesnap/internal/raster"
)

// viewport renders what a browser would return at the given scroll
// offset: every physical row encodes its physical page row in R/G and
// every column its index in B.
func viewport(t *testing.T, scrollY float64, width, height int, dpr float64) []byte {
	t.Helper()
	w, h := geometry.Scale(float64(width), dpr), geometry.Scale(float64(height), dpr)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	top := geometry.Scale(scrollY, dpr)
	for y := 0; y < h; y++ {
		row := top + y
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(row % 256), G: uint8(row / 256), B: uint8(x % 256), A: 255})
		}
	}
	data, err := raster.EncodePNG(img)
	require.NoError(t, err)
	return data
}

func pageRow(c color.RGBA) int {
	return int(c.G)*256 + int(c.R)
}

func TestStitchAssemblesSegments(t *testing.T) {
	for _, dpr := range []float64{1, 2} {
		const windowW, windowH = 120, 80
		segments := []capture.Segment{
			{Image: viewport(t, 30, windowW, windowH, dpr), CropOffsetY: 0, CropHeight: 80, DestOffsetY: 0},
			{Image: viewport(t, 110, windowW, windowH, dpr), CropOffsetY: 0, CropHeight: 80, DestOffsetY: 80},
			{Image: viewport(t, 170, windowW, windowH, dpr), CropOffsetY: 20, CropHeight: 40, DestOffsetY: 160},
		}

		out, err := Stitch(context.Background(), segments, 50, 200, dpr, 10)
		require.NoError(t, err)

		size := out.Bounds().Size()
		assert.Equal(t, image.Pt(int(50*dpr), int(200*dpr)), size, "dpr %g", dpr)

		for py := 0; py < size.Y; py++ {
			c := out.RGBAAt(0, py)
			expected := geometry.Scale(30, dpr) + py
			if got := pageRow(c); got != expected {
				t.Fatalf("dpr %g row %d: expected page row %d, got %d", dpr, py, expected, got)
			}
		}
		// Left edge comes from originX.
		assert.Equal(t, uint8(geometry.Scale(10, dpr)), out.RGBAAt(0, 0).B)
	}
}

func TestStitchClampsLastSegment(t *testing.T) {
	segments := []capture.Segment{
		{Image: viewport(t, 0, 40, 30, 1), CropHeight: 30, DestOffsetY: 0},
		{Image: viewport(t, 30, 40, 30, 1), CropHeight: 30, DestOffsetY: 30},
	}

	out, err := Stitch(context.Background(), segments, 40, 45, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(40, 45), out.Bounds().Size())
	assert.Equal(t, 44, pageRow(out.RGBAAt(0, 44)))
}

func TestStitchFailsOnBadSegment(t *testing.T) {
	segments := []capture.Segment{
		{Image: viewport(t, 0, 40, 30, 1), CropHeight: 30, DestOffsetY: 0},
		{Image: []byte("corrupt"), CropHeight: 30, DestOffsetY: 30},
	}

	_, err := Stitch(context.Background(), segments, 40, 60, 1, 0)
	var loadErr *raster.ImageLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, 1, loadErr.Index)
}

func TestStitchNoSegments(t *testing.T) {
	_, err := Stitch(context.Background(), nil, 40, 60, 1, 0)
	assert.Error(t, err)
}

func TestCrop(t *testing.T) {
	raw := viewport(t, 0, 600, 600, 2)

	out, err := Crop(raw, geometry.Rect{X: 0, Y: 100, Width: 400, Height: 500}, 2)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(800, 1000), out.Bounds().Size())
	assert.Equal(t, 200, pageRow(out.RGBAAt(0, 0)))
	assert.Equal(t, 1199, pageRow(out.RGBAAt(0, 999)))
}

func TestRender(t *testing.T) {
	sel := geometry.Selection{X: 0, Y: 100, Width: 40, Height: 20, WindowHeight: 60, DevicePixelRatio: 1}
	res := &capture.Result{
		Mode:      capture.ModeSingle,
		Selection: sel,
		Image:     viewport(t, 0, 80, 60, 1),
		Crop:      geometry.Rect{X: 0, Y: 30, Width: 40, Height: 20},
	}

	out, err := Render(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(40, 20), out.Bounds().Size())
	assert.Equal(t, 30, pageRow(out.RGBAAt(0, 0)))

	_, err = Render(context.Background(), &capture.Result{Mode: "bogus"})
	assert.Error(t, err)
}
