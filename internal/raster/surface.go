// Package raster is the 2D drawing capability used by stitching,
// annotation and compositing. Surfaces are plain RGBA buffers; vector
// drawing goes through a gg context bound to the same pixels.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"
)

// Surface is a sized raster that images can be drawn onto and that can be
// serialised to bytes.
type Surface interface {
	Size() image.Point
	DrawImage(src image.Image, sr, dr image.Rectangle)
	Clear()
	Image() *image.RGBA
	EncodePNG() ([]byte, error)
}

// Canvas is the in-memory Surface implementation.
type Canvas struct {
	img *image.RGBA
	dc  *gg.Context
}

// NewCanvas allocates a transparent canvas of the given size.
func NewCanvas(width, height int) *Canvas {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	return &Canvas{img: img, dc: gg.NewContextForRGBA(img)}
}

// Size returns the canvas dimensions.
func (c *Canvas) Size() image.Point {
	return c.img.Bounds().Size()
}

// Image exposes the backing pixels. Callers must not retain it across
// Restore calls if they need a stable copy; use Clone for that.
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// Context returns the gg context drawing into this canvas.
func (c *Canvas) Context() *gg.Context {
	return c.dc
}

// DrawImage draws the sr portion of src into dr, scaling when the two
// rectangles differ in size. Unscaled draws are clipped to src bounds.
func (c *Canvas) DrawImage(src image.Image, sr, dr image.Rectangle) {
	if sr.Size() == dr.Size() {
		clipped := sr.Intersect(src.Bounds())
		if clipped.Empty() {
			return
		}
		dr = image.Rectangle{
			Min: dr.Min.Add(clipped.Min.Sub(sr.Min)),
			Max: dr.Min.Add(clipped.Max.Sub(sr.Min)),
		}
		draw.Draw(c.img, dr, src, clipped.Min, draw.Over)
		return
	}
	xdraw.BiLinear.Scale(c.img, dr, src, sr, draw.Over, nil)
}

// FillRect paints r with a solid color, replacing what was there.
func (c *Canvas) FillRect(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r, image.NewUniform(col), image.Point{}, draw.Src)
}

// Clear resets every pixel to transparent.
func (c *Canvas) Clear() {
	draw.Draw(c.img, c.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

// Clone returns a copy of the current pixels.
func (c *Canvas) Clone() *image.RGBA {
	return Clone(c.img)
}

// Restore replaces the canvas pixels with snap. Sizes must match.
func (c *Canvas) Restore(snap *image.RGBA) {
	copy(c.img.Pix, snap.Pix)
}

// EncodePNG serialises the canvas.
func (c *Canvas) EncodePNG() ([]byte, error) {
	return EncodePNG(c.img)
}

// Clone copies an RGBA image.
func Clone(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// EncodePNG encodes any image as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
