// Package stitch turns raw viewport snapshots into one physical-pixel
// image: a crop for single-view captures, an ordered vertical assembly for
// segmented ones.
package stitch

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/lehigh-university-libraries/pagesnap/internal/capture"
	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
	"github.com/lehigh-university-libraries/pagesnap/internal/raster"
)

// Crop cuts area (viewport-relative, logical) out of one raw snapshot.
func Crop(raw []byte, area geometry.Rect, dpr float64) (*image.RGBA, error) {
	img, err := raster.Decode(raw)
	if err != nil {
		return nil, err
	}
	src := area.Physical(dpr)
	canvas := raster.NewCanvas(src.Dx(), src.Dy())
	canvas.DrawImage(img, src, canvas.Image().Bounds())
	return canvas.Image(), nil
}

// Stitch assembles segments into a width x height (logical) image at the
// given device pixel ratio. originX is the selection's left edge within
// the viewport. Every segment is decoded before any pixel is drawn; a
// segment that fails to decode fails the whole stitch.
func Stitch(ctx context.Context, segments []capture.Segment, width, height, dpr, originX float64) (*image.RGBA, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no segments to stitch")
	}
	if dpr <= 0 {
		dpr = 1
	}

	blobs := make([][]byte, len(segments))
	for i, seg := range segments {
		blobs[i] = seg.Image
	}
	images, err := raster.DecodeAll(ctx, blobs)
	if err != nil {
		return nil, err
	}

	canvas := raster.NewCanvas(geometry.Scale(width, dpr), geometry.Scale(height, dpr))
	canvasHeight := canvas.Size().Y

	for i, seg := range segments {
		src := geometry.Rect{X: originX, Y: seg.CropOffsetY, Width: width, Height: seg.CropHeight}.Physical(dpr)
		dst := geometry.Rect{X: 0, Y: seg.DestOffsetY, Width: width, Height: seg.CropHeight}.Physical(dpr)

		// Rounding at fractional ratios can push the last slice past the
		// canvas; trim source and destination together.
		if over := dst.Max.Y - canvasHeight; over > 0 {
			dst.Max.Y -= over
			src.Max.Y -= over
		}
		if dst.Empty() {
			continue
		}
		// Keep the unscaled 1:1 copy even if independent edge rounding
		// left the two rectangles a pixel apart.
		src.Max = src.Min.Add(dst.Size())

		slog.Debug("Stitching segment", "segment", i+1, "src", src, "dst", dst)
		canvas.DrawImage(images[i], src, dst)
	}

	return canvas.Image(), nil
}

// Render produces the base image for a capture result, cropping or
// stitching depending on how it was captured.
func Render(ctx context.Context, res *capture.Result) (*image.RGBA, error) {
	sel := res.Selection
	switch res.Mode {
	case capture.ModeSingle:
		return Crop(res.Image, res.Crop, sel.DevicePixelRatio)
	case capture.ModeSegmented:
		return Stitch(ctx, res.Segments, sel.Width, sel.Height, sel.DevicePixelRatio, sel.OriginX())
	default:
		return nil, fmt.Errorf("unknown capture mode %q", res.Mode)
	}
}
