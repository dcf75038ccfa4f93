// Package compose flattens a captured base image and its annotation
// layers into the final output.
package compose

import (
	"image"
	"image/draw"
	"log/slog"

	"github.com/lehigh-university-libraries/pagesnap/internal/annotation"
	"github.com/lehigh-university-libraries/pagesnap/internal/raster"
)

// Overlays holds encoded layer snapshots keyed by layer. Missing keys and
// nil values mean the layer was never drawn on.
type Overlays map[annotation.Kind][]byte

// Compose draws base at its full physical size and then every present
// overlay in annotation.Order, each scaled to cover the whole output.
// Overlays are logical-size, so the scale factor is the device pixel
// ratio. An overlay that cannot be decoded is skipped.
func Compose(base image.Image, overlays Overlays) *image.RGBA {
	bounds := base.Bounds()
	canvas := raster.NewCanvas(bounds.Dx(), bounds.Dy())
	out := canvas.Image()
	draw.Draw(out, out.Bounds(), base, bounds.Min, draw.Src)

	for _, kind := range annotation.Order {
		data, ok := overlays[kind]
		if !ok || len(data) == 0 {
			continue
		}
		layer, err := raster.Decode(data)
		if err != nil {
			slog.Warn("Skipping annotation layer", "layer", kind, "err", err)
			continue
		}
		canvas.DrawImage(layer, layer.Bounds(), out.Bounds())
	}
	return out
}

// ComposePNG composes and encodes the result.
func ComposePNG(base image.Image, overlays Overlays) ([]byte, error) {
	return raster.EncodePNG(Compose(base, overlays))
}
