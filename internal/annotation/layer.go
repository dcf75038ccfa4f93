// Package annotation implements the four drawing layers (mosaic, pen,
// rectangle, arrow) laid over a selection, each with its own bounded undo
// history, and the per-selection Session that routes input and undo.
package annotation

import (
	"fmt"
	"image/color"

	"github.com/lehigh-university-libraries/pagesnap/internal/raster"
)

// Kind names a layer.
type Kind string

const (
	KindMosaic Kind = "mosaic"
	KindPen    Kind = "pen"
	KindRect   Kind = "rect"
	KindArrow  Kind = "arrow"
)

// Order is the fixed compositing order, bottom to top.
var Order = []Kind{KindMosaic, KindPen, KindRect, KindArrow}

// ParseKind validates a layer name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Order {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
}

// DefaultHistoryLimits are the per-layer history caps, baseline included.
var DefaultHistoryLimits = map[Kind]int{
	KindMosaic: 20,
	KindPen:    20,
	KindRect:   15,
	KindArrow:  15,
}

// Style is the current drawing color and line width.
type Style struct {
	Color     color.RGBA
	LineWidth float64
}

// DefaultStyle is red at 3px.
var DefaultStyle = Style{Color: color.RGBA{R: 0xff, A: 0xff}, LineWidth: 3}

// Layer is one annotation raster sized to the selection in logical pixels.
type Layer struct {
	kind    Kind
	canvas  *raster.Canvas
	history *history
	active  bool
	tool    tool
}

func newLayer(kind Kind, width, height, limit int) *Layer {
	canvas := raster.NewCanvas(width, height)
	return &Layer{
		kind:    kind,
		canvas:  canvas,
		history: newHistory(canvas.Clone(), limit),
	}
}

// Kind returns the layer's name.
func (l *Layer) Kind() Kind { return l.kind }

// Canvas returns the persistent drawing surface.
func (l *Layer) Canvas() *raster.Canvas { return l.canvas }

// Activate enables input on the layer.
func (l *Layer) Activate() { l.active = true }

// Deactivate disables input but keeps everything drawn.
func (l *Layer) Deactivate() { l.active = false }

// Active reports whether the layer takes input.
func (l *Layer) Active() bool { return l.active }

// Record pushes the current canvas onto the history. It reports whether
// the oldest non-baseline entry had to be evicted.
func (l *Layer) Record() bool {
	return l.history.push(l.canvas.Clone())
}

// Undo discards the newest snapshot and repaints from the one before it.
// At the baseline it does nothing and returns false.
func (l *Layer) Undo() bool {
	snap, ok := l.history.undo()
	if !ok {
		return false
	}
	l.canvas.Restore(snap)
	return true
}

// HistoryLen is the number of snapshots, baseline included.
func (l *Layer) HistoryLen() int { return l.history.len() }

// Drawn reports whether anything is recorded above the baseline.
func (l *Layer) Drawn() bool { return l.history.len() > 1 }

// Snapshot encodes the layer as PNG.
func (l *Layer) Snapshot() ([]byte, error) {
	return l.canvas.EncodePNG()
}
