// Package geometry holds the coordinate model shared by capture, stitching
// and compositing. All values are logical (CSS) pixels unless a function
// name says otherwise.
package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// MinSelectionSize is the smallest width or height accepted for an
// interactive selection.
const MinSelectionSize = 10

var (
	// ErrEmptySelection is returned when a selection has no area.
	ErrEmptySelection = errors.New("selection has no area")
	// ErrSelectionTooSmall is returned when a drag is below MinSelectionSize.
	ErrSelectionTooSmall = errors.New("selection too small")
)

// Point is a logical-pixel position.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Rect is a logical-pixel rectangle.
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// RectFromPoints returns the positive rectangle spanned by two corners,
// whatever direction the drag went in.
func RectFromPoints(a, b Point) Rect {
	return Rect{
		X:      math.Min(a.X, b.X),
		Y:      math.Min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
	}
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Physical converts r to device pixels. Edges are rounded independently so
// that adjacent rectangles stay adjacent after scaling.
func (r Rect) Physical(dpr float64) image.Rectangle {
	x0 := Scale(r.X, dpr)
	y0 := Scale(r.Y, dpr)
	x1 := Scale(r.X+r.Width, dpr)
	y1 := Scale(r.Y+r.Height, dpr)
	return image.Rect(x0, y0, x1, y1)
}

// Scale converts one logical length to physical pixels.
func Scale(v, dpr float64) int {
	return int(math.Round(v * dpr))
}

// Selection is the user's region plus the viewport geometry at the moment
// capture was requested. It is immutable once capture begins.
type Selection struct {
	X                float64 `json:"x"`
	Y                float64 `json:"y"`
	Width            float64 `json:"width"`
	Height           float64 `json:"height"`
	WindowWidth      float64 `json:"windowWidth"`
	WindowHeight     float64 `json:"windowHeight"`
	ScrollX          float64 `json:"scrollX"`
	ScrollY          float64 `json:"scrollY"`
	PageWidth        float64 `json:"pageWidth"`
	PageHeight       float64 `json:"pageHeight"`
	DevicePixelRatio float64 `json:"devicePixelRatio"`
}

// Validate checks the capture preconditions and fills in a DPR of 1 when
// the host did not report one.
func (s *Selection) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: %gx%g", ErrEmptySelection, s.Width, s.Height)
	}
	if s.WindowHeight <= 0 {
		return fmt.Errorf("invalid window height %g", s.WindowHeight)
	}
	if s.DevicePixelRatio <= 0 {
		s.DevicePixelRatio = 1
	}
	return nil
}

// Bounds returns the selection rectangle in page coordinates.
func (s Selection) Bounds() Rect {
	return Rect{X: s.X, Y: s.Y, Width: s.Width, Height: s.Height}
}

// FitsViewport reports whether the whole selection is visible at the
// current scroll offset, so one viewport snapshot is enough.
func (s Selection) FitsViewport() bool {
	return s.Height <= s.WindowHeight &&
		s.Y >= s.ScrollY &&
		s.Y+s.Height <= s.ScrollY+s.WindowHeight
}

// ViewportCrop returns the selection relative to the visible viewport.
func (s Selection) ViewportCrop() Rect {
	return Rect{
		X:      s.X - s.ScrollX,
		Y:      s.Y - s.ScrollY,
		Width:  s.Width,
		Height: s.Height,
	}
}

// OriginX is the selection's left edge relative to the viewport, used as
// the horizontal crop origin of every stitched segment.
func (s Selection) OriginX() float64 {
	return s.X - s.ScrollX
}

// PhysicalSize is the output image size in device pixels.
func (s Selection) PhysicalSize() image.Point {
	return image.Pt(Scale(s.Width, s.DevicePixelRatio), Scale(s.Height, s.DevicePixelRatio))
}

// LogicalSize is the annotation canvas size.
func (s Selection) LogicalSize() image.Point {
	return image.Pt(int(math.Round(s.Width)), int(math.Round(s.Height)))
}

// Drag normalises an interactive drag (page coordinates) into a selection
// rectangle, rejecting drags smaller than MinSelectionSize.
func Drag(start, end Point) (Rect, error) {
	r := RectFromPoints(start, end)
	if r.Width < MinSelectionSize || r.Height < MinSelectionSize {
		return Rect{}, fmt.Errorf("%w: %gx%g", ErrSelectionTooSmall, r.Width, r.Height)
	}
	return r, nil
}
