package annotation

import (
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/fogleman/gg"

	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
	"github.com/lehigh-university-libraries/pagesnap/internal/raster"
)

const (
	// MinMosaicSize is the smallest mosaic drag, per side.
	MinMosaicSize = 5
	// MinRectSize is the smallest rectangle drag, per side.
	MinRectSize = 3
	// MinArrowLength is the shortest arrow drag.
	MinArrowLength = 10
	// ArrowHeadAngle is the angle between the shaft and each head edge.
	ArrowHeadAngle = math.Pi / 6
)

// tool handles one pointer-down to pointer-up gesture on a layer. end
// reports whether the gesture changed the layer and should be recorded.
type tool interface {
	begin(p geometry.Point)
	move(p geometry.Point)
	end(p geometry.Point) bool
	// overlay is the disposable preview surface, nil when there is none.
	overlay() *raster.Canvas
	dragging() bool
}

func newTool(kind Kind, canvas *raster.Canvas, style *Style, rng *rand.Rand) tool {
	switch kind {
	case KindMosaic:
		return &mosaicTool{canvas: canvas, rng: rng}
	case KindPen:
		return &penTool{canvas: canvas, style: style}
	case KindRect:
		return &rectTool{canvas: canvas, style: style}
	case KindArrow:
		return &arrowTool{canvas: canvas, style: style}
	}
	return nil
}

// gesture is the start/current point shared by the drag tools.
type gesture struct {
	start, current geometry.Point
	active         bool
}

func (g *gesture) begin(p geometry.Point) {
	g.start, g.current, g.active = p, p, true
}

func (g *gesture) dragging() bool { return g.active }

// MosaicBlockSize is the tile size used to redact a w x h rectangle.
func MosaicBlockSize(w, h float64) int {
	return max(8, int(math.Min(w, h)/10))
}

type mosaicTool struct {
	gesture
	canvas *raster.Canvas
	rng    *rand.Rand
}

func (t *mosaicTool) move(p geometry.Point) { t.current = p }

func (t *mosaicTool) end(p geometry.Point) bool {
	if !t.active {
		return false
	}
	t.active = false
	r := geometry.RectFromPoints(t.start, p)
	if r.Width < MinMosaicSize || r.Height < MinMosaicSize {
		return false
	}
	PaintMosaic(t.canvas, r, t.rng)
	return true
}

func (t *mosaicTool) overlay() *raster.Canvas { return nil }

// PaintMosaic tiles r with blocks of random uniform gray.
func PaintMosaic(canvas *raster.Canvas, r geometry.Rect, rng *rand.Rand) {
	area := r.Physical(1).Intersect(canvas.Image().Bounds())
	if area.Empty() {
		return
	}
	size := MosaicBlockSize(r.Width, r.Height)
	for y := area.Min.Y; y < area.Max.Y; y += size {
		for x := area.Min.X; x < area.Max.X; x += size {
			block := image.Rect(x, y, min(x+size, area.Max.X), min(y+size, area.Max.Y))
			gray := uint8(100 + rng.IntN(100))
			canvas.FillRect(block, color.RGBA{R: gray, G: gray, B: gray, A: 0xff})
		}
	}
}

type penTool struct {
	canvas *raster.Canvas
	style  *Style
	last   geometry.Point
	moved  bool
	active bool
}

func (t *penTool) begin(p geometry.Point) {
	t.last, t.moved, t.active = p, false, true
}

func (t *penTool) move(p geometry.Point) {
	if !t.active || p == t.last {
		return
	}
	dc := t.canvas.Context()
	applyStroke(dc, t.style, gg.LineCapRound)
	dc.MoveTo(t.last.X, t.last.Y)
	dc.LineTo(p.X, p.Y)
	dc.Stroke()
	t.last, t.moved = p, true
}

func (t *penTool) end(p geometry.Point) bool {
	if !t.active {
		return false
	}
	t.move(p)
	if !t.moved {
		// A click without movement leaves a round dot.
		dc := t.canvas.Context()
		dc.SetColor(t.style.Color)
		dc.DrawCircle(p.X, p.Y, t.style.LineWidth/2)
		dc.Fill()
	}
	t.active = false
	return true
}

func (t *penTool) overlay() *raster.Canvas { return nil }

func (t *penTool) dragging() bool { return t.active }

type rectTool struct {
	gesture
	canvas  *raster.Canvas
	style   *Style
	preview *raster.Canvas
}

func (t *rectTool) begin(p geometry.Point) {
	t.gesture.begin(p)
	size := t.canvas.Size()
	t.preview = raster.NewCanvas(size.X, size.Y)
}

func (t *rectTool) move(p geometry.Point) {
	if !t.active {
		return
	}
	t.current = p
	t.preview.Clear()
	strokeRect(t.preview.Context(), geometry.RectFromPoints(t.start, p), t.style)
}

func (t *rectTool) end(p geometry.Point) bool {
	if !t.active {
		return false
	}
	t.active = false
	t.preview = nil
	r := geometry.RectFromPoints(t.start, p)
	if r.Width < MinRectSize || r.Height < MinRectSize {
		return false
	}
	strokeRect(t.canvas.Context(), r, t.style)
	return true
}

func (t *rectTool) overlay() *raster.Canvas { return t.preview }

func strokeRect(dc *gg.Context, r geometry.Rect, style *Style) {
	applyStroke(dc, style, gg.LineCapSquare)
	dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
	dc.Stroke()
}

// ArrowHead describes the filled triangle at the end of an arrow.
type ArrowHead struct {
	Tip, Left, Right geometry.Point
	Length           float64
	// Angle is the shaft direction in radians.
	Angle float64
}

// ArrowHeadFor computes the head for an arrow from -> to. The two back
// edges leave the tip at +/-30 degrees from the shaft and are
// max(10, 4*lineWidth) long.
func ArrowHeadFor(from, to geometry.Point, lineWidth float64) ArrowHead {
	angle := math.Atan2(to.Y-from.Y, to.X-from.X)
	length := math.Max(10, lineWidth*4)
	return ArrowHead{
		Tip: to,
		Left: geometry.Point{
			X: to.X - length*math.Cos(angle-ArrowHeadAngle),
			Y: to.Y - length*math.Sin(angle-ArrowHeadAngle),
		},
		Right: geometry.Point{
			X: to.X - length*math.Cos(angle+ArrowHeadAngle),
			Y: to.Y - length*math.Sin(angle+ArrowHeadAngle),
		},
		Length: length,
		Angle:  angle,
	}
}

type arrowTool struct {
	gesture
	canvas  *raster.Canvas
	style   *Style
	preview *raster.Canvas
}

func (t *arrowTool) begin(p geometry.Point) {
	t.gesture.begin(p)
	size := t.canvas.Size()
	t.preview = raster.NewCanvas(size.X, size.Y)
}

func (t *arrowTool) move(p geometry.Point) {
	if !t.active {
		return
	}
	t.current = p
	t.preview.Clear()
	if math.Hypot(p.X-t.start.X, p.Y-t.start.Y) >= MinArrowLength {
		drawArrow(t.preview.Context(), t.start, p, t.style)
	}
}

func (t *arrowTool) end(p geometry.Point) bool {
	if !t.active {
		return false
	}
	t.active = false
	t.preview = nil
	if math.Hypot(p.X-t.start.X, p.Y-t.start.Y) < MinArrowLength {
		return false
	}
	drawArrow(t.canvas.Context(), t.start, p, t.style)
	return true
}

func (t *arrowTool) overlay() *raster.Canvas { return t.preview }

func drawArrow(dc *gg.Context, from, to geometry.Point, style *Style) {
	head := ArrowHeadFor(from, to, style.LineWidth)

	applyStroke(dc, style, gg.LineCapRound)
	dc.MoveTo(from.X, from.Y)
	dc.LineTo(to.X, to.Y)
	dc.Stroke()

	dc.MoveTo(head.Tip.X, head.Tip.Y)
	dc.LineTo(head.Left.X, head.Left.Y)
	dc.LineTo(head.Right.X, head.Right.Y)
	dc.ClosePath()
	dc.Fill()
}

func applyStroke(dc *gg.Context, style *Style, lineCap gg.LineCap) {
	dc.SetColor(style.Color)
	dc.SetLineWidth(style.LineWidth)
	dc.SetLineCap(lineCap)
	dc.SetLineJoin(gg.LineJoinRound)
}
