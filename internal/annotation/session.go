package annotation

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
)

var (
	// ErrUnknownTool is returned for a layer name outside Order.
	ErrUnknownTool = errors.New("unknown annotation tool")
	// ErrNoActiveTool is returned for pointer input with no tool active.
	ErrNoActiveTool = errors.New("no annotation tool active")
	// ErrSessionClosed is returned after Close.
	ErrSessionClosed = errors.New("annotation session closed")
)

// Options configures a Session.
type Options struct {
	Style Style
	// HistoryLimits overrides DefaultHistoryLimits per layer.
	HistoryLimits map[Kind]int
	// Seed makes mosaic tiles reproducible. Zero seeds from the clock.
	Seed uint64
}

// Session owns every annotation layer of one selection. Layers are
// created the first time their tool is activated and only one layer takes
// input at a time. Undo follows a single chronological journal, so it
// always reverts the layer that was drawn on most recently.
type Session struct {
	mu     sync.Mutex
	size   image.Point
	style  Style
	limits map[Kind]int
	rng    *rand.Rand

	layers  map[Kind]*Layer
	active  Kind
	journal []Kind
	closed  bool
}

// NewSession creates a session for a selection of the given logical size.
func NewSession(size image.Point, opts Options) *Session {
	style := opts.Style
	if style.LineWidth <= 0 {
		style.LineWidth = DefaultStyle.LineWidth
	}
	if style.Color.A == 0 {
		style.Color = DefaultStyle.Color
	}
	limits := make(map[Kind]int, len(DefaultHistoryLimits))
	for k, v := range DefaultHistoryLimits {
		limits[k] = v
	}
	for k, v := range opts.HistoryLimits {
		if v > 0 {
			limits[k] = v
		}
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Session{
		size:   size,
		style:  style,
		limits: limits,
		rng:    rand.New(rand.NewPCG(seed, seed>>1|1)),
		layers: make(map[Kind]*Layer),
	}
}

// Size is the logical canvas size shared by all layers.
func (s *Session) Size() image.Point { return s.size }

// SetStyle changes the color and width used by subsequent gestures.
func (s *Session) SetStyle(style Style) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if style.LineWidth > 0 {
		s.style.LineWidth = style.LineWidth
	}
	if style.Color.A != 0 {
		s.style.Color = style.Color
	}
}

// Style returns the current drawing style.
func (s *Session) Style() Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

// Activate makes kind the input-active tool, creating its layer on first
// use and deactivating whichever tool was active before. Content already
// drawn on other layers is kept.
func (s *Session) Activate(kind Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return err
	}
	if s.active == kind {
		return nil
	}
	s.deactivateLocked()

	layer, ok := s.layers[kind]
	if !ok {
		layer = newLayer(kind, s.size.X, s.size.Y, s.limits[kind])
		layer.tool = newTool(kind, layer.canvas, &s.style, s.rng)
		s.layers[kind] = layer
		slog.Debug("Created annotation layer", "layer", kind, "width", s.size.X, "height", s.size.Y)
	}
	layer.Activate()
	s.active = kind
	return nil
}

// Deactivate turns input off for the active tool, if any.
func (s *Session) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivateLocked()
}

func (s *Session) deactivateLocked() {
	if s.active == "" {
		return
	}
	layer := s.layers[s.active]
	// A gesture interrupted by a tool switch is finished where it stands.
	if layer.tool.dragging() {
		s.endLocked(layer, s.lastPoint(layer))
	}
	layer.Deactivate()
	s.active = ""
}

func (s *Session) lastPoint(layer *Layer) geometry.Point {
	switch t := layer.tool.(type) {
	case *penTool:
		return t.last
	case *mosaicTool:
		return t.current
	case *rectTool:
		return t.current
	case *arrowTool:
		return t.current
	}
	return geometry.Point{}
}

// ActiveTool returns the input-active layer, or "" when none is.
func (s *Session) ActiveTool() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) activeLayer() (*Layer, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.active == "" {
		return nil, ErrNoActiveTool
	}
	return s.layers[s.active], nil
}

// PointerDown starts a gesture on the active tool.
func (s *Session) PointerDown(p geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	layer, err := s.activeLayer()
	if err != nil {
		return err
	}
	layer.tool.begin(p)
	return nil
}

// PointerMove continues the current gesture.
func (s *Session) PointerMove(p geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	layer, err := s.activeLayer()
	if err != nil {
		return err
	}
	layer.tool.move(p)
	return nil
}

// PointerUp finishes the gesture. It reports whether the gesture was
// large enough to be committed to the layer and its history.
func (s *Session) PointerUp(p geometry.Point) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	layer, err := s.activeLayer()
	if err != nil {
		return false, err
	}
	return s.endLocked(layer, p), nil
}

func (s *Session) endLocked(layer *Layer, p geometry.Point) bool {
	if !layer.tool.end(p) {
		return false
	}
	if layer.Record() {
		s.forgetOldest(layer.kind)
	}
	s.journal = append(s.journal, layer.kind)
	return true
}

// forgetOldest drops the earliest journal entry for kind after its layer
// evicted the matching snapshot.
func (s *Session) forgetOldest(kind Kind) {
	for i, k := range s.journal {
		if k == kind {
			s.journal = append(s.journal[:i], s.journal[i+1:]...)
			return
		}
	}
}

// Draw runs a whole gesture through points on the active tool: pointer
// down on the first, moves through the middle, pointer up on the last.
func (s *Session) Draw(points ...geometry.Point) (bool, error) {
	if len(points) == 0 {
		return false, fmt.Errorf("gesture needs at least one point")
	}
	if err := s.PointerDown(points[0]); err != nil {
		return false, err
	}
	for _, p := range points[1:] {
		if err := s.PointerMove(p); err != nil {
			return false, err
		}
	}
	return s.PointerUp(points[len(points)-1])
}

// Undo reverts the most recently drawn-upon layer by one step and
// returns which layer it was. With nothing left to undo it returns false.
func (s *Session) Undo() (Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false
	}
	for len(s.journal) > 0 {
		kind := s.journal[len(s.journal)-1]
		s.journal = s.journal[:len(s.journal)-1]
		if s.layers[kind].Undo() {
			slog.Debug("Undid annotation", "layer", kind)
			return kind, true
		}
	}
	return "", false
}

// UndoLayer reverts one step on a specific layer.
func (s *Session) UndoLayer(kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	layer, ok := s.layers[kind]
	if s.closed || !ok || !layer.Undo() {
		return false
	}
	for i := len(s.journal) - 1; i >= 0; i-- {
		if s.journal[i] == kind {
			s.journal = append(s.journal[:i], s.journal[i+1:]...)
			break
		}
	}
	return true
}

// Layer returns the layer for kind, or nil if it was never created.
func (s *Session) Layer(kind Kind) *Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers[kind]
}

// LayerState summarizes one created layer.
type LayerState struct {
	Kind    Kind
	History int
	Active  bool
}

// LayerStates lists the created layers in compositing order.
func (s *Session) LayerStates() []LayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LayerState
	for _, kind := range Order {
		if layer, ok := s.layers[kind]; ok {
			out = append(out, LayerState{Kind: kind, History: layer.HistoryLen(), Active: layer.Active()})
		}
	}
	return out
}

// Snapshot encodes one layer as PNG. It returns nil bytes and no error
// when the layer was never created.
func (s *Session) Snapshot(kind Kind) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	layer, ok := s.layers[kind]
	if !ok {
		return nil, nil
	}
	return layer.Snapshot()
}

// Snapshots encodes every created layer, keyed by kind.
func (s *Session) Snapshots() (map[Kind][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Kind][]byte, len(s.layers))
	for _, kind := range Order {
		layer, ok := s.layers[kind]
		if !ok {
			continue
		}
		data, err := layer.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot %s layer: %w", kind, err)
		}
		out[kind] = data
	}
	return out, nil
}

// Preview returns the active tool's in-progress overlay, or nil.
func (s *Session) Preview() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return nil
	}
	if ov := s.layers[s.active].tool.overlay(); ov != nil {
		return ov.Clone()
	}
	return nil
}

// Close discards every layer and its history.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = make(map[Kind]*Layer)
	s.journal = nil
	s.active = ""
	s.closed = true
}
