package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/lehigh-university-libraries/pagesnap/internal/capture"
	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
)

// RefAttribute tags positioned elements so later style patches can find
// them again.
const RefAttribute = "data-pagesnap-ref"

// Tab is one open page. It implements capture.Host and capture.DOM.
type Tab struct {
	page *rod.Page
	url  string
}

var (
	_ capture.Host = (*Tab)(nil)
	_ capture.DOM  = (*Tab)(nil)
)

// URL is the address the tab was opened with.
func (t *Tab) URL() string { return t.url }

// Metrics is the viewport and page geometry reported by the page.
type Metrics struct {
	WindowWidth      float64 `json:"windowWidth"`
	WindowHeight     float64 `json:"windowHeight"`
	ScrollX          float64 `json:"scrollX"`
	ScrollY          float64 `json:"scrollY"`
	PageWidth        float64 `json:"pageWidth"`
	PageHeight       float64 `json:"pageHeight"`
	DevicePixelRatio float64 `json:"devicePixelRatio"`
}

const metricsJS = `() => JSON.stringify({
	windowWidth: window.innerWidth,
	windowHeight: window.innerHeight,
	scrollX: window.scrollX,
	scrollY: window.scrollY,
	pageWidth: document.documentElement.scrollWidth,
	pageHeight: document.documentElement.scrollHeight,
	devicePixelRatio: window.devicePixelRatio || 1
})`

const scrollPositionJS = `() => JSON.stringify({x: window.scrollX, y: window.scrollY})`

const scrollToJS = `(x, y) => window.scrollTo(x, y)`

const positionedElementsJS = `(attr) => {
	const prefix = 'ps-' + Date.now().toString(36) + '-';
	let seq = 0;
	const elements = [];
	for (const el of document.querySelectorAll('body *')) {
		const cs = getComputedStyle(el);
		if (cs.position !== 'fixed' && cs.position !== 'sticky') continue;
		let ref = el.getAttribute(attr);
		if (!ref) {
			ref = prefix + (seq++);
			el.setAttribute(attr, ref);
		}
		const box = el.getBoundingClientRect();
		elements.push({
			ref: ref,
			position: cs.position,
			top: box.top,
			bottom: box.bottom,
			display: el.style.display,
			visibility: el.style.visibility,
			opacity: el.style.opacity
		});
	}
	return JSON.stringify({elements: elements, viewportHeight: window.innerHeight});
}`

const applyStylesJS = `(attr, raw) => {
	const seen = new Set();
	let missing = 0;
	for (const p of JSON.parse(raw)) {
		const el = document.querySelector('[' + attr + '="' + p.ref + '"]');
		if (!el) {
			if (!seen.has(p.ref)) missing++;
			seen.add(p.ref);
			continue;
		}
		if (p.property && p.value) {
			el.style.setProperty(p.property, p.value, p.important ? 'important' : '');
		} else if (p.property) {
			el.style.removeProperty(p.property);
		}
		if (p.release) el.removeAttribute(attr);
	}
	return missing;
}`

func (t *Tab) evalJSON(ctx context.Context, js string, out any, args ...any) error {
	res, err := t.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return err
	}
	return decodeJSON(res.Value.Str(), out)
}

func decodeJSON(raw string, out any) error {
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode page result: %w", err)
	}
	return nil
}

// CaptureVisible screenshots the visible viewport as PNG.
func (t *Tab) CaptureVisible(ctx context.Context) ([]byte, error) {
	data, err := t.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture viewport: %w", err)
	}
	return data, nil
}

// ScrollTo scrolls the window.
func (t *Tab) ScrollTo(ctx context.Context, x, y float64) error {
	if _, err := t.page.Context(ctx).Eval(scrollToJS, x, y); err != nil {
		return fmt.Errorf("failed to scroll to %g,%g: %w", x, y, err)
	}
	return nil
}

// ScrollPosition reads the window scroll offset.
func (t *Tab) ScrollPosition(ctx context.Context) (geometry.Point, error) {
	var p geometry.Point
	if err := t.evalJSON(ctx, scrollPositionJS, &p); err != nil {
		return geometry.Point{}, fmt.Errorf("failed to read scroll position: %w", err)
	}
	return p, nil
}

// Metrics reads the current viewport and page geometry.
func (t *Tab) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	if err := t.evalJSON(ctx, metricsJS, &m); err != nil {
		return Metrics{}, fmt.Errorf("failed to read page metrics: %w", err)
	}
	return m, nil
}

// Selection builds a capture selection for region, given in page
// coordinates, from the tab's current geometry.
func (t *Tab) Selection(ctx context.Context, region geometry.Rect) (geometry.Selection, error) {
	m, err := t.Metrics(ctx)
	if err != nil {
		return geometry.Selection{}, err
	}
	return m.Selection(region), nil
}

// Selection combines region with the measured geometry. Zero width or
// height extend the region to the page edge.
func (m Metrics) Selection(region geometry.Rect) geometry.Selection {
	if region.Width <= 0 {
		region.Width = m.PageWidth - region.X
	}
	if region.Height <= 0 {
		region.Height = m.PageHeight - region.Y
	}
	return geometry.Selection{
		X:                region.X,
		Y:                region.Y,
		Width:            region.Width,
		Height:           region.Height,
		WindowWidth:      m.WindowWidth,
		WindowHeight:     m.WindowHeight,
		ScrollX:          m.ScrollX,
		ScrollY:          m.ScrollY,
		PageWidth:        m.PageWidth,
		PageHeight:       m.PageHeight,
		DevicePixelRatio: m.DevicePixelRatio,
	}
}

type positionedResult struct {
	Elements       []capture.Element `json:"elements"`
	ViewportHeight float64           `json:"viewportHeight"`
}

// PositionedElements lists fixed and sticky elements, tagging each with
// RefAttribute.
func (t *Tab) PositionedElements(ctx context.Context) ([]capture.Element, float64, error) {
	var res positionedResult
	if err := t.evalJSON(ctx, positionedElementsJS, &res, RefAttribute); err != nil {
		return nil, 0, fmt.Errorf("failed to list positioned elements: %w", err)
	}
	return res.Elements, res.ViewportHeight, nil
}

// ApplyStyles writes inline style patches in one evaluation.
func (t *Tab) ApplyStyles(ctx context.Context, patches []capture.StylePatch) error {
	if len(patches) == 0 {
		return nil
	}
	raw, err := json.Marshal(patches)
	if err != nil {
		return fmt.Errorf("failed to encode style patches: %w", err)
	}
	res, err := t.page.Context(ctx).Eval(applyStylesJS, RefAttribute, string(raw))
	if err != nil {
		return fmt.Errorf("failed to apply styles: %w", err)
	}
	if missing := res.Value.Int(); missing > 0 {
		return &capture.MissingElementsError{Count: missing}
	}
	return nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.page != nil {
		return t.page.Close()
	}
	return nil
}
