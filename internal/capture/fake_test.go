package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
)

// fakePage is an in-memory page that clamps scrolling the way a browser
// does and records every call the scheduler makes.
type fakePage struct {
	mu sync.Mutex

	windowHeight float64
	pageHeight   float64
	scroll       geometry.Point

	// rateLimited makes the next N snapshot calls fail with ErrRateLimited.
	rateLimited int
	// failOn makes the snapshot with this call number (1-based) fail.
	failOn int
	// onCapture runs inside every successful snapshot.
	onCapture func(call int)

	captures int
	scrolls  []geometry.Point

	elements []Element
	styles   map[string]map[string]string
	applyErr error
	// removed lists refs that have left the page.
	removed map[string]bool
	// released records refs whose tag was removed.
	released map[string]bool
}

func newFakePage(windowHeight, pageHeight float64) *fakePage {
	return &fakePage{
		windowHeight: windowHeight,
		pageHeight:   pageHeight,
		styles:       make(map[string]map[string]string),
		removed:      make(map[string]bool),
		released:     make(map[string]bool),
	}
}

func (p *fakePage) CaptureVisible(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captures++
	if p.rateLimited > 0 {
		p.rateLimited--
		return nil, ErrRateLimited
	}
	if p.failOn != 0 && p.captures == p.failOn {
		return nil, errors.New("tab closed")
	}
	if p.onCapture != nil {
		p.onCapture(p.captures)
	}
	return []byte(fmt.Sprintf("viewport@%g", p.scroll.Y)), nil
}

func (p *fakePage) ScrollTo(ctx context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	maxY := p.pageHeight - p.windowHeight
	if maxY < 0 {
		maxY = 0
	}
	y = max(0, min(y, maxY))
	p.scroll = geometry.Point{X: x, Y: y}
	p.scrolls = append(p.scrolls, p.scroll)
	return nil
}

func (p *fakePage) ScrollPosition(ctx context.Context) (geometry.Point, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scroll, nil
}

func (p *fakePage) PositionedElements(ctx context.Context) ([]Element, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Element, 0, len(p.elements))
	for _, el := range p.elements {
		st := p.styles[el.Ref]
		el.Display, el.Visibility, el.Opacity = st["display"], st["visibility"], st["opacity"]
		out = append(out, el)
	}
	return out, p.windowHeight, nil
}

func (p *fakePage) ApplyStyles(ctx context.Context, patches []StylePatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.applyErr != nil {
		return p.applyErr
	}
	missing := make(map[string]bool)
	for _, patch := range patches {
		if p.removed[patch.Ref] {
			missing[patch.Ref] = true
			continue
		}
		if patch.Property != "" {
			st, ok := p.styles[patch.Ref]
			if !ok {
				st = make(map[string]string)
				p.styles[patch.Ref] = st
			}
			if patch.Value == "" {
				delete(st, patch.Property)
			} else {
				st[patch.Property] = patch.Value
			}
		}
		if patch.Release {
			p.released[patch.Ref] = true
		}
	}
	if len(missing) > 0 {
		return &MissingElementsError{Count: len(missing)}
	}
	return nil
}

func (p *fakePage) remove(ref string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed[ref] = true
}

func (p *fakePage) isReleased(ref string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released[ref]
}

func (p *fakePage) style(ref, prop string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.styles[ref][prop]
}

func (p *fakePage) setStyle(ref, prop, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.styles[ref]
	if !ok {
		st = make(map[string]string)
		p.styles[ref] = st
	}
	st[prop] = value
}

// recordingSleep never blocks; it records requested durations.
type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleep) count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, w := range r.waits {
		if w == d {
			n++
		}
	}
	return n
}
