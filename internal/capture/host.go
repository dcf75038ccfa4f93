// Package capture drives viewport snapshots of a page: a single shot when
// the selection is visible, otherwise a scroll/settle/snapshot loop that
// produces ordered segments for stitching.
package capture

import (
	"context"

	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
	"golang.org/x/time/rate"
)

// Host is the page the scheduler drives. Each call is one round trip and
// the scheduler never issues two concurrently.
type Host interface {
	// CaptureVisible returns the visible viewport as encoded image bytes.
	CaptureVisible(ctx context.Context) ([]byte, error)
	// ScrollTo scrolls the page to the given logical offset.
	ScrollTo(ctx context.Context, x, y float64) error
	// ScrollPosition reports the current scroll offset.
	ScrollPosition(ctx context.Context) (geometry.Point, error)
}

// Element is one positioned page element as seen by the suppressor.
// Display, Visibility and Opacity are the element's inline style values,
// which are what restoration writes back.
type Element struct {
	Ref        string  `json:"ref"`
	Position   string  `json:"position"`
	Top        float64 `json:"top"`
	Bottom     float64 `json:"bottom"`
	Display    string  `json:"display"`
	Visibility string  `json:"visibility"`
	Opacity    string  `json:"opacity"`
}

// StylePatch sets (or, with an empty Value, removes) one inline style
// property on an element. With Release set the element's ref tag is
// removed after the patch; Property may then be empty.
type StylePatch struct {
	Ref       string `json:"ref"`
	Property  string `json:"property,omitempty"`
	Value     string `json:"value"`
	Important bool   `json:"important,omitempty"`
	Release   bool   `json:"release,omitempty"`
}

// DOM gives the suppressor read access to positioned elements and write
// access to inline styles.
type DOM interface {
	// PositionedElements lists elements whose computed position is fixed or
	// sticky, along with the current viewport height.
	PositionedElements(ctx context.Context) ([]Element, float64, error)
	// ApplyStyles applies all patches in one round trip. Patches for
	// elements that left the page are skipped and reported with
	// *MissingElementsError.
	ApplyStyles(ctx context.Context, patches []StylePatch) error
}

// Throttled enforces a host's capture-rate ceiling, failing fast with
// ErrRateLimited the way the browser does when called too often.
type Throttled struct {
	Host
	limiter *rate.Limiter
}

// Throttle wraps h so CaptureVisible succeeds at most perSecond times a
// second.
func Throttle(h Host, perSecond float64) *Throttled {
	return &Throttled{
		Host:    h,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// CaptureVisible forwards to the wrapped host when a token is available.
func (t *Throttled) CaptureVisible(ctx context.Context) ([]byte, error) {
	if !t.limiter.Allow() {
		return nil, ErrRateLimited
	}
	return t.Host.CaptureVisible(ctx)
}
