package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// HiddenElement records the inline styles an element had before it was
// hidden, so restoration can write back exactly the same values.
type HiddenElement struct {
	Ref                string
	OriginalDisplay    string
	OriginalVisibility string
	OriginalOpacity    string
}

// Suppressor hides elements that would repeat in every stitched segment:
// fixed elements, and sticky elements currently pinned to a viewport edge.
type Suppressor struct {
	dom    DOM
	settle time.Duration
	sleep  SleepFunc

	mu     sync.Mutex
	hidden []HiddenElement
}

// NewSuppressor returns a suppressor that waits settle after hiding at
// least one element.
func NewSuppressor(dom DOM, settle time.Duration, sleep SleepFunc) *Suppressor {
	if sleep == nil {
		sleep = Sleep
	}
	return &Suppressor{dom: dom, settle: settle, sleep: sleep}
}

// ShouldHide classifies one element.
func ShouldHide(el Element, viewportHeight float64) bool {
	switch el.Position {
	case "fixed":
		return true
	case "sticky":
		return el.Top <= 0 || el.Bottom >= viewportHeight
	default:
		return false
	}
}

// Suppress hides every qualifying element and returns how many were
// hidden. Elements are hidden with visibility and opacity rather than
// display so the page does not reflow. Elements that are listed but not
// hidden have their ref tag released straight away.
func (s *Suppressor) Suppress(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elements, viewportHeight, err := s.dom.PositionedElements(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list positioned elements: %w", err)
	}

	var records []HiddenElement
	var patches []StylePatch
	for _, el := range elements {
		if !ShouldHide(el, viewportHeight) {
			patches = append(patches, StylePatch{Ref: el.Ref, Release: true})
			continue
		}
		records = append(records, HiddenElement{
			Ref:                el.Ref,
			OriginalDisplay:    el.Display,
			OriginalVisibility: el.Visibility,
			OriginalOpacity:    el.Opacity,
		})
		patches = append(patches,
			StylePatch{Ref: el.Ref, Property: "visibility", Value: "hidden", Important: true},
			StylePatch{Ref: el.Ref, Property: "opacity", Value: "0", Important: true},
		)
	}
	if len(patches) == 0 {
		return 0, nil
	}

	// Record before applying: a partially applied batch must still be
	// restorable.
	s.hidden = append(s.hidden, records...)
	if err := applyTolerant(ctx, s.dom, patches, "hide"); err != nil {
		return 0, fmt.Errorf("failed to hide elements: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	slog.Debug("Hid fixed and sticky elements", "count", len(records))
	if err := s.sleep(ctx, s.settle); err != nil {
		return len(records), err
	}
	return len(records), nil
}

// Restore writes back the recorded display, visibility and opacity of
// every hidden element still on the page, untags them and forgets them.
// The records are cleared whether or not the write succeeds. It is a
// no-op when nothing is hidden.
func (s *Suppressor) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.hidden) == 0 {
		return nil
	}
	hidden := s.hidden
	s.hidden = nil

	patches := make([]StylePatch, 0, len(hidden)*3)
	for _, h := range hidden {
		patches = append(patches,
			StylePatch{Ref: h.Ref, Property: "display", Value: h.OriginalDisplay},
			StylePatch{Ref: h.Ref, Property: "visibility", Value: h.OriginalVisibility},
			StylePatch{Ref: h.Ref, Property: "opacity", Value: h.OriginalOpacity, Release: true},
		)
	}
	if err := applyTolerant(ctx, s.dom, patches, "restore"); err != nil {
		return fmt.Errorf("failed to restore hidden elements: %w", err)
	}

	slog.Debug("Restored hidden elements", "count", len(hidden))
	return nil
}

// applyTolerant applies patches, treating elements that left the page as
// a warning.
func applyTolerant(ctx context.Context, dom DOM, patches []StylePatch, op string) error {
	err := dom.ApplyStyles(ctx, patches)
	var missing *MissingElementsError
	if errors.As(err, &missing) {
		slog.Warn("Skipped elements no longer on the page", "op", op, "count", missing.Count)
		return nil
	}
	return err
}

// Hidden returns a copy of the current records.
func (s *Suppressor) Hidden() []HiddenElement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HiddenElement(nil), s.hidden...)
}
