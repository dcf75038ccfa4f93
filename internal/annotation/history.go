package annotation

import "image"

// history is a bounded stack of raster snapshots. Entry 0 is the blank
// baseline taken when the layer was created and is never removed.
type history struct {
	entries []*image.RGBA
	limit   int
}

func newHistory(baseline *image.RGBA, limit int) *history {
	if limit < 2 {
		limit = 2
	}
	return &history{entries: []*image.RGBA{baseline}, limit: limit}
}

// push appends snap. When the stack is full the oldest entry after the
// baseline is dropped and push reports true.
func (h *history) push(snap *image.RGBA) bool {
	h.entries = append(h.entries, snap)
	if len(h.entries) <= h.limit {
		return false
	}
	h.entries = append(h.entries[:1], h.entries[2:]...)
	return true
}

// undo drops the newest entry and returns the one that is now current.
// It returns false, leaving the stack alone, when only the baseline is left.
func (h *history) undo() (*image.RGBA, bool) {
	if len(h.entries) <= 1 {
		return nil, false
	}
	h.entries[len(h.entries)-1] = nil
	h.entries = h.entries[:len(h.entries)-1]
	return h.entries[len(h.entries)-1], true
}

func (h *history) len() int {
	return len(h.entries)
}
