package capture

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned by a host when a snapshot was refused because
// the capture-rate ceiling was hit. The scheduler recovers from it locally.
var ErrRateLimited = errors.New("capture rate limit exceeded")

// MissingElementsError is returned by a DOM when some patched elements are
// no longer on the page. The remaining patches were still applied.
type MissingElementsError struct {
	Count int
}

func (e *MissingElementsError) Error() string {
	return fmt.Sprintf("%d elements no longer on the page", e.Count)
}

// SnapshotError wraps a non rate-limit failure of the host snapshot call.
type SnapshotError struct {
	Err error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot failed: %v", e.Err)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

// CaptureError is the single error type surfaced by Scheduler.Capture.
// Segment is the zero-based index of the segment being captured, or -1
// when the failure is not tied to a segment.
type CaptureError struct {
	Op      string
	Segment int
	Err     error
}

func (e *CaptureError) Error() string {
	if e.Segment >= 0 {
		return fmt.Sprintf("capture %s (segment %d): %v", e.Op, e.Segment+1, e.Err)
	}
	return fmt.Sprintf("capture %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
