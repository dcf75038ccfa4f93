// Package agent carries capture requests and results between the
// orchestrator, which drives the page, and the agent that owns the
// selection, crops or stitches the snapshots and writes the output file.
package agent

import (
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/pagesnap/internal/annotation"
	"github.com/lehigh-university-libraries/pagesnap/internal/capture"
	"github.com/lehigh-university-libraries/pagesnap/internal/compose"
	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
)

// Action names a message.
type Action string

const (
	ActionPing              Action = "ping"
	ActionStartCapture      Action = "startCapture"
	ActionCapture           Action = "capture"
	ActionCropAndDownload   Action = "cropAndDownload"
	ActionStitchAndDownload Action = "stitchAndDownload"
	ActionCaptureError      Action = "captureError"
)

// CropInfo is the horizontal placement and final size of a stitched
// capture, in logical pixels. X is viewport-relative.
type CropInfo struct {
	X      float64 `json:"x"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Overlay is one annotation layer snapshot as it travels with a message.
type Overlay struct {
	Success bool   `json:"success"`
	Data    []byte `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Message is every request either side sends. Fields not used by an
// action are left empty.
type Message struct {
	Action Action `json:"action"`

	// capture
	Selection *geometry.Selection `json:"selection,omitempty"`

	// cropAndDownload
	Image    []byte         `json:"dataUrl,omitempty"`
	CropArea *geometry.Rect `json:"cropArea,omitempty"`

	// stitchAndDownload
	Captures []capture.Segment `json:"captures,omitempty"`
	CropInfo *CropInfo         `json:"cropInfo,omitempty"`

	DevicePixelRatio float64                     `json:"devicePixelRatio,omitempty"`
	Overlays         map[annotation.Kind]Overlay `json:"overlays,omitempty"`

	// captureError
	Error string `json:"error,omitempty"`
}

// Response answers a Message.
type Response struct {
	Success bool   `json:"success"`
	Ready   bool   `json:"ready,omitempty"`
	Error   string `json:"error,omitempty"`
	// File is where the output was written, for the download actions.
	File string `json:"file,omitempty"`
}

// Failure builds an unsuccessful response.
func Failure(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// Validate checks that a message carries what its action needs.
func (m Message) Validate() error {
	switch m.Action {
	case ActionPing, ActionStartCapture, ActionCaptureError:
		return nil
	case ActionCapture:
		if m.Selection == nil {
			return fmt.Errorf("%s: missing selection", m.Action)
		}
	case ActionCropAndDownload:
		if len(m.Image) == 0 || m.CropArea == nil {
			return fmt.Errorf("%s: missing image or crop area", m.Action)
		}
	case ActionStitchAndDownload:
		if len(m.Captures) == 0 || m.CropInfo == nil {
			return fmt.Errorf("%s: missing captures or crop info", m.Action)
		}
	default:
		return fmt.Errorf("unknown action %q", m.Action)
	}
	return nil
}

// EncodeOverlays wraps layer snapshots for transport. Layers that were
// never created are left out.
func EncodeOverlays(snaps map[annotation.Kind][]byte) map[annotation.Kind]Overlay {
	if len(snaps) == 0 {
		return nil
	}
	out := make(map[annotation.Kind]Overlay, len(snaps))
	for kind, data := range snaps {
		if data == nil {
			continue
		}
		out[kind] = Overlay{Success: true, Data: data}
	}
	return out
}

// DecodeOverlays keeps the successful payloads for compositing.
func DecodeOverlays(in map[annotation.Kind]Overlay) compose.Overlays {
	out := make(compose.Overlays, len(in))
	for kind, ov := range in {
		if !ov.Success {
			slog.Warn("Annotation layer unavailable", "layer", kind, "err", ov.Error)
			continue
		}
		out[kind] = ov.Data
	}
	return out
}
