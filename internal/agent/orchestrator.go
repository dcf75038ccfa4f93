package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/pagesnap/internal/capture"
	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
)

// Capturer runs a capture for a selection.
type Capturer interface {
	Capture(ctx context.Context, sel geometry.Selection) (*capture.Result, error)
}

// Orchestrator answers capture requests: it runs the capturer, hands the
// snapshots to the peer for post-processing and reports any failure back
// with a single captureError.
type Orchestrator struct {
	capturer Capturer
	peer     Peer
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(capturer Capturer, peer Peer) *Orchestrator {
	return &Orchestrator{capturer: capturer, peer: peer}
}

// Outcome is what a finished capture produced.
type Outcome struct {
	Result *capture.Result
	File   string
}

// Handle runs a capture message. The error is also delivered to the peer
// as captureError; on failure no file is written.
func (o *Orchestrator) Handle(ctx context.Context, msg Message) (*Outcome, error) {
	if msg.Action != ActionCapture {
		return nil, fmt.Errorf("orchestrator cannot handle %q", msg.Action)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	outcome, err := o.run(ctx, msg)
	if err != nil {
		o.notify(ctx, err)
		return nil, err
	}
	return outcome, nil
}

func (o *Orchestrator) run(ctx context.Context, msg Message) (*Outcome, error) {
	sel := *msg.Selection
	res, err := o.capturer.Capture(ctx, sel)
	if err != nil {
		return nil, err
	}

	next := DownloadMessage(res)
	next.Overlays = msg.Overlays

	resp, err := o.peer.Send(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("failed to deliver %s: %w", next.Action, err)
	}
	if !resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = "post-processing failed"
		}
		return nil, &PostProcessError{Action: next.Action, Err: errors.New(reason)}
	}
	return &Outcome{Result: res, File: resp.File}, nil
}

// DownloadMessage builds the crop or stitch message for a result.
func DownloadMessage(res *capture.Result) Message {
	sel := res.Selection
	msg := Message{DevicePixelRatio: sel.DevicePixelRatio}
	if res.Mode == capture.ModeSingle {
		crop := res.Crop
		msg.Action = ActionCropAndDownload
		msg.Image = res.Image
		msg.CropArea = &crop
		return msg
	}
	msg.Action = ActionStitchAndDownload
	msg.Captures = res.Segments
	msg.CropInfo = &CropInfo{X: sel.OriginX(), Width: sel.Width, Height: sel.Height}
	return msg
}

func (o *Orchestrator) notify(ctx context.Context, cause error) {
	slog.Error("Capture failed", "err", cause)
	// The failure may be the caller's cancellation; the notice still goes out.
	_, err := o.peer.Send(context.WithoutCancel(ctx), Message{Action: ActionCaptureError, Error: cause.Error()})
	if err != nil {
		slog.Error("Failed to report capture error", "err", err)
	}
}
