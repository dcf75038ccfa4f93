package agent

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/pagesnap/internal/compose"
	"github.com/lehigh-university-libraries/pagesnap/internal/stitch"
)

// Agent is the side that owns the selection. It turns snapshots into the
// final image, applies the annotation layers and saves the result.
type Agent struct {
	output Output
	now    func() time.Time

	// OnStart runs for startCapture.
	OnStart func(ctx context.Context) error
	// OnError runs for captureError with the user-facing message.
	OnError func(message string)
}

// New creates an agent that saves into output.
func New(output Output) *Agent {
	return &Agent{
		output: output,
		now:    time.Now,
		OnError: func(message string) {
			slog.Error("Capture failed", "err", message)
		},
	}
}

// Handle answers one message. Processing failures are reported in the
// response rather than returned.
func (a *Agent) Handle(ctx context.Context, msg Message) Response {
	if err := msg.Validate(); err != nil {
		return Failure(err)
	}

	switch msg.Action {
	case ActionPing:
		return Response{Success: true, Ready: true}
	case ActionStartCapture:
		if a.OnStart != nil {
			if err := a.OnStart(ctx); err != nil {
				return Failure(err)
			}
		}
		return Response{Success: true}
	case ActionCaptureError:
		if a.OnError != nil {
			a.OnError(msg.Error)
		}
		return Response{Success: true}
	case ActionCropAndDownload, ActionStitchAndDownload:
		path, err := a.finish(ctx, msg)
		if err != nil {
			slog.Error("Post-processing failed", "action", msg.Action, "err", err)
			return Failure(err)
		}
		return Response{Success: true, File: path}
	default:
		return Failure(fmt.Errorf("%s is not handled by the agent", msg.Action))
	}
}

func (a *Agent) finish(ctx context.Context, msg Message) (string, error) {
	dpr := msg.DevicePixelRatio
	if dpr <= 0 {
		dpr = 1
	}

	var base image.Image
	var err error
	if msg.Action == ActionCropAndDownload {
		base, err = stitch.Crop(msg.Image, *msg.CropArea, dpr)
	} else {
		info := msg.CropInfo
		base, err = stitch.Stitch(ctx, msg.Captures, info.Width, info.Height, dpr, info.X)
	}
	if err != nil {
		return "", &PostProcessError{Action: msg.Action, Err: err}
	}

	data, err := compose.ComposePNG(base, DecodeOverlays(msg.Overlays))
	if err != nil {
		return "", &PostProcessError{Action: msg.Action, Err: err}
	}

	path, err := a.output.Save(ctx, Filename(a.now()), data)
	if err != nil {
		return "", &PostProcessError{Action: msg.Action, Err: err}
	}
	slog.Info("Saved screenshot", "path", path, "bytes", len(data), "size", base.Bounds().Size())
	return path, nil
}
