package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config tunes the scheduler's waits. The defaults are the empirically
// safe values for a browser that allows two captures a second.
type Config struct {
	// SettleDelay is waited after every scroll before the snapshot.
	SettleDelay time.Duration
	// CaptureInterval is waited between segments.
	CaptureInterval time.Duration
	// RateLimitCooldown is waited before retrying a rate-limited segment.
	RateLimitCooldown time.Duration
	// MaxRateLimitRetries bounds consecutive rate-limit retries of one
	// segment. Zero means the default of 5.
	MaxRateLimitRetries int
	// SuppressSettle is waited after hiding fixed elements.
	SuppressSettle time.Duration

	Sleep SleepFunc
}

// DefaultConfig returns the default waits.
func DefaultConfig() Config {
	return Config{
		SettleDelay:         300 * time.Millisecond,
		CaptureInterval:     600 * time.Millisecond,
		RateLimitCooldown:   time.Second,
		MaxRateLimitRetries: 5,
		SuppressSettle:      500 * time.Millisecond,
	}
}

func (c *Config) defaults() {
	if c.MaxRateLimitRetries <= 0 {
		c.MaxRateLimitRetries = 5
	}
	if c.Sleep == nil {
		c.Sleep = Sleep
	}
}

// Mode says how a selection was captured.
type Mode string

const (
	ModeSingle    Mode = "single"
	ModeSegmented Mode = "segmented"
)

// Segment is one viewport snapshot and the vertical slice of it that
// belongs in the output. Offsets and heights are logical pixels.
type Segment struct {
	Image       []byte    `json:"image"`
	CropOffsetY float64   `json:"cropY"`
	CropHeight  float64   `json:"cropHeight"`
	DestOffsetY float64   `json:"offsetY"`
	ScrollY     float64   `json:"scrollY,omitempty"`
	CapturedAt  time.Time `json:"capturedAt,omitempty"`
}

// Result is the raw output of a capture, ready for cropping or stitching.
type Result struct {
	Mode      Mode
	Selection geometry.Selection

	// Image and Crop are set in single mode. Crop is viewport-relative.
	Image []byte
	Crop  geometry.Rect

	// Segments is set in segmented mode, ordered by DestOffsetY.
	Segments []Segment

	Hidden   int
	Retries  int
	Duration time.Duration
}

// Scheduler captures selections against one host.
type Scheduler struct {
	host       Host
	suppressor *Suppressor
	cfg        Config
}

// NewScheduler creates a scheduler. dom may be nil, in which case fixed
// elements are not suppressed.
func NewScheduler(host Host, dom DOM, cfg Config) *Scheduler {
	cfg.defaults()
	s := &Scheduler{host: host, cfg: cfg}
	if dom != nil {
		s.suppressor = NewSuppressor(dom, cfg.SuppressSettle, cfg.Sleep)
	}
	return s
}

// Capture snapshots the selection. A selection that is fully visible at
// the current scroll offset takes exactly one snapshot; anything else is
// captured segment by segment while scrolling.
func (s *Scheduler) Capture(ctx context.Context, sel geometry.Selection) (*Result, error) {
	if err := sel.Validate(); err != nil {
		return nil, &CaptureError{Op: "validate", Segment: -1, Err: err}
	}

	start := time.Now()
	var res *Result
	var err error
	if sel.FitsViewport() {
		res, err = s.captureSingle(ctx, sel)
	} else {
		res, err = s.captureSegmented(ctx, sel)
	}
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	slog.Info("Capture finished", "mode", res.Mode, "segments", len(res.Segments), "retries", res.Retries, "duration", res.Duration)
	return res, nil
}

func (s *Scheduler) captureSingle(ctx context.Context, sel geometry.Selection) (*Result, error) {
	res := &Result{Mode: ModeSingle, Selection: sel, Crop: sel.ViewportCrop()}
	data, err := s.snapshot(ctx, 0, res)
	if err != nil {
		return nil, err
	}
	res.Image = data
	return res, nil
}

func (s *Scheduler) captureSegmented(ctx context.Context, sel geometry.Selection) (res *Result, err error) {
	origin, err := s.host.ScrollPosition(ctx)
	if err != nil {
		return nil, &CaptureError{Op: "read scroll position", Segment: -1, Err: err}
	}

	// Cleanup must survive cancellation of the capture itself.
	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if cerr := s.cleanup(cleanupCtx, origin); cerr != nil {
			slog.Error("Failed to restore page after capture", "err", cerr)
			if err == nil {
				res, err = nil, &CaptureError{Op: "restore", Segment: -1, Err: cerr}
			}
		}
	}()

	res = &Result{Mode: ModeSegmented, Selection: sel}

	if s.suppressor != nil {
		n, serr := s.suppressor.Suppress(ctx)
		if serr != nil {
			if ctx.Err() != nil {
				return nil, &CaptureError{Op: "suppress", Segment: -1, Err: ctx.Err()}
			}
			slog.Warn("Failed to hide fixed elements, continuing", "err", serr)
		}
		res.Hidden = n
	}

	captured := 0.0
	for captured < sel.Height {
		index := len(res.Segments)
		if err := ctx.Err(); err != nil {
			return nil, &CaptureError{Op: "canceled", Segment: index, Err: err}
		}

		target := sel.Y + captured
		if err := s.host.ScrollTo(ctx, sel.ScrollX, target); err != nil {
			return nil, &CaptureError{Op: "scroll", Segment: index, Err: err}
		}
		if err := s.cfg.Sleep(ctx, s.cfg.SettleDelay); err != nil {
			return nil, &CaptureError{Op: "settle", Segment: index, Err: err}
		}

		pos, err := s.host.ScrollPosition(ctx)
		if err != nil {
			return nil, &CaptureError{Op: "read scroll position", Segment: index, Err: err}
		}

		data, err := s.snapshot(ctx, index, res)
		if err != nil {
			return nil, err
		}

		// The page may refuse to scroll past its end, so the slice starts
		// wherever the target landed inside the viewport.
		cropY := target - pos.Y
		if cropY < 0 || cropY >= sel.WindowHeight {
			return nil, &CaptureError{Op: "scroll", Segment: index,
				Err: fmt.Errorf("target offset %g not visible at scroll %g", target, pos.Y)}
		}
		cropHeight := min(sel.WindowHeight-cropY, sel.Height-captured)

		res.Segments = append(res.Segments, Segment{
			Image:       data,
			CropOffsetY: cropY,
			CropHeight:  cropHeight,
			DestOffsetY: captured,
			ScrollY:     pos.Y,
			CapturedAt:  time.Now(),
		})
		slog.Debug("Captured segment", "segment", index+1, "scroll_y", pos.Y, "crop_y", cropY, "crop_height", cropHeight, "offset_y", captured)

		captured += cropHeight
		if captured < sel.Height {
			if err := s.cfg.Sleep(ctx, s.cfg.CaptureInterval); err != nil {
				return nil, &CaptureError{Op: "canceled", Segment: index + 1, Err: err}
			}
		}
	}

	return res, nil
}

// snapshot takes one viewport capture, retrying the same position after a
// cooldown while the host reports rate limiting.
func (s *Scheduler) snapshot(ctx context.Context, index int, res *Result) ([]byte, error) {
	retries := 0
	for {
		data, err := s.host.CaptureVisible(ctx)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return nil, &CaptureError{Op: "snapshot", Segment: index, Err: &SnapshotError{Err: err}}
		}

		retries++
		res.Retries++
		if retries > s.cfg.MaxRateLimitRetries {
			return nil, &CaptureError{Op: "snapshot", Segment: index,
				Err: fmt.Errorf("gave up after %d retries: %w", s.cfg.MaxRateLimitRetries, err)}
		}
		slog.Debug("Capture rate limited, retrying", "segment", index+1, "attempt", retries, "cooldown", s.cfg.RateLimitCooldown)
		if err := s.cfg.Sleep(ctx, s.cfg.RateLimitCooldown); err != nil {
			return nil, &CaptureError{Op: "canceled", Segment: index, Err: err}
		}
	}
}

// cleanup restores hidden elements and then the original scroll offset.
// Both are attempted even if the first fails.
func (s *Scheduler) cleanup(ctx context.Context, origin geometry.Point) error {
	var errs []error
	if s.suppressor != nil {
		if err := s.suppressor.Restore(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.host.ScrollTo(ctx, origin.X, origin.Y); err != nil {
		errs = append(errs, fmt.Errorf("failed to restore scroll position: %w", err))
	}
	return errors.Join(errs...)
}
