package agent

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/pagesnap/internal/annotation"
	"github.com/lehigh-university-libraries/pagesnap/internal/capture"
	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
	"github.com/lehigh-university-libraries/pagesnap/internal/raster"
)

var (
	fixedNow = time.Date(2026, 10, 14, 9, 30, 5, 123000000, time.UTC)
	blue     = color.RGBA{B: 255, A: 255}
	red      = color.RGBA{R: 255, A: 255}
)

func png(t *testing.T, w, h int, fill color.RGBA, block image.Rectangle, blockColor color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
	draw.Draw(img, block, image.NewUniform(blockColor), image.Point{}, draw.Src)
	data, err := raster.EncodePNG(img)
	require.NoError(t, err)
	return data
}

type fakeCapturer struct {
	res *capture.Result
	err error
}

func (f *fakeCapturer) Capture(ctx context.Context, sel geometry.Selection) (*capture.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	res.Selection = sel
	return &res, nil
}

// recordingPeer keeps every message it forwards.
type recordingPeer struct {
	mu   sync.Mutex
	next Peer
	sent []Message
}

func (p *recordingPeer) Send(ctx context.Context, msg Message) (Response, error) {
	p.mu.Lock()
	p.sent = append(p.sent, msg)
	p.mu.Unlock()
	return p.next.Send(ctx, msg)
}

func (p *recordingPeer) actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Action, 0, len(p.sent))
	for _, m := range p.sent {
		out = append(out, m.Action)
	}
	return out
}

func newTestAgent(t *testing.T) (*Agent, string) {
	t.Helper()
	dir := t.TempDir()
	a := New(DirOutput{Dir: dir})
	a.now = func() time.Time { return fixedNow }
	return a, dir
}

func readOutput(t *testing.T, path string) image.Image {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	img, err := raster.Decode(data)
	require.NoError(t, err)
	return img
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "screenshot_2026-10-14T09-30-05.png", Filename(fixedNow))

	local := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "screenshot_2026-01-02T08-04-05.png", Filename(local))
}

func TestPing(t *testing.T) {
	a, _ := newTestAgent(t)
	resp := a.Handle(context.Background(), Message{Action: ActionPing})
	assert.True(t, resp.Ready)
	assert.True(t, resp.Success)
}

func TestStartCapture(t *testing.T) {
	a, _ := newTestAgent(t)
	started := false
	a.OnStart = func(ctx context.Context) error {
		started = true
		return nil
	}
	resp := a.Handle(context.Background(), Message{Action: ActionStartCapture})
	assert.True(t, resp.Success)
	assert.True(t, started)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"ping", Message{Action: ActionPing}, false},
		{"capture without selection", Message{Action: ActionCapture}, true},
		{"crop without area", Message{Action: ActionCropAndDownload, Image: []byte{1}}, true},
		{"stitch without captures", Message{Action: ActionStitchAndDownload, CropInfo: &CropInfo{}}, true},
		{"unknown", Message{Action: "paint"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCaptureSingleView(t *testing.T) {
	a, dir := newTestAgent(t)
	peer := &recordingPeer{next: Local{Agent: a}}
	capturer := &fakeCapturer{res: &capture.Result{
		Mode:  capture.ModeSingle,
		Image: png(t, 120, 90, blue, image.Rect(10, 30, 20, 40), red),
		Crop:  geometry.Rect{X: 10, Y: 30, Width: 40, Height: 20},
	}}
	sel := geometry.Selection{X: 10, Y: 30, Width: 40, Height: 20, WindowWidth: 120, WindowHeight: 90, DevicePixelRatio: 1}

	outcome, err := NewOrchestrator(capturer, peer).Handle(context.Background(), Message{Action: ActionCapture, Selection: &sel})
	require.NoError(t, err)

	assert.Equal(t, []Action{ActionCropAndDownload}, peer.actions())
	assert.Equal(t, filepath.Join(dir, "screenshot_2026-10-14T09-30-05.png"), outcome.File)

	img := readOutput(t, outcome.File)
	assert.Equal(t, image.Pt(40, 20), img.Bounds().Size())
	r, _, _, _ := img.At(5, 5).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestCaptureSegmentedWithOverlays(t *testing.T) {
	a, _ := newTestAgent(t)
	peer := &recordingPeer{next: Local{Agent: a}}
	capturer := &fakeCapturer{res: &capture.Result{
		Mode: capture.ModeSegmented,
		Segments: []capture.Segment{
			{Image: png(t, 60, 50, blue, image.Rectangle{}, blue), CropOffsetY: 0, CropHeight: 50, DestOffsetY: 0},
			{Image: png(t, 60, 50, blue, image.Rectangle{}, blue), CropOffsetY: 0, CropHeight: 30, DestOffsetY: 50},
		},
	}}
	sel := geometry.Selection{X: 0, Y: 0, Width: 60, Height: 80, WindowWidth: 60, WindowHeight: 50, DevicePixelRatio: 1}
	overlays := EncodeOverlays(map[annotation.Kind][]byte{
		annotation.KindArrow: png(t, 60, 80, color.RGBA{}, image.Rect(0, 70, 10, 80), red),
		annotation.KindRect:  nil,
	})
	overlays[annotation.KindPen] = Overlay{Success: false, Error: "layer lost"}

	outcome, err := NewOrchestrator(capturer, peer).Handle(context.Background(),
		Message{Action: ActionCapture, Selection: &sel, Overlays: overlays})
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionStitchAndDownload}, peer.actions())

	img := readOutput(t, outcome.File)
	assert.Equal(t, image.Pt(60, 80), img.Bounds().Size())
	r, _, b, _ := img.At(5, 75).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Zero(t, b)
	_, _, b, _ = img.At(30, 30).RGBA()
	assert.Equal(t, uint32(0xffff), b)
}

func TestCaptureFailureReportsError(t *testing.T) {
	a, dir := newTestAgent(t)
	var notice string
	a.OnError = func(message string) { notice = message }
	peer := &recordingPeer{next: Local{Agent: a}}
	capturer := &fakeCapturer{err: &capture.CaptureError{Op: "snapshot", Segment: 1, Err: errors.New("tab closed")}}
	sel := geometry.Selection{Width: 10, Height: 10, WindowHeight: 10}

	_, err := NewOrchestrator(capturer, peer).Handle(context.Background(), Message{Action: ActionCapture, Selection: &sel})
	require.Error(t, err)

	assert.Equal(t, []Action{ActionCaptureError}, peer.actions())
	assert.Contains(t, notice, "tab closed")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPostProcessFailure(t *testing.T) {
	a, dir := newTestAgent(t)
	peer := &recordingPeer{next: Local{Agent: a}}
	capturer := &fakeCapturer{res: &capture.Result{
		Mode:  capture.ModeSingle,
		Image: []byte("not an image"),
		Crop:  geometry.Rect{Width: 10, Height: 10},
	}}
	sel := geometry.Selection{Width: 10, Height: 10, WindowHeight: 10}

	_, err := NewOrchestrator(capturer, peer).Handle(context.Background(), Message{Action: ActionCapture, Selection: &sel})
	var ppErr *PostProcessError
	require.True(t, errors.As(err, &ppErr))
	assert.Equal(t, ActionCropAndDownload, ppErr.Action)
	assert.Equal(t, []Action{ActionCropAndDownload, ActionCaptureError}, peer.actions())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAgentReportsPostProcessError(t *testing.T) {
	a, _ := newTestAgent(t)
	resp := a.Handle(context.Background(), Message{
		Action:   ActionStitchAndDownload,
		Captures: []capture.Segment{{Image: []byte("bad"), CropHeight: 10}},
		CropInfo: &CropInfo{Width: 10, Height: 10},
	})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "stitchAndDownload")
}

func TestHTTPPeer(t *testing.T) {
	a, _ := newTestAgent(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(a.Handle(r.Context(), msg))
	}))
	defer srv.Close()

	peer := NewHTTPPeer(srv.URL)
	resp, err := peer.Send(context.Background(), Message{Action: ActionPing})
	require.NoError(t, err)
	assert.True(t, resp.Ready)

	crop := geometry.Rect{Width: 4, Height: 4}
	resp, err = peer.Send(context.Background(), Message{
		Action:   ActionCropAndDownload,
		Image:    png(t, 8, 8, blue, image.Rectangle{}, blue),
		CropArea: &crop,
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.FileExists(t, resp.File)
}

func TestHTTPPeerStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))
	defer srv.Close()

	_, err := NewHTTPPeer(srv.URL).Send(context.Background(), Message{Action: ActionPing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "418")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.png")
	got, err := FileOutput{Path: path}.Save(context.Background(), "ignored.png", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.FileExists(t, path)
}

func TestDirOutputKeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	out := DirOutput{Dir: dir}
	name := Filename(fixedNow)

	first, err := out.Save(context.Background(), name, []byte("first"))
	require.NoError(t, err)
	second, err := out.Save(context.Background(), name, []byte("second"))
	require.NoError(t, err)
	third, err := out.Save(context.Background(), name, []byte("third"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, name), first)
	assert.Equal(t, filepath.Join(dir, "screenshot_2026-10-14T09-30-05_1.png"), second)
	assert.Equal(t, filepath.Join(dir, "screenshot_2026-10-14T09-30-05_2.png"), third)

	for path, want := range map[string]string{first: "first", second: "second", third: "third"} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}
