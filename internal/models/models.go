package models

import (
	"sync"
	"time"

	"github.com/lehigh-university-libraries/pagesnap/internal/annotation"
	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
)

// SessionState is where a capture session is in its lifecycle.
type SessionState string

const (
	StateSelecting  SessionState = "selecting"
	StateAnnotating SessionState = "annotating"
	StateCapturing  SessionState = "capturing"
	StateDone       SessionState = "done"
	StateFailed     SessionState = "failed"
)

// SessionInfo is the serialisable state of a capture session.
type SessionInfo struct {
	ID        string              `json:"id"`
	URL       string              `json:"url"`
	State     SessionState        `json:"state"`
	Selection *geometry.Selection `json:"selection,omitempty"`
	Tool      annotation.Kind     `json:"tool,omitempty"`
	Layers    []LayerInfo         `json:"layers,omitempty"`
	File      string              `json:"file,omitempty"`
	FileURL   string              `json:"file_url,omitempty"`
	Segments  int                 `json:"segments,omitempty"`
	Retries   int                 `json:"retries,omitempty"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// LayerInfo summarises one annotation layer.
type LayerInfo struct {
	Tool    annotation.Kind `json:"tool"`
	History int             `json:"history"`
	Active  bool            `json:"active"`
}

// CaptureSession represents one page being captured: the selection, its
// annotation layers and the outcome.
type CaptureSession struct {
	mu          sync.RWMutex
	info        SessionInfo
	annotations *annotation.Session

	busy     sync.Mutex
	cancelMu sync.Mutex
	cancel   func()
	closed   bool
}

// NewCaptureSession creates a session waiting for a selection.
func NewCaptureSession(id, url string) *CaptureSession {
	now := time.Now()
	return &CaptureSession{info: SessionInfo{
		ID:        id,
		URL:       url,
		State:     StateSelecting,
		CreatedAt: now,
		UpdatedAt: now,
	}}
}

// Info returns a copy of the session state, including layer summaries.
func (s *CaptureSession) Info() SessionInfo {
	s.mu.RLock()
	info := s.info
	ann := s.annotations
	s.mu.RUnlock()

	if ann != nil {
		for _, l := range ann.LayerStates() {
			info.Layers = append(info.Layers, LayerInfo{Tool: l.Kind, History: l.History, Active: l.Active})
		}
	}
	return info
}

// Update changes the session state under its lock.
func (s *CaptureSession) Update(fn func(info *SessionInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.info)
	s.info.UpdatedAt = time.Now()
}

// Annotations returns the annotation session, nil before a selection.
func (s *CaptureSession) Annotations() *annotation.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.annotations
}

// Select records the selection and replaces any previous annotations.
func (s *CaptureSession) Select(sel geometry.Selection, ann *annotation.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.annotations != nil {
		s.annotations.Close()
	}
	s.annotations = ann
	s.info.Selection = &sel
	s.info.State = StateAnnotating
	s.info.Tool = ""
	s.info.UpdatedAt = time.Now()
}

// DiscardAnnotations closes the annotation layers.
func (s *CaptureSession) DiscardAnnotations() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.annotations != nil {
		s.annotations.Close()
		s.annotations = nil
	}
}

// TryBegin claims the session for a capture. Only one capture runs at a
// time; it returns false while another is in progress or after Close.
func (s *CaptureSession) TryBegin(cancel func()) bool {
	if !s.busy.TryLock() {
		return false
	}
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.closed {
		s.busy.Unlock()
		return false
	}
	s.cancel = cancel
	return true
}

// End releases the session after TryBegin.
func (s *CaptureSession) End() {
	s.cancelMu.Lock()
	s.cancel = nil
	s.cancelMu.Unlock()
	s.busy.Unlock()
}

// Wait blocks until no capture is running.
func (s *CaptureSession) Wait() {
	s.busy.Lock()
	defer s.busy.Unlock()
}

// Close aborts the running capture and refuses any later TryBegin.
func (s *CaptureSession) Close() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Closed reports whether Close was called.
func (s *CaptureSession) Closed() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	return s.closed
}

// Cancel aborts the running capture, if any.
func (s *CaptureSession) Cancel() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
