package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lehigh-university-libraries/pagesnap/internal/agent"
	"github.com/lehigh-university-libraries/pagesnap/internal/annotation"
	"github.com/lehigh-university-libraries/pagesnap/internal/browser"
	"github.com/lehigh-university-libraries/pagesnap/internal/capture"
	"github.com/lehigh-university-libraries/pagesnap/internal/config"
	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
	"github.com/lehigh-university-libraries/pagesnap/internal/models"
	"github.com/lehigh-university-libraries/pagesnap/internal/storage"
)

// Page is an open page a session captures from.
type Page interface {
	capture.Host
	capture.DOM
	Selection(ctx context.Context, region geometry.Rect) (geometry.Selection, error)
	Close() error
}

// PageOpener opens pages for new sessions.
type PageOpener interface {
	Open(ctx context.Context, url string) (Page, error)
}

// BrowserOpener opens pages as Rod tabs.
type BrowserOpener struct {
	Manager *browser.Manager
}

func (b BrowserOpener) Open(ctx context.Context, url string) (Page, error) {
	tab, err := b.Manager.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	return tab, nil
}

type Handler struct {
	sessionStore *storage.SessionStore
	opener       PageOpener
	agent        *agent.Agent
	cfg          *config.Config

	mu    sync.Mutex
	pages map[string]Page
}

func New(cfg *config.Config, opener PageOpener) *Handler {
	return &Handler{
		sessionStore: storage.New(),
		opener:       opener,
		agent:        agent.New(agent.DirOutput{Dir: cfg.OutputDir}),
		cfg:          cfg,
		pages:        make(map[string]Page),
	}
}

// Routes builds the HTTP API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.HandleSessions)
		r.Post("/", h.HandleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleSessionDetail)
			r.Delete("/", h.HandleCancel)
			r.Post("/select", h.HandleSelect)
			r.Post("/tool", h.HandleTool)
			r.Post("/strokes", h.HandleStroke)
			r.Post("/undo", h.HandleUndo)
			r.Get("/layers/{tool}", h.HandleLayer)
			r.Post("/confirm", h.HandleConfirm)
		})
	})

	r.Post("/api/agent", h.HandleAgent)
	r.Get("/screenshots/{name}", h.HandleScreenshot)

	return r
}

// Close releases every open page.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, page := range h.pages {
		if err := page.Close(); err != nil {
			slog.Warn("Failed to close page", "session_id", id, "err", err)
		}
		delete(h.pages, id)
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

func (h *Handler) writeAnnotationError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, annotation.ErrUnknownTool):
		code = http.StatusBadRequest
	case errors.Is(err, annotation.ErrNoActiveTool), errors.Is(err, annotation.ErrSessionClosed):
		code = http.StatusConflict
	}
	h.writeError(w, err.Error(), code)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, r *http.Request) (*models.CaptureSession, bool) {
	session, exists := h.sessionStore.Get(chi.URLParam(r, "id"))
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}

// writeBusy answers a refused TryBegin.
func (h *Handler) writeBusy(w http.ResponseWriter, session *models.CaptureSession) {
	if session.Closed() {
		h.writeError(w, "Session was canceled", http.StatusGone)
		return
	}
	h.writeError(w, "Capture already in progress", http.StatusConflict)
}

func (h *Handler) getAnnotationsOrError(w http.ResponseWriter, session *models.CaptureSession) (*annotation.Session, bool) {
	ann := session.Annotations()
	if ann == nil {
		h.writeError(w, "No region selected", http.StatusConflict)
		return nil, false
	}
	return ann, true
}

func (h *Handler) page(id string) (Page, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	page, ok := h.pages[id]
	return page, ok
}
