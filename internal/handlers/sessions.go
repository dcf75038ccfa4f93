package handlers

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/lehigh-university-libraries/pagesnap/internal/models"
	"github.com/lehigh-university-libraries/pagesnap/internal/storage"
)

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessionStore.GetAll()
	sessionList := make([]models.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		sessionList = append(sessionList, session.Info())
	}
	// Newest first.
	sort.Slice(sessionList, func(i, j int) bool {
		return sessionList[i].CreatedAt.After(sessionList[j].CreatedAt)
	})
	h.writeJSON(w, sessionList)
}

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var request struct {
		URL string `json:"url"`
	}
	if !h.decode(w, r, &request) {
		return
	}
	if request.URL == "" {
		h.writeError(w, "url is required", http.StatusBadRequest)
		return
	}

	page, err := h.opener.Open(r.Context(), request.URL)
	if err != nil {
		h.writeError(w, "Failed to open page: "+err.Error(), http.StatusBadGateway)
		return
	}

	session := models.NewCaptureSession(storage.NewID(), request.URL)
	id := session.Info().ID
	h.mu.Lock()
	h.pages[id] = page
	h.mu.Unlock()
	h.sessionStore.Set(id, session)

	slog.Info("Created capture session", "session_id", id, "url", request.URL)
	h.writeJSON(w, session.Info())
}

func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, session.Info())
}

// HandleCancel aborts any running capture and discards the session.
// Capture cleanup still restores the page before the tab is closed.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := h.sessionStore.Take(id)
	if !ok {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return
	}

	// Close before anything else so a confirm racing this request cannot
	// start a capture on the removed session.
	session.Close()
	session.DiscardAnnotations()

	h.mu.Lock()
	page, hasPage := h.pages[id]
	delete(h.pages, id)
	h.mu.Unlock()

	if hasPage {
		// An interrupted capture restores the page before it is closed.
		session.Wait()
		closePage(id, page)
	}

	slog.Info("Canceled capture session", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func closePage(id string, page Page) {
	if err := page.Close(); err != nil {
		slog.Warn("Failed to close page", "session_id", id, "err", err)
	}
}
