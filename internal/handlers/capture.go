package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/lehigh-university-libraries/pagesnap/internal/agent"
	"github.com/lehigh-university-libraries/pagesnap/internal/models"
)

// HandleConfirm captures the selection, composes its annotations and
// writes the screenshot. Canceling the session interrupts the capture
// between segments.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	info := session.Info()
	if info.Selection == nil {
		h.writeError(w, errNoSelection.Error(), http.StatusConflict)
		return
	}
	page, ok := h.page(info.ID)
	if !ok {
		h.writeError(w, "Session page is closed", http.StatusGone)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if !session.TryBegin(cancel) {
		h.writeBusy(w, session)
		return
	}
	defer session.End()

	msg := agent.Message{Action: agent.ActionCapture, Selection: info.Selection}
	if ann := session.Annotations(); ann != nil {
		snaps, err := ann.Snapshots()
		if err != nil {
			h.writeError(w, "Failed to snapshot annotations: "+err.Error(), http.StatusInternalServerError)
			return
		}
		msg.Overlays = agent.EncodeOverlays(snaps)
	}

	session.Update(func(info *models.SessionInfo) {
		info.State = models.StateCapturing
		info.Error = ""
	})
	slog.Info("Capturing selection", "session_id", info.ID, "selection", info.Selection.Bounds())

	outcome, err := agent.NewOrchestrator(h.cfg.NewScheduler(page, page), agent.Local{Agent: h.agent}).Handle(ctx, msg)
	if err != nil {
		session.Update(func(info *models.SessionInfo) {
			info.State = models.StateFailed
			info.Error = err.Error()
		})
		h.writeError(w, "Capture failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	session.DiscardAnnotations()
	session.Update(func(info *models.SessionInfo) {
		info.State = models.StateDone
		info.Tool = ""
		info.File = outcome.File
		info.FileURL = "/screenshots/" + filepath.Base(outcome.File)
		info.Segments = len(outcome.Result.Segments)
		info.Retries = outcome.Result.Retries
	})
	h.writeJSON(w, session.Info())
}
