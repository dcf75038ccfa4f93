package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lehigh-university-libraries/pagesnap/internal/annotation"
	"github.com/lehigh-university-libraries/pagesnap/internal/config"
	"github.com/lehigh-university-libraries/pagesnap/internal/geometry"
	"github.com/lehigh-university-libraries/pagesnap/internal/models"
)

// HandleSelect turns a drag in page coordinates into the session's
// selection and starts a fresh set of annotation layers for it.
func (h *Handler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	var request struct {
		Start geometry.Point `json:"start"`
		End   geometry.Point `json:"end"`
	}
	if !h.decode(w, r, &request) {
		return
	}

	region, err := geometry.Drag(request.Start, request.End)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !session.TryBegin(nil) {
		h.writeBusy(w, session)
		return
	}
	defer session.End()

	page, ok := h.page(session.Info().ID)
	if !ok {
		h.writeError(w, "Session page is closed", http.StatusGone)
		return
	}
	sel, err := page.Selection(r.Context(), region)
	if err != nil {
		h.writeError(w, "Failed to measure page: "+err.Error(), http.StatusBadGateway)
		return
	}
	if err := sel.Validate(); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	session.Select(sel, annotation.NewSession(sel.LogicalSize(), h.cfg.AnnotationOptions()))
	h.writeJSON(w, session.Info())
}

// HandleTool activates a tool (or none, with an empty name) and
// optionally changes the drawing style.
func (h *Handler) HandleTool(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	ann, ok := h.getAnnotationsOrError(w, session)
	if !ok {
		return
	}
	var request struct {
		Tool      string  `json:"tool"`
		Color     string  `json:"color,omitempty"`
		LineWidth float64 `json:"line_width,omitempty"`
	}
	if !h.decode(w, r, &request) {
		return
	}

	style := annotation.Style{LineWidth: request.LineWidth}
	if request.Color != "" {
		col, err := config.ParseColor(request.Color)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		style.Color = col
	}
	ann.SetStyle(style)

	if request.Tool == "" {
		ann.Deactivate()
	} else {
		kind, err := annotation.ParseKind(request.Tool)
		if err != nil {
			h.writeAnnotationError(w, err)
			return
		}
		if err := ann.Activate(kind); err != nil {
			h.writeAnnotationError(w, err)
			return
		}
	}

	session.Update(func(info *models.SessionInfo) { info.Tool = ann.ActiveTool() })
	h.writeJSON(w, session.Info())
}

// HandleStroke runs one whole gesture on the active tool.
func (h *Handler) HandleStroke(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	ann, ok := h.getAnnotationsOrError(w, session)
	if !ok {
		return
	}
	var request struct {
		Points []geometry.Point `json:"points"`
	}
	if !h.decode(w, r, &request) {
		return
	}
	if len(request.Points) == 0 {
		h.writeError(w, "points are required", http.StatusBadRequest)
		return
	}

	committed, err := ann.Draw(request.Points...)
	if err != nil {
		h.writeAnnotationError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{
		"committed": committed,
		"tool":      ann.ActiveTool(),
		"session":   session.Info(),
	})
}

// HandleUndo reverts the most recent annotation, or the latest one on a
// given layer.
func (h *Handler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	ann, ok := h.getAnnotationsOrError(w, session)
	if !ok {
		return
	}
	var request struct {
		Layer string `json:"layer,omitempty"`
	}
	if r.ContentLength != 0 && !h.decode(w, r, &request) {
		return
	}

	var layer annotation.Kind
	var undone bool
	if request.Layer != "" {
		kind, err := annotation.ParseKind(request.Layer)
		if err != nil {
			h.writeAnnotationError(w, err)
			return
		}
		layer, undone = kind, ann.UndoLayer(kind)
	} else {
		layer, undone = ann.Undo()
	}

	h.writeJSON(w, map[string]any{
		"undone": undone,
		"layer":  layer,
	})
}

// HandleLayer returns one annotation layer as PNG.
func (h *Handler) HandleLayer(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	ann, ok := h.getAnnotationsOrError(w, session)
	if !ok {
		return
	}
	kind, err := annotation.ParseKind(chi.URLParam(r, "tool"))
	if err != nil {
		h.writeAnnotationError(w, err)
		return
	}

	data, err := ann.Snapshot(kind)
	if err != nil {
		h.writeError(w, "Failed to encode layer: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if data == nil {
		h.writeError(w, "Layer not created", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(data); err != nil {
		h.writeError(w, "Failed to write layer", http.StatusInternalServerError)
	}
}

var errNoSelection = errors.New("no region selected")
