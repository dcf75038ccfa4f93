package handlers

import (
	"net/http"

	"github.com/lehigh-university-libraries/pagesnap/internal/agent"
)

// HandleAgent is the HTTP transport for agent messages, so an
// orchestrator in another process can hand over its snapshots.
func (h *Handler) HandleAgent(w http.ResponseWriter, r *http.Request) {
	var msg agent.Message
	if !h.decode(w, r, &msg) {
		return
	}
	h.writeJSON(w, h.agent.Handle(r.Context(), msg))
}
