package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// HandleScreenshot serves a finished screenshot from the output directory.
func (h *Handler) HandleScreenshot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	// Prevent directory traversal attacks
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}
	if !strings.HasSuffix(name, ".png") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, filepath.Join(h.cfg.OutputDir, name))
}
