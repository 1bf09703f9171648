package handler

import (
	"net/http"

	"github.com/yndnr/zonemesh-go/internal/infra/buildinfo"
)

// handleHealth reports that the process is serving.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Peer:    h.node.Name(),
		Version: buildinfo.Version,
	})
}

// handleReady reports 503 until the first membership refresh is applied.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if !h.node.Ready() {
		h.writeError(w, r, http.StatusServiceUnavailable, "ZM-SYS-5030", "membership not loaded yet")
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}
