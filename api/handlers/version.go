package handlers

import (
	"net/http"
	"time"
)

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status      string     `json:"status"`
	LastRefresh *time.Time `json:"lastRefresh,omitempty"`
}

// GetVersion returns the build info of the running binary.
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Build)
}

// Healthz reports that the process is serving.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz reports ready once the distributor directory has loaded.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Directory.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "loading"})
		return
	}
	last := h.cfg.Directory.LastRefresh().UTC()
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", LastRefresh: &last})
}
