package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// reportError logs a server-side failure and sends it to Sentry.
func (h *Handlers) reportError(r *http.Request, msg string, err error) {
	reqID := middleware.GetReqID(r.Context())
	h.log.Error("api: "+msg, "path", r.URL.Path, "request_id", reqID, "error", err)

	hub := sentry.GetHubFromContext(r.Context())
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("request_id", reqID)
		scope.SetTag("route", msg)
		hub.CaptureException(err)
	})
}
