package web

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/osversion-ingest/internal/core"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondError logs err with request context and writes a JSON error body.
// Ingest failures carry their core.MapError code; request errors carry none.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	info := core.MapError(err)
	code := info.Code
	if code == "ERR000" {
		code = ""
	}

	slog.Warn("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeJSON(w, statusCode, ErrorResponse{Error: err.Error(), Code: code})
}
