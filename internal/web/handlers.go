package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/osversion-ingest/internal/core"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Running           bool            `json:"running"`
	Backend           string          `json:"backend"`
	Table             string          `json:"table"`
	Ingest            bool            `json:"ingest"`
	Force             bool            `json:"force"`
	AllowEmptyReplace bool            `json:"allowEmptyReplace"`
	LastRun           *core.RunResult `json:"lastRun,omitempty"`
}

// RunListResponse is the body of GET /api/runs.
type RunListResponse struct {
	Items []core.RunResult `json:"items"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	opts := s.service.Options()
	resp := StatusResponse{
		Running:           s.service.Running(),
		Backend:           s.cfg.Destination.Backend,
		Table:             opts.Table,
		Ingest:            opts.Ingest,
		Force:             opts.Force,
		AllowEmptyReplace: opts.AllowEmptyReplace,
	}
	if last, ok := s.service.History().Last(); ok {
		resp.LastRun = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, r, errors.New("limit must be a non-negative integer"), http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, RunListResponse{Items: s.service.History().Recent(limit)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, ok := s.service.History().Get(runID)
	if !ok {
		s.respondError(w, r, errors.New("run not found: "+runID), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleTriggerRun executes a manual run and returns its result. Hard run
// failures still return the recorded run, with status 502.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.runContext(r)
	defer cancel()

	run, err := s.service.Run(ctx, core.TriggerManual)
	switch {
	case errors.Is(err, core.ErrRunInProgress):
		s.respondError(w, r, err, http.StatusConflict)
	case err != nil:
		writeJSON(w, http.StatusBadGateway, run)
	default:
		writeJSON(w, http.StatusOK, run)
	}
}
