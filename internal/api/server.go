// Package api exposes the rollout controller over HTTP/JSON: start, status,
// and cancel operations plus health and Prometheus metrics endpoints.
// Callers only ever see terminal outcomes and machine-readable rejection
// reasons, never raw infrastructure errors.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/systmms/canaryctl/internal/config"
	"github.com/systmms/canaryctl/internal/logging"
	"github.com/systmms/canaryctl/internal/rollout"
	"github.com/systmms/canaryctl/internal/storage"
)

// Server handles the HTTP API.
type Server struct {
	controller *rollout.Controller
	archive    storage.Archive
	logger     *logging.Logger
	mux        *http.ServeMux
}

// NewServer creates the API server. The archive may be nil when archival
// is disabled; history lookups then only cover in-memory rollouts.
func NewServer(controller *rollout.Controller, archive storage.Archive, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		controller: controller,
		archive:    archive,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/rollouts", s.handleStart)
	s.mux.HandleFunc("GET /v1/rollouts", s.handleList)
	s.mux.HandleFunc("GET /v1/rollouts/{id}", s.handleStatus)
	s.mux.HandleFunc("DELETE /v1/rollouts/{id}", s.handleCancel)
	s.mux.HandleFunc("GET /v1/history", s.handleHistory)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// startResponse is returned when a rollout is accepted.
type startResponse struct {
	ID string `json:"id"`
}

// errorResponse carries a machine-readable rejection.
type errorResponse struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var doc config.RolloutDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		s.writeError(w, http.StatusBadRequest, string(rollout.ReasonInvalidSpec), "invalid JSON body: "+err.Error())
		return
	}

	if err := config.ValidateRolloutSchema(doc); err != nil {
		s.writeError(w, http.StatusBadRequest, string(rollout.ReasonInvalidSpec), err.Error())
		return
	}
	spec, err := doc.ToSpec()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, string(rollout.ReasonInvalidSpec), err.Error())
		return
	}

	// The rollout outlives this request: detach its context so the request
	// ending does not cancel the run loop.
	id, err := s.controller.Start(context.WithoutCancel(r.Context()), spec)
	if err != nil {
		s.writeRejection(w, err)
		return
	}

	s.logger.Info("Accepted rollout %s for %s", id, spec.Service)
	s.writeJSON(w, http.StatusCreated, startResponse{ID: id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap, err := s.controller.Status(id)
	if err == nil {
		s.writeJSON(w, http.StatusOK, snap)
		return
	}

	// Fall back to the archive for rollouts from previous runs.
	if s.archive != nil {
		if archived, archiveErr := s.archive.Get(id); archiveErr == nil {
			s.writeJSON(w, http.StatusOK, archived)
			return
		}
	}

	s.writeError(w, http.StatusNotFound, "not-found", "no rollout with id "+id)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := s.controller.Cancel(id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case err == rollout.ErrNotFound:
		s.writeError(w, http.StatusNotFound, "not-found", "no rollout with id "+id)
	default:
		s.writeRejection(w, err)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.controller.List())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeJSON(w, http.StatusOK, []rollout.Snapshot{})
		return
	}

	service := r.URL.Query().Get("service")
	history, err := s.archive.History(service, 50)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "archive-error", err.Error())
		return
	}
	if history == nil {
		history = []rollout.Snapshot{}
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"active_rollouts": s.controller.ActiveCount(),
	})
}

// writeRejection maps controller rejections onto HTTP statuses.
func (s *Server) writeRejection(w http.ResponseWriter, err error) {
	reason, ok := rollout.IsRejected(err)
	if !ok {
		// Controller errors are always rejections; anything else is a bug.
		s.logger.Error("Unexpected controller error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	status := http.StatusConflict
	if reason == rollout.ReasonInvalidSpec {
		status = http.StatusBadRequest
	}
	s.writeError(w, status, string(reason), err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, reason, message string) {
	s.writeJSON(w, status, errorResponse{Reason: reason, Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("Failed to encode response: %v", err)
	}
}
