// Package api serves connection state, attempt sync configs, and jobs over
// HTTP so workers can run without direct database access.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"example.com/jobinput/internal/metrics"
	"example.com/jobinput/internal/models"
)

const apiKeyHeader = "X-Api-Key"

// Backend is the persistence the API exposes.
type Backend interface {
	GetState(ctx context.Context, connectionID uuid.UUID) (models.ConnectionState, error)
	SaveState(ctx context.Context, state models.ConnectionState) error
	SaveAttemptSyncConfig(ctx context.Context, req models.SaveAttemptSyncConfigRequest) error
	GetAttemptSyncConfig(ctx context.Context, jobID int64, attemptNumber int) (models.SaveAttemptSyncConfigRequest, error)
	GetJob(ctx context.Context, jobID int64) (models.Job, error)
}

type Server struct {
	backend Backend
	token   string
	logger  *slog.Logger
}

// NewServer builds a server backed by the provided store. An empty token
// disables authentication.
func NewServer(backend Backend, token string, logger *slog.Logger) *Server {
	return &Server{backend: backend, token: token, logger: logger}
}

// Router wires all API routes under a single chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.HTTPMiddleware("api"))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/state/get", s.handleGetState)
		r.Post("/state/create_or_update", s.handleCreateOrUpdateState)
		r.Post("/attempt/save_sync_config", s.handleSaveSyncConfig)
		r.Post("/attempt/get_sync_config", s.handleGetSyncConfig)
		r.Post("/jobs/get", s.handleGetJob)
	})
	return r
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	var req ConnectionIDRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ConnectionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "connectionId required")
		return
	}
	state, err := s.backend.GetState(r.Context(), req.ConnectionID)
	if err != nil {
		s.writeBackendError(w, r, "get state", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleCreateOrUpdateState(w http.ResponseWriter, r *http.Request) {
	var req ConnectionStateCreateOrUpdate
	if !decode(w, r, &req) {
		return
	}
	if req.ConnectionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "connectionId required")
		return
	}
	state := req.ConnectionState
	state.ConnectionID = req.ConnectionID
	switch state.StateType {
	case models.StateTypeLegacy, models.StateTypeStream, models.StateTypeGlobal, models.StateTypeNotSet:
	default:
		writeError(w, http.StatusBadRequest, "unknown stateType %q", state.StateType)
		return
	}
	if err := s.backend.SaveState(r.Context(), state); err != nil {
		s.writeBackendError(w, r, "save state", err)
		return
	}
	s.logger.Info("connection state updated", "connection_id", state.ConnectionID, "state_type", state.StateType)
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSaveSyncConfig(w http.ResponseWriter, r *http.Request) {
	var req models.SaveAttemptSyncConfigRequest
	if !decode(w, r, &req) {
		return
	}
	if req.JobID <= 0 || req.AttemptNumber < 0 || req.ConnectionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "jobId, attemptNumber, and connectionId are required")
		return
	}
	if err := s.backend.SaveAttemptSyncConfig(r.Context(), req); err != nil {
		s.writeBackendError(w, r, "save attempt sync config", err)
		return
	}
	s.logger.Info("attempt sync config saved", "job_id", req.JobID, "attempt_number", req.AttemptNumber, "connection_id", req.ConnectionID)
	writeJSON(w, http.StatusOK, InternalOperationResult{Succeeded: true})
}

func (s *Server) handleGetSyncConfig(w http.ResponseWriter, r *http.Request) {
	var req AttemptRequest
	if !decode(w, r, &req) {
		return
	}
	saved, err := s.backend.GetAttemptSyncConfig(r.Context(), req.JobID, req.AttemptNumber)
	if err != nil {
		s.writeBackendError(w, r, "get attempt sync config", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	var req JobIDRequest
	if !decode(w, r, &req) {
		return
	}
	job, err := s.backend.GetJob(r.Context(), req.ID)
	if err != nil {
		s.writeBackendError(w, r, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{Job: job, Config: job.Config})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := strings.TrimSpace(r.Header.Get(apiKeyHeader))
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing %s header", apiKeyHeader)
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeBackendError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "%v", err)
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, "%v", err)
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "op", op, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "%s: %v", op, err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": strings.TrimSpace(fmt.Sprintf(format, args...)),
			"status":  status,
		},
	})
}
