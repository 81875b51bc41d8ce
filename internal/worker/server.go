package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.temporal.io/sdk/temporal"

	"example.com/jobinput/internal/metrics"
)

// Orchestrator abstracts how job input workflows are executed. Production
// backs it with TemporalOrchestrator.
type Orchestrator interface {
	GenerateInputs(ctx context.Context, input JobInputWorkflowInput) (JobInputWorkflowResult, error)
	GenerateInputsAsync(ctx context.Context, input JobInputWorkflowInput) (string, error)
}

// Server is the worker's control surface. Schedulers call it to produce the
// inputs of an attempt before launching the attempt's containers.
type Server struct {
	orchestrator Orchestrator
	logger       *slog.Logger
}

func NewServer(orchestrator Orchestrator, logger *slog.Logger) *Server {
	return &Server{orchestrator: orchestrator, logger: logger}
}

// Router configures all worker routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.HTTPMiddleware("worker"))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/worker", func(r chi.Router) {
		r.Post("/jobs/{jobID}/attempts/{attempt}/inputs", s.handleGenerateInputs)
	})
	return r
}

func (s *Server) handleGenerateInputs(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil || jobID <= 0 {
		writeError(w, http.StatusBadRequest, "job id must be a positive integer")
		return
	}
	attempt, err := strconv.Atoi(chi.URLParam(r, "attempt"))
	if err != nil || attempt < 0 {
		writeError(w, http.StatusBadRequest, "attempt must be a non-negative integer")
		return
	}
	check, err := parseBool(r.URL.Query().Get("check"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "check: %v", err)
		return
	}
	async, err := parseBool(r.URL.Query().Get("async"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "async: %v", err)
		return
	}

	input := JobInputWorkflowInput{JobID: jobID, AttemptNumber: attempt, CheckConnection: check}
	if async {
		id, err := s.orchestrator.GenerateInputsAsync(r.Context(), input)
		if err != nil {
			writeError(w, http.StatusBadGateway, "dispatch workflow: %v", err)
			return
		}
		s.logger.Info("job input workflow dispatched", "job_id", jobID, "attempt_number", attempt, "workflow_id", id)
		writeJSON(w, http.StatusAccepted, map[string]any{"workflowId": id})
		return
	}

	result, err := s.orchestrator.GenerateInputs(r.Context(), input)
	if err != nil {
		s.logger.Error("job input workflow failed", "job_id", jobID, "attempt_number", attempt, "workflow_id", result.WorkflowID, "error", err)
		writeError(w, statusFor(err), "generate inputs: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusFor maps the non-retryable activity failures back to client errors.
func statusFor(err error) int {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		switch appErr.Type() {
		case ErrTypeNotFound:
			return http.StatusNotFound
		case ErrTypeValidation:
			return http.StatusBadRequest
		}
	}
	return http.StatusBadGateway
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
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
