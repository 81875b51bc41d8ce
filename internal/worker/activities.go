package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"example.com/jobinput/internal/jobinput"
	"example.com/jobinput/internal/metrics"
	"example.com/jobinput/internal/models"
)

const (
	GetSyncWorkflowInputActivityName     = "jobinput.get_sync_workflow_input"
	GetCheckConnectionInputsActivityName = "jobinput.get_check_connection_inputs"

	// Application error types the workflow never retries.
	ErrTypeNotFound   = "NotFoundError"
	ErrTypeValidation = "ValidationError"
)

// InputGenerator is implemented by *jobinput.Generator.
type InputGenerator interface {
	GenerateSyncWorkflowInput(ctx context.Context, attemptID int, jobID int64) (models.GeneratedJobInput, error)
	GenerateCheckConnectionInputs(ctx context.Context, attemptID int, jobID int64) (models.SyncJobCheckConnectionInputs, error)
}

type activityRegistry interface {
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// GenerateInputActivities exposes the generator to workflows.
type GenerateInputActivities struct {
	generator InputGenerator
	logger    *slog.Logger
}

func NewGenerateInputActivities(generator InputGenerator, logger *slog.Logger) *GenerateInputActivities {
	return &GenerateInputActivities{generator: generator, logger: logger}
}

// Register adds both activities under their stable names.
func (a *GenerateInputActivities) Register(r activityRegistry) {
	r.RegisterActivityWithOptions(a.GetSyncWorkflowInput, activity.RegisterOptions{Name: GetSyncWorkflowInputActivityName})
	r.RegisterActivityWithOptions(a.GetCheckConnectionInputs, activity.RegisterOptions{Name: GetCheckConnectionInputsActivityName})
}

// GetSyncWorkflowInput resolves the full input of a sync or reset attempt.
func (a *GenerateInputActivities) GetSyncWorkflowInput(ctx context.Context, input SyncInput) (models.GeneratedJobInput, error) {
	start := time.Now()
	out, err := a.generator.GenerateSyncWorkflowInput(ctx, input.AttemptID, input.JobID)
	observe("sync", start, err)
	if err != nil {
		a.logger.Error("activity get sync workflow input failed", "job_id", input.JobID, "attempt_id", input.AttemptID, "error", err)
		return models.GeneratedJobInput{}, toActivityError(err)
	}
	a.logger.Info("activity get sync workflow input", "job_id", input.JobID, "attempt_id", input.AttemptID,
		"source_image", out.SourceLauncherConfig.DockerImage, "destination_image", out.DestinationLauncherConfig.DockerImage)
	return out, nil
}

// GetCheckConnectionInputs resolves the connectivity checks of a sync attempt.
func (a *GenerateInputActivities) GetCheckConnectionInputs(ctx context.Context, input SyncInputWithAttemptNumber) (models.SyncJobCheckConnectionInputs, error) {
	start := time.Now()
	out, err := a.generator.GenerateCheckConnectionInputs(ctx, input.AttemptNumber, input.JobID)
	observe("check_connection", start, err)
	if err != nil {
		a.logger.Error("activity get check connection inputs failed", "job_id", input.JobID, "attempt_number", input.AttemptNumber, "error", err)
		return models.SyncJobCheckConnectionInputs{}, toActivityError(err)
	}
	a.logger.Info("activity get check connection inputs", "job_id", input.JobID, "attempt_number", input.AttemptNumber)
	return out, nil
}

// toActivityError marks errors that a retry cannot fix as non-retryable.
// Everything else goes back to Temporal unchanged.
func toActivityError(err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotFound, err)
	case errors.Is(err, models.ErrValidation):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeValidation, err)
	default:
		return err
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, models.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, models.ErrValidation):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeTransient
	}
}

func observe(operation string, start time.Time, err error) {
	metrics.GenerationLatencySeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	metrics.JobInputsGeneratedTotal.WithLabelValues(operation, outcome(err)).Inc()
}

// InstrumentStateService counts attempt sync config writes.
func InstrumentStateService(s jobinput.StateService) jobinput.StateService {
	return instrumentedStateService{StateService: s}
}

type instrumentedStateService struct {
	jobinput.StateService
}

func (s instrumentedStateService) SaveAttemptSyncConfig(ctx context.Context, req models.SaveAttemptSyncConfigRequest) error {
	err := s.StateService.SaveAttemptSyncConfig(ctx, req)
	metrics.AttemptSyncConfigSavesTotal.WithLabelValues(outcome(err)).Inc()
	return err
}
