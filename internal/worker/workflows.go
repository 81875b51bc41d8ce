package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	temporalworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"example.com/jobinput/internal/models"
)

const JobInputWorkflowName = "jobinput.generate"

// JobInputWorkflow runs the connection checks input activity first when asked
// to, then the sync input activity, so every attempt input flows through
// Temporal's retry and history.
func JobInputWorkflow(ctx workflow.Context, input JobInputWorkflowInput) (JobInputWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	if input.JobID <= 0 {
		return JobInputWorkflowResult{}, errors.New("job_id required")
	}
	options := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        5,
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			NonRetryableErrorTypes: []string{ErrTypeNotFound, ErrTypeValidation},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, options)

	result := JobInputWorkflowResult{StartedAt: workflow.Now(ctx)}
	logger.Info("job input workflow started", "job_id", input.JobID, "attempt_number", input.AttemptNumber, "check_connection", input.CheckConnection)

	if input.CheckConnection {
		var checks models.SyncJobCheckConnectionInputs
		err := workflow.ExecuteActivity(ctx, GetCheckConnectionInputsActivityName, SyncInputWithAttemptNumber{
			AttemptNumber: input.AttemptNumber,
			JobID:         input.JobID,
		}).Get(ctx, &checks)
		if err != nil {
			logger.Error("check connection inputs activity failed", "error", err)
			return result, err
		}
		result.CheckConnection = &checks
	}

	var generated models.GeneratedJobInput
	err := workflow.ExecuteActivity(ctx, GetSyncWorkflowInputActivityName, SyncInput{
		AttemptID: input.AttemptNumber,
		JobID:     input.JobID,
	}).Get(ctx, &generated)
	if err != nil {
		logger.Error("sync workflow input activity failed", "error", err)
		return result, err
	}
	result.GeneratedInput = &generated

	result.CompletedAt = workflow.Now(ctx)
	logger.Info("job input workflow finished", "job_id", input.JobID, "attempt_number", input.AttemptNumber)
	return result, nil
}

// RegisterJobInputWorker wires up the Temporal worker consuming taskQueue.
func RegisterJobInputWorker(c client.Client, taskQueue string, generator InputGenerator, logger *slog.Logger) temporalworker.Worker {
	w := temporalworker.New(c, taskQueue, temporalworker.Options{})
	w.RegisterWorkflowWithOptions(JobInputWorkflow, workflow.RegisterOptions{Name: JobInputWorkflowName})
	NewGenerateInputActivities(generator, logger.With("component", "jobinput.activities")).Register(w)
	return w
}

// WorkflowID is deterministic per attempt so a second trigger for the same
// attempt attaches to the running workflow instead of starting another.
func WorkflowID(jobID int64, attemptNumber int) string {
	return fmt.Sprintf("job-input-%d-%d", jobID, attemptNumber)
}

// TemporalOrchestrator starts job input workflows through the Temporal client.
type TemporalOrchestrator struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

func NewTemporalOrchestrator(c client.Client, taskQueue string, logger *slog.Logger) *TemporalOrchestrator {
	return &TemporalOrchestrator{client: c, taskQueue: taskQueue, logger: logger.With("component", "jobinput.orchestrator")}
}

func (o *TemporalOrchestrator) startOptions(input JobInputWorkflowInput) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:                       WorkflowID(input.JobID, input.AttemptNumber),
		TaskQueue:                o.taskQueue,
		WorkflowIDReusePolicy:    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: enums.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
		WorkflowExecutionTimeout: 15 * time.Minute,
	}
}

// GenerateInputs runs the workflow and waits for its result.
func (o *TemporalOrchestrator) GenerateInputs(ctx context.Context, input JobInputWorkflowInput) (JobInputWorkflowResult, error) {
	we, err := o.client.ExecuteWorkflow(ctx, o.startOptions(input), JobInputWorkflowName, input)
	if err != nil {
		o.logger.Error("start workflow failed", "job_id", input.JobID, "attempt_number", input.AttemptNumber, "error", err)
		return JobInputWorkflowResult{}, err
	}
	var result JobInputWorkflowResult
	if err := we.Get(ctx, &result); err != nil {
		o.logger.Error("wait workflow failed", "workflow_id", we.GetID(), "error", err)
		result.WorkflowID = we.GetID()
		result.RunID = we.GetRunID()
		return result, err
	}
	result.WorkflowID = we.GetID()
	result.RunID = we.GetRunID()
	o.logger.Info("workflow completed", "workflow_id", result.WorkflowID, "run_id", result.RunID, "job_id", input.JobID, "attempt_number", input.AttemptNumber)
	return result, nil
}

// GenerateInputsAsync starts the workflow and returns its id.
func (o *TemporalOrchestrator) GenerateInputsAsync(ctx context.Context, input JobInputWorkflowInput) (string, error) {
	we, err := o.client.ExecuteWorkflow(ctx, o.startOptions(input), JobInputWorkflowName, input)
	if err != nil {
		o.logger.Error("start workflow async failed", "job_id", input.JobID, "attempt_number", input.AttemptNumber, "error", err)
		return "", err
	}
	o.logger.Info("workflow dispatched", "workflow_id", we.GetID(), "run_id", we.GetRunID(), "job_id", input.JobID)
	return we.GetID(), nil
}
