package worker

import (
	"time"

	"example.com/jobinput/internal/models"
)

// SyncInput is the argument of the sync input activity.
type SyncInput struct {
	AttemptID int   `json:"attemptId"`
	JobID     int64 `json:"jobId"`
}

// SyncInputWithAttemptNumber is the argument of the check connection activity.
type SyncInputWithAttemptNumber struct {
	AttemptNumber int   `json:"attemptNumber"`
	JobID         int64 `json:"jobId"`
}

// JobInputWorkflowInput carries parameters into the Temporal workflow.
type JobInputWorkflowInput struct {
	JobID           int64 `json:"jobId"`
	AttemptNumber   int   `json:"attemptNumber"`
	CheckConnection bool  `json:"checkConnection"`
}

// JobInputWorkflowResult captures the combined workflow output.
type JobInputWorkflowResult struct {
	WorkflowID      string                               `json:"workflowId"`
	RunID           string                               `json:"runId"`
	CheckConnection *models.SyncJobCheckConnectionInputs `json:"checkConnectionInputs,omitempty"`
	GeneratedInput  *models.GeneratedJobInput            `json:"generatedJobInput,omitempty"`
	StartedAt       time.Time                            `json:"startedAt"`
	CompletedAt     time.Time                            `json:"completedAt"`
}
