package api

import (
	"github.com/google/uuid"

	"example.com/jobinput/internal/models"
)

// ConnectionIDRequest is the body of POST /api/v1/state/get.
type ConnectionIDRequest struct {
	ConnectionID uuid.UUID `json:"connectionId"`
}

// ConnectionStateCreateOrUpdate is the body of POST /api/v1/state/create_or_update.
type ConnectionStateCreateOrUpdate struct {
	ConnectionID    uuid.UUID              `json:"connectionId"`
	ConnectionState models.ConnectionState `json:"connectionState"`
}

// AttemptRequest identifies one attempt of a job.
type AttemptRequest struct {
	JobID         int64 `json:"jobId"`
	AttemptNumber int   `json:"attemptNumber"`
}

type JobIDRequest struct {
	ID int64 `json:"id"`
}

// JobResponse carries the job record next to its typed configuration, which
// the record itself does not serialise.
type JobResponse struct {
	Job    models.Job           `json:"job"`
	Config models.JobTypeConfig `json:"config,omitempty"`
}

// InternalOperationResult acknowledges writes.
type InternalOperationResult struct {
	Succeeded bool `json:"succeeded"`
}

// ErrorBody is the envelope every non-2xx response carries.
type ErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"error"`
}
