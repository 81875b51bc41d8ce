package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"example.com/jobinput/internal/models"
)

type fakeOrchestrator struct {
	inputs []JobInputWorkflowInput
	err    error
}

func (f *fakeOrchestrator) GenerateInputs(_ context.Context, input JobInputWorkflowInput) (JobInputWorkflowResult, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return JobInputWorkflowResult{WorkflowID: WorkflowID(input.JobID, input.AttemptNumber)}, f.err
	}
	return JobInputWorkflowResult{
		WorkflowID:     WorkflowID(input.JobID, input.AttemptNumber),
		RunID:          "run-1",
		GeneratedInput: &models.GeneratedJobInput{JobRunConfig: models.JobRunConfig{JobID: "7", AttemptID: int64(input.AttemptNumber)}},
	}, nil
}

func (f *fakeOrchestrator) GenerateInputsAsync(_ context.Context, input JobInputWorkflowInput) (string, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return "", f.err
	}
	return WorkflowID(input.JobID, input.AttemptNumber), nil
}

func doRequest(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGenerateInputsEndpoint(t *testing.T) {
	orch := &fakeOrchestrator{}
	h := NewServer(orch, discardLogger()).Router()

	rec := doRequest(t, h, "/worker/jobs/7/attempts/2/inputs?check=true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result JobInputWorkflowResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "job-input-7-2", result.WorkflowID)
	require.NotNil(t, result.GeneratedInput)
	assert.Equal(t, "7", result.GeneratedInput.JobRunConfig.JobID)
	assert.Equal(t, []JobInputWorkflowInput{{JobID: 7, AttemptNumber: 2, CheckConnection: true}}, orch.inputs)
}

func TestGenerateInputsAsync(t *testing.T) {
	orch := &fakeOrchestrator{}
	h := NewServer(orch, discardLogger()).Router()

	rec := doRequest(t, h, "/worker/jobs/7/attempts/0/inputs?async=1")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"workflowId":"job-input-7-0"}`, rec.Body.String())
}

func TestGenerateInputsBadParams(t *testing.T) {
	h := NewServer(&fakeOrchestrator{}, discardLogger()).Router()
	for _, path := range []string{
		"/worker/jobs/abc/attempts/1/inputs",
		"/worker/jobs/0/attempts/1/inputs",
		"/worker/jobs/1/attempts/-1/inputs",
		"/worker/jobs/1/attempts/1/inputs?check=maybe",
		"/worker/jobs/1/attempts/1/inputs?async=later",
	} {
		rec := doRequest(t, h, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestGenerateInputsErrorStatus(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"not found":  {err: temporal.NewNonRetryableApplicationError("job 7 not found", ErrTypeNotFound, nil), status: http.StatusNotFound},
		"validation": {err: temporal.NewNonRetryableApplicationError("bad job", ErrTypeValidation, nil), status: http.StatusBadRequest},
		"other":      {err: errors.New("frontend unavailable"), status: http.StatusBadGateway},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := NewServer(&fakeOrchestrator{err: tc.err}, discardLogger()).Router()
			rec := doRequest(t, h, "/worker/jobs/7/attempts/1/inputs")
			assert.Equal(t, tc.status, rec.Code)

			var body struct {
				Error struct {
					Message string `json:"message"`
					Status  int    `json:"status"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.status, body.Error.Status)
			assert.Contains(t, body.Error.Message, "generate inputs")
		})
	}
}

func TestWorkerHealthz(t *testing.T) {
	h := NewServer(&fakeOrchestrator{}, discardLogger()).Router()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
