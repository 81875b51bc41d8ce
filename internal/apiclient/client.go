// Package apiclient talks to the config API on behalf of workers whose
// connection state is owned by the API server. Jobs and connector configs are
// still read from the worker's own database.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/jobinput/internal/api"
	"example.com/jobinput/internal/models"
)

// Client captures the HTTP calls a worker issues toward the config API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New configures a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) GetState(ctx context.Context, connectionID uuid.UUID) (models.ConnectionState, error) {
	var state models.ConnectionState
	if err := c.post(ctx, "/api/v1/state/get", api.ConnectionIDRequest{ConnectionID: connectionID}, &state); err != nil {
		return models.ConnectionState{}, fmt.Errorf("get state: %w", err)
	}
	if state.StateType == "" {
		state = models.NotSetState(connectionID)
	}
	return state, nil
}

func (c *Client) SaveAttemptSyncConfig(ctx context.Context, req models.SaveAttemptSyncConfigRequest) error {
	var result api.InternalOperationResult
	if err := c.post(ctx, "/api/v1/attempt/save_sync_config", req, &result); err != nil {
		return fmt.Errorf("save attempt sync config: %w", err)
	}
	if !result.Succeeded {
		return fmt.Errorf("save attempt sync config for job %d attempt %d was not acknowledged", req.JobID, req.AttemptNumber)
	}
	return nil
}

func (c *Client) GetAttemptSyncConfig(ctx context.Context, jobID int64, attemptNumber int) (models.SaveAttemptSyncConfigRequest, error) {
	var saved models.SaveAttemptSyncConfigRequest
	if err := c.post(ctx, "/api/v1/attempt/get_sync_config", api.AttemptRequest{JobID: jobID, AttemptNumber: attemptNumber}, &saved); err != nil {
		return models.SaveAttemptSyncConfigRequest{}, fmt.Errorf("get attempt sync config: %w", err)
	}
	return saved, nil
}

// post sends body as JSON and decodes a 200 response into out. 404 maps to
// models.ErrNotFound and 400 to models.ErrValidation; other statuses are
// returned as plain errors so callers treat them as transient.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Api-Key", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := errorMessage(resp)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", msg, models.ErrNotFound)
		case http.StatusBadRequest:
			return models.Invalidf("%s", msg)
		default:
			return fmt.Errorf("config api responded with %s: %s", resp.Status, msg)
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body api.ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return resp.Status
}
