package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/jobinput/internal/models"
)

// GetState returns the last committed state of a connection. A connection that
// never committed reports StateTypeNotSet.
func (s *Store) GetState(ctx context.Context, connectionID uuid.UUID) (models.ConnectionState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM connection_states WHERE connection_id = ?`, connectionID.String()).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.NotSetState(connectionID), nil
		}
		return models.ConnectionState{}, fmt.Errorf("get state: %w", err)
	}
	var state models.ConnectionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return models.ConnectionState{}, fmt.Errorf("decode state: %w", err)
	}
	state.ConnectionID = connectionID
	return state, nil
}

// SaveState replaces the committed state of a connection.
func (s *Store) SaveState(ctx context.Context, state models.ConnectionState) error {
	if state.StateType == "" {
		state.StateType = models.StateTypeNotSet
	}
	raw, err := marshalJSON(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO connection_states(connection_id, state_type, state, updated_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(connection_id) DO UPDATE SET state_type = excluded.state_type,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		state.ConnectionID.String(), string(state.StateType), raw, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// SaveAttemptSyncConfig upserts the resolved configuration of one attempt. Saving
// the same (job, attempt) again overwrites the previous row.
func (s *Store) SaveAttemptSyncConfig(ctx context.Context, req models.SaveAttemptSyncConfigRequest) error {
	srcCfg, err := marshalJSON(req.SyncConfig.SourceConfiguration.Clone())
	if err != nil {
		return fmt.Errorf("marshal source configuration: %w", err)
	}
	dstCfg, err := marshalJSON(req.SyncConfig.DestinationConfiguration.Clone())
	if err != nil {
		return fmt.Errorf("marshal destination configuration: %w", err)
	}
	state, err := nullableJSON(req.SyncConfig.State)
	if err != nil {
		return fmt.Errorf("marshal attempt state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attempt_sync_configs(job_id, attempt_number, connection_id, source_configuration, destination_configuration, state, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id, attempt_number) DO UPDATE SET connection_id = excluded.connection_id,
			source_configuration = excluded.source_configuration,
			destination_configuration = excluded.destination_configuration,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		req.JobID, req.AttemptNumber, req.ConnectionID.String(), srcCfg, dstCfg, state, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save attempt sync config: %w", err)
	}
	return nil
}

// GetAttemptSyncConfig reads back what an attempt was started with.
func (s *Store) GetAttemptSyncConfig(ctx context.Context, jobID int64, attemptNumber int) (models.SaveAttemptSyncConfigRequest, error) {
	var (
		req    = models.SaveAttemptSyncConfigRequest{JobID: jobID, AttemptNumber: attemptNumber}
		srcCfg string
		dstCfg string
		state  sql.NullString
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT connection_id, source_configuration, destination_configuration, state
		 FROM attempt_sync_configs WHERE job_id = ? AND attempt_number = ?`, jobID, attemptNumber)
	if err := row.Scan(&req.ConnectionID, &srcCfg, &dstCfg, &state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SaveAttemptSyncConfigRequest{}, models.NotFound("attempt sync config", fmt.Sprintf("%d/%d", jobID, attemptNumber))
		}
		return models.SaveAttemptSyncConfigRequest{}, fmt.Errorf("get attempt sync config: %w", err)
	}
	if err := json.Unmarshal([]byte(srcCfg), &req.SyncConfig.SourceConfiguration); err != nil {
		return models.SaveAttemptSyncConfigRequest{}, fmt.Errorf("decode source configuration: %w", err)
	}
	if err := json.Unmarshal([]byte(dstCfg), &req.SyncConfig.DestinationConfiguration); err != nil {
		return models.SaveAttemptSyncConfigRequest{}, fmt.Errorf("decode destination configuration: %w", err)
	}
	if state.Valid {
		req.SyncConfig.State = &models.State{}
		if err := unmarshalNullable(state, req.SyncConfig.State); err != nil {
			return models.SaveAttemptSyncConfigRequest{}, fmt.Errorf("decode attempt state: %w", err)
		}
	}
	return req, nil
}
