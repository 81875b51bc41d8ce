package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"example.com/jobinput/internal/models"
)

// CreateJob records a pending job for the given scope and returns it with its assigned id.
func (s *Store) CreateJob(ctx context.Context, scope string, cfg models.JobTypeConfig) (models.Job, error) {
	configType, payload, err := models.EncodeJobConfig(cfg)
	if err != nil {
		return models.Job{}, fmt.Errorf("encode job config: %w", err)
	}
	now := time.Now().UTC()
	job := models.Job{
		ConfigType: configType,
		Scope:      scope,
		Config:     cfg,
		Status:     models.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO jobs(config_type, scope, config, status, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?) RETURNING id`,
		string(configType), scope, string(payload), string(job.Status), now, now,
	).Scan(&job.ID)
	if err != nil {
		return models.Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// GetJob loads a job and decodes its configuration payload.
func (s *Store) GetJob(ctx context.Context, jobID int64) (models.Job, error) {
	var (
		job        models.Job
		configType string
		status     string
		payload    sql.NullString
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, config_type, scope, config, status, created_at, updated_at
		 FROM jobs WHERE id = ?`, jobID)
	if err := row.Scan(&job.ID, &configType, &job.Scope, &payload, &status, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Job{}, models.NotFound("job", jobID)
		}
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	job.ConfigType = models.ConfigType(configType)
	job.Status = models.JobStatus(status)

	cfg, err := models.DecodeJobConfig(job.ConfigType, []byte(payload.String))
	if err != nil {
		return models.Job{}, fmt.Errorf("job %d: %w", jobID, err)
	}
	job.Config = cfg
	return job, nil
}
