// Package store persists jobs, connector configuration, connection state, and
// attempt sync configs in SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"example.com/jobinput/internal/database"
)

// Store encapsulates access to the platform configuration database.
type Store struct {
	db *database.DB
}

// NewStore constructs a data access object over an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Init applies the schema. Statements are idempotent so Init runs on every start.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS jobs (
			id %s,
			config_type TEXT NOT NULL,
			scope TEXT NOT NULL,
			config TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`, s.db.Dialect.SerialPrimaryKey()),
		`CREATE INDEX IF NOT EXISTS idx_jobs_scope ON jobs(scope, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS source_definitions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			docker_repository TEXT NOT NULL,
			docker_image_tag TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS destination_definitions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			docker_repository TEXT NOT NULL,
			docker_image_tag TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			definition_id TEXT NOT NULL REFERENCES source_definitions(id),
			name TEXT NOT NULL,
			configuration TEXT NOT NULL,
			tombstone BOOLEAN NOT NULL DEFAULT FALSE
		);`,
		`CREATE TABLE IF NOT EXISTS destinations (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			definition_id TEXT NOT NULL REFERENCES destination_definitions(id),
			name TEXT NOT NULL,
			configuration TEXT NOT NULL,
			tombstone BOOLEAN NOT NULL DEFAULT FALSE
		);`,
		`CREATE TABLE IF NOT EXISTS connections (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_id TEXT NOT NULL REFERENCES sources(id),
			destination_id TEXT NOT NULL REFERENCES destinations(id),
			status TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS connection_states (
			connection_id TEXT PRIMARY KEY,
			state_type TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attempt_sync_configs (
			job_id BIGINT NOT NULL,
			attempt_number INTEGER NOT NULL,
			connection_id TEXT NOT NULL,
			source_configuration TEXT NOT NULL,
			destination_configuration TEXT NOT NULL,
			state TEXT,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (job_id, attempt_number)
		);`,
		`CREATE TABLE IF NOT EXISTS oauth_params (
			id TEXT PRIMARY KEY,
			actor_type TEXT NOT NULL,
			definition_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL DEFAULT '',
			configuration TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (actor_type, definition_id, workspace_id)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullableJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, err := marshalJSON(v)
	if err != nil {
		return nil, err
	}
	if s == "null" {
		return nil, nil
	}
	return s, nil
}

func unmarshalNullable(raw sql.NullString, v any) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), v)
}
