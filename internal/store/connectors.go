package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"example.com/jobinput/internal/models"
)

func (s *Store) UpsertSourceDefinition(ctx context.Context, def models.StandardSourceDefinition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_definitions(id, name, docker_repository, docker_image_tag)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			docker_repository = excluded.docker_repository,
			docker_image_tag = excluded.docker_image_tag`,
		def.SourceDefinitionID.String(), def.Name, def.DockerRepository, def.DockerImageTag,
	)
	if err != nil {
		return fmt.Errorf("upsert source definition: %w", err)
	}
	return nil
}

func (s *Store) UpsertDestinationDefinition(ctx context.Context, def models.StandardDestinationDefinition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO destination_definitions(id, name, docker_repository, docker_image_tag)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			docker_repository = excluded.docker_repository,
			docker_image_tag = excluded.docker_image_tag`,
		def.DestinationDefinitionID.String(), def.Name, def.DockerRepository, def.DockerImageTag,
	)
	if err != nil {
		return fmt.Errorf("upsert destination definition: %w", err)
	}
	return nil
}

func (s *Store) UpsertSource(ctx context.Context, src models.SourceConnection) error {
	cfg, err := marshalJSON(src.Configuration.Clone())
	if err != nil {
		return fmt.Errorf("marshal source configuration: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sources(id, workspace_id, definition_id, name, configuration, tombstone)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET workspace_id = excluded.workspace_id,
			definition_id = excluded.definition_id,
			name = excluded.name,
			configuration = excluded.configuration,
			tombstone = excluded.tombstone`,
		src.SourceID.String(), src.WorkspaceID.String(), src.SourceDefinitionID.String(), src.Name, cfg, src.Tombstone,
	)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

func (s *Store) UpsertDestination(ctx context.Context, dst models.DestinationConnection) error {
	cfg, err := marshalJSON(dst.Configuration.Clone())
	if err != nil {
		return fmt.Errorf("marshal destination configuration: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO destinations(id, workspace_id, definition_id, name, configuration, tombstone)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET workspace_id = excluded.workspace_id,
			definition_id = excluded.definition_id,
			name = excluded.name,
			configuration = excluded.configuration,
			tombstone = excluded.tombstone`,
		dst.DestinationID.String(), dst.WorkspaceID.String(), dst.DestinationDefinitionID.String(), dst.Name, cfg, dst.Tombstone,
	)
	if err != nil {
		return fmt.Errorf("upsert destination: %w", err)
	}
	return nil
}

func (s *Store) UpsertConnection(ctx context.Context, sync models.StandardSync) error {
	status := sync.Status
	if status == "" {
		status = "active"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO connections(id, name, source_id, destination_id, status)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			source_id = excluded.source_id,
			destination_id = excluded.destination_id,
			status = excluded.status`,
		sync.ConnectionID.String(), sync.Name, sync.SourceID.String(), sync.DestinationID.String(), status,
	)
	if err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}

// GetStandardSync resolves a connection to its source and destination ids.
func (s *Store) GetStandardSync(ctx context.Context, connectionID uuid.UUID) (models.StandardSync, error) {
	var sync models.StandardSync
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, source_id, destination_id, status FROM connections WHERE id = ?`,
		connectionID.String())
	if err := row.Scan(&sync.ConnectionID, &sync.Name, &sync.SourceID, &sync.DestinationID, &sync.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.StandardSync{}, models.NotFound("connection", connectionID)
		}
		return models.StandardSync{}, fmt.Errorf("get connection: %w", err)
	}
	return sync, nil
}

func (s *Store) GetSourceConnection(ctx context.Context, sourceID uuid.UUID) (models.SourceConnection, error) {
	var (
		src models.SourceConnection
		cfg string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, definition_id, name, configuration, tombstone FROM sources WHERE id = ?`,
		sourceID.String())
	if err := row.Scan(&src.SourceID, &src.WorkspaceID, &src.SourceDefinitionID, &src.Name, &cfg, &src.Tombstone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SourceConnection{}, models.NotFound("source", sourceID)
		}
		return models.SourceConnection{}, fmt.Errorf("get source: %w", err)
	}
	if err := json.Unmarshal([]byte(cfg), &src.Configuration); err != nil {
		return models.SourceConnection{}, fmt.Errorf("decode source configuration: %w", err)
	}
	return src, nil
}

func (s *Store) GetDestinationConnection(ctx context.Context, destinationID uuid.UUID) (models.DestinationConnection, error) {
	var (
		dst models.DestinationConnection
		cfg string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, definition_id, name, configuration, tombstone FROM destinations WHERE id = ?`,
		destinationID.String())
	if err := row.Scan(&dst.DestinationID, &dst.WorkspaceID, &dst.DestinationDefinitionID, &dst.Name, &cfg, &dst.Tombstone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DestinationConnection{}, models.NotFound("destination", destinationID)
		}
		return models.DestinationConnection{}, fmt.Errorf("get destination: %w", err)
	}
	if err := json.Unmarshal([]byte(cfg), &dst.Configuration); err != nil {
		return models.DestinationConnection{}, fmt.Errorf("decode destination configuration: %w", err)
	}
	return dst, nil
}

func (s *Store) GetStandardSourceDefinition(ctx context.Context, definitionID uuid.UUID) (models.StandardSourceDefinition, error) {
	var def models.StandardSourceDefinition
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, docker_repository, docker_image_tag FROM source_definitions WHERE id = ?`,
		definitionID.String())
	if err := row.Scan(&def.SourceDefinitionID, &def.Name, &def.DockerRepository, &def.DockerImageTag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.StandardSourceDefinition{}, models.NotFound("source definition", definitionID)
		}
		return models.StandardSourceDefinition{}, fmt.Errorf("get source definition: %w", err)
	}
	return def, nil
}

func (s *Store) GetStandardDestinationDefinition(ctx context.Context, definitionID uuid.UUID) (models.StandardDestinationDefinition, error) {
	var def models.StandardDestinationDefinition
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, docker_repository, docker_image_tag FROM destination_definitions WHERE id = ?`,
		definitionID.String())
	if err := row.Scan(&def.DestinationDefinitionID, &def.Name, &def.DockerRepository, &def.DockerImageTag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.StandardDestinationDefinition{}, models.NotFound("destination definition", definitionID)
		}
		return models.StandardDestinationDefinition{}, fmt.Errorf("get destination definition: %w", err)
	}
	return def, nil
}
