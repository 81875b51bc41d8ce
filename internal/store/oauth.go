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

func workspaceKey(workspaceID *uuid.UUID) string {
	if workspaceID == nil {
		return ""
	}
	return workspaceID.String()
}

// UpsertOAuthParameter stores OAuth secrets for a definition, either for one
// workspace or instance-wide when WorkspaceID is nil.
func (s *Store) UpsertOAuthParameter(ctx context.Context, param models.OAuthParameter) error {
	if param.ID == uuid.Nil {
		param.ID = uuid.New()
	}
	cfg, err := marshalJSON(param.Configuration.Clone())
	if err != nil {
		return fmt.Errorf("marshal oauth parameter: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO oauth_params(id, actor_type, definition_id, workspace_id, configuration, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(actor_type, definition_id, workspace_id) DO UPDATE SET configuration = excluded.configuration,
			updated_at = excluded.updated_at`,
		param.ID.String(), string(param.ActorType), param.DefinitionID.String(), workspaceKey(param.WorkspaceID), cfg, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert oauth parameter: %w", err)
	}
	return nil
}

// GetOAuthParameter looks up parameters for exactly the given scope; it does not fall back
// from a workspace to the instance-wide row. ok is false when nothing is stored.
func (s *Store) GetOAuthParameter(ctx context.Context, actorType models.ActorType, definitionID uuid.UUID, workspaceID *uuid.UUID) (models.OAuthParameter, bool, error) {
	var (
		param     models.OAuthParameter
		actor     string
		workspace string
		cfg       string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, actor_type, definition_id, workspace_id, configuration, updated_at
		 FROM oauth_params WHERE actor_type = ? AND definition_id = ? AND workspace_id = ?`,
		string(actorType), definitionID.String(), workspaceKey(workspaceID))
	if err := row.Scan(&param.ID, &actor, &param.DefinitionID, &workspace, &cfg, &param.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.OAuthParameter{}, false, nil
		}
		return models.OAuthParameter{}, false, fmt.Errorf("get oauth parameter: %w", err)
	}
	param.ActorType = models.ActorType(actor)
	if workspace != "" {
		id, err := uuid.Parse(workspace)
		if err != nil {
			return models.OAuthParameter{}, false, fmt.Errorf("parse oauth workspace id: %w", err)
		}
		param.WorkspaceID = &id
	}
	if err := json.Unmarshal([]byte(cfg), &param.Configuration); err != nil {
		return models.OAuthParameter{}, false, fmt.Errorf("decode oauth parameter: %w", err)
	}
	return param, true, nil
}
