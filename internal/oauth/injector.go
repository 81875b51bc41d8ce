// Package oauth merges stored OAuth parameters into connector configurations.
package oauth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"example.com/jobinput/internal/models"
)

// SecretMask is what the platform stores in place of a secret the user never revealed.
const SecretMask = "**********"

// ParamStore looks up OAuth parameters for exactly one scope. A nil workspace
// selects the instance-wide parameters.
type ParamStore interface {
	GetOAuthParameter(ctx context.Context, actorType models.ActorType, definitionID uuid.UUID, workspaceID *uuid.UUID) (models.OAuthParameter, bool, error)
}

type Injector struct {
	params ParamStore
	logger *slog.Logger
}

func NewInjector(params ParamStore, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{params: params, logger: logger.With("component", "oauth")}
}

func (i *Injector) InjectSourceOAuthParameters(ctx context.Context, definitionID, workspaceID uuid.UUID, cfg models.ConnectorConfig) (models.ConnectorConfig, error) {
	return i.inject(ctx, models.ActorTypeSource, definitionID, workspaceID, cfg)
}

func (i *Injector) InjectDestinationOAuthParameters(ctx context.Context, definitionID, workspaceID uuid.UUID, cfg models.ConnectorConfig) (models.ConnectorConfig, error) {
	return i.inject(ctx, models.ActorTypeDestination, definitionID, workspaceID, cfg)
}

func (i *Injector) inject(ctx context.Context, actorType models.ActorType, definitionID, workspaceID uuid.UUID, cfg models.ConnectorConfig) (models.ConnectorConfig, error) {
	param, ok, err := i.params.GetOAuthParameter(ctx, actorType, definitionID, &workspaceID)
	if err != nil {
		return nil, fmt.Errorf("lookup %s oauth params: %w", actorType, err)
	}
	if !ok {
		param, ok, err = i.params.GetOAuthParameter(ctx, actorType, definitionID, nil)
		if err != nil {
			return nil, fmt.Errorf("lookup global %s oauth params: %w", actorType, err)
		}
	}
	out := cfg.Clone()
	if !ok {
		return out, nil
	}
	i.logger.DebugContext(ctx, "injecting oauth params",
		"actor_type", actorType,
		"definition_id", definitionID,
		"workspace_scoped", param.WorkspaceID != nil,
	)
	merge(out, param.Configuration)
	return out, nil
}

// merge writes params into dst in place. dst must not share nested maps with
// the caller's configuration.
func merge(dst map[string]any, params map[string]any) {
	for k, pv := range params {
		cur, exists := dst[k]
		if pm, ok := asMap(pv); ok {
			if cm, ok := asMap(cur); ok {
				merge(cm, pm)
				continue
			}
		}
		if !exists || cur == SecretMask || cur == nil {
			dst[k] = models.CloneValue(pv)
		}
	}
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case models.ConnectorConfig:
		return t, true
	}
	return nil, false
}
