package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ActorType string

const (
	ActorTypeSource      ActorType = "source"
	ActorTypeDestination ActorType = "destination"
)

// ConnectorConfig is a connector's JSON configuration object.
type ConnectorConfig map[string]any

// UnmarshalJSON keeps numbers as json.Number so large integers survive a
// decode and re-encode unchanged.
func (c *ConnectorConfig) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*c = m
	return nil
}

// EmptyConfig returns the canonical empty configuration object.
func EmptyConfig() ConnectorConfig {
	return ConnectorConfig{}
}

// Clone deep-copies the configuration so callers never share nested maps or slices.
// A nil configuration clones to an empty object.
func (c ConnectorConfig) Clone() ConnectorConfig {
	out := make(ConnectorConfig, len(c))
	for k, v := range c {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a decoded JSON value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = CloneValue(inner)
		}
		return m
	case ConnectorConfig:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = CloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// StandardSync is a connection between one source and one destination.
type StandardSync struct {
	ConnectionID  uuid.UUID `json:"connectionId" yaml:"connectionId"`
	Name          string    `json:"name" yaml:"name"`
	SourceID      uuid.UUID `json:"sourceId" yaml:"sourceId"`
	DestinationID uuid.UUID `json:"destinationId" yaml:"destinationId"`
	Status        string    `json:"status" yaml:"status"`
}

type SourceConnection struct {
	SourceID           uuid.UUID       `json:"sourceId" yaml:"sourceId"`
	WorkspaceID        uuid.UUID       `json:"workspaceId" yaml:"workspaceId"`
	SourceDefinitionID uuid.UUID       `json:"sourceDefinitionId" yaml:"sourceDefinitionId"`
	Name               string          `json:"name" yaml:"name"`
	Configuration      ConnectorConfig `json:"configuration" yaml:"configuration"`
	Tombstone          bool            `json:"tombstone" yaml:"tombstone"`
}

type DestinationConnection struct {
	DestinationID           uuid.UUID       `json:"destinationId" yaml:"destinationId"`
	WorkspaceID             uuid.UUID       `json:"workspaceId" yaml:"workspaceId"`
	DestinationDefinitionID uuid.UUID       `json:"destinationDefinitionId" yaml:"destinationDefinitionId"`
	Name                    string          `json:"name" yaml:"name"`
	Configuration           ConnectorConfig `json:"configuration" yaml:"configuration"`
	Tombstone               bool            `json:"tombstone" yaml:"tombstone"`
}

type StandardSourceDefinition struct {
	SourceDefinitionID uuid.UUID `json:"sourceDefinitionId" yaml:"sourceDefinitionId"`
	Name               string    `json:"name" yaml:"name"`
	DockerRepository   string    `json:"dockerRepository" yaml:"dockerRepository"`
	DockerImageTag     string    `json:"dockerImageTag" yaml:"dockerImageTag"`
}

type StandardDestinationDefinition struct {
	DestinationDefinitionID uuid.UUID `json:"destinationDefinitionId" yaml:"destinationDefinitionId"`
	Name                    string    `json:"name" yaml:"name"`
	DockerRepository        string    `json:"dockerRepository" yaml:"dockerRepository"`
	DockerImageTag          string    `json:"dockerImageTag" yaml:"dockerImageTag"`
}

// OAuthParameter holds stored OAuth secrets for a connector definition. A nil
// WorkspaceID marks the instance-wide parameters.
type OAuthParameter struct {
	ID            uuid.UUID       `json:"id" yaml:"id"`
	ActorType     ActorType       `json:"actorType" yaml:"actorType"`
	DefinitionID  uuid.UUID       `json:"definitionId" yaml:"definitionId"`
	WorkspaceID   *uuid.UUID      `json:"workspaceId,omitempty" yaml:"workspaceId"`
	Configuration ConnectorConfig `json:"configuration" yaml:"configuration"`
	UpdatedAt     time.Time       `json:"updatedAt" yaml:"-"`
}
