package models

import "github.com/google/uuid"

// JobRunConfig identifies one attempt of a job for the execution engine.
type JobRunConfig struct {
	JobID     string `json:"jobId"`
	AttemptID int64  `json:"attemptId"`
}

// IntegrationLauncherConfig is what the engine needs to start one connector container.
type IntegrationLauncherConfig struct {
	JobID       string `json:"jobId"`
	AttemptID   int64  `json:"attemptId"`
	DockerImage string `json:"dockerImage"`
}

type StandardSyncInput struct {
	WorkspaceID              uuid.UUID           `json:"workspaceId"`
	SourceID                 uuid.UUID           `json:"sourceId"`
	DestinationID            uuid.UUID           `json:"destinationId"`
	SourceConfiguration      ConnectorConfig     `json:"sourceConfiguration"`
	DestinationConfiguration ConnectorConfig     `json:"destinationConfiguration"`
	State                    *State              `json:"state,omitempty"`
	Catalog                  ConfiguredCatalog   `json:"catalog"`
	CommitStateAsap          bool                `json:"commitStateAsap"`
	NamespaceDefinition      NamespaceDefinition `json:"namespaceDefinition,omitempty"`
	NamespaceFormat          string              `json:"namespaceFormat,omitempty"`
	Prefix                   string              `json:"prefix,omitempty"`
}

// AttemptSyncConfig is the part of the sync input persisted for an attempt.
type AttemptSyncConfig struct {
	SourceConfiguration      ConnectorConfig `json:"sourceConfiguration"`
	DestinationConfiguration ConnectorConfig `json:"destinationConfiguration"`
	State                    *State          `json:"state,omitempty"`
}

// SaveAttemptSyncConfigRequest is keyed by (JobID, AttemptNumber); saving twice overwrites.
type SaveAttemptSyncConfigRequest struct {
	JobID         int64             `json:"jobId"`
	AttemptNumber int               `json:"attemptNumber"`
	ConnectionID  uuid.UUID         `json:"connectionId"`
	SyncConfig    AttemptSyncConfig `json:"syncConfig"`
}

type GeneratedJobInput struct {
	JobRunConfig              JobRunConfig              `json:"jobRunConfig"`
	SourceLauncherConfig      IntegrationLauncherConfig `json:"sourceLauncherConfig"`
	DestinationLauncherConfig IntegrationLauncherConfig `json:"destinationLauncherConfig"`
	SyncInput                 StandardSyncInput         `json:"syncInput"`
}

type StandardCheckConnectionInput struct {
	ActorID                 uuid.UUID       `json:"actorId"`
	ActorType               ActorType       `json:"actorType"`
	ConnectionConfiguration ConnectorConfig `json:"connectionConfiguration"`
}

type SyncJobCheckConnectionInputs struct {
	SourceLauncherConfig            IntegrationLauncherConfig    `json:"sourceLauncherConfig"`
	DestinationLauncherConfig       IntegrationLauncherConfig    `json:"destinationLauncherConfig"`
	SourceCheckConnectionInput      StandardCheckConnectionInput `json:"sourceCheckConnectionInput"`
	DestinationCheckConnectionInput StandardCheckConnectionInput `json:"destinationCheckConnectionInput"`
}
