package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ConfigType is the discriminator persisted next to a job's configuration payload.
type ConfigType string

const (
	ConfigTypeCheckConnectionSource      ConfigType = "check_connection_source"
	ConfigTypeCheckConnectionDestination ConfigType = "check_connection_destination"
	ConfigTypeDiscoverSchema             ConfigType = "discover_schema"
	ConfigTypeGetSpec                    ConfigType = "get_spec"
	ConfigTypeSync                       ConfigType = "sync"
	ConfigTypeResetConnection            ConfigType = "reset_connection"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "running"
	JobStatusIncomplete JobStatus = "incomplete"
	JobStatusFailed     JobStatus = "failed"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job is a persisted job record. Scope holds the connection id for sync and reset jobs.
type Job struct {
	ID         int64         `json:"id"`
	ConfigType ConfigType    `json:"configType"`
	Scope      string        `json:"scope"`
	Config     JobTypeConfig `json:"-"`
	Status     JobStatus     `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// JobTypeConfig is the closed set of job payloads the input generator understands.
// Only types in this package can implement it.
type JobTypeConfig interface {
	ConfigType() ConfigType
	jobTypeConfig()
}

type NamespaceDefinition string

const (
	NamespaceSource      NamespaceDefinition = "source"
	NamespaceDestination NamespaceDefinition = "destination"
	NamespaceCustom      NamespaceDefinition = "customformat"
)

// JobSyncConfig is the payload of a sync job.
type JobSyncConfig struct {
	WorkspaceID            uuid.UUID           `json:"workspaceId" yaml:"workspaceId"`
	SourceDockerImage      string              `json:"sourceDockerImage" yaml:"sourceDockerImage"`
	DestinationDockerImage string              `json:"destinationDockerImage" yaml:"destinationDockerImage"`
	ConfiguredCatalog      ConfiguredCatalog   `json:"configuredAirbyteCatalog" yaml:"configuredAirbyteCatalog"`
	NamespaceDefinition    NamespaceDefinition `json:"namespaceDefinition,omitempty" yaml:"namespaceDefinition"`
	NamespaceFormat        string              `json:"namespaceFormat,omitempty" yaml:"namespaceFormat"`
	Prefix                 string              `json:"prefix,omitempty" yaml:"prefix"`
}

func (*JobSyncConfig) ConfigType() ConfigType { return ConfigTypeSync }
func (*JobSyncConfig) jobTypeConfig()          {}

// JobResetConnectionConfig is the payload of a reset job. No source runs during a reset.
type JobResetConnectionConfig struct {
	WorkspaceID            uuid.UUID           `json:"workspaceId" yaml:"workspaceId"`
	DestinationDockerImage string              `json:"destinationDockerImage" yaml:"destinationDockerImage"`
	ConfiguredCatalog      ConfiguredCatalog   `json:"configuredAirbyteCatalog" yaml:"configuredAirbyteCatalog"`
	NamespaceDefinition    NamespaceDefinition `json:"namespaceDefinition,omitempty" yaml:"namespaceDefinition"`
	NamespaceFormat        string              `json:"namespaceFormat,omitempty" yaml:"namespaceFormat"`
	Prefix                 string              `json:"prefix,omitempty" yaml:"prefix"`
}

func (*JobResetConnectionConfig) ConfigType() ConfigType { return ConfigTypeResetConnection }
func (*JobResetConnectionConfig) jobTypeConfig()          {}

// ConfiguredCatalog lists the streams a sync moves and how.
type ConfiguredCatalog struct {
	Streams []ConfiguredStream `json:"streams" yaml:"streams"`
}

type ConfiguredStream struct {
	Stream              Stream     `json:"stream" yaml:"stream"`
	SyncMode            string     `json:"sync_mode" yaml:"syncMode"`
	DestinationSyncMode string     `json:"destination_sync_mode" yaml:"destinationSyncMode"`
	CursorField         []string   `json:"cursor_field,omitempty" yaml:"cursorField"`
	PrimaryKey          [][]string `json:"primary_key,omitempty" yaml:"primaryKey"`
}

type Stream struct {
	Name       string         `json:"name" yaml:"name"`
	Namespace  string         `json:"namespace,omitempty" yaml:"namespace"`
	JSONSchema map[string]any `json:"json_schema,omitempty" yaml:"jsonSchema"`
}

// DecodeJobConfig turns a persisted (type, payload) pair into its typed variant.
// Types the generator does not handle decode to a nil config without error.
func DecodeJobConfig(configType ConfigType, payload []byte) (JobTypeConfig, error) {
	var target JobTypeConfig
	switch configType {
	case ConfigTypeSync:
		target = &JobSyncConfig{}
	case ConfigTypeResetConnection:
		target = &JobResetConnectionConfig{}
	case ConfigTypeCheckConnectionSource, ConfigTypeCheckConnectionDestination,
		ConfigTypeDiscoverSchema, ConfigTypeGetSpec:
		return nil, nil
	default:
		return nil, Invalidf("unknown job config type %q", configType)
	}
	if len(payload) == 0 || string(payload) == "null" {
		return nil, Invalidf("job config payload missing for type %q", configType)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return nil, Invalidf("decode %s job config: %v", configType, err)
	}
	return target, nil
}

// EncodeJobConfig serialises a variant for storage.
func EncodeJobConfig(cfg JobTypeConfig) (ConfigType, []byte, error) {
	if cfg == nil {
		return "", nil, Invalidf("job config missing")
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return "", nil, err
	}
	return cfg.ConfigType(), payload, nil
}
