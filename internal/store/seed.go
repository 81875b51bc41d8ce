package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"example.com/jobinput/internal/models"
)

// Seed is a YAML fixture used to populate a development database.
type Seed struct {
	SourceDefinitions      []models.StandardSourceDefinition      `yaml:"sourceDefinitions"`
	DestinationDefinitions []models.StandardDestinationDefinition `yaml:"destinationDefinitions"`
	Sources                []models.SourceConnection              `yaml:"sources"`
	Destinations           []models.DestinationConnection         `yaml:"destinations"`
	Connections            []models.StandardSync                  `yaml:"connections"`
	OAuthParams            []models.OAuthParameter                `yaml:"oauthParams"`
	States                 []SeedState                            `yaml:"states"`
	Jobs                   []SeedJob                              `yaml:"jobs"`
}

// SeedState carries a legacy state object for a connection.
type SeedState struct {
	ConnectionID uuid.UUID      `yaml:"connectionId"`
	State        map[string]any `yaml:"state"`
}

// SeedJob sets exactly one of Sync or ResetConnection.
type SeedJob struct {
	Scope           uuid.UUID                        `yaml:"scope"`
	Sync            *models.JobSyncConfig            `yaml:"sync"`
	ResetConnection *models.JobResetConnectionConfig `yaml:"resetConnection"`
}

// LoadSeed decodes a fixture and writes it in dependency order. It returns the
// jobs it created so callers can print their ids.
func (s *Store) LoadSeed(ctx context.Context, r io.Reader) ([]models.Job, error) {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	for _, def := range seed.SourceDefinitions {
		if err := s.UpsertSourceDefinition(ctx, def); err != nil {
			return nil, err
		}
	}
	for _, def := range seed.DestinationDefinitions {
		if err := s.UpsertDestinationDefinition(ctx, def); err != nil {
			return nil, err
		}
	}
	for _, src := range seed.Sources {
		if err := s.UpsertSource(ctx, src); err != nil {
			return nil, err
		}
	}
	for _, dst := range seed.Destinations {
		if err := s.UpsertDestination(ctx, dst); err != nil {
			return nil, err
		}
	}
	for _, conn := range seed.Connections {
		if err := s.UpsertConnection(ctx, conn); err != nil {
			return nil, err
		}
	}
	for _, param := range seed.OAuthParams {
		if err := s.UpsertOAuthParameter(ctx, param); err != nil {
			return nil, err
		}
	}
	for _, st := range seed.States {
		raw, err := json.Marshal(st.State)
		if err != nil {
			return nil, fmt.Errorf("encode seed state: %w", err)
		}
		state := models.ConnectionState{StateType: models.StateTypeLegacy, ConnectionID: st.ConnectionID, State: raw}
		if err := s.SaveState(ctx, state); err != nil {
			return nil, err
		}
	}
	jobs := make([]models.Job, 0, len(seed.Jobs))
	for i, sj := range seed.Jobs {
		var cfg models.JobTypeConfig
		switch {
		case sj.Sync != nil && sj.ResetConnection == nil:
			cfg = sj.Sync
		case sj.ResetConnection != nil && sj.Sync == nil:
			cfg = sj.ResetConnection
		default:
			return nil, fmt.Errorf("seed job %d: set exactly one of sync or resetConnection", i)
		}
		job, err := s.CreateJob(ctx, sj.Scope.String(), cfg)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
