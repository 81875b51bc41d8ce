// Package jobinput assembles the inputs a job attempt runs with: launcher
// configs for both connectors, OAuth-resolved connector configurations, the
// connection's prior state, and the check-connection descriptors used before a
// sync starts.
package jobinput

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"example.com/jobinput/internal/featureflag"
	"example.com/jobinput/internal/models"
)

// ResetJobSourceDockerImageStub is the source image of a reset job. No source
// container runs for it.
const ResetJobSourceDockerImageStub = "airbyte_empty"

const tracerName = "example.com/jobinput/internal/jobinput"

type JobStore interface {
	GetJob(ctx context.Context, jobID int64) (models.Job, error)
}

// ConfigRepository resolves connections, connectors, and their definitions.
// Unknown ids fail with a models.NotFoundError.
type ConfigRepository interface {
	GetStandardSync(ctx context.Context, connectionID uuid.UUID) (models.StandardSync, error)
	GetSourceConnection(ctx context.Context, sourceID uuid.UUID) (models.SourceConnection, error)
	GetDestinationConnection(ctx context.Context, destinationID uuid.UUID) (models.DestinationConnection, error)
	GetStandardSourceDefinition(ctx context.Context, definitionID uuid.UUID) (models.StandardSourceDefinition, error)
	GetStandardDestinationDefinition(ctx context.Context, definitionID uuid.UUID) (models.StandardDestinationDefinition, error)
}

// OAuthInjector returns a fresh configuration with stored OAuth secrets merged
// in. Missing parameters yield an unchanged copy.
type OAuthInjector interface {
	InjectSourceOAuthParameters(ctx context.Context, definitionID, workspaceID uuid.UUID, cfg models.ConnectorConfig) (models.ConnectorConfig, error)
	InjectDestinationOAuthParameters(ctx context.Context, definitionID, workspaceID uuid.UUID, cfg models.ConnectorConfig) (models.ConnectorConfig, error)
}

// StateService reads committed connection state and records what each attempt
// was started with. SaveAttemptSyncConfig must upsert on (job, attempt).
type StateService interface {
	GetState(ctx context.Context, connectionID uuid.UUID) (models.ConnectionState, error)
	SaveAttemptSyncConfig(ctx context.Context, req models.SaveAttemptSyncConfigRequest) error
}

// Generator builds job inputs. It keeps no state between calls and is safe for
// concurrent use when its collaborators are.
type Generator struct {
	jobs    JobStore
	configs ConfigRepository
	oauth   OAuthInjector
	state   StateService
	flags   featureflag.Client
	logger  *slog.Logger
	tracer  trace.Tracer
}

type Option func(*Generator)

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Generator) {
		g.tracer = tp.Tracer(tracerName)
	}
}

func NewGenerator(jobs JobStore, configs ConfigRepository, oauth OAuthInjector, state StateService, flags featureflag.Client, logger *slog.Logger, opts ...Option) *Generator {
	if flags == nil {
		flags = featureflag.NoopClient{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{
		jobs:    jobs,
		configs: configs,
		oauth:   oauth,
		state:   state,
		flags:   flags,
		logger:  logger.With("component", "jobinput"),
		tracer:  otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// plan is what the job payload contributes to an input. reset is true for
// reset jobs, which run without a source.
type plan struct {
	reset                  bool
	workspaceID            uuid.UUID
	sourceDockerImage      string
	destinationDockerImage string
	catalog                models.ConfiguredCatalog
	namespaceDefinition    models.NamespaceDefinition
	namespaceFormat        string
	prefix                 string
}

func planFor(job models.Job) (plan, error) {
	switch cfg := job.Config.(type) {
	case *models.JobSyncConfig:
		if cfg == nil {
			break
		}
		return plan{
			workspaceID:            cfg.WorkspaceID,
			sourceDockerImage:      cfg.SourceDockerImage,
			destinationDockerImage: cfg.DestinationDockerImage,
			catalog:                cfg.ConfiguredCatalog,
			namespaceDefinition:    cfg.NamespaceDefinition,
			namespaceFormat:        cfg.NamespaceFormat,
			prefix:                 cfg.Prefix,
		}, nil
	case *models.JobResetConnectionConfig:
		if cfg == nil {
			break
		}
		return plan{
			reset:                  true,
			workspaceID:            cfg.WorkspaceID,
			sourceDockerImage:      ResetJobSourceDockerImageStub,
			destinationDockerImage: cfg.DestinationDockerImage,
			catalog:                cfg.ConfiguredCatalog,
			namespaceDefinition:    cfg.NamespaceDefinition,
			namespaceFormat:        cfg.NamespaceFormat,
			prefix:                 cfg.Prefix,
		}, nil
	}
	return plan{}, models.Invalidf("job %d of type %q has no input to generate", job.ID, job.ConfigType)
}

// GenerateSyncWorkflowInput resolves everything a sync or reset attempt needs
// and records the resolved configuration for the attempt before returning.
func (g *Generator) GenerateSyncWorkflowInput(ctx context.Context, attemptID int, jobID int64) (_ models.GeneratedJobInput, err error) {
	ctx, span := g.tracer.Start(ctx, "jobinput.GenerateSyncWorkflowInput", trace.WithAttributes(
		attribute.Int64("job.id", jobID),
		attribute.Int("job.attempt", attemptID),
	))
	defer func() { finish(span, err) }()

	job, connectionID, err := g.loadJob(ctx, jobID)
	if err != nil {
		return models.GeneratedJobInput{}, err
	}
	span.SetAttributes(
		attribute.String("job.type", string(job.ConfigType)),
		attribute.String("connection.id", connectionID.String()),
	)
	p, err := planFor(job)
	if err != nil {
		return models.GeneratedJobInput{}, err
	}
	sync, err := g.standardSync(ctx, connectionID)
	if err != nil {
		return models.GeneratedJobInput{}, err
	}

	sourceCfg := models.EmptyConfig()
	if !p.reset {
		_, sourceCfg, err = g.resolveSource(ctx, sync.SourceID)
		if err != nil {
			return models.GeneratedJobInput{}, err
		}
	}
	_, destinationCfg, err := g.resolveDestination(ctx, sync.DestinationID)
	if err != nil {
		return models.GeneratedJobInput{}, err
	}

	state, err := g.fetchState(ctx, connectionID)
	if err != nil {
		return models.GeneratedJobInput{}, err
	}
	commitStateAsap := g.flags.BoolVariation(ctx, featureflag.CommitStatesAsap, featureflag.Connection(connectionID))

	syncInput := models.StandardSyncInput{
		WorkspaceID:              p.workspaceID,
		SourceID:                 sync.SourceID,
		DestinationID:            sync.DestinationID,
		SourceConfiguration:      sourceCfg,
		DestinationConfiguration: destinationCfg,
		State:                    state,
		Catalog:                  p.catalog,
		CommitStateAsap:          commitStateAsap,
		NamespaceDefinition:      p.namespaceDefinition,
		NamespaceFormat:          p.namespaceFormat,
		Prefix:                   p.prefix,
	}

	// The attempt config is written on every call; commitStateAsap only tells
	// the sync whether to commit its own state early.
	if err := g.saveAttemptSyncConfig(ctx, models.SaveAttemptSyncConfigRequest{
		JobID:         jobID,
		AttemptNumber: attemptID,
		ConnectionID:  connectionID,
		SyncConfig: models.AttemptSyncConfig{
			SourceConfiguration:      sourceCfg.Clone(),
			DestinationConfiguration: destinationCfg.Clone(),
			State:                    cloneState(state),
		},
	}); err != nil {
		return models.GeneratedJobInput{}, err
	}

	runConfig, sourceLauncher, destinationLauncher := launcherConfigs(jobID, attemptID, p)

	g.logger.InfoContext(ctx, "generated sync workflow input",
		"job_id", jobID,
		"attempt_id", attemptID,
		"connection_id", connectionID,
		"job_type", job.ConfigType,
		"commit_state_asap", commitStateAsap,
		"has_state", state != nil,
	)
	return models.GeneratedJobInput{
		JobRunConfig:              runConfig,
		SourceLauncherConfig:      sourceLauncher,
		DestinationLauncherConfig: destinationLauncher,
		SyncInput:                 syncInput,
	}, nil
}

// GenerateCheckConnectionInputs builds the connectivity checks run before a
// sync. It never reads or writes connection state.
func (g *Generator) GenerateCheckConnectionInputs(ctx context.Context, attemptID int, jobID int64) (_ models.SyncJobCheckConnectionInputs, err error) {
	ctx, span := g.tracer.Start(ctx, "jobinput.GenerateCheckConnectionInputs", trace.WithAttributes(
		attribute.Int64("job.id", jobID),
		attribute.Int("job.attempt", attemptID),
	))
	defer func() { finish(span, err) }()

	job, connectionID, err := g.loadJob(ctx, jobID)
	if err != nil {
		return models.SyncJobCheckConnectionInputs{}, err
	}
	span.SetAttributes(
		attribute.String("job.type", string(job.ConfigType)),
		attribute.String("connection.id", connectionID.String()),
	)
	p, err := planFor(job)
	if err != nil {
		return models.SyncJobCheckConnectionInputs{}, err
	}
	if p.reset {
		return models.SyncJobCheckConnectionInputs{}, models.Invalidf("job %d: connection checks are only generated for sync jobs", jobID)
	}
	sync, err := g.standardSync(ctx, connectionID)
	if err != nil {
		return models.SyncJobCheckConnectionInputs{}, err
	}
	source, sourceCfg, err := g.resolveSource(ctx, sync.SourceID)
	if err != nil {
		return models.SyncJobCheckConnectionInputs{}, err
	}
	destination, destinationCfg, err := g.resolveDestination(ctx, sync.DestinationID)
	if err != nil {
		return models.SyncJobCheckConnectionInputs{}, err
	}

	_, sourceLauncher, destinationLauncher := launcherConfigs(jobID, attemptID, p)

	g.logger.InfoContext(ctx, "generated check connection inputs",
		"job_id", jobID,
		"attempt_id", attemptID,
		"connection_id", connectionID,
	)
	return models.SyncJobCheckConnectionInputs{
		SourceLauncherConfig:      sourceLauncher,
		DestinationLauncherConfig: destinationLauncher,
		SourceCheckConnectionInput: models.StandardCheckConnectionInput{
			ActorID:                 source.SourceID,
			ActorType:               models.ActorTypeSource,
			ConnectionConfiguration: sourceCfg,
		},
		DestinationCheckConnectionInput: models.StandardCheckConnectionInput{
			ActorID:                 destination.DestinationID,
			ActorType:               models.ActorTypeDestination,
			ConnectionConfiguration: destinationCfg,
		},
	}, nil
}

func (g *Generator) loadJob(ctx context.Context, jobID int64) (models.Job, uuid.UUID, error) {
	job, err := g.jobs.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, uuid.Nil, fmt.Errorf("load job %d: %w", jobID, err)
	}
	connectionID, err := uuid.Parse(job.Scope)
	if err != nil {
		return models.Job{}, uuid.Nil, models.Invalidf("job %d scope %q is not a connection id", jobID, job.Scope)
	}
	return job, connectionID, nil
}

func (g *Generator) standardSync(ctx context.Context, connectionID uuid.UUID) (_ models.StandardSync, err error) {
	ctx, span := g.tracer.Start(ctx, "jobinput.GetStandardSync")
	defer func() { finish(span, err) }()

	sync, err := g.configs.GetStandardSync(ctx, connectionID)
	if err != nil {
		return models.StandardSync{}, fmt.Errorf("resolve connection %s: %w", connectionID, err)
	}
	return sync, nil
}

func (g *Generator) resolveSource(ctx context.Context, sourceID uuid.UUID) (_ models.SourceConnection, _ models.ConnectorConfig, err error) {
	ctx, span := g.tracer.Start(ctx, "jobinput.ResolveSource", trace.WithAttributes(attribute.String("source.id", sourceID.String())))
	defer func() { finish(span, err) }()

	source, err := g.configs.GetSourceConnection(ctx, sourceID)
	if err != nil {
		return models.SourceConnection{}, nil, fmt.Errorf("resolve source %s: %w", sourceID, err)
	}
	def, err := g.configs.GetStandardSourceDefinition(ctx, source.SourceDefinitionID)
	if err != nil {
		return models.SourceConnection{}, nil, fmt.Errorf("resolve source definition %s: %w", source.SourceDefinitionID, err)
	}
	cfg, err := g.oauth.InjectSourceOAuthParameters(ctx, def.SourceDefinitionID, source.WorkspaceID, source.Configuration)
	if err != nil {
		return models.SourceConnection{}, nil, fmt.Errorf("inject source oauth params: %w", err)
	}
	return source, cfg, nil
}

func (g *Generator) resolveDestination(ctx context.Context, destinationID uuid.UUID) (_ models.DestinationConnection, _ models.ConnectorConfig, err error) {
	ctx, span := g.tracer.Start(ctx, "jobinput.ResolveDestination", trace.WithAttributes(attribute.String("destination.id", destinationID.String())))
	defer func() { finish(span, err) }()

	destination, err := g.configs.GetDestinationConnection(ctx, destinationID)
	if err != nil {
		return models.DestinationConnection{}, nil, fmt.Errorf("resolve destination %s: %w", destinationID, err)
	}
	def, err := g.configs.GetStandardDestinationDefinition(ctx, destination.DestinationDefinitionID)
	if err != nil {
		return models.DestinationConnection{}, nil, fmt.Errorf("resolve destination definition %s: %w", destination.DestinationDefinitionID, err)
	}
	cfg, err := g.oauth.InjectDestinationOAuthParameters(ctx, def.DestinationDefinitionID, destination.WorkspaceID, destination.Configuration)
	if err != nil {
		return models.DestinationConnection{}, nil, fmt.Errorf("inject destination oauth params: %w", err)
	}
	return destination, cfg, nil
}

// fetchState returns nil for a connection that never committed state.
func (g *Generator) fetchState(ctx context.Context, connectionID uuid.UUID) (_ *models.State, err error) {
	ctx, span := g.tracer.Start(ctx, "jobinput.GetState")
	defer func() { finish(span, err) }()

	cs, err := g.state.GetState(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("get state for connection %s: %w", connectionID, err)
	}
	span.SetAttributes(attribute.String("state.type", string(cs.StateType)))
	state, err := cs.ToState()
	if err != nil {
		return nil, fmt.Errorf("convert state for connection %s: %w", connectionID, err)
	}
	return state, nil
}

func (g *Generator) saveAttemptSyncConfig(ctx context.Context, req models.SaveAttemptSyncConfigRequest) (err error) {
	ctx, span := g.tracer.Start(ctx, "jobinput.SaveAttemptSyncConfig")
	defer func() { finish(span, err) }()

	if err := g.state.SaveAttemptSyncConfig(ctx, req); err != nil {
		return fmt.Errorf("save attempt sync config for job %d attempt %d: %w", req.JobID, req.AttemptNumber, err)
	}
	return nil
}

func launcherConfigs(jobID int64, attemptID int, p plan) (models.JobRunConfig, models.IntegrationLauncherConfig, models.IntegrationLauncherConfig) {
	id := strconv.FormatInt(jobID, 10)
	attempt := int64(attemptID)
	return models.JobRunConfig{JobID: id, AttemptID: attempt},
		models.IntegrationLauncherConfig{JobID: id, AttemptID: attempt, DockerImage: p.sourceDockerImage},
		models.IntegrationLauncherConfig{JobID: id, AttemptID: attempt, DockerImage: p.destinationDockerImage}
}

func cloneState(s *models.State) *models.State {
	if s == nil {
		return nil
	}
	raw := make([]byte, len(s.State))
	copy(raw, s.State)
	return &models.State{State: raw}
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
