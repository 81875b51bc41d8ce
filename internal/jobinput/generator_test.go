package jobinput

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"example.com/jobinput/internal/featureflag"
	"example.com/jobinput/internal/models"
)

const (
	jobID     int64 = 1
	attemptID       = 1
)

type fakeJobs struct {
	jobs map[int64]models.Job
}

func (f *fakeJobs) GetJob(_ context.Context, id int64) (models.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return models.Job{}, models.NotFound("job", id)
	}
	return job, nil
}

type fakeConfigs struct {
	syncs           map[uuid.UUID]models.StandardSync
	sources         map[uuid.UUID]models.SourceConnection
	destinations    map[uuid.UUID]models.DestinationConnection
	sourceDefs      map[uuid.UUID]models.StandardSourceDefinition
	destinationDefs map[uuid.UUID]models.StandardDestinationDefinition
	sourceLookups   int
}

func (f *fakeConfigs) GetStandardSync(_ context.Context, id uuid.UUID) (models.StandardSync, error) {
	s, ok := f.syncs[id]
	if !ok {
		return models.StandardSync{}, models.NotFound("connection", id)
	}
	return s, nil
}

func (f *fakeConfigs) GetSourceConnection(_ context.Context, id uuid.UUID) (models.SourceConnection, error) {
	f.sourceLookups++
	s, ok := f.sources[id]
	if !ok {
		return models.SourceConnection{}, models.NotFound("source", id)
	}
	return s, nil
}

func (f *fakeConfigs) GetDestinationConnection(_ context.Context, id uuid.UUID) (models.DestinationConnection, error) {
	d, ok := f.destinations[id]
	if !ok {
		return models.DestinationConnection{}, models.NotFound("destination", id)
	}
	return d, nil
}

func (f *fakeConfigs) GetStandardSourceDefinition(_ context.Context, id uuid.UUID) (models.StandardSourceDefinition, error) {
	d, ok := f.sourceDefs[id]
	if !ok {
		return models.StandardSourceDefinition{}, models.NotFound("source definition", id)
	}
	return d, nil
}

func (f *fakeConfigs) GetStandardDestinationDefinition(_ context.Context, id uuid.UUID) (models.StandardDestinationDefinition, error) {
	d, ok := f.destinationDefs[id]
	if !ok {
		return models.StandardDestinationDefinition{}, models.NotFound("destination definition", id)
	}
	return d, nil
}

// fakeOAuth tags the configuration so tests can tell injected from raw.
type fakeOAuth struct {
	calls []string
}

func (f *fakeOAuth) InjectSourceOAuthParameters(_ context.Context, definitionID, workspaceID uuid.UUID, cfg models.ConnectorConfig) (models.ConnectorConfig, error) {
	f.calls = append(f.calls, "source:"+definitionID.String()+":"+workspaceID.String())
	out := cfg.Clone()
	out["injected"] = "source"
	return out, nil
}

func (f *fakeOAuth) InjectDestinationOAuthParameters(_ context.Context, definitionID, workspaceID uuid.UUID, cfg models.ConnectorConfig) (models.ConnectorConfig, error) {
	f.calls = append(f.calls, "destination:"+definitionID.String()+":"+workspaceID.String())
	out := cfg.Clone()
	out["injected"] = "destination"
	return out, nil
}

type fakeState struct {
	states  map[uuid.UUID]models.ConnectionState
	getErr  error
	saveErr error
	gets    int
	saves   []models.SaveAttemptSyncConfigRequest
}

func (f *fakeState) GetState(_ context.Context, connectionID uuid.UUID) (models.ConnectionState, error) {
	f.gets++
	if f.getErr != nil {
		return models.ConnectionState{}, f.getErr
	}
	if s, ok := f.states[connectionID]; ok {
		return s, nil
	}
	return models.NotSetState(connectionID), nil
}

func (f *fakeState) SaveAttemptSyncConfig(_ context.Context, req models.SaveAttemptSyncConfigRequest) error {
	f.saves = append(f.saves, req)
	return f.saveErr
}

type fixture struct {
	connectionID uuid.UUID
	workspaceID  uuid.UUID
	source       models.SourceConnection
	destination  models.DestinationConnection
	catalog      models.ConfiguredCatalog
	jobs         *fakeJobs
	configs      *fakeConfigs
	oauth        *fakeOAuth
	state        *fakeState
	flags        *featureflag.TestClient
}

func newFixture() *fixture {
	f := &fixture{
		connectionID: uuid.New(),
		workspaceID:  uuid.New(),
		catalog: models.ConfiguredCatalog{Streams: []models.ConfiguredStream{{
			Stream:              models.Stream{Name: "users"},
			SyncMode:            "full_refresh",
			DestinationSyncMode: "overwrite",
		}}},
		oauth: &fakeOAuth{},
		state: &fakeState{states: map[uuid.UUID]models.ConnectionState{}},
		flags: featureflag.NewTestClient(map[string]bool{}),
	}
	f.source = models.SourceConnection{
		SourceID:           uuid.New(),
		WorkspaceID:        uuid.New(),
		SourceDefinitionID: uuid.New(),
		Name:               "source",
		Configuration:      models.ConnectorConfig{"source": "raw"},
	}
	f.destination = models.DestinationConnection{
		DestinationID:           uuid.New(),
		WorkspaceID:             uuid.New(),
		DestinationDefinitionID: uuid.New(),
		Name:                    "destination",
		Configuration:           models.ConnectorConfig{"destination": "raw"},
	}
	f.configs = &fakeConfigs{
		syncs: map[uuid.UUID]models.StandardSync{
			f.connectionID: {ConnectionID: f.connectionID, SourceID: f.source.SourceID, DestinationID: f.destination.DestinationID},
		},
		sources:      map[uuid.UUID]models.SourceConnection{f.source.SourceID: f.source},
		destinations: map[uuid.UUID]models.DestinationConnection{f.destination.DestinationID: f.destination},
		sourceDefs: map[uuid.UUID]models.StandardSourceDefinition{
			f.source.SourceDefinitionID: {SourceDefinitionID: f.source.SourceDefinitionID},
		},
		destinationDefs: map[uuid.UUID]models.StandardDestinationDefinition{
			f.destination.DestinationDefinitionID: {DestinationDefinitionID: f.destination.DestinationDefinitionID},
		},
	}
	f.jobs = &fakeJobs{jobs: map[int64]models.Job{}}
	return f
}

func (f *fixture) withSyncJob() *fixture {
	f.jobs.jobs[jobID] = models.Job{
		ID:         jobID,
		ConfigType: models.ConfigTypeSync,
		Scope:      f.connectionID.String(),
		Config: &models.JobSyncConfig{
			WorkspaceID:            f.workspaceID,
			SourceDockerImage:      "sourceDockerImage",
			DestinationDockerImage: "destinationDockerImage",
			ConfiguredCatalog:      f.catalog,
			Prefix:                 "pre_",
		},
	}
	return f
}

func (f *fixture) withResetJob() *fixture {
	f.jobs.jobs[jobID] = models.Job{
		ID:         jobID,
		ConfigType: models.ConfigTypeResetConnection,
		Scope:      f.connectionID.String(),
		Config: &models.JobResetConnectionConfig{
			WorkspaceID:            f.workspaceID,
			DestinationDockerImage: "destinationDockerImage",
			ConfiguredCatalog:      f.catalog,
		},
	}
	return f
}

func (f *fixture) withLegacyState(raw string) *fixture {
	f.state.states[f.connectionID] = models.ConnectionState{
		StateType:    models.StateTypeLegacy,
		ConnectionID: f.connectionID,
		State:        json.RawMessage(raw),
	}
	return f
}

func (f *fixture) generator(opts ...Option) *Generator {
	return NewGenerator(f.jobs, f.configs, f.oauth, f.state, f.flags, nil, opts...)
}

func TestGenerateSyncWorkflowInput(t *testing.T) {
	f := newFixture().withSyncJob().withLegacyState(`{"state_key":"state_value"}`)

	out, err := f.generator().GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
	require.NoError(t, err)

	assert.Equal(t, models.JobRunConfig{JobID: "1", AttemptID: 1}, out.JobRunConfig)
	assert.Equal(t, models.IntegrationLauncherConfig{JobID: "1", AttemptID: 1, DockerImage: "sourceDockerImage"}, out.SourceLauncherConfig)
	assert.Equal(t, models.IntegrationLauncherConfig{JobID: "1", AttemptID: 1, DockerImage: "destinationDockerImage"}, out.DestinationLauncherConfig)

	in := out.SyncInput
	assert.Equal(t, f.workspaceID, in.WorkspaceID)
	assert.Equal(t, f.source.SourceID, in.SourceID)
	assert.Equal(t, f.destination.DestinationID, in.DestinationID)
	assert.Equal(t, models.ConnectorConfig{"source": "raw", "injected": "source"}, in.SourceConfiguration)
	assert.Equal(t, models.ConnectorConfig{"destination": "raw", "injected": "destination"}, in.DestinationConfiguration)
	require.NotNil(t, in.State)
	assert.JSONEq(t, `{"state_key":"state_value"}`, string(in.State.State))
	assert.Equal(t, f.catalog, in.Catalog)
	assert.Equal(t, "pre_", in.Prefix)
	assert.False(t, in.CommitStateAsap)

	// source params are scoped to the source connection's own workspace
	assert.Equal(t, []string{
		"source:" + f.source.SourceDefinitionID.String() + ":" + f.source.WorkspaceID.String(),
		"destination:" + f.destination.DestinationDefinitionID.String() + ":" + f.destination.WorkspaceID.String(),
	}, f.oauth.calls)

	// raw configurations are never handed out
	assert.Equal(t, models.ConnectorConfig{"source": "raw"}, f.source.Configuration)
}

func TestGenerateSyncWorkflowInputSavesAttemptConfig(t *testing.T) {
	f := newFixture().withSyncJob().withLegacyState(`{"cursor":10}`)

	out, err := f.generator().GenerateSyncWorkflowInput(context.Background(), 3, jobID)
	require.NoError(t, err)

	require.Len(t, f.state.saves, 1)
	save := f.state.saves[0]
	assert.Equal(t, jobID, save.JobID)
	assert.Equal(t, 3, save.AttemptNumber)
	assert.Equal(t, f.connectionID, save.ConnectionID)
	assert.Equal(t, out.SyncInput.SourceConfiguration, save.SyncConfig.SourceConfiguration)
	assert.Equal(t, out.SyncInput.DestinationConfiguration, save.SyncConfig.DestinationConfiguration)
	assert.Equal(t, out.SyncInput.State, save.SyncConfig.State)

	// the saved snapshot does not alias the returned input
	out.SyncInput.SourceConfiguration["mutated"] = true
	assert.NotContains(t, save.SyncConfig.SourceConfiguration, "mutated")
}

func TestGenerateResetWorkflowInput(t *testing.T) {
	f := newFixture().withResetJob().withLegacyState(`{"state_key":"state_value"}`)

	out, err := f.generator().GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
	require.NoError(t, err)

	assert.Equal(t, models.JobRunConfig{JobID: "1", AttemptID: 1}, out.JobRunConfig)
	assert.Equal(t, models.EmptyConfig(), out.SyncInput.SourceConfiguration)
	assert.Equal(t, ResetJobSourceDockerImageStub, out.SourceLauncherConfig.DockerImage)
	assert.Equal(t, "destinationDockerImage", out.DestinationLauncherConfig.DockerImage)
	assert.Equal(t, models.ConnectorConfig{"destination": "raw", "injected": "destination"}, out.SyncInput.DestinationConfiguration)
	require.NotNil(t, out.SyncInput.State)
	assert.JSONEq(t, `{"state_key":"state_value"}`, string(out.SyncInput.State.State))
	assert.Zero(t, f.configs.sourceLookups)

	require.Len(t, f.state.saves, 1)
	save := f.state.saves[0]
	assert.Equal(t, jobID, save.JobID)
	assert.Equal(t, attemptID, save.AttemptNumber)
	assert.Equal(t, f.connectionID, save.ConnectionID)
	assert.Equal(t, models.EmptyConfig(), save.SyncConfig.SourceConfiguration)
	assert.Equal(t, out.SyncInput.DestinationConfiguration, save.SyncConfig.DestinationConfiguration)
	require.NotNil(t, save.SyncConfig.State)
	assert.JSONEq(t, `{"state_key":"state_value"}`, string(save.SyncConfig.State.State))
}

func TestGenerateResetWorkflowInputWithoutSource(t *testing.T) {
	f := newFixture().withResetJob()
	delete(f.configs.sources, f.source.SourceID)

	out, err := f.generator().GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
	require.NoError(t, err)
	assert.Equal(t, ResetJobSourceDockerImageStub, out.SourceLauncherConfig.DockerImage)
	assert.Nil(t, out.SyncInput.State)
	require.Len(t, f.state.saves, 1)
	assert.Nil(t, f.state.saves[0].SyncConfig.State)
}

func TestGeneratorLogsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	f := newFixture().withSyncJob()

	g := NewGenerator(f.jobs, f.configs, f.oauth, f.state, f.flags, logger)
	_, err := g.GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
	require.NoError(t, err)

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	assert.Equal(t, 1, strings.Count(line, `"component":`), line)
	assert.Contains(t, line, `"component":"jobinput"`)
}

func TestCommitStateAsapFollowsFlag(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		f := newFixture().withSyncJob()
		f.flags = featureflag.NewTestClient(map[string]bool{featureflag.CommitStatesAsap.Key: enabled})

		out, err := f.generator().GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
		require.NoError(t, err)
		assert.Equal(t, enabled, out.SyncInput.CommitStateAsap)
		// the attempt config is saved either way
		assert.Len(t, f.state.saves, 1)
	}
}

type connectionScopedFlags struct {
	connectionID uuid.UUID
}

func (c connectionScopedFlags) BoolVariation(_ context.Context, flag featureflag.Flag, fctx featureflag.Context) bool {
	return flag == featureflag.CommitStatesAsap && fctx == featureflag.Connection(c.connectionID)
}

func TestCommitStateAsapEvaluatedForConnection(t *testing.T) {
	f := newFixture().withSyncJob()
	g := NewGenerator(f.jobs, f.configs, f.oauth, f.state, connectionScopedFlags{connectionID: f.connectionID}, nil)

	out, err := g.GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
	require.NoError(t, err)
	assert.True(t, out.SyncInput.CommitStateAsap)
}

func TestGenerateSyncWorkflowInputIsRepeatable(t *testing.T) {
	f := newFixture().withSyncJob().withLegacyState(`{"cursor":1}`)
	g := f.generator()

	first, err := g.GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
	require.NoError(t, err)
	second, err := g.GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, f.state.saves, 2)
	assert.Equal(t, f.state.saves[0], f.state.saves[1])
}

func TestGenerateCheckConnectionInputs(t *testing.T) {
	f := newFixture().withSyncJob()

	out, err := f.generator().GenerateCheckConnectionInputs(context.Background(), attemptID, jobID)
	require.NoError(t, err)

	assert.Equal(t, models.IntegrationLauncherConfig{JobID: "1", AttemptID: 1, DockerImage: "sourceDockerImage"}, out.SourceLauncherConfig)
	assert.Equal(t, models.IntegrationLauncherConfig{JobID: "1", AttemptID: 1, DockerImage: "destinationDockerImage"}, out.DestinationLauncherConfig)
	assert.Equal(t, models.StandardCheckConnectionInput{
		ActorID:                 f.source.SourceID,
		ActorType:               models.ActorTypeSource,
		ConnectionConfiguration: models.ConnectorConfig{"source": "raw", "injected": "source"},
	}, out.SourceCheckConnectionInput)
	assert.Equal(t, models.StandardCheckConnectionInput{
		ActorID:                 f.destination.DestinationID,
		ActorType:               models.ActorTypeDestination,
		ConnectionConfiguration: models.ConnectorConfig{"destination": "raw", "injected": "destination"},
	}, out.DestinationCheckConnectionInput)

	assert.Zero(t, f.state.gets)
	assert.Empty(t, f.state.saves)
}

func TestGenerateCheckConnectionInputsRejectsReset(t *testing.T) {
	f := newFixture().withResetJob()

	_, err := f.generator().GenerateCheckConnectionInputs(context.Background(), attemptID, jobID)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Zero(t, f.state.gets)
}

func TestGenerateErrors(t *testing.T) {
	t.Run("job missing", func(t *testing.T) {
		f := newFixture()
		_, err := f.generator().GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = f.generator().GenerateCheckConnectionInputs(context.Background(), attemptID, jobID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("connection missing", func(t *testing.T) {
		f := newFixture().withSyncJob()
		delete(f.configs.syncs, f.connectionID)
		_, err := f.generator().GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
		var nf *models.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "connection", nf.Kind)
		assert.Empty(t, f.state.saves)
	})

	t.Run("destination definition missing", func(t *testing.T) {
		f := newFixture().withSyncJob()
		delete(f.configs.destinationDefs, f.destination.DestinationDefinitionID)
		_, err := f.generator().GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
		var nf *models.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "destination definition", nf.Kind)
	})

	t.Run("source missing on check", func(t *testing.T) {
		f := newFixture().withSyncJob()
		delete(f.configs.sources, f.source.SourceID)
		_, err := f.generator().GenerateCheckConnectionInputs(context.Background(), attemptID, jobID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("unsupported job type", func(t *testing.T) {
		f := newFixture()
		f.jobs.jobs[jobID] = models.Job{ID: jobID, ConfigType: models.ConfigTypeGetSpec, Scope: f.connectionID.String()}
		_, err := f.generator().GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
		assert.ErrorIs(t, err, models.ErrValidation)
		_, err = f.generator().GenerateCheckConnectionInputs(context.Background(), attemptID, jobID)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("scope is not a connection id", func(t *testing.T) {
		f := newFixture().withSyncJob()
		job := f.jobs.jobs[jobID]
		job.Scope = "workspace-7"
		f.jobs.jobs[jobID] = job
		_, err := f.generator().GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("transient state failure surfaces unchanged", func(t *testing.T) {
		f := newFixture().withSyncJob()
		boom := errors.New("state service unavailable")
		f.state.getErr = boom
		_, err := f.generator().GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, models.ErrNotFound)
		assert.NotErrorIs(t, err, models.ErrValidation)
		assert.Empty(t, f.state.saves)
	})

	t.Run("save failure", func(t *testing.T) {
		f := newFixture().withSyncJob()
		boom := errors.New("write failed")
		f.state.saveErr = boom
		_, err := f.generator().GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
		assert.ErrorIs(t, err, boom)
	})
}

func TestGeneratorSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	f := newFixture().withSyncJob()
	_, err := f.generator(WithTracerProvider(tp)).GenerateSyncWorkflowInput(context.Background(), attemptID, jobID)
	require.NoError(t, err)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{
		"jobinput.GetStandardSync",
		"jobinput.ResolveSource",
		"jobinput.ResolveDestination",
		"jobinput.GetState",
		"jobinput.SaveAttemptSyncConfig",
		"jobinput.GenerateSyncWorkflowInput",
	}, names)

	delete(f.configs.syncs, f.connectionID)
	_, err = f.generator(WithTracerProvider(tp)).GenerateCheckConnectionInputs(context.Background(), attemptID, jobID)
	require.Error(t, err)
	ended := sr.Ended()
	root := ended[len(ended)-1]
	assert.Equal(t, "jobinput.GenerateCheckConnectionInputs", root.Name())
	assert.Equal(t, codes.Error, root.Status().Code)
}
