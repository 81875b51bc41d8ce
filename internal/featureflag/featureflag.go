// Package featureflag resolves boolean flags for a connection or workspace.
package featureflag

import (
	"context"

	"github.com/google/uuid"
)

// Flag names a boolean flag and the value served when nothing overrides it.
type Flag struct {
	Key     string
	Default bool
}

// CommitStatesAsap asks the execution engine to commit state as soon as it is computed.
var CommitStatesAsap = Flag{Key: "platform.commit-states-asap", Default: false}

// Context is the entity a flag is evaluated for.
type Context struct {
	Kind string
	Key  string
}

const (
	KindConnection = "connection"
	KindWorkspace  = "workspace"
)

func Connection(id uuid.UUID) Context {
	return Context{Kind: KindConnection, Key: id.String()}
}

func Workspace(id uuid.UUID) Context {
	return Context{Kind: KindWorkspace, Key: id.String()}
}

// Client evaluates flags. Implementations fall back to the flag's default
// rather than failing the caller.
type Client interface {
	BoolVariation(ctx context.Context, flag Flag, fctx Context) bool
}

// NoopClient serves every flag's default.
type NoopClient struct{}

func (NoopClient) BoolVariation(_ context.Context, flag Flag, _ Context) bool {
	return flag.Default
}

// TestClient serves values from a fixed map keyed by flag key, ignoring the context.
type TestClient struct {
	Values map[string]bool
}

func NewTestClient(values map[string]bool) *TestClient {
	return &TestClient{Values: values}
}

func (c *TestClient) BoolVariation(_ context.Context, flag Flag, _ Context) bool {
	if v, ok := c.Values[flag.Key]; ok {
		return v
	}
	return flag.Default
}
