// Package pipeline resolves a Connector declaration into the live
// collaborators an event handler drives, per spec §4.2. Build order is
// fixed: schemas, then middlewares, then source, then sinks — a step
// failure aborts the whole build with the step name attached as context.
//
// Registry clients are resolved through the typed accessors in
// internal/registry and asserted to the concrete driver types the service
// kind implies: ServiceKindMongoDB -> *mongo.Client, ServiceKindHTTP ->
// *http.Client, ServiceKindKafka -> *kgo.Client, ServiceKindPubSub ->
// *GCPClients, ServiceKindUDF -> a loaded script string. Wiring code (the
// CLI entrypoint) registers builders that produce these types.
package pipeline

import (
	"context"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/logging"
	"github.com/mstreamio/mstream/internal/middleware"
	"github.com/mstreamio/mstream/internal/registry"
	"github.com/mstreamio/mstream/internal/schema"
	"github.com/mstreamio/mstream/internal/sink"
	"github.com/mstreamio/mstream/internal/source"
	"github.com/mstreamio/mstream/internal/svcerr"
)

// DefaultSettleDelay is the pause between schema fetches spec §4.2 names,
// to tolerate eventually-consistent schema registries.
const DefaultSettleDelay = 500 * time.Millisecond

// GCPClients bundles the Pub/Sub collaborators a single "pubsub" service
// descriptor builds: the publish client, the schema registry client, and
// the project id both are scoped to.
type GCPClients struct {
	Client    *pubsub.Client
	Schema    *pubsub.SchemaClient
	ProjectID string
}

// SinkBinding pairs a built publisher with the schema its events encode
// against, or core.EmptySchema when the sink reference names no schema_id
// (its events then reach the publisher unencoded).
type SinkBinding struct {
	ServiceName string
	Publisher   sink.Publisher
	Schema      core.Schema
}

// Pipeline is the fully resolved, runnable form of a Connector.
type Pipeline struct {
	Name      string
	Connector core.Connector
	Schemas   map[string]core.Schema
	Source    source.Reader
	Chain     *middleware.Chain
	Sinks     []SinkBinding
}

// Builder resolves Connector declarations into Pipelines against a shared
// Registry.
type Builder struct {
	registry    *registry.Registry
	log         *logging.Logger
	schemaCache *schema.Registry
	settleDelay time.Duration
}

// Option configures a Builder.
type Option func(*Builder)

// WithSettleDelay overrides the pause between schema fetches; tests pass 0.
func WithSettleDelay(d time.Duration) Option {
	return func(b *Builder) { b.settleDelay = d }
}

// NewBuilder creates a Builder. Schemas are cached across Build calls made
// on the same Builder, per spec §3's "cached by (service, resource) within
// a pipeline" — callers that want per-pipeline isolation should construct
// one Builder per pipeline.
func NewBuilder(reg *registry.Registry, log *logging.Logger, opts ...Option) *Builder {
	if log == nil {
		log = logging.NewDefault()
	}
	b := &Builder{
		registry:    reg,
		log:         log,
		schemaCache: schema.NewRegistry(),
		settleDelay: DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build resolves conn into a runnable Pipeline. Any step failure aborts the
// whole build with the step name attached as context (spec §4.2).
func (b *Builder) Build(ctx context.Context, conn core.Connector) (*Pipeline, error) {
	p := &Pipeline{Name: conn.Name, Connector: conn}

	schemas, err := b.buildSchemas(ctx, conn)
	if err != nil {
		return nil, asStep(err, "schemas")
	}
	p.Schemas = schemas

	chain, err := b.buildMiddlewares(ctx, conn, schemas)
	if err != nil {
		return nil, asStep(err, "middlewares")
	}
	p.Chain = chain

	src, err := b.buildSource(ctx, conn, schemas)
	if err != nil {
		return nil, asStep(err, "source")
	}
	p.Source = src

	sinks, err := b.buildSinks(ctx, conn, schemas)
	if err != nil {
		return nil, asStep(err, "sinks")
	}
	p.Sinks = sinks

	return p, nil
}

func asStep(err error, step string) error {
	if svcErr, ok := svcerr.As(err); ok {
		return svcErr.WithStep(step)
	}
	return svcerr.Wrap(svcerr.CodeConfigError, "pipeline build failed", err).WithStep(step)
}

func emptySchemaOr(schemas map[string]core.Schema, id string) core.Schema {
	if id == "" {
		return core.EmptySchema{}
	}
	if s, ok := schemas[id]; ok {
		return s
	}
	return core.EmptySchema{}
}
