// Package registry implements the service registry: a mapping from
// service_name to a descriptor and an optionally-built, shared client,
// built lazily and single-flighted, per spec §4.1.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/logging"
	"github.com/mstreamio/mstream/internal/svcerr"
	"golang.org/x/sync/singleflight"
)

// Descriptor is the immutable configuration for one named service.
type Descriptor struct {
	Name   string
	Kind   core.ServiceKind
	Config any
}

// Builder constructs a client from a descriptor. Each service kind
// registers exactly one builder.
type Builder func(ctx context.Context, d Descriptor) (any, error)

type entry struct {
	descriptor Descriptor

	mu     sync.Mutex
	client any // built lazily; nil until first successful build.
}

// Registry is the process-wide shared mutable structure named in spec §5.
// Reads dominate; register/remove take an exclusive lock, lookups a shared
// one. Build-on-first-use is single-flighted per service name.
type Registry struct {
	log      *logging.Logger
	builders map[core.ServiceKind]Builder

	mu       sync.RWMutex
	entries  map[string]*entry
	inflight singleflight.Group
}

// New creates an empty Registry. Register kind-specific builders with
// RegisterBuilder before resolving any client.
func New(log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Registry{
		log:      log,
		builders: make(map[core.ServiceKind]Builder),
		entries:  make(map[string]*entry),
	}
}

// RegisterBuilder installs the client builder for a service kind.
func (r *Registry) RegisterBuilder(kind core.ServiceKind, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[kind] = b
}

// Register inserts a descriptor. Fails with DuplicateService if name exists.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[d.Name]; exists {
		return svcerr.New(svcerr.CodeDuplicateService, fmt.Sprintf("service %q already registered", d.Name))
	}
	r.entries[d.Name] = &entry{descriptor: d}
	return nil
}

// Remove deletes a descriptor. Clients already built and held by pipelines
// keep working (shared ownership); subsequent lookups fail with
// UnknownService.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// ServiceDefinition returns the descriptor for name, or UnknownService.
func (r *Registry) ServiceDefinition(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Descriptor{}, svcerr.New(svcerr.CodeUnknownService, fmt.Sprintf("unknown service %q", name))
	}
	return e.descriptor, nil
}

// ServiceNames returns every registered service name, for the management
// API's list-services operation.
func (r *Registry) ServiceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// client resolves the descriptor for name, checks it matches wantKind, and
// returns the built client, building it on first use. Build-on-first-use is
// single-flighted per name: concurrent callers for the same name wait for
// the in-flight build and share its result. A build failure is not cached —
// the next caller retries.
func (r *Registry) client(ctx context.Context, name string, wantKind core.ServiceKind) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, svcerr.New(svcerr.CodeUnknownService, fmt.Sprintf("unknown service %q", name))
	}
	if e.descriptor.Kind != wantKind {
		return nil, svcerr.New(svcerr.CodeServiceKindMismatch,
			fmt.Sprintf("service %q is kind %q, want %q", name, e.descriptor.Kind, wantKind))
	}

	e.mu.Lock()
	if e.client != nil {
		built := e.client
		e.mu.Unlock()
		return built, nil
	}
	e.mu.Unlock()

	built, err, _ := r.inflight.Do(name, func() (any, error) {
		e.mu.Lock()
		if e.client != nil {
			existing := e.client
			e.mu.Unlock()
			return existing, nil
		}
		e.mu.Unlock()

		r.mu.RLock()
		builder, ok := r.builders[wantKind]
		r.mu.RUnlock()
		if !ok {
			return nil, svcerr.New(svcerr.CodeUnsupportedService, fmt.Sprintf("no builder registered for kind %q", wantKind))
		}

		client, err := builder(ctx, e.descriptor)
		if err != nil {
			r.log.WithError(err).WithField("service", name).Warn("service client build failed, not caching")
			return nil, err
		}

		e.mu.Lock()
		e.client = client
		e.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return built, nil
}

// MongoDBClient returns the shared mongo client for name, building it on
// first use.
func (r *Registry) MongoDBClient(ctx context.Context, name string) (any, error) {
	return r.client(ctx, name, core.ServiceKindMongoDB)
}

// HTTPClient returns the shared HTTP client for name, building it on first
// use.
func (r *Registry) HTTPClient(ctx context.Context, name string) (any, error) {
	return r.client(ctx, name, core.ServiceKindHTTP)
}

// GCPAuth returns the shared Pub/Sub clients built for name (the wiring in
// cmd/mstream builds a *pipeline.GCPClients), used by Pub/Sub schema and
// sink providers.
func (r *Registry) GCPAuth(ctx context.Context, name string) (any, error) {
	return r.client(ctx, name, core.ServiceKindPubSub)
}

// UDFMiddleware returns the shared UDF script for name (the wiring in
// cmd/mstream builds the script source as a string).
func (r *Registry) UDFMiddleware(ctx context.Context, name string) (any, error) {
	return r.client(ctx, name, core.ServiceKindUDF)
}

// PostgresClient returns the shared postgres connection pool for name,
// domain-stack addition backing the optional SQL job store.
func (r *Registry) PostgresClient(ctx context.Context, name string) (any, error) {
	return r.client(ctx, name, core.ServiceKindPostgres)
}

// KafkaClient returns the shared kafka client for name.
func (r *Registry) KafkaClient(ctx context.Context, name string) (any, error) {
	return r.client(ctx, name, core.ServiceKindKafka)
}
