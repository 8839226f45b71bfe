// Package schema defines the schema provider contract and a small registry
// that caches fetched schemas by (service, resource), per spec §3/§4.2.
//
// The wire codec itself (Avro, JSON Schema) is treated as a pure library
// concern out of scope for the core (spec §1); FieldSchema below is a
// minimal concrete implementation that exercises the same Schema contract
// a real Avro/JSON-Schema encoder would.
package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/svcerr"
)

// Provider fetches a named schema from its backing store.
type Provider interface {
	FetchSchema(ctx context.Context, resource string) (core.Schema, error)
}

// Registry caches schemas fetched within a pipeline by (service, resource),
// per spec §3: "Schemas are immutable once fetched and are cached by
// (service, resource) within a pipeline."
type Registry struct {
	mu    sync.RWMutex
	cache map[string]core.Schema
}

// NewRegistry creates an empty schema cache.
func NewRegistry() *Registry {
	return &Registry{cache: make(map[string]core.Schema)}
}

// Get fetches the schema for (service, resource) through provider, caching
// the result for subsequent calls with the same key.
func (r *Registry) Get(ctx context.Context, provider Provider, service, resource string) (core.Schema, error) {
	key := service + "/" + resource

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	s, err := provider.FetchSchema(ctx, resource)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.CodeSchemaFetchError, fmt.Sprintf("fetching schema %s", key), err)
	}

	r.mu.Lock()
	r.cache[key] = s
	r.mu.Unlock()
	return s, nil
}

// Invalidate evicts the cached schema for (service, resource), if any.
func (r *Registry) Invalidate(service, resource string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, service+"/"+resource)
}

// InvalidateAll clears the entire cache, forcing every subsequent Get to
// refetch from its provider.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]core.Schema)
}
