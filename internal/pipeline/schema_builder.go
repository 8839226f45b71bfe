package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/registry"
	"github.com/mstreamio/mstream/internal/schema"
	"github.com/mstreamio/mstream/internal/schema/mongoschema"
	"github.com/mstreamio/mstream/internal/schema/pubsubschema"
	"github.com/mstreamio/mstream/internal/svcerr"
	"go.mongodb.org/mongo-driver/mongo"
)

// buildSchemas resolves every SchemaReference a connector declares, in
// order, with a settle delay between fetches to tolerate
// eventually-consistent schema registries (spec §4.2, step 1).
func (b *Builder) buildSchemas(ctx context.Context, conn core.Connector) (map[string]core.Schema, error) {
	schemas := make(map[string]core.Schema, len(conn.Schemas))

	for i, ref := range conn.Schemas {
		provider, err := b.schemaProvider(ctx, ref.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("schema %q: %w", ref.ID, err)
		}

		s, err := b.schemaCache.Get(ctx, provider, ref.ServiceName, ref.Resource)
		if err != nil {
			return nil, fmt.Errorf("schema %q: %w", ref.ID, err)
		}
		schemas[ref.ID] = s

		if i < len(conn.Schemas)-1 && b.settleDelay > 0 {
			select {
			case <-time.After(b.settleDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return schemas, nil
}

// schemaProvider resolves serviceName's descriptor and returns the
// schema.Provider its kind implies.
func (b *Builder) schemaProvider(ctx context.Context, serviceName string) (schema.Provider, error) {
	desc, err := b.registry.ServiceDefinition(serviceName)
	if err != nil {
		return nil, err
	}

	switch desc.Kind {
	case core.ServiceKindMongoDB:
		client, err := b.registry.MongoDBClient(ctx, serviceName)
		if err != nil {
			return nil, err
		}
		mc, ok := client.(*mongo.Client)
		if !ok {
			return nil, svcerr.New(svcerr.CodeUnsupportedService, fmt.Sprintf("service %q did not build a mongo client", serviceName))
		}
		return mongoschema.New(mc.Database(settingString(desc, "db_name")), settingString(desc, "schema_collection")), nil

	case core.ServiceKindPubSub:
		client, err := b.registry.GCPAuth(ctx, serviceName)
		if err != nil {
			return nil, err
		}
		gc, ok := client.(*GCPClients)
		if !ok {
			return nil, svcerr.New(svcerr.CodeUnsupportedService, fmt.Sprintf("service %q did not build gcp clients", serviceName))
		}
		return pubsubschema.New(gc.Schema, gc.ProjectID), nil

	default:
		return nil, svcerr.New(svcerr.CodeUnsupportedService, fmt.Sprintf("service %q kind %q cannot provide schemas", serviceName, desc.Kind))
	}
}

// settingString reads a string setting from a descriptor's config, which
// wiring populates as a map[string]any sourced from the TOML [[services]]
// entry's "settings" table.
func settingString(desc registry.Descriptor, key string) string {
	settings, ok := desc.Config.(map[string]any)
	if !ok {
		return ""
	}
	v, _ := settings[key].(string)
	return v
}
