package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/registry"
	"github.com/mstreamio/mstream/internal/source"
	"github.com/mstreamio/mstream/internal/source/mongosource"
	"github.com/mstreamio/mstream/internal/svcerr"
	"go.mongodb.org/mongo-driver/mongo"
)

// buildSource instantiates the connector's source reader (spec §4.2, step
// 3). The source is always a MongoDB change stream; other kinds are
// unsupported in the source role.
func (b *Builder) buildSource(ctx context.Context, conn core.Connector, schemas map[string]core.Schema) (source.Reader, error) {
	ref := conn.Source
	desc, err := b.registry.ServiceDefinition(ref.ServiceName)
	if err != nil {
		return nil, err
	}

	if desc.Kind != core.ServiceKindMongoDB {
		return nil, svcerr.New(svcerr.CodeUnsupportedService, fmt.Sprintf("service %q kind %q is not a valid source", ref.ServiceName, desc.Kind))
	}

	client, err := b.registry.MongoDBClient(ctx, ref.ServiceName)
	if err != nil {
		return nil, err
	}
	mc, ok := client.(*mongo.Client)
	if !ok {
		return nil, svcerr.New(svcerr.CodeUnsupportedService, fmt.Sprintf("service %q did not build a mongo client", ref.ServiceName))
	}

	dbName, collName := resourceDBAndCollection(desc, ref.Resource)
	collection := mc.Database(dbName).Collection(collName)

	return mongosource.New(collection, b.log, conn.EffectiveBatchSize()), nil
}

// resourceDBAndCollection splits a "db.collection" resource string,
// defaulting the database to the service's configured db_name when the
// resource carries no dot.
func resourceDBAndCollection(desc registry.Descriptor, resource string) (string, string) {
	if idx := strings.IndexByte(resource, '.'); idx >= 0 {
		return resource[:idx], resource[idx+1:]
	}
	return settingString(desc, "db_name"), resource
}
