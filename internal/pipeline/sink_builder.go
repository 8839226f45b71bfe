package pipeline

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/registry"
	"github.com/mstreamio/mstream/internal/sink"
	"github.com/mstreamio/mstream/internal/sink/httpsink"
	"github.com/mstreamio/mstream/internal/sink/kafkasink"
	"github.com/mstreamio/mstream/internal/sink/mongosink"
	"github.com/mstreamio/mstream/internal/sink/pubsubsink"
	"github.com/mstreamio/mstream/internal/svcerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.mongodb.org/mongo-driver/mongo"
)

// buildSinks instantiates each sink the connector declares, in declaration
// order, with its matching schema (spec §4.2, step 4).
func (b *Builder) buildSinks(ctx context.Context, conn core.Connector, schemas map[string]core.Schema) ([]SinkBinding, error) {
	bindings := make([]SinkBinding, 0, len(conn.Sinks))

	for _, ref := range conn.Sinks {
		desc, err := b.registry.ServiceDefinition(ref.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("sink %q: %w", ref.ServiceName, err)
		}

		publisher, err := b.buildOneSink(ctx, desc, ref)
		if err != nil {
			return nil, fmt.Errorf("sink %q: %w", ref.ServiceName, err)
		}

		bindings = append(bindings, SinkBinding{
			ServiceName: ref.ServiceName,
			Publisher:   publisher,
			Schema:      emptySchemaOr(schemas, ref.SchemaID),
		})
	}

	return bindings, nil
}

func (b *Builder) buildOneSink(ctx context.Context, desc registry.Descriptor, ref core.ServiceReference) (sink.Publisher, error) {
	encoding := ref.OutputEncoding
	if encoding == "" {
		encoding = core.EncodingJSON
	}

	switch desc.Kind {
	case core.ServiceKindKafka:
		client, err := b.registry.KafkaClient(ctx, ref.ServiceName)
		if err != nil {
			return nil, err
		}
		kc, ok := client.(*kgo.Client)
		if !ok {
			return nil, svcerr.New(svcerr.CodeUnsupportedService, fmt.Sprintf("service %q did not build a kafka client", ref.ServiceName))
		}
		return kafkasink.New(kc, ref.Resource, encoding), nil

	case core.ServiceKindPubSub:
		client, err := b.registry.GCPAuth(ctx, ref.ServiceName)
		if err != nil {
			return nil, err
		}
		gc, ok := client.(*GCPClients)
		if !ok {
			return nil, svcerr.New(svcerr.CodeUnsupportedService, fmt.Sprintf("service %q did not build gcp clients", ref.ServiceName))
		}
		return pubsubsink.New(gc.Client.Topic(ref.Resource), encoding), nil

	case core.ServiceKindMongoDB:
		client, err := b.registry.MongoDBClient(ctx, ref.ServiceName)
		if err != nil {
			return nil, err
		}
		mc, ok := client.(*mongo.Client)
		if !ok {
			return nil, svcerr.New(svcerr.CodeUnsupportedService, fmt.Sprintf("service %q did not build a mongo client", ref.ServiceName))
		}
		dbName, collName := resourceDBAndCollection(desc, ref.Resource)
		return mongosink.New(mc.Database(dbName).Collection(collName), core.EncodingJSON), nil

	case core.ServiceKindHTTP:
		client, err := b.registry.HTTPClient(ctx, ref.ServiceName)
		if err != nil {
			return nil, err
		}
		hc, ok := client.(*http.Client)
		if !ok {
			return nil, svcerr.New(svcerr.CodeUnsupportedService, fmt.Sprintf("service %q did not build an http client", ref.ServiceName))
		}
		endpoint := settingString(desc, "endpoint")
		return httpsink.New(hc, endpoint, encoding), nil

	default:
		return nil, svcerr.New(svcerr.CodeUnsupportedService, fmt.Sprintf("service %q kind %q is not a valid sink", ref.ServiceName, desc.Kind))
	}
}
