package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/middleware"
	"github.com/mstreamio/mstream/internal/middleware/httpmw"
	"github.com/mstreamio/mstream/internal/middleware/udf"
	"github.com/mstreamio/mstream/internal/registry"
	"github.com/mstreamio/mstream/internal/svcerr"
)

// buildMiddlewares instantiates the connector's ordered middleware list
// (spec §4.2, step 2). No schema is attached to a provider: the schemas
// argument is not used, and a middleware reference's schema_id has no
// effect on how the middleware runs.
func (b *Builder) buildMiddlewares(ctx context.Context, conn core.Connector, schemas map[string]core.Schema) (*middleware.Chain, error) {
	stages := make([]middleware.Middleware, 0, len(conn.Middlewares))

	for _, ref := range conn.Middlewares {
		desc, err := b.registry.ServiceDefinition(ref.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("middleware %q: %w", ref.ServiceName, err)
		}

		stage, err := b.buildOneMiddleware(ctx, desc, ref)
		if err != nil {
			return nil, fmt.Errorf("middleware %q: %w", ref.ServiceName, err)
		}
		stages = append(stages, stage)
	}

	return middleware.New(stages...), nil
}

func (b *Builder) buildOneMiddleware(ctx context.Context, desc registry.Descriptor, ref core.ServiceReference) (middleware.Middleware, error) {
	switch desc.Kind {
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
		return httpmw.New(ref.ServiceName, hc, endpoint, ref.OutputEncoding), nil

	case core.ServiceKindUDF:
		client, err := b.registry.UDFMiddleware(ctx, ref.ServiceName)
		if err != nil {
			return nil, err
		}
		source, ok := client.(string)
		if !ok {
			return nil, svcerr.New(svcerr.CodeUnsupportedService, fmt.Sprintf("service %q did not build a udf script", ref.ServiceName))
		}
		opBudget := settingUint(desc, "op_budget")
		timeout := settingDuration(desc, "timeout")
		return udf.New(ref.ServiceName, source, opBudget, timeout), nil

	default:
		return nil, svcerr.New(svcerr.CodeUnsupportedService, fmt.Sprintf("service %q kind %q is not a middleware", ref.ServiceName, desc.Kind))
	}
}

func settingUint(desc registry.Descriptor, key string) uint64 {
	settings, ok := desc.Config.(map[string]any)
	if !ok {
		return 0
	}
	switch v := settings[key].(type) {
	case int64:
		return uint64(v)
	case int:
		return uint64(v)
	case float64:
		return uint64(v)
	default:
		return 0
	}
}

func settingDuration(desc registry.Descriptor, key string) time.Duration {
	settings, ok := desc.Config.(map[string]any)
	if !ok {
		return 0
	}
	switch v := settings[key].(type) {
	case string:
		d, _ := time.ParseDuration(v)
		return d
	case int64:
		return time.Duration(v)
	default:
		return 0
	}
}
