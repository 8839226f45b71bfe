package mstreamconfig

import "github.com/mstreamio/mstream/internal/domain/core"

// ToConnector converts the TOML-shaped ConnectorConfig into the domain
// Connector the pipeline builder consumes.
func (c ConnectorConfig) ToConnector() core.Connector {
	schemas := make([]core.SchemaReference, 0, len(c.Schemas))
	for _, s := range c.Schemas {
		schemas = append(schemas, core.SchemaReference{ID: s.ID, ServiceName: s.ServiceName, Resource: s.Resource})
	}
	middlewares := make([]core.ServiceReference, 0, len(c.Middlewares))
	for _, m := range c.Middlewares {
		middlewares = append(middlewares, m.toRef())
	}
	sinks := make([]core.ServiceReference, 0, len(c.Sinks))
	for _, s := range c.Sinks {
		sinks = append(sinks, s.toRef())
	}

	return core.Connector{
		Name:              c.Name,
		Source:            c.Source.toRef(),
		Schemas:           schemas,
		Middlewares:       middlewares,
		Sinks:             sinks,
		BatchSize:         c.BatchSize,
		IsBatchingEnabled: c.IsBatchingEnabled,
		FailFast:          c.FailFast,
	}
}

func (r ServiceRefConfig) toRef() core.ServiceReference {
	encoding := core.Encoding(r.OutputEncoding)
	if encoding == "" {
		encoding = core.EncodingRaw
	}
	return core.ServiceReference{
		ServiceName:    r.ServiceName,
		Resource:       r.Resource,
		SchemaID:       r.SchemaID,
		OutputEncoding: encoding,
	}
}
