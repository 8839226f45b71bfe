// Package pubsubschema fetches schema definitions from Google Cloud
// Pub/Sub's schema registry, grounded on the original mstream's
// src/provision/pipeline/schema.rs Service::PubSub branch.
package pubsubschema

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/schema"
	"github.com/mstreamio/mstream/internal/svcerr"
)

// pubsubFieldSchema is the JSON shape a Pub/Sub avro/json schema definition
// takes when it was authored as a field-list (the same declared-field shape
// FieldSchema models).
type pubsubFieldSchema struct {
	Fields []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"fields"`
}

// Provider fetches schema revisions from a Pub/Sub project's schema client.
type Provider struct {
	client    *pubsub.SchemaClient
	projectID string
}

// New builds a Provider against an already-authenticated schema client.
func New(client *pubsub.SchemaClient, projectID string) *Provider {
	return &Provider{client: client, projectID: projectID}
}

var _ schema.Provider = (*Provider)(nil)

// FetchSchema retrieves the named schema's latest revision and parses its
// field definition.
func (p *Provider) FetchSchema(ctx context.Context, resource string) (core.Schema, error) {
	name := fmt.Sprintf("projects/%s/schemas/%s", p.projectID, resource)
	cfg, err := p.client.Schema(ctx, name, pubsub.SchemaViewFull)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.CodeSchemaFetchError, fmt.Sprintf("fetching pubsub schema %q", resource), err)
	}

	var parsed pubsubFieldSchema
	if err := json.Unmarshal([]byte(cfg.Definition), &parsed); err != nil {
		return nil, svcerr.Wrap(svcerr.CodeSchemaFetchError, fmt.Sprintf("parsing pubsub schema %q", resource), err)
	}

	fields := make([]schema.Field, 0, len(parsed.Fields))
	for _, f := range parsed.Fields {
		fields = append(fields, schema.Field{Name: f.Name, Type: schema.FieldType(f.Type)})
	}
	return schema.NewFieldSchema(resource, cfg.RevisionID, fields), nil
}
