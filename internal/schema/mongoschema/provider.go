// Package mongoschema fetches schema definitions from a MongoDB collection,
// grounded on the original mstream's mongo-backed SchemaProvider
// (src/provision/pipeline/schema.rs: Service::MongoDb branch).
package mongoschema

import (
	"context"
	"fmt"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/schema"
	"github.com/mstreamio/mstream/internal/svcerr"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// storedSchema is the document shape a schema collection entry takes.
type storedSchema struct {
	SchemaID string        `bson:"schema_id"`
	Version  string        `bson:"version"`
	Fields   []storedField `bson:"fields"`
}

type storedField struct {
	Name string `bson:"name"`
	Type string `bson:"type"`
}

// Provider fetches schema documents keyed by resource (schema_id) from a
// single MongoDB collection.
type Provider struct {
	collection *mongo.Collection
}

// New builds a Provider backed by collectionName in db.
func New(db *mongo.Database, collectionName string) *Provider {
	return &Provider{collection: db.Collection(collectionName)}
}

var _ schema.Provider = (*Provider)(nil)

// FetchSchema looks up resource by schema_id and builds the field schema it
// describes.
func (p *Provider) FetchSchema(ctx context.Context, resource string) (core.Schema, error) {
	var doc storedSchema
	if err := p.collection.FindOne(ctx, bson.M{"schema_id": resource}).Decode(&doc); err != nil {
		return nil, svcerr.Wrap(svcerr.CodeSchemaFetchError, fmt.Sprintf("schema %q not found", resource), err)
	}

	fields := make([]schema.Field, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		fields = append(fields, schema.Field{Name: f.Name, Type: schema.FieldType(f.Type)})
	}
	return schema.NewFieldSchema(doc.SchemaID, doc.Version, fields), nil
}
