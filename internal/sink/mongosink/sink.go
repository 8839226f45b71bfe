// Package mongosink publishes SinkEvents into a MongoDB collection: an
// upsert by "_id" when the decoded document carries one, else an insert.
package mongosink

import (
	"context"
	"encoding/json"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/sink"
	"github.com/mstreamio/mstream/internal/svcerr"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Sink writes decoded JSON documents into a collection.
type Sink struct {
	collection *mongo.Collection
	encoding   core.Encoding
}

// New builds a Sink writing into collection. encoding is always
// core.EncodingJSON in practice since the sink decodes payload as JSON.
func New(collection *mongo.Collection, encoding core.Encoding) *Sink {
	return &Sink{collection: collection, encoding: encoding}
}

var _ sink.Publisher = (*Sink)(nil)

func (s *Sink) Encoding() core.Encoding { return s.encoding }

// Publish decodes payload as a JSON document and upserts it by "_id" when
// present, else inserts it, returning the resulting object id.
func (s *Sink) Publish(ctx context.Context, id string, payload []byte, key []byte, attributes map[string]string) (sink.Result, error) {
	var doc bson.M
	if err := json.Unmarshal(payload, &doc); err != nil {
		return sink.Result{}, svcerr.Wrap(svcerr.CodeSchemaValidationError, "decoding document for mongo sink", err)
	}

	if docID, ok := doc["_id"]; ok {
		_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": docID}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return sink.Result{}, svcerr.Wrap(svcerr.CodeSinkTransient, "mongo sink upsert error", err)
		}
		return sink.Result{MessageID: idString(docID)}, nil
	}

	res, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		return sink.Result{}, svcerr.Wrap(svcerr.CodeSinkTransient, "mongo sink insert error", err)
	}
	return sink.Result{MessageID: idString(res.InsertedID)}, nil
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	default:
		b, err := json.Marshal(id)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
