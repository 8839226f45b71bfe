// Package mongostore persists jobs and checkpoints in MongoDB, grounded on
// the original mstream's job_manager/mongodb_store.rs: one collection per
// document type, Job keyed by connector_name, Checkpoint keyed by
// (connector_name, timestamp) with a descending-timestamp index.
package mongostore

import (
	"context"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/jobmanager"
	"github.com/mstreamio/mstream/internal/svcerr"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists Job documents in one collection and Checkpoint documents
// in another, both within the same database.
type Store struct {
	jobs        *mongo.Collection
	checkpoints *mongo.Collection
}

// New builds a Store over db's "jobs" and "checkpoints" collections.
// EnsureIndexes should be called once at process start.
func New(db *mongo.Database) *Store {
	return &Store{
		jobs:        db.Collection("jobs"),
		checkpoints: db.Collection("checkpoints"),
	}
}

var _ jobmanager.Storage = (*Store)(nil)

// EnsureIndexes creates the descending-timestamp index on checkpoints spec
// §6 names, keyed by connector_name.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.checkpoints.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "connector_name", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return svcerr.Wrap(svcerr.CodeConfigError, "creating checkpoint index", err)
	}
	return nil
}

func (s *Store) PutJob(ctx context.Context, job core.Job) error {
	_, err := s.jobs.ReplaceOne(ctx, bson.M{"_id": job.ConnectorName}, jobDoc(job), options.Replace().SetUpsert(true))
	if err != nil {
		return svcerr.Wrap(svcerr.CodeConfigError, "persisting job", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, connectorName string) (core.Job, bool, error) {
	var doc storedJob
	err := s.jobs.FindOne(ctx, bson.M{"_id": connectorName}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return core.Job{}, false, nil
	}
	if err != nil {
		return core.Job{}, false, svcerr.Wrap(svcerr.CodeConfigError, "loading job", err)
	}
	return doc.toCore(), true, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]core.Job, error) {
	cur, err := s.jobs.Find(ctx, bson.M{})
	if err != nil {
		return nil, svcerr.Wrap(svcerr.CodeConfigError, "listing jobs", err)
	}
	defer cur.Close(ctx)

	var docs []storedJob
	if err := cur.All(ctx, &docs); err != nil {
		return nil, svcerr.Wrap(svcerr.CodeConfigError, "decoding jobs", err)
	}
	out := make([]core.Job, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toCore())
	}
	return out, nil
}

func (s *Store) DeleteJob(ctx context.Context, connectorName string) error {
	_, err := s.jobs.DeleteOne(ctx, bson.M{"_id": connectorName})
	if err != nil {
		return svcerr.Wrap(svcerr.CodeConfigError, "deleting job", err)
	}
	return nil
}

func (s *Store) AppendCheckpoint(ctx context.Context, cp core.Checkpoint) error {
	_, err := s.checkpoints.InsertOne(ctx, checkpointDoc(cp))
	if err != nil {
		return svcerr.Wrap(svcerr.CodeConfigError, "appending checkpoint", err)
	}
	return nil
}

func (s *Store) ListCheckpoints(ctx context.Context, connectorName string) ([]core.Checkpoint, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	cur, err := s.checkpoints.Find(ctx, bson.M{"connector_name": connectorName}, opts)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.CodeConfigError, "listing checkpoints", err)
	}
	defer cur.Close(ctx)

	var docs []storedCheckpoint
	if err := cur.All(ctx, &docs); err != nil {
		return nil, svcerr.Wrap(svcerr.CodeConfigError, "decoding checkpoints", err)
	}
	out := make([]core.Checkpoint, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toCore())
	}
	return out, nil
}

// PruneCheckpoints keeps the keep most recent checkpoints for
// connectorName and deletes the rest, using the descending-timestamp index.
func (s *Store) PruneCheckpoints(ctx context.Context, connectorName string, keep int) error {
	if keep < 0 {
		return nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetSkip(int64(keep)).SetProjection(bson.M{"_id": 1})
	cur, err := s.checkpoints.Find(ctx, bson.M{"connector_name": connectorName}, opts)
	if err != nil {
		return svcerr.Wrap(svcerr.CodeConfigError, "finding stale checkpoints", err)
	}
	defer cur.Close(ctx)

	var stale []bson.M
	if err := cur.All(ctx, &stale); err != nil {
		return svcerr.Wrap(svcerr.CodeConfigError, "decoding stale checkpoints", err)
	}
	if len(stale) == 0 {
		return nil
	}
	ids := make([]any, len(stale))
	for i, d := range stale {
		ids[i] = d["_id"]
	}
	if _, err := s.checkpoints.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return svcerr.Wrap(svcerr.CodeConfigError, "pruning checkpoints", err)
	}
	return nil
}

func (s *Store) LatestCheckpoint(ctx context.Context, connectorName string) (core.Checkpoint, bool, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	var doc storedCheckpoint
	err := s.checkpoints.FindOne(ctx, bson.M{"connector_name": connectorName}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return core.Checkpoint{}, false, nil
	}
	if err != nil {
		return core.Checkpoint{}, false, svcerr.Wrap(svcerr.CodeConfigError, "loading latest checkpoint", err)
	}
	return doc.toCore(), true, nil
}
