// Package mongosource implements the MongoDB change-stream source reader,
// grounded on the original mstream's cmd/event_handler.rs consumer loop and
// the teacher's ticker-driven internal/app/services/automation/scheduler.go
// lifecycle shape.
package mongosource

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/logging"
	"github.com/mstreamio/mstream/internal/resilience"
	"github.com/mstreamio/mstream/internal/source"
	"github.com/mstreamio/mstream/internal/svcerr"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Reader watches a single collection's change stream and emits SourceEvents
// in change order, reconnecting from the last emitted resume token on
// transient connection loss.
type Reader struct {
	collection *mongo.Collection
	log        *logging.Logger
	bufferSize int

	mu          sync.Mutex
	resumeToken bson.Raw
	lastErr     error
}

var _ source.Reader = (*Reader)(nil)

// New builds a Reader over collection. bufferSize sets the channel capacity
// (spec §4.3: the pipeline's batch_size, or 1 if batching is disabled).
func New(collection *mongo.Collection, log *logging.Logger, bufferSize int) *Reader {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if log == nil {
		log = logging.NewDefault()
	}
	return &Reader{collection: collection, log: log, bufferSize: bufferSize}
}

// Err returns the terminal error observed once Subscribe's channel closed.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Subscribe opens the change stream and starts the consume loop. The
// returned channel applies backpressure: a slow consumer blocks the reader
// rather than events being dropped.
func (r *Reader) Subscribe(ctx context.Context) (<-chan core.SourceEvent, error) {
	out := make(chan core.SourceEvent, r.bufferSize)
	go r.run(ctx, out)
	return out, nil
}

func (r *Reader) run(ctx context.Context, out chan<- core.SourceEvent) {
	defer close(out)

	cfg := resilience.SourceReconnectConfig()
	err := resilience.Retry(ctx, cfg, func(attempt int) error {
		streamErr := r.consume(ctx, out)
		if streamErr == nil {
			return nil
		}
		if svcerr.Is(streamErr, svcerr.CodeSourceFatal) {
			r.setErr(streamErr)
			return nil // stop retrying; fatal errors are terminal.
		}
		r.log.WithError(streamErr).Warn("source stream disconnected, reconnecting")
		return streamErr
	})
	if err != nil && r.Err() == nil {
		r.setErr(err)
	}
}

func (r *Reader) setErr(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

// consume opens one change stream from the last resume token and forwards
// events until it closes or fails.
func (r *Reader) consume(ctx context.Context, out chan<- core.SourceEvent) error {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	r.mu.Lock()
	if r.resumeToken != nil {
		opts.SetResumeAfter(r.resumeToken)
	}
	r.mu.Unlock()

	stream, err := r.collection.Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return svcerr.Wrap(svcerr.CodeSourceTransient, "opening change stream", err)
	}
	defer stream.Close(ctx)

	for stream.Next(ctx) {
		var raw bson.M
		if err := stream.Decode(&raw); err != nil {
			return svcerr.Wrap(svcerr.CodeSourceTransient, "decoding change event", err)
		}

		token := stream.ResumeToken()
		event, err := toSourceEvent(raw, token)
		if err != nil {
			return svcerr.Wrap(svcerr.CodeSourceFatal, "building source event", err)
		}

		r.mu.Lock()
		r.resumeToken = token
		r.mu.Unlock()

		select {
		case out <- event:
		case <-ctx.Done():
			return nil
		}
	}

	if err := stream.Err(); err != nil {
		if mongo.IsNetworkError(err) {
			return svcerr.Wrap(svcerr.CodeSourceTransient, "change stream network error", err)
		}
		return svcerr.Wrap(svcerr.CodeSourceFatal, "change stream invalidated", err)
	}
	return nil
}

func toSourceEvent(raw bson.M, token bson.Raw) (core.SourceEvent, error) {
	fullDoc, _ := raw["fullDocument"].(bson.M)
	if fullDoc == nil {
		fullDoc = raw
	}

	doc := make(map[string]any, len(fullDoc))
	for k, v := range fullDoc {
		doc[k] = v
	}

	rawBytes, err := json.Marshal(doc)
	if err != nil {
		return core.SourceEvent{}, err
	}

	return core.SourceEvent{
		Document:    doc,
		RawBytes:    rawBytes,
		Attributes:  map[string]string{"operation_type": operationType(raw)},
		Encoding:    core.EncodingJSON,
		ResumeToken: token.String(),
	}, nil
}

func operationType(raw bson.M) string {
	if op, ok := raw["operationType"].(string); ok {
		return op
	}
	return ""
}
