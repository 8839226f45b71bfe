// Package sink defines the sink publisher contract, per spec §4.5: a
// capability set every Kafka/PubSub/Mongo/HTTP publisher implements.
package sink

import (
	"context"

	"github.com/mstreamio/mstream/internal/domain/core"
)

// Result identifies the message a Publish call produced.
type Result struct {
	MessageID string
}

// Publisher delivers a payload to an external system and declares the
// encoding it expects events to arrive in.
type Publisher interface {
	// Publish sends payload, associated with id for logging/idempotency,
	// optionally partitioned/keyed and carrying attributes as headers/
	// message properties where the sink supports them.
	Publish(ctx context.Context, id string, payload []byte, key []byte, attributes map[string]string) (Result, error)
	// Encoding reports whether the sink wants re-encoded bytes or the raw
	// passthrough payload (spec §4.5: "declares its own encoding
	// requirements").
	Encoding() core.Encoding
}
