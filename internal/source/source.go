// Package source defines the change-stream source contract driving a
// pipeline, per spec §4.3.
package source

import (
	"context"

	"github.com/mstreamio/mstream/internal/domain/core"
)

// Reader produces ordered SourceEvents from a change stream, attaching a
// monotonically advancing resume token to each.
type Reader interface {
	// Subscribe returns a bounded, ordered channel of events. The channel
	// closes on clean shutdown or a fatal stream error; callers distinguish
	// the two via Err, consulted after the channel closes.
	Subscribe(ctx context.Context) (<-chan core.SourceEvent, error)
	// Err returns the terminal error, if any, once the channel returned by
	// Subscribe has closed. A nil Err after close means clean shutdown.
	Err() error
}
