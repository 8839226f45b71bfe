// Package handler implements the event handler (pipeline runner), per spec
// §4.6: the long-running driver for one pipeline — decode, middleware,
// encode, fan-out to sinks with per-sink error isolation, and checkpoint
// advance.
package handler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/logging"
	"github.com/mstreamio/mstream/internal/metrics"
	"github.com/mstreamio/mstream/internal/pipeline"
	"github.com/mstreamio/mstream/internal/svcerr"
)

// DefaultAllSinksFailingThreshold is the consecutive all-sink-failure count
// spec §4.6 names before the handler gives up.
const DefaultAllSinksFailingThreshold = 16

// DefaultShutdownGrace is the cancellation deadline spec §5 names for stop.
const DefaultShutdownGrace = 30 * time.Second

// Status is the terminal outcome a Handler reports when its Run loop exits.
type Status struct {
	State core.JobState // JobStopped or JobFailed
	Err   error         // set when State == JobFailed
}

// CheckpointFunc persists the latest fully-resolved resume token for a
// connector.
type CheckpointFunc func(ctx context.Context, connectorName, resumeToken string) error

// Handler drives one running Pipeline to completion or failure.
type Handler struct {
	pipeline   *pipeline.Pipeline
	checkpoint CheckpointFunc
	log        *logging.Logger

	allSinksFailingThreshold int
	shutdownGrace            time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithAllSinksFailingThreshold overrides the consecutive-failure count.
func WithAllSinksFailingThreshold(n int) Option {
	return func(h *Handler) { h.allSinksFailingThreshold = n }
}

// WithShutdownGrace overrides the cancellation deadline.
func WithShutdownGrace(d time.Duration) Option {
	return func(h *Handler) { h.shutdownGrace = d }
}

// New builds a Handler for p. checkpoint is invoked after every event whose
// sink publishes have all resolved.
func New(p *pipeline.Pipeline, checkpoint CheckpointFunc, log *logging.Logger, opts ...Option) *Handler {
	if log == nil {
		log = logging.NewDefault()
	}
	h := &Handler{
		pipeline:                 p,
		checkpoint:               checkpoint,
		log:                      log,
		allSinksFailingThreshold: DefaultAllSinksFailingThreshold,
		shutdownGrace:            DefaultShutdownGrace,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run drives the pipeline until the source channel closes, ctx is
// cancelled, or AllSinksFailing fires. It blocks until the handler reaches
// a terminal status.
func (h *Handler) Run(ctx context.Context) Status {
	events, err := h.pipeline.Source.Subscribe(ctx)
	if err != nil {
		return Status{State: core.JobFailed, Err: svcerr.Wrap(svcerr.CodeSourceFatal, "subscribing to source", err)}
	}

	consecutiveAllFailed := 0

	for {
		select {
		case event, ok := <-events:
			if !ok {
				if srcErr := h.pipeline.Source.Err(); srcErr != nil {
					return Status{State: core.JobFailed, Err: srcErr}
				}
				return Status{State: core.JobStopped}
			}

			metrics.EventsProcessed.WithLabelValues(h.pipeline.Name).Inc()

			failed, err := h.processEvent(ctx, event)
			if err != nil {
				h.log.WithError(err).Warn("dropping event after middleware failure")
				if h.pipeline.Connector.FailFast {
					return Status{State: core.JobFailed, Err: err}
				}
				continue
			}

			if failed {
				consecutiveAllFailed++
				if consecutiveAllFailed >= h.allSinksFailingThreshold {
					return Status{State: core.JobFailed, Err: svcerr.New(svcerr.CodeAllSinksFailing,
						"all sinks failed for too many consecutive events")}
				}
			} else {
				consecutiveAllFailed = 0
			}

		case <-ctx.Done():
			return h.drain(events)
		}
	}
}

// drain waits up to the shutdown grace period for the source to close its
// channel cleanly after cancellation, forcing ShutdownTimeout otherwise.
func (h *Handler) drain(events <-chan core.SourceEvent) Status {
	timer := time.NewTimer(h.shutdownGrace)
	defer timer.Stop()

	for {
		select {
		case _, ok := <-events:
			if !ok {
				return Status{State: core.JobStopped}
			}
		case <-timer.C:
			return Status{State: core.JobFailed, Err: svcerr.New(svcerr.CodeShutdownTimeout, "stop did not drain within grace period")}
		}
	}
}

// processEvent runs one SourceEvent through the middleware chain and fans
// the surviving SinkEvents out to every sink. It reports whether every sink
// publish for every surviving event failed (for AllSinksFailing tracking);
// an event dropped entirely by middleware counts as not-failed (spec
// design note: middleware drops don't count toward AllSinksFailing).
func (h *Handler) processEvent(ctx context.Context, event core.SourceEvent) (allFailed bool, err error) {
	sinkEvent := core.FromSourceEvent(event)

	surviving, err := h.pipeline.Chain.Apply(ctx, sinkEvent)
	if err != nil {
		return false, err
	}
	if len(surviving) == 0 {
		metrics.EventsDropped.WithLabelValues(h.pipeline.Name).Inc()
		return false, nil
	}

	anySucceeded := false
	anyAttempted := false
	latestToken := event.ResumeToken

	for _, out := range surviving {
		anyAttempted = true
		if h.publishToAllSinks(ctx, out) {
			anySucceeded = true
		}
	}

	if anyAttempted && h.checkpoint != nil {
		if err := h.checkpoint(ctx, h.pipeline.Name, latestToken); err != nil {
			h.log.WithError(err).Warn("checkpoint callback failed")
		} else {
			metrics.CheckpointLagSeconds.WithLabelValues(h.pipeline.Name).Set(0)
		}
	}

	return anyAttempted && !anySucceeded, nil
}

// publishToAllSinks encodes and publishes one SinkEvent to every configured
// sink in parallel, isolating per-sink failures. It reports whether at
// least one sink accepted the event.
func (h *Handler) publishToAllSinks(ctx context.Context, event core.SinkEvent) bool {
	var wg sync.WaitGroup
	results := make([]bool, len(h.pipeline.Sinks))

	for i, binding := range h.pipeline.Sinks {
		wg.Add(1)
		go func(i int, binding pipeline.SinkBinding) {
			defer wg.Done()

			payload := event.RawBytes
			_, emptySchema := binding.Schema.(core.EmptySchema)
			if binding.Publisher.Encoding() != core.EncodingRaw && binding.Schema != nil && !emptySchema {
				doc, err := decodeDocument(event, binding.Schema)
				if err != nil {
					h.log.WithError(err).WithField("sink", binding.ServiceName).Warn("decoding event for sink encode failed")
					return
				}
				encoded, err := binding.Schema.Encode(doc)
				if err != nil {
					h.log.WithError(err).WithField("sink", binding.ServiceName).Warn("sink encode failed")
					return
				}
				payload = encoded
			}

			start := time.Now()
			_, err := binding.Publisher.Publish(ctx, h.pipeline.Name, payload, nil, event.Attributes)
			metrics.SinkPublishDuration.WithLabelValues(h.pipeline.Name, binding.ServiceName).Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.SinkPublishes.WithLabelValues(h.pipeline.Name, binding.ServiceName, "failure").Inc()
				h.log.WithError(err).WithField("sink", binding.ServiceName).Warn("sink publish failed")
				return
			}
			metrics.SinkPublishes.WithLabelValues(h.pipeline.Name, binding.ServiceName, "success").Inc()
			results[i] = true
		}(i, binding)
	}

	wg.Wait()

	for _, ok := range results {
		if ok {
			return true
		}
	}
	return len(h.pipeline.Sinks) == 0
}

// decodeDocument parses a SinkEvent's bytes back into a document so it can
// be re-encoded against a sink's schema; JSON-encoded events decode
// directly, other encodings fall back to the schema's own Decode.
func decodeDocument(event core.SinkEvent, schema core.Schema) (map[string]any, error) {
	if event.Encoding == core.EncodingJSON {
		var doc map[string]any
		if err := json.Unmarshal(event.RawBytes, &doc); err != nil {
			return nil, err
		}
		return doc, nil
	}
	return schema.Decode(event.RawBytes)
}
