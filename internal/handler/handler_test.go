package handler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/middleware"
	"github.com/mstreamio/mstream/internal/pipeline"
	"github.com/mstreamio/mstream/internal/sink"
	"github.com/mstreamio/mstream/internal/svcerr"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	events chan core.SourceEvent
	err    error
}

func (f *fakeSource) Subscribe(context.Context) (<-chan core.SourceEvent, error) { return f.events, nil }
func (f *fakeSource) Err() error                                                 { return f.err }

type fakeSink struct {
	encoding  core.Encoding
	fail      bool
	published [][]byte
	mu        sync.Mutex
}

func (f *fakeSink) Encoding() core.Encoding { return f.encoding }
func (f *fakeSink) Publish(_ context.Context, id string, payload []byte, key []byte, attrs map[string]string) (sink.Result, error) {
	if f.fail {
		return sink.Result{}, svcerr.New(svcerr.CodeSinkTransient, "fake sink failure")
	}
	f.mu.Lock()
	f.published = append(f.published, payload)
	f.mu.Unlock()
	return sink.Result{MessageID: id}, nil
}

func newTestPipeline(sinks ...pipeline.SinkBinding) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Name:   "orders-sync",
		Chain:  middleware.New(),
		Sinks:  sinks,
	}
}

func TestRunDeliversToSinkAndCheckpoints(t *testing.T) {
	events := make(chan core.SourceEvent, 1)
	src := &fakeSource{events: events}
	fs := &fakeSink{encoding: core.EncodingRaw}

	p := newTestPipeline(pipeline.SinkBinding{ServiceName: "kafka-a", Publisher: fs})
	p.Source = src

	var checkpointed atomic.Value
	h := New(p, func(_ context.Context, _, token string) error {
		checkpointed.Store(token)
		return nil
	}, nil)

	events <- core.SourceEvent{RawBytes: []byte(`{"id":1}`), Encoding: core.EncodingRaw, ResumeToken: "t1"}
	close(events)

	status := h.Run(context.Background())
	require.Equal(t, core.JobStopped, status.State)
	require.Len(t, fs.published, 1)
	require.Equal(t, "t1", checkpointed.Load())
}

func TestRunTransitionsToFailedAfterAllSinksFailingThreshold(t *testing.T) {
	events := make(chan core.SourceEvent, 20)
	src := &fakeSource{events: events}
	fs := &fakeSink{encoding: core.EncodingRaw, fail: true}

	p := newTestPipeline(pipeline.SinkBinding{ServiceName: "kafka-a", Publisher: fs})
	p.Source = src

	h := New(p, nil, nil, WithAllSinksFailingThreshold(3))

	for i := 0; i < 3; i++ {
		events <- core.SourceEvent{RawBytes: []byte(`{}`), Encoding: core.EncodingRaw, ResumeToken: "t"}
	}

	status := h.Run(context.Background())
	require.Equal(t, core.JobFailed, status.State)
	require.True(t, svcerr.Is(status.Err, svcerr.CodeAllSinksFailing))
}

func TestRunSourceFatalErrorSurfacesAsFailed(t *testing.T) {
	events := make(chan core.SourceEvent)
	close(events)
	src := &fakeSource{events: events, err: svcerr.New(svcerr.CodeSourceFatal, "resume token invalidated")}

	p := newTestPipeline()
	p.Source = src

	h := New(p, nil, nil)
	status := h.Run(context.Background())
	require.Equal(t, core.JobFailed, status.State)
	require.True(t, svcerr.Is(status.Err, svcerr.CodeSourceFatal))
}

func TestRunDropsEventsWithoutCountingTowardAllSinksFailing(t *testing.T) {
	events := make(chan core.SourceEvent, 1)
	src := &fakeSource{events: events}
	fs := &fakeSink{encoding: core.EncodingRaw, fail: true}

	p := newTestPipeline(pipeline.SinkBinding{ServiceName: "kafka-a", Publisher: fs})
	p.Source = src
	p.Chain = middleware.New(dropAllMiddleware{})

	h := New(p, nil, nil, WithAllSinksFailingThreshold(1))

	events <- core.SourceEvent{RawBytes: []byte(`{}`), Encoding: core.EncodingRaw, ResumeToken: "t1"}
	close(events)

	status := h.Run(context.Background())
	require.Equal(t, core.JobStopped, status.State)
	require.Empty(t, fs.published)
}

type dropAllMiddleware struct{}

func (dropAllMiddleware) Name() string { return "drop-all" }
func (dropAllMiddleware) Apply(context.Context, core.SinkEvent) (middleware.Result, error) {
	return middleware.DropResult(), nil
}

func TestRunShutdownTimeoutWhenSourceDoesNotDrain(t *testing.T) {
	events := make(chan core.SourceEvent)
	src := &fakeSource{events: events}

	p := newTestPipeline()
	p.Source = src

	h := New(p, nil, nil, WithShutdownGrace(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status := h.Run(ctx)
	require.Equal(t, core.JobFailed, status.State)
	require.True(t, svcerr.Is(status.Err, svcerr.CodeShutdownTimeout))
}
