package jobmanager

import (
	"context"
	"testing"
	"time"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/jobmanager/memstore"
	"github.com/mstreamio/mstream/internal/middleware"
	"github.com/mstreamio/mstream/internal/pipeline"
	"github.com/mstreamio/mstream/internal/source"
	"github.com/mstreamio/mstream/internal/svcerr"
	"github.com/stretchr/testify/require"
)

// fakeReader forwards test-pushed events to its subscriber and closes the
// output channel on context cancellation, mirroring mongosource.Reader's
// shutdown behavior without a live MongoDB.
type fakeReader struct {
	events chan core.SourceEvent
}

func (f *fakeReader) Subscribe(ctx context.Context) (<-chan core.SourceEvent, error) {
	out := make(chan core.SourceEvent)
	go func() {
		defer close(out)
		for {
			select {
			case e := <-f.events:
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *fakeReader) Err() error { return nil }

var _ source.Reader = (*fakeReader)(nil)

type fakeBuilder struct {
	readers map[string]*fakeReader
	failOn  map[string]error
}

func newFakeBuilder() *fakeBuilder {
	return &fakeBuilder{readers: make(map[string]*fakeReader), failOn: make(map[string]error)}
}

func (b *fakeBuilder) Build(_ context.Context, conn core.Connector) (*pipeline.Pipeline, error) {
	if err, ok := b.failOn[conn.Name]; ok {
		return nil, err
	}
	reader := &fakeReader{events: make(chan core.SourceEvent)}
	b.readers[conn.Name] = reader
	return &pipeline.Pipeline{
		Name:      conn.Name,
		Connector: conn,
		Source:    reader,
		Chain:     middleware.New(),
	}, nil
}

func TestCreateAndStartTransitionsToRunning(t *testing.T) {
	store := memstore.New()
	b := newFakeBuilder()
	m := New(b, store, nil)

	conn := core.Connector{Name: "orders-sync"}
	require.NoError(t, m.CreateAndStart(context.Background(), conn))

	require.Eventually(t, func() bool { return m.IsRunning("orders-sync") }, time.Second, time.Millisecond)

	job, found, err := store.GetJob(context.Background(), "orders-sync")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, core.JobRunning, job.State)
}

func TestCreateAndStartFailsWhenAlreadyRunning(t *testing.T) {
	store := memstore.New()
	b := newFakeBuilder()
	m := New(b, store, nil)

	conn := core.Connector{Name: "orders-sync"}
	require.NoError(t, m.CreateAndStart(context.Background(), conn))
	require.Eventually(t, func() bool { return m.IsRunning("orders-sync") }, time.Second, time.Millisecond)

	err := m.CreateAndStart(context.Background(), conn)
	require.Error(t, err)
	require.True(t, svcerr.Is(err, svcerr.CodeNameInUse))
}

func TestStopIsIdempotentAndDrainsHandler(t *testing.T) {
	store := memstore.New()
	b := newFakeBuilder()
	m := New(b, store, nil)

	conn := core.Connector{Name: "orders-sync"}
	require.NoError(t, m.CreateAndStart(context.Background(), conn))
	require.Eventually(t, func() bool { return m.IsRunning("orders-sync") }, time.Second, time.Millisecond)

	require.NoError(t, m.Stop(context.Background(), "orders-sync"))
	require.False(t, m.IsRunning("orders-sync"))

	require.NoError(t, m.Stop(context.Background(), "orders-sync"))

	job, found, err := store.GetJob(context.Background(), "orders-sync")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, core.JobStopped, job.State)
}

func TestCheckpointCallbackPersistsCheckpoints(t *testing.T) {
	store := memstore.New()
	b := newFakeBuilder()
	m := New(b, store, nil)

	conn := core.Connector{Name: "orders-sync"}
	require.NoError(t, m.CreateAndStart(context.Background(), conn))
	require.Eventually(t, func() bool { return m.IsRunning("orders-sync") }, time.Second, time.Millisecond)

	b.readers["orders-sync"].events <- core.SourceEvent{RawBytes: []byte(`{}`), Encoding: core.EncodingRaw, ResumeToken: "t1"}
	require.NoError(t, m.Stop(context.Background(), "orders-sync"))

	cps, err := store.ListCheckpoints(context.Background(), "orders-sync")
	require.NoError(t, err)
	require.Len(t, cps, 1)
	require.Equal(t, "t1", cps[0].ResumeToken)
}

func TestReconcileSeedFromFileSkipsExistingJob(t *testing.T) {
	store := memstore.New()
	b := newFakeBuilder()
	m := New(b, store, nil)

	require.NoError(t, store.PutJob(context.Background(), core.Job{ConnectorName: "existing", State: core.JobStopped}))

	conns := []core.Connector{{Name: "existing"}, {Name: "fresh"}}
	require.NoError(t, m.Reconcile(context.Background(), core.StartupSeedFromFile, conns))

	require.False(t, m.IsRunning("existing"))
	require.Eventually(t, func() bool { return m.IsRunning("fresh") }, time.Second, time.Millisecond)
}
