package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/jobmanager"
	"github.com/mstreamio/mstream/internal/jobmanager/memstore"
	"github.com/mstreamio/mstream/internal/middleware"
	"github.com/mstreamio/mstream/internal/pipeline"
	"github.com/mstreamio/mstream/internal/registry"
	"github.com/stretchr/testify/require"
)

// idleReader is a source.Reader whose event channel carries no events and
// stays open until the job's context is cancelled, so a job started against
// it stays live for the test without needing a live source connection.
type idleReader struct{}

func (idleReader) Subscribe(ctx context.Context) (<-chan core.SourceEvent, error) {
	ch := make(chan core.SourceEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (idleReader) Err() error { return nil }

type fakeBuilder struct {
	failOn map[string]error
}

func (b *fakeBuilder) Build(_ context.Context, conn core.Connector) (*pipeline.Pipeline, error) {
	if err, ok := b.failOn[conn.Name]; ok {
		return nil, err
	}
	return &pipeline.Pipeline{Name: conn.Name, Connector: conn, Source: idleReader{}, Chain: middleware.New()}, nil
}

func newTestServer(t *testing.T) (*Server, *jobmanager.Manager) {
	t.Helper()
	manager := jobmanager.New(&fakeBuilder{failOn: make(map[string]error)}, memstore.New(), nil)
	reg := registry.New(nil)
	require.NoError(t, reg.Register(registry.Descriptor{Name: "orders-mongo", Kind: core.ServiceKindMongoDB}))
	return New(manager, reg, nil), manager
}

func TestListJobsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestCreateAndGetJob(t *testing.T) {
	srv, _ := newTestServer(t)

	body, err := json.Marshal(createJobRequest{
		Name:   "orders-sync",
		Source: serviceRefDTO{ServiceName: "orders-mongo", Resource: "db.orders"},
		Sinks:  []serviceRefDTO{{ServiceName: "orders-mongo", Resource: "db.orders_copy"}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/jobs/orders-sync", nil)
	getRec := httptest.NewRecorder()
	srv.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var dto jobDTO
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &dto))
	require.Equal(t, "orders-sync", dto.ConnectorName)
}

func TestCreateJobDuplicateNameConflicts(t *testing.T) {
	srv, manager := newTestServer(t)
	require.NoError(t, manager.CreateAndStart(context.Background(), core.Connector{
		Name:   "orders-sync",
		Source: core.ServiceReference{ServiceName: "orders-mongo", Resource: "db.orders"},
	}))

	body, err := json.Marshal(createJobRequest{
		Name:   "orders-sync",
		Source: serviceRefDTO{ServiceName: "orders-mongo", Resource: "db.orders"},
		Sinks:  []serviceRefDTO{{ServiceName: "orders-mongo", Resource: "db.orders_copy"}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestartUnknownConnectorReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs/never-started/restart", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListServices(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/services", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []serviceDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "orders-mongo", out[0].Name)
}

func TestSchemaFillWithoutCollaboratorReturnsNotImplemented(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(schemaFillRequest{SchemaID: "s1", Document: map[string]any{}})
	req := httptest.NewRequest(http.MethodPost, "/schema/fill", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestTransformRunDryRunsAgainstLiveChain(t *testing.T) {
	srv, manager := newTestServer(t)
	require.NoError(t, manager.CreateAndStart(context.Background(), core.Connector{
		Name:   "orders-sync",
		Source: core.ServiceReference{ServiceName: "orders-mongo", Resource: "db.orders"},
	}))

	body, _ := json.Marshal(transformRunRequest{ConnectorName: "orders-sync", Document: map[string]any{"id": 1}})
	req := httptest.NewRequest(http.MethodPost, "/transform/run", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result TransformResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, "kept", result.Outcome)
}

func TestTransformRunUnknownConnectorConflicts(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(transformRunRequest{ConnectorName: "missing", Document: map[string]any{"id": 1}})
	req := httptest.NewRequest(http.MethodPost, "/transform/run", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthzLiveEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz/live", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
