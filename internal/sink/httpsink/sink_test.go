package httpsink

import (
	"net/http"
	"net/http/httptest"
	"context"
	"sync/atomic"
	"testing"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/svcerr"
	"github.com/stretchr/testify/require"
)

func TestPublishRetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(server.Client(), server.URL, core.EncodingRaw)
	res, err := s.Publish(context.Background(), "evt-1", []byte("payload"), nil, nil)
	require.NoError(t, err)
	require.Equal(t, "evt-1", res.MessageID)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestPublishTerminalOn4xxDoesNotRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s := New(server.Client(), server.URL, core.EncodingRaw)
	_, err := s.Publish(context.Background(), "evt-1", []byte("payload"), nil, nil)
	require.Error(t, err)
	require.True(t, svcerr.Is(err, svcerr.CodeSinkTerminal))
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestPublishLiftsAttributesToHeaders(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Trace-Id")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(server.Client(), server.URL, core.EncodingRaw)
	_, err := s.Publish(context.Background(), "evt-1", []byte("payload"), nil, map[string]string{"X-Trace-Id": "abc"})
	require.NoError(t, err)
	require.Equal(t, "abc", gotHeader)
}
