// Package httpmw implements the HTTP middleware provider, per spec §4.4:
// POSTs the event's current bytes to a configured endpoint and replaces the
// payload with the response body, honoring the provider's declared output
// encoding.
package httpmw

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/middleware"
	"github.com/mstreamio/mstream/internal/svcerr"
)

// Middleware POSTs each event to endpoint and replaces its payload with the
// response body.
type Middleware struct {
	name           string
	client         *http.Client
	endpoint       string
	outputEncoding core.Encoding
}

// New builds an HTTP middleware posting to endpoint. outputEncoding tags the
// replaced payload for downstream encoding decisions.
func New(name string, client *http.Client, endpoint string, outputEncoding core.Encoding) *Middleware {
	if client == nil {
		client = http.DefaultClient
	}
	return &Middleware{name: name, client: client, endpoint: endpoint, outputEncoding: outputEncoding}
}

var _ middleware.Middleware = (*Middleware)(nil)

func (m *Middleware) Name() string { return m.name }

// Apply POSTs event.RawBytes and replaces it with the response body. A
// non-2xx response fails the event rather than dropping it silently, since
// middleware errors are not sink failures and must surface to the handler.
func (m *Middleware) Apply(ctx context.Context, event core.SinkEvent) (middleware.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(event.RawBytes))
	if err != nil {
		return middleware.Result{}, svcerr.Wrap(svcerr.CodeSinkTerminal, "building http middleware request", err)
	}
	for k, v := range event.Attributes {
		req.Header.Set(k, v)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return middleware.Result{}, svcerr.Wrap(svcerr.CodeSinkTransient, "http middleware connect error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return middleware.Result{}, svcerr.Wrap(svcerr.CodeSinkTransient, "reading http middleware response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return middleware.Result{}, svcerr.New(svcerr.CodeSinkTerminal, fmt.Sprintf("http middleware returned %d", resp.StatusCode))
	}

	out := event
	out.RawBytes = body
	out.Encoding = m.outputEncoding
	return middleware.KeepResult(out), nil
}
