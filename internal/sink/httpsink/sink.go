// Package httpsink publishes SinkEvents to an HTTP endpoint, lifting
// attributes to headers. 2xx is success; 5xx and connect errors retry with
// backoff (max 3 attempts, spec §4.5); 4xx is terminal for that event.
package httpsink

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/resilience"
	"github.com/mstreamio/mstream/internal/sink"
	"github.com/mstreamio/mstream/internal/svcerr"
)

// Sink POSTs events to a single configured endpoint.
type Sink struct {
	client   *http.Client
	endpoint string
	encoding core.Encoding
}

// New builds a Sink posting to endpoint using client.
func New(client *http.Client, endpoint string, encoding core.Encoding) *Sink {
	if client == nil {
		client = http.DefaultClient
	}
	return &Sink{client: client, endpoint: endpoint, encoding: encoding}
}

var _ sink.Publisher = (*Sink)(nil)

func (s *Sink) Encoding() core.Encoding { return s.encoding }

// Publish POSTs payload, retrying 5xx/connect errors up to 3 attempts
// total; a 4xx response is terminal and not retried.
func (s *Sink) Publish(ctx context.Context, id string, payload []byte, key []byte, attributes map[string]string) (sink.Result, error) {
	err := resilience.Retry(ctx, resilience.SinkRetryConfig(), func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
		if err != nil {
			return resilience.Permanent{Err: svcerr.Wrap(svcerr.CodeSinkTerminal, "building http request", err)}
		}
		for k, v := range attributes {
			req.Header.Set(k, v)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return svcerr.Wrap(svcerr.CodeSinkTransient, "http sink connect error", err)
		}
		defer resp.Body.Close()

		switch status := resp.StatusCode; {
		case status >= 200 && status < 300:
			return nil
		case status >= 400 && status < 500:
			return resilience.Permanent{Err: svcerr.New(svcerr.CodeSinkTerminal, fmt.Sprintf("http sink returned %d", status))}
		default:
			return svcerr.New(svcerr.CodeSinkTransient, fmt.Sprintf("http sink returned %d", status))
		}
	})
	if err != nil {
		return sink.Result{}, err
	}
	return sink.Result{MessageID: id}, nil
}
