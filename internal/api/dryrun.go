package api

import (
	"context"
	"encoding/json"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/jobmanager"
	"github.com/mstreamio/mstream/internal/middleware"
	"github.com/mstreamio/mstream/internal/svcerr"
)

// pipelineDryRunner implements TransformCollaborator by running a document
// through a currently-running connector's live middleware chain, never
// touching its sinks. This is core logic (internal/middleware), unlike
// schema fill/convert, so it is wired directly rather than left as a
// deployment-supplied delegate.
type pipelineDryRunner struct {
	manager *jobmanager.Manager
}

// NewPipelineDryRunner builds the default TransformCollaborator backing
// POST /transform/run.
func NewPipelineDryRunner(manager *jobmanager.Manager) TransformCollaborator {
	return &pipelineDryRunner{manager: manager}
}

func (d *pipelineDryRunner) DryRun(ctx context.Context, connectorName string, document map[string]any) (TransformResult, error) {
	p, ok := d.manager.Pipeline(connectorName)
	if !ok {
		return TransformResult{}, svcerr.New(svcerr.CodeUnknownService, "no running job named "+connectorName)
	}

	raw, err := json.Marshal(document)
	if err != nil {
		return TransformResult{}, svcerr.Wrap(svcerr.CodeConfigError, "marshaling dry-run document", err)
	}

	chain := p.Chain
	if chain == nil {
		chain = middleware.New()
	}
	surviving, err := chain.Apply(ctx, core.SinkEvent{RawBytes: raw, Encoding: core.EncodingJSON})
	if err != nil {
		return TransformResult{Outcome: "dropped", Warnings: []string{err.Error()}}, nil
	}
	if len(surviving) == 0 {
		return TransformResult{Outcome: "dropped"}, nil
	}

	outcome := "kept"
	if len(surviving) > 1 {
		outcome = "split"
	}
	events := make([]map[string]any, 0, len(surviving))
	for _, ev := range surviving {
		var doc map[string]any
		if err := json.Unmarshal(ev.RawBytes, &doc); err != nil {
			doc = map[string]any{"__raw__": string(ev.RawBytes)}
		}
		events = append(events, doc)
	}
	return TransformResult{Outcome: outcome, Events: events}, nil
}
