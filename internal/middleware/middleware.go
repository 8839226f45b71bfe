// Package middleware implements the sequential middleware chain, per spec
// §4.4: each provider applies to an event and returns Keep, Drop, or Split;
// the chain runs providers in order, Drop short-circuits, and Split fans
// out independently through the remaining providers.
package middleware

import (
	"context"

	"github.com/mstreamio/mstream/internal/domain/core"
)

// Outcome is the verdict a Middleware returns for one event.
type Outcome int

const (
	// Keep carries Events[0] forward unchanged in shape (one event in, one out).
	Keep Outcome = iota
	// Drop removes the event from the pipeline; no further middleware or
	// sink sees it.
	Drop
	// Split replaces the event with zero or more events, each processed
	// independently by the remaining chain.
	Split
)

// Result is what a Middleware produces for one input event.
type Result struct {
	Outcome Outcome
	Events  []core.SinkEvent
}

// KeepResult builds a Result carrying a single replacement event forward.
func KeepResult(e core.SinkEvent) Result { return Result{Outcome: Keep, Events: []core.SinkEvent{e}} }

// DropResult builds a Result removing the event from the pipeline.
func DropResult() Result { return Result{Outcome: Drop} }

// SplitResult builds a Result fanning the event into several.
func SplitResult(events ...core.SinkEvent) Result { return Result{Outcome: Split, Events: events} }

// Middleware transforms or filters a single event.
type Middleware interface {
	Name() string
	Apply(ctx context.Context, event core.SinkEvent) (Result, error)
}

// Chain applies a sequence of Middleware to events in order.
type Chain struct {
	stages []Middleware
}

// New builds a Chain that runs stages in the given order.
func New(stages ...Middleware) *Chain {
	return &Chain{stages: stages}
}

// Apply runs event through the full chain, returning the set of events that
// survive (zero if dropped, one if kept/unsplit, many if split). Each
// surviving event from a Split is run through the remaining stages
// independently, so a downstream Drop only removes that branch.
func (c *Chain) Apply(ctx context.Context, event core.SinkEvent) ([]core.SinkEvent, error) {
	return c.applyFrom(ctx, 0, event)
}

func (c *Chain) applyFrom(ctx context.Context, idx int, event core.SinkEvent) ([]core.SinkEvent, error) {
	if idx >= len(c.stages) {
		return []core.SinkEvent{event}, nil
	}

	stage := c.stages[idx]
	res, err := stage.Apply(ctx, event)
	if err != nil {
		return nil, err
	}

	switch res.Outcome {
	case Drop:
		return nil, nil
	case Keep:
		if len(res.Events) != 1 {
			return nil, nil
		}
		return c.applyFrom(ctx, idx+1, res.Events[0])
	case Split:
		var out []core.SinkEvent
		for _, e := range res.Events {
			branch, err := c.applyFrom(ctx, idx+1, e)
			if err != nil {
				return nil, err
			}
			out = append(out, branch...)
		}
		return out, nil
	default:
		return nil, nil
	}
}
